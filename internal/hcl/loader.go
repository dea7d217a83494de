package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/hookwire/internal/config"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fsutil"
	"github.com/vk/hookwire/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// Extension is the file extension of assembly files.
const Extension = ".hcl"

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	vars map[string]cty.Value
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithVariable makes name available to wirelet attribute expressions.
func WithVariable(name string, v cty.Value) LoaderOption {
	return func(l *Loader) { l.vars[name] = v }
}

// NewLoader creates a new HCL assembly loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{vars: make(map[string]cty.Value)}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load parses every assembly file found under paths. Files are read in
// lexical order; top-level scopes of the same name may not repeat.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFilesByExtension(Extension, paths...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	model := &config.Model{}
	declared := make(map[string]string)

	for _, file := range files {
		f, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root schema.File
		if diags := gohcl.DecodeBody(f.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, s := range root.Scopes {
			if prev, dup := declared[s.Name]; dup {
				return nil, fmt.Errorf("scope %q declared in both %s and %s", s.Name, prev, file)
			}
			declared[s.Name] = file
			scope, err := l.translateScope(ctx, file, s, evalCtx)
			if err != nil {
				return nil, err
			}
			model.Scopes = append(model.Scopes, scope)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(files), "scopes", len(model.Scopes))
	return model, nil
}

func (l *Loader) evalContext() *hcl.EvalContext {
	if len(l.vars) == 0 {
		return nil
	}
	return &hcl.EvalContext{Variables: l.vars}
}
