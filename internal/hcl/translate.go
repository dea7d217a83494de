package hcl

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/hookwire/internal/config"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translateScope converts a scope block and its nested scopes into the
// agnostic model.
func (l *Loader) translateScope(ctx context.Context, file string, s *schema.Scope, evalCtx *hcl.EvalContext) (*config.Scope, error) {
	out := &config.Scope{
		Name:   s.Name,
		Use:    s.Use,
		Source: file,
	}

	wirelets := make(map[string]*config.Wirelet)
	for _, w := range s.Wirelets {
		opts, err := l.translateWirelet(ctx, w, evalCtx)
		if err != nil {
			return nil, fmt.Errorf("in scope %q of %s: %w", s.Name, file, err)
		}
		// Blocks for the same extension merge; later attributes win.
		if prev, ok := wirelets[w.Extension]; ok {
			for k, v := range opts.Options {
				prev.Options[k] = v
			}
			continue
		}
		wirelets[w.Extension] = opts
		out.Wirelets = append(out.Wirelets, opts)
	}

	names := make(map[string]bool)
	for _, c := range s.Scopes {
		if names[c.Name] {
			return nil, fmt.Errorf("scope %q of %s declares nested scope %q twice", s.Name, file, c.Name)
		}
		names[c.Name] = true
		child, err := l.translateScope(ctx, file, c, evalCtx)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, child)
	}
	return out, nil
}

// translateWirelet evaluates every attribute of a wirelet block.
func (l *Loader) translateWirelet(ctx context.Context, w *schema.Wirelet, evalCtx *hcl.EvalContext) (*config.Wirelet, error) {
	logger := ctxlog.FromContext(ctx)
	attrs, diags := w.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("wirelet %q: %w", w.Extension, diags)
	}

	out := &config.Wirelet{Extension: w.Extension, Options: make(map[string]cty.Value, len(attrs))}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, fmt.Errorf("wirelet %q, option %q: %w", w.Extension, name, diags)
		}
		out.Options[name] = val
		logger.Debug("Evaluated wirelet option.", "extension", w.Extension, "option", name, "type", val.Type().FriendlyName())
	}
	return out, nil
}
