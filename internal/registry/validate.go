package registry

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
)

// Validate checks every registered extension: required dependencies must be
// registered and satisfy their version constraints, node types must be
// concrete, and no extension may take part in a dependency cycle. All
// problems are reported together.
func (r *Registry) Validate(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for _, def := range r.Definitions() {
		if def.NodeType != nil {
			switch def.NodeType.Kind() {
			case reflect.Interface:
				errs = append(errs, fmt.Sprintf("extension '%s': node type %v must be a concrete type", def.Name, def.NodeType))
			case reflect.Pointer, reflect.Struct:
			default:
				logger.Warn("Extension node type is neither a struct nor a pointer.", "extension", def.Name, "node", def.NodeType.String())
			}
		}
		if _, err := r.Resolve(ctx, def.Type); err != nil {
			errs = append(errs, fmt.Sprintf("extension '%s': %v", def.Name, err))
		}
	}

	if err := fault.Join("registry.Validate", "registry validation failed", errs); err != nil {
		return err
	}
	logger.Debug("Registry validated.", "extensions", len(r.Definitions()))
	return nil
}
