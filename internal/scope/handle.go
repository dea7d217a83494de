package scope

import (
	"context"
	"reflect"

	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/wirelet"
)

// PostConstructor is implemented by extensions that run code right after
// instantiation. Dependencies are already live.
type PostConstructor interface {
	PostConstruct(ctx context.Context, h *Handle) error
}

// PostConfigurer is implemented by extensions that run code when their
// scope is frozen. Dependencies are called first.
type PostConfigurer interface {
	PostConfigure(ctx context.Context, h *Handle) error
}

// Linker is implemented by extensions that link a nested scope's instance to
// the parent scope's instance of the same extension. Link runs during the
// nested scope's freeze, immediately before the extension's PostConfigure.
type Linker interface {
	Link(ctx context.Context, h *Handle, parent *Handle) error
}

// Closer is implemented by extensions releasing resources when their scope
// is closed. Dependents are closed first.
type Closer interface {
	Close(ctx context.Context, h *Handle) error
}

// Handle is the view an extension has of its own place in a scope.
type Handle struct {
	scope *Scope
	ext   *extension
}

// Scope returns the owning scope.
func (h *Handle) Scope() *Scope { return h.scope }

// Definition returns the extension definition.
func (h *Handle) Definition() *registry.Definition { return h.ext.def }

// Depth returns the ordering depth of the extension.
func (h *Handle) Depth() int { return h.ext.depth }

// Instance returns the extension instance.
func (h *Handle) Instance() any { return h.ext.instance }

// Node returns the companion node, nil when the extension declares none or
// it is not built yet.
func (h *Handle) Node() any { return h.ext.node }

// Wirelets returns the pipeline of the extension.
func (h *Handle) Wirelets() *wirelet.Pipeline { return h.ext.pipeline }

// CheckConfigurable fails with an illegal-state error once the scope is no
// longer configurable. Extensions call it before every mutation.
func (h *Handle) CheckConfigurable() error {
	return h.scope.checkConfigurable("scope.Handle.CheckConfigurable")
}

// Dependency returns the live instance of t, which must be a declared direct
// dependency of the extension.
func (h *Handle) Dependency(t reflect.Type) (any, error) {
	const op = "scope.Handle.Dependency"
	declared := false
	for _, d := range h.ext.direct {
		if d.Type == t {
			declared = true
			break
		}
	}
	if !declared {
		return nil, fault.Declaration(op, "%s does not declare a dependency on %s", h.ext.def.Name, introspect.CanonicalName(t))
	}
	e := h.scope.lookup(t)
	if e == nil {
		return nil, fault.IllegalState(op, "dependency %s of %s is not live", introspect.CanonicalName(t), h.ext.def.Name)
	}
	return e.instance, nil
}

// Dependency returns the live instance of extension D declared as a direct
// dependency of h's extension.
func Dependency[D any](h *Handle) (*D, error) {
	v, err := h.Dependency(reflect.TypeFor[*D]())
	if err != nil {
		return nil, err
	}
	return v.(*D), nil
}
