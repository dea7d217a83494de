package scope

import (
	"context"
	"reflect"

	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/wirelet"
)

// Use returns the live instance of extension type t, instantiating it and
// every missing dependency first, by ascending depth. Any failure fails the
// scope.
func (s *Scope) Use(ctx context.Context, t reflect.Type) (any, error) {
	const op = "scope.Use"
	if e := s.lookup(t); e != nil {
		return e.instance, nil
	}
	if err := s.checkConfigurable(op); err != nil {
		return nil, err
	}

	res, err := s.reg.Resolve(ctx, t)
	if err != nil {
		return nil, s.fail(err)
	}
	for _, def := range res.Closure {
		if s.lookup(def.Type) != nil {
			continue
		}
		if err := s.instantiate(ctx, def); err != nil {
			return nil, s.fail(err)
		}
	}
	return s.lookup(t).instance, nil
}

// Use returns the live instance of extension E.
func Use[E any](ctx context.Context, s *Scope) (*E, error) {
	v, err := s.Use(ctx, reflect.TypeFor[*E]())
	if err != nil {
		return nil, err
	}
	return v.(*E), nil
}

// UseNamed is Use for an extension looked up by name.
func (s *Scope) UseNamed(ctx context.Context, name string) (any, error) {
	def, ok := s.reg.Lookup(name)
	if !ok {
		return nil, s.fail(fault.Declaration("scope.UseNamed", "unknown extension %q", name))
	}
	return s.Use(ctx, def.Type)
}

// Activate uses every extension activated by marker and returns their
// instances in name order.
func (s *Scope) Activate(ctx context.Context, marker string) ([]any, error) {
	var out []any
	for _, def := range s.reg.ActivatedBy(marker) {
		v, err := s.Use(ctx, def.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Configure passes the live instance of t to fn, using the extension first
// if needed. It fails once the scope is frozen.
func (s *Scope) Configure(ctx context.Context, t reflect.Type, fn func(ext any) error) error {
	const op = "scope.Configure"
	if err := s.checkConfigurable(op); err != nil {
		return err
	}
	v, err := s.Use(ctx, t)
	if err != nil {
		return err
	}
	return fn(v)
}

// Configure is the typed form of Scope.Configure.
func Configure[E any](ctx context.Context, s *Scope, fn func(*E) error) error {
	return s.Configure(ctx, reflect.TypeFor[*E](), func(v any) error { return fn(v.(*E)) })
}

// Wire queues wirelets for their target extensions. Wirelets for an
// extension that is already live are added to its pipeline directly. Targets
// are resolved before anything is queued, and the wirelets of one extension
// keep the supplied order whether they name it by alias or canonical name.
func (s *Scope) Wire(ws ...wirelet.Wirelet) error {
	const op = "scope.Wire"
	if err := s.checkConfigurable(op); err != nil {
		return err
	}

	var order []*registry.Definition
	groups := make(map[*registry.Definition][]wirelet.Wirelet)
	for _, w := range ws {
		if w == nil {
			return s.fail(fault.Declaration(op, "nil wirelet"))
		}
		def, ok := s.reg.Lookup(w.Target())
		if !ok {
			return s.fail(fault.Declaration(op, "wirelet targets unknown extension %q", w.Target()))
		}
		if _, seen := groups[def]; !seen {
			order = append(order, def)
		}
		groups[def] = append(groups[def], retarget(w, def.Name))
	}

	for _, def := range order {
		group := groups[def]
		if e := s.lookup(def.Type); e != nil {
			if err := e.pipeline.Add(group...); err != nil {
				return s.fail(err)
			}
			continue
		}
		s.mu.Lock()
		s.pending[def.Name] = append(s.pending[def.Name], group...)
		s.mu.Unlock()
	}
	return nil
}

// retarget rewrites option wirelets addressed by alias to the canonical
// extension name.
func retarget(w wirelet.Wirelet, name string) wirelet.Wirelet {
	if o, ok := w.(wirelet.Option); ok && o.Extension != name {
		o.Extension = name
		return o
	}
	return w
}

func (s *Scope) instantiate(ctx context.Context, def *registry.Definition) error {
	const op = "scope.Use"
	logger := ctxlog.FromContext(ctx)

	res, err := s.reg.Resolve(ctx, def.Type)
	if err != nil {
		return err
	}
	if def.New == nil {
		return fault.Declaration(op, "extension %s has no constructor", def.Name)
	}
	inst := def.New()
	if inst == nil || reflect.TypeOf(inst) != def.Type {
		return fault.Declaration(op, "constructor of %s returned %T", def.Name, inst)
	}

	s.mu.Lock()
	pending := s.pending[def.Name]
	delete(s.pending, def.Name)
	s.mu.Unlock()
	pipeline, err := wirelet.New(def.Name, pending...)
	if err != nil {
		return err
	}

	e := &extension{def: def, depth: res.Depth, direct: res.Direct, instance: inst, pipeline: pipeline}
	e.handle = &Handle{scope: s, ext: e}

	s.mu.Lock()
	s.live[def.Type] = e
	s.created = append(s.created, e)
	s.mu.Unlock()
	s.metrics.Instance()
	logger.Debug("Instantiated extension.", "scope", s.Path(), "extension", def.Name, "depth", e.depth)

	if pc, ok := inst.(PostConstructor); ok {
		if err := pc.PostConstruct(ctx, e.handle); err != nil {
			return err
		}
	}
	return s.buildNode(e)
}

// buildNode constructs the companion node once. Its dynamic type must be
// exactly the declared concrete node type.
func (s *Scope) buildNode(e *extension) error {
	const op = "scope.Node"
	def := e.def
	if def.NodeType == nil {
		return nil
	}
	if def.NodeType.Kind() == reflect.Interface {
		return fault.Declaration(op, "node type %v of %s must be a concrete type", def.NodeType, def.Name)
	}
	node := def.NewNode(e.instance)
	rv := reflect.ValueOf(node)
	if !rv.IsValid() || (rv.Kind() == reflect.Pointer && rv.IsNil()) {
		return fault.Declaration(op, "node of %s is nil", def.Name)
	}
	if rv.Type() != def.NodeType {
		return fault.Declaration(op, "node of %s has type %v, declared %v", def.Name, rv.Type(), def.NodeType)
	}
	e.node = node
	return nil
}
