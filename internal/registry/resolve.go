package registry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/dag"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
)

type directEntry struct {
	deps []*Definition
	err  error
}

// DirectDependencies returns the direct dependencies of extension type t:
// its required dependencies in declaration order followed by the optional
// ones that are registered. The result is computed once per type.
func (r *Registry) DirectDependencies(t reflect.Type) ([]*Definition, error) {
	if v, ok := r.direct.Load(t); ok {
		e := v.(*directEntry)
		return e.deps, e.err
	}
	r.seal()
	v, _, _ := r.directGroup.Do(introspect.TypeKey(t), func() (any, error) {
		if v, ok := r.direct.Load(t); ok {
			return v, nil
		}
		deps, err := r.computeDirect(t)
		e := &directEntry{deps: deps, err: err}
		r.direct.Store(t, e)
		return e, nil
	})
	e := v.(*directEntry)
	return e.deps, e.err
}

func (r *Registry) computeDirect(t reflect.Type) ([]*Definition, error) {
	const op = "registry.DirectDependencies"
	def, ok := r.Definition(t)
	if !ok {
		return nil, fault.Declaration(op, "extension %s is not registered", introspect.CanonicalName(t))
	}

	var deps []*Definition
	seen := make(map[*Definition]bool)
	var problems []string
	for _, req := range def.Requires {
		dep, ok := r.Definition(req.Type)
		if !ok {
			problems = append(problems, fmt.Sprintf("%s requires %s which is not registered", def.Name, introspect.CanonicalName(req.Type)))
			continue
		}
		if req.Constraint != nil {
			if dep.Version == nil {
				problems = append(problems, fmt.Sprintf("%s requires %s but %s has no version", def.Name, req, dep.Name))
				continue
			}
			if ok, errs := req.Constraint.Validate(dep.Version); !ok {
				problems = append(problems, fmt.Sprintf("%s requires %s, found %s: %v", def.Name, req, dep.Version, errors.Join(errs...)))
				continue
			}
		}
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	if err := fault.Join(op, "unsatisfied dependencies of "+def.Name, problems); err != nil {
		return nil, err
	}

	for _, name := range def.Optional {
		dep, ok := r.Lookup(name)
		if !ok || seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps, nil
}

// Resolution is the validated dependency chain of one extension.
type Resolution struct {
	Definition *Definition
	// Depth is 0 without dependencies, otherwise one more than the deepest
	// direct dependency.
	Depth int
	// Direct lists the direct dependencies.
	Direct []*Definition
	// Closure lists every transitive dependency followed by the extension
	// itself, by ascending depth then name.
	Closure []*Definition

	depths map[*Definition]int
}

// DepthOf returns the depth of an extension of the closure.
func (r *Resolution) DepthOf(d *Definition) (int, bool) {
	n, ok := r.depths[d]
	return n, ok
}

type resolveEntry struct {
	res *Resolution
	err error
}

// Resolve validates the dependency chain of extension type t and computes
// ordering depths. The result is cached per type; a cached failure is
// returned again wrapped, with the original error as cause.
func (r *Registry) Resolve(ctx context.Context, t reflect.Type) (*Resolution, error) {
	const op = "registry.Resolve"
	logger := ctxlog.FromContext(ctx)

	if e, ok := r.cache.Get(t); ok {
		r.metrics.Resolution(metrics.ResultCached, 0)
		if e.err != nil {
			return nil, fault.Wrap(op, e.err)
		}
		return e.res, nil
	}

	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()
	if e, ok := r.cache.Get(t); ok {
		r.metrics.Resolution(metrics.ResultCached, 0)
		if e.err != nil {
			return nil, fault.Wrap(op, e.err)
		}
		return e.res, nil
	}

	start := time.Now()
	res, err := r.resolve(t)
	r.cache.Add(t, &resolveEntry{res: res, err: err})

	switch {
	case err == nil:
		r.metrics.Resolution(metrics.ResultOK, time.Since(start))
		logger.Debug("Resolved extension.", "extension", res.Definition.Name, "depth", res.Depth, "closure", len(res.Closure))
	case errors.Is(err, fault.ErrCycle):
		r.metrics.Resolution(metrics.ResultCycle, time.Since(start))
		logger.Debug("Extension dependency cycle.", "extension", introspect.CanonicalName(t), "error", err)
	default:
		r.metrics.Resolution(metrics.ResultError, time.Since(start))
		logger.Debug("Extension resolution failed.", "extension", introspect.CanonicalName(t), "error", err)
	}
	return res, err
}

// resolve builds the graph reachable from t. Callers hold resolveMu.
func (r *Registry) resolve(t reflect.Type) (*Resolution, error) {
	const op = "registry.Resolve"
	root, ok := r.Definition(t)
	if !ok {
		return nil, fault.Declaration(op, "extension %s is not registered", introspect.CanonicalName(t))
	}

	g := dag.New()
	defs := map[string]*Definition{}
	var visit func(d *Definition) error
	visit = func(d *Definition) error {
		if _, done := defs[d.Name]; done {
			return nil
		}
		defs[d.Name] = d
		g.AddNode(d.Name)
		deps, err := r.DirectDependencies(d.Type)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
			if err := g.AddEdge(dep.Name, d.Name); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}

	order, depths, err := g.Order()
	if err != nil {
		var fe *fault.Error
		if errors.As(err, &fe) && fe.Kind == fault.KindCycle {
			return nil, &fault.Error{Kind: fault.KindCycle, Op: op, Msg: fe.Msg, Chain: fe.Chain}
		}
		return nil, err
	}

	res := &Resolution{
		Definition: root,
		Depth:      depths[root.Name],
		depths:     make(map[*Definition]int, len(order)),
	}
	res.Direct, _ = r.DirectDependencies(root.Type)
	for _, name := range order {
		d := defs[name]
		res.Closure = append(res.Closure, d)
		res.depths[d] = depths[name]
	}
	return res, nil
}

// Order sorts definitions by ascending depth, then name, using the depths of
// their resolutions.
func (r *Registry) Order(ctx context.Context, defs []*Definition) ([]*Definition, error) {
	depth := make(map[*Definition]int, len(defs))
	for _, d := range defs {
		res, err := r.Resolve(ctx, d.Type)
		if err != nil {
			return nil, err
		}
		depth[d] = res.Depth
	}
	out := append([]*Definition(nil), defs...)
	sort.Slice(out, func(i, j int) bool {
		if depth[out[i]] != depth[out[j]] {
			return depth[out[i]] < depth[out[j]]
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
