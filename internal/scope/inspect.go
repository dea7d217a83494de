package scope

import (
	"context"
	"reflect"

	"github.com/vk/hookwire/internal/aggregate"
	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/scan"
)

// ClassInspector is implemented by extensions that aggregate the hooks of
// user classes.
type ClassInspector interface {
	// Markers returns the markers the extension recognizes.
	Markers() *scan.MarkerSet
	// NewAggregator returns a fresh group builder for one class.
	NewAggregator() any
	// Apply receives the built aggregate. instance is nil when a type rather
	// than an instance was inspected.
	Apply(ctx context.Context, h *Handle, result any, instance any) error
}

// Inspection is the outcome of one extension inspecting one class.
type Inspection struct {
	Extension string
	Captures  int
	Result    any
}

// Inspect scans target, a reflect.Type or a pointer to a struct, on behalf
// of every live ClassInspector extension. Extensions activated by any marker
// found on the class are used first. Inspectors run by ascending depth, then
// name. Any failure fails the scope.
func (s *Scope) Inspect(ctx context.Context, target any) ([]Inspection, error) {
	const op = "scope.Inspect"
	logger := ctxlog.FromContext(ctx)
	if err := s.checkConfigurable(op); err != nil {
		return nil, err
	}

	t, ok := target.(reflect.Type)
	var instance any
	if !ok {
		rv := reflect.ValueOf(target)
		if rv.Kind() != reflect.Pointer || rv.IsNil() {
			return nil, s.fail(fault.Declaration(op, "inspection target must be a reflect.Type or a non-nil pointer, got %T", target))
		}
		t, instance = rv.Type(), target
	}

	class, err := s.introspector.Introspect(t)
	if err != nil {
		return nil, s.fail(err)
	}
	if err := s.activate(ctx, class); err != nil {
		return nil, err
	}

	var out []Inspection
	for _, e := range s.ordered() {
		ci, ok := e.instance.(ClassInspector)
		if !ok {
			continue
		}
		insp, err := s.inspectOne(ctx, e, ci, t, instance)
		if err != nil {
			return nil, s.fail(err)
		}
		if insp != nil {
			out = append(out, *insp)
		}
	}
	logger.Debug("Inspected class.", "scope", s.Path(), "class", class.Name(), "inspectors", len(out))
	return out, nil
}

func (s *Scope) activate(ctx context.Context, class *introspect.Class) error {
	seen := make(map[string]bool)
	for _, a := range class.Annotations {
		for _, m := range a.Markers {
			if seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			if _, err := s.Activate(ctx, m.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scope) inspectOne(ctx context.Context, e *extension, ci ClassInspector, t reflect.Type, instance any) (*Inspection, error) {
	sess := capture.NewSession(e.def.ShortName()+"@"+introspect.ShortName(t), s.policy)

	var caps []capture.Capture
	var err error
	if instance != nil {
		caps, err = s.scanner.ScanInstance(ctx, sess, instance, ci.Markers())
	} else {
		caps, err = s.scanner.Scan(ctx, sess, t, ci.Markers())
	}
	if err != nil {
		return nil, err
	}
	if len(caps) == 0 {
		return nil, nil
	}

	res, err := aggregate.Run[any](ctx, s.protocol, sess, ci.NewAggregator(), caps)
	if err != nil {
		return nil, err
	}
	if err := ci.Apply(ctx, e.handle, res, instance); err != nil {
		return nil, err
	}
	return &Inspection{Extension: e.def.Name, Captures: len(caps), Result: res}, nil
}
