// Package scan walks a class descriptor and emits one capture per recognized
// marker occurrence, in declaration order.
//
// The scanner only knows the markers of the set passed to it. Markers from
// other sets are ignored, which lets several aggregators share one class.
package scan

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
)

// MarkerSpec declares one recognized marker.
type MarkerSpec struct {
	Name string
	// Group names the aggregator family owning the marker. A member may not
	// carry recognized markers of two different groups.
	Group string
	// Kinds restricts the member kinds the marker may appear on. Empty means
	// any kind.
	Kinds []introspect.MemberKind
}

func (s MarkerSpec) allows(k introspect.MemberKind) bool {
	if len(s.Kinds) == 0 {
		return true
	}
	for _, allowed := range s.Kinds {
		if allowed == k {
			return true
		}
	}
	return false
}

// MarkerSet is an immutable set of recognized markers.
type MarkerSet struct {
	specs map[string]MarkerSpec
	names []string
}

// NewMarkerSet builds a set. A later spec with the same name replaces an
// earlier one.
func NewMarkerSet(specs ...MarkerSpec) *MarkerSet {
	s := &MarkerSet{specs: make(map[string]MarkerSpec, len(specs))}
	for _, spec := range specs {
		if _, ok := s.specs[spec.Name]; !ok {
			s.names = append(s.names, spec.Name)
		}
		s.specs[spec.Name] = spec
	}
	return s
}

// Lookup returns the MarkerSpec of a recognized marker.
func (s *MarkerSet) Lookup(name string) (MarkerSpec, bool) {
	if s == nil {
		return MarkerSpec{}, false
	}
	spec, ok := s.specs[name]
	return spec, ok
}

// Names returns the recognized marker names in insertion order.
func (s *MarkerSet) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Union returns a set recognizing the markers of s and others.
func (s *MarkerSet) Union(others ...*MarkerSet) *MarkerSet {
	var all []MarkerSpec
	for _, set := range append([]*MarkerSet{s}, others...) {
		if set == nil {
			continue
		}
		for _, n := range set.names {
			all = append(all, set.specs[n])
		}
	}
	return NewMarkerSet(all...)
}

// Scanner produces captures from class descriptors.
type Scanner struct {
	introspector introspect.Introspector
	metrics      *metrics.Collector
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithMetrics records emitted captures on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scanner) { s.metrics = c }
}

// New creates a scanner over in.
func New(in introspect.Introspector, opts ...Option) *Scanner {
	s := &Scanner{introspector: in}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan describes t and emits a capture for each recognized marker. Type-level
// markers produce TypeCaptures.
func (s *Scanner) Scan(ctx context.Context, sess *capture.Session, t reflect.Type, markers *MarkerSet) ([]capture.Capture, error) {
	return s.scan(ctx, sess, t, reflect.Value{}, markers)
}

// ScanInstance is Scan on the dynamic type of v, where v must be a non-nil
// pointer to a struct. Type-level markers produce InstanceCaptures carrying v.
func (s *Scanner) ScanInstance(ctx context.Context, sess *capture.Session, v any, markers *MarkerSet) ([]capture.Capture, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fault.Declaration("scan.ScanInstance", "instance must be a non-nil pointer to a struct, got %T", v)
	}
	return s.scan(ctx, sess, rv.Type(), rv, markers)
}

func (s *Scanner) scan(ctx context.Context, sess *capture.Session, t reflect.Type, inst reflect.Value, markers *MarkerSet) ([]capture.Capture, error) {
	const op = "scan.Scan"
	logger := ctxlog.FromContext(ctx)

	if err := sess.CheckOpen(op); err != nil {
		return nil, err
	}
	class, err := s.introspector.Introspect(t)
	if err != nil {
		return nil, err
	}

	var out []capture.Capture
	for _, a := range class.Annotations {
		recognized := recognize(a.Markers, markers)
		if len(recognized) == 0 {
			continue
		}
		if err := checkMember(op, a.Member, recognized); err != nil {
			return nil, err
		}
		for _, r := range recognized {
			c := newCapture(sess, class, a.Member, r.marker, inst)
			s.metrics.Capture(a.Member.Kind.String())
			out = append(out, c)
		}
	}

	logger.Debug("Scanned class.", "class", class.Name(), "session", sess.Name(), "captures", len(out))
	return out, nil
}

type match struct {
	marker introspect.Marker
	spec   MarkerSpec
}

func recognize(found []introspect.Marker, set *MarkerSet) []match {
	var out []match
	for _, m := range found {
		if spec, ok := set.Lookup(m.Name); ok {
			out = append(out, match{marker: m, spec: spec})
		}
	}
	return out
}

func checkMember(op string, m *introspect.Member, recognized []match) error {
	groups := make(map[string]struct{})
	for _, r := range recognized {
		if !r.spec.allows(m.Kind) {
			return fault.Declaration(op, "marker %q is not allowed on %s %s", r.marker.Name, m.Kind, m)
		}
		groups[r.spec.Group] = struct{}{}
	}
	if len(groups) > 1 {
		names := make([]string, 0, len(groups))
		for g := range groups {
			names = append(names, g)
		}
		sort.Strings(names)
		return fault.Declaration(op, "%s carries markers of incompatible aggregators %s", m, strings.Join(names, ", "))
	}
	if !m.Exported {
		return fault.AccessDenied(op, m.String(), "%s with marker %q is not exported", m.Kind, recognized[0].marker.Name)
	}
	return nil
}

func newCapture(sess *capture.Session, class *introspect.Class, m *introspect.Member, marker introspect.Marker, inst reflect.Value) capture.Capture {
	switch m.Kind {
	case introspect.FieldKind:
		return capture.NewField(sess, m, marker)
	case introspect.MethodKind:
		return capture.NewMethod(sess, m, marker)
	default:
		if inst.IsValid() {
			return capture.NewInstance(sess, inst, marker)
		}
		return capture.NewType(sess, class, marker)
	}
}
