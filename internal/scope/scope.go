// Package scope is the lifecycle controller of extensions.
//
// A Scope is one unit of configuration. It owns at most one instance of each
// extension it uses, created lazily with all dependencies first. Freeze runs
// the post-configure callbacks in dependency order and makes the scope, and
// every extension in it, permanently non-configurable. Nested scopes created
// with NewChild link each shared extension to the parent's instance.
package scope

import (
	"reflect"
	"sort"
	"sync"

	"github.com/vk/hookwire/internal/aggregate"
	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scan"
	"github.com/vk/hookwire/internal/wirelet"
)

// State is the state of a scope.
type State uint8

const (
	// Configurable scopes accept new extensions and configuration.
	Configurable State = iota
	// Frozen scopes are read-only.
	Frozen
	// Closed scopes released their extensions.
	Closed
	// Failed scopes aborted their build.
	Failed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case Configurable:
		return "configurable"
	case Frozen:
		return "frozen"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Scope owns the live extensions of one configuration unit.
//
// Configuration is driven by a single goroutine. Once frozen, the read
// accessors may be used concurrently.
type Scope struct {
	name     string
	reg      *registry.Registry
	parent   *Scope
	children []*Scope

	introspector introspect.Introspector
	scanner      *scan.Scanner
	protocol     *aggregate.Protocol
	policy       capture.Policy
	metrics      *metrics.Collector

	mu      sync.RWMutex
	state   State
	err     error
	live    map[reflect.Type]*extension
	created []*extension
	pending map[string][]wirelet.Wirelet
}

// extension is one live extension instance.
type extension struct {
	def      *registry.Definition
	depth    int
	direct   []*registry.Definition
	instance any
	node     any
	pipeline *wirelet.Pipeline
	handle   *Handle
}

// Option configures a Scope.
type Option func(*Scope)

// WithIntrospector sets the class introspector used by Inspect.
func WithIntrospector(in introspect.Introspector) Option {
	return func(s *Scope) { s.introspector = in }
}

// WithProtocol sets the aggregation protocol used by Inspect.
func WithProtocol(p *aggregate.Protocol) Option {
	return func(s *Scope) { s.protocol = p }
}

// WithPolicy sets the unmatched-capture policy of Inspect sessions.
func WithPolicy(p capture.Policy) Option {
	return func(s *Scope) { s.policy = p }
}

// WithMetrics records instantiations and freezes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Scope) { s.metrics = c }
}

// New creates a root scope over reg.
func New(name string, reg *registry.Registry, opts ...Option) *Scope {
	s := &Scope{
		name:    name,
		reg:     reg,
		live:    make(map[reflect.Type]*extension),
		pending: make(map[string][]wirelet.Wirelet),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.introspector == nil {
		s.introspector = introspect.NewReflective("")
	}
	if s.protocol == nil {
		s.protocol = aggregate.NewProtocol(nil, aggregate.WithMetrics(s.metrics))
	}
	s.scanner = scan.New(s.introspector, scan.WithMetrics(s.metrics))
	return s
}

// NewChild creates a nested scope sharing the registry and inspection
// settings of s.
func (s *Scope) NewChild(name string) (*Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Configurable {
		return nil, fault.IllegalState("scope.NewChild", "scope %q is %s", s.name, s.state)
	}
	child := &Scope{
		name:         name,
		reg:          s.reg,
		parent:       s,
		introspector: s.introspector,
		scanner:      s.scanner,
		protocol:     s.protocol,
		policy:       s.policy,
		metrics:      s.metrics,
		live:         make(map[reflect.Type]*extension),
		pending:      make(map[string][]wirelet.Wirelet),
	}
	s.children = append(s.children, child)
	return child, nil
}

// Name returns the scope name.
func (s *Scope) Name() string { return s.name }

// Path returns the names of the scope and its ancestors joined by '/'.
func (s *Scope) Path() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.Path() + "/" + s.name
}

// Parent returns the enclosing scope, or nil.
func (s *Scope) Parent() *Scope { return s.parent }

// Children returns the nested scopes in creation order.
func (s *Scope) Children() []*Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Scope(nil), s.children...)
}

// Registry returns the registry of the scope.
func (s *Scope) Registry() *registry.Registry { return s.reg }

// State returns the current state.
func (s *Scope) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the cause of a failed scope.
func (s *Scope) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// checkConfigurable fails unless the scope accepts configuration.
func (s *Scope) checkConfigurable(op string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == Configurable {
		return nil
	}
	err := fault.IllegalState(op, "scope %q is %s", s.name, s.state)
	if s.err != nil {
		err.Err = s.err
	}
	return err
}

// fail moves the scope to Failed and records the first cause.
func (s *Scope) fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Configurable || s.state == Frozen {
		s.state = Failed
		s.err = err
	}
	return err
}

// Abort fails s and every nested scope that is still configurable, so an
// interrupted build can be closed. Frozen, failed and closed scopes keep
// their state. A nil cause records an illegal-state error.
func (s *Scope) Abort(cause error) {
	if cause == nil {
		cause = fault.IllegalState("scope.Abort", "build of scope %q was aborted", s.name)
	}
	for _, child := range s.Children() {
		child.Abort(cause)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Configurable {
		s.state = Failed
		s.err = cause
	}
}

func (s *Scope) lookup(t reflect.Type) *extension {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.live[t]
}

// Live describes one live extension.
type Live struct {
	Definition *registry.Definition
	Depth      int
	Instance   any
	Node       any
}

// Live returns the live extensions by ascending depth, then name.
func (s *Scope) Live() []Live {
	exts := s.ordered()
	out := make([]Live, len(exts))
	for i, e := range exts {
		out[i] = Live{Definition: e.def, Depth: e.depth, Instance: e.instance, Node: e.node}
	}
	return out
}

// Created returns the canonical names of the live extensions in the order
// they were instantiated.
func (s *Scope) Created() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.created))
	for i, e := range s.created {
		out[i] = e.def.Name
	}
	return out
}

// ordered returns the live extensions by ascending depth, then name.
func (s *Scope) ordered() []*extension {
	s.mu.RLock()
	out := append([]*extension(nil), s.created...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].depth != out[j].depth {
			return out[i].depth < out[j].depth
		}
		return out[i].def.Name < out[j].def.Name
	})
	return out
}

// Instance returns the live instance of extension type t.
func (s *Scope) Instance(t reflect.Type) (any, bool) {
	if e := s.lookup(t); e != nil {
		return e.instance, true
	}
	return nil, false
}

// Get returns the live instance of extension E.
func Get[E any](s *Scope) (*E, bool) {
	v, ok := s.Instance(reflect.TypeFor[*E]())
	if !ok {
		return nil, false
	}
	e, ok := v.(*E)
	return e, ok
}

// Node returns the companion node of extension type t.
func (s *Scope) Node(t reflect.Type) (any, bool) {
	if e := s.lookup(t); e != nil && e.node != nil {
		return e.node, true
	}
	return nil, false
}

// Pipeline returns the wirelet pipeline of extension type t.
func (s *Scope) Pipeline(t reflect.Type) (*wirelet.Pipeline, bool) {
	if e := s.lookup(t); e != nil {
		return e.pipeline, true
	}
	return nil, false
}
