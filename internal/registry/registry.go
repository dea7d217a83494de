package registry

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the default number of cached resolutions.
const DefaultCacheSize = 256

// Module is the interface that all extension bundles must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the extension definitions of a single application instance.
type Registry struct {
	mu         sync.RWMutex
	defs       map[reflect.Type]*Definition
	names      map[string]*Definition
	ambiguous  map[string]bool
	activators map[string][]*Definition
	sealed     bool

	direct      sync.Map // key: reflect.Type, val: *directEntry
	directGroup singleflight.Group

	// resolveMu serializes cycle detection passes.
	resolveMu sync.Mutex
	cache     *lru.Cache[reflect.Type, *resolveEntry]

	metrics *metrics.Collector
}

// Option configures a Registry.
type Option func(*Registry)

// WithCacheSize bounds the number of cached resolutions. Evicted entries are
// recomputed on the next request.
func WithCacheSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.cache, _ = lru.New[reflect.Type, *resolveEntry](n)
		}
	}
}

// WithMetrics records resolutions on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

// New creates and initializes a new Registry instance.
func New(opts ...Option) *Registry {
	r := &Registry{
		defs:       make(map[reflect.Type]*Definition),
		names:      make(map[string]*Definition),
		ambiguous:  make(map[string]bool),
		activators: make(map[string][]*Definition),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache, _ = lru.New[reflect.Type, *resolveEntry](DefaultCacheSize)
	}
	return r
}

// Load registers every module.
func (r *Registry) Load(modules ...Module) {
	for _, m := range modules {
		m.Register(r)
	}
}

// Register adds an extension definition. It panics with a declaration error
// on a malformed definition or a duplicate type or name, and with an
// illegal-state error once resolution has started.
func (r *Registry) Register(def *Definition) {
	const op = "registry.Register"
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		panic(fault.IllegalState(op, "cannot register %s after resolution has started", def.Name))
	}
	if len(def.problems) > 0 {
		panic(fault.Join(op, "invalid extension "+def.Name, def.problems))
	}
	if _, exists := r.defs[def.Type]; exists {
		panic(fault.Declaration(op, "extension '%s' already registered", def.Name))
	}
	for _, n := range append([]string{def.Name}, def.Aliases...) {
		if prev, exists := r.names[n]; exists {
			panic(fault.Declaration(op, "name '%s' of %s already used by %s", n, def.Name, prev.Name))
		}
	}

	slog.Debug("Registering extension.", "name", def.Name, "version", def.Version)
	r.defs[def.Type] = def
	r.names[def.Name] = def
	for _, a := range def.Aliases {
		r.names[a] = def
	}
	short := def.ShortName()
	if prev, exists := r.names[short]; exists && prev != def {
		r.ambiguous[short] = true
	} else if !exists {
		r.names[short] = def
	}
	for _, m := range def.Activators {
		r.activators[m] = append(r.activators[m], def)
	}
}

// Definition returns the definition of extension type t, a pointer type.
func (r *Registry) Definition(t reflect.Type) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[t]
	return d, ok
}

// Lookup finds a definition by canonical name, alias, or unambiguous short
// name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ambiguous[name] {
		return nil, false
	}
	d, ok := r.names[name]
	return d, ok
}

// ActivatedBy returns the extensions activated by marker, sorted by name.
func (r *Registry) ActivatedBy(marker string) []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]*Definition(nil), r.activators[marker]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definitions returns every definition sorted by name.
func (r *Registry) Definitions() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}
