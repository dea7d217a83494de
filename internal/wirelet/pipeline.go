// Package wirelet carries late-bound configuration for extensions.
//
// A Pipeline is an append-only list of wirelets bound to one extension
// instance. It is mutable until Initialize runs its OnInitialize hooks and
// immutable afterwards. Spawn derives a fresh pipeline from an initialized
// one, appending new wirelets and keeping a reference to its source, which
// is never modified.
package wirelet

import (
	"context"
	"sync"

	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
)

// Wirelet is one configuration item addressed to an extension.
type Wirelet interface {
	// Target names the extension the wirelet configures.
	Target() string
}

// State is the state of a pipeline.
type State uint8

const (
	// Uninitialized pipelines accept wirelets and hooks.
	Uninitialized State = iota
	// Initialized pipelines are immutable.
	Initialized
)

// String returns the lowercase state name.
func (s State) String() string {
	if s == Initialized {
		return "initialized"
	}
	return "uninitialized"
}

// Hook runs when a pipeline is initialized.
type Hook func(ctx context.Context, p *Pipeline) error

// Pipeline is the wirelet list of one extension instance.
type Pipeline struct {
	mu       sync.RWMutex
	target   string
	state    State
	wirelets []Wirelet
	hooks    []Hook
	previous *Pipeline
}

// New creates an uninitialized pipeline for target.
func New(target string, ws ...Wirelet) (*Pipeline, error) {
	p := &Pipeline{target: target}
	if err := p.Add(ws...); err != nil {
		return nil, err
	}
	return p, nil
}

// Target returns the extension the pipeline belongs to.
func (p *Pipeline) Target() string { return p.target }

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Previous returns the pipeline p was spawned from, or nil.
func (p *Pipeline) Previous() *Pipeline { return p.previous }

// Chain returns p followed by every pipeline it descends from.
func (p *Pipeline) Chain() []*Pipeline {
	var out []*Pipeline
	for q := p; q != nil; q = q.previous {
		out = append(out, q)
	}
	return out
}

// Wirelets returns a copy of the wirelets in the order they were added.
func (p *Pipeline) Wirelets() []Wirelet {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Wirelet(nil), p.wirelets...)
}

// Len returns the number of wirelets.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.wirelets)
}

// Add appends wirelets. Every wirelet must target the pipeline's extension.
func (p *Pipeline) Add(ws ...Wirelet) error {
	const op = "wirelet.Add"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Uninitialized {
		return fault.IllegalState(op, "pipeline of %s is %s", p.target, p.state)
	}
	for _, w := range ws {
		if w == nil {
			return fault.Declaration(op, "nil wirelet for %s", p.target)
		}
		if w.Target() != p.target {
			return fault.Declaration(op, "wirelet %T targets %s, not %s", w, w.Target(), p.target)
		}
	}
	p.wirelets = append(p.wirelets, ws...)
	return nil
}

// OnInitialize registers a hook run by Initialize, in registration order.
func (p *Pipeline) OnInitialize(h Hook) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Uninitialized {
		return fault.IllegalState("wirelet.OnInitialize", "pipeline of %s is %s", p.target, p.state)
	}
	p.hooks = append(p.hooks, h)
	return nil
}

// Initialize runs the hooks and makes the pipeline immutable. Hooks may read
// the pipeline but not modify it. A failing hook leaves the pipeline
// uninitialized.
func (p *Pipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Uninitialized {
		p.mu.Unlock()
		return fault.IllegalState("wirelet.Initialize", "pipeline of %s is already %s", p.target, p.state)
	}
	hooks := append([]Hook(nil), p.hooks...)
	p.mu.Unlock()

	for _, h := range hooks {
		if err := h(ctx, p); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.state = Initialized
	p.mu.Unlock()
	ctxlog.FromContext(ctx).Debug("Initialized wirelet pipeline.", "extension", p.target, "wirelets", p.Len(), "generation", len(p.Chain()))
	return nil
}

// Spawn returns a new initialized pipeline holding p's wirelets followed by
// ws, with p as its previous pipeline. p must be initialized and is left
// untouched.
func (p *Pipeline) Spawn(ctx context.Context, ws ...Wirelet) (*Pipeline, error) {
	p.mu.RLock()
	if p.state != Initialized {
		p.mu.RUnlock()
		return nil, fault.IllegalState("wirelet.Spawn", "pipeline of %s is %s", p.target, p.state)
	}
	child := &Pipeline{
		target:   p.target,
		wirelets: append([]Wirelet(nil), p.wirelets...),
		hooks:    append([]Hook(nil), p.hooks...),
		previous: p,
	}
	p.mu.RUnlock()

	if err := child.Add(ws...); err != nil {
		return nil, err
	}
	if err := child.Initialize(ctx); err != nil {
		return nil, err
	}
	return child, nil
}

// Route groups wirelets by target, keeping the supplied order within each
// target.
func Route(ws []Wirelet) map[string][]Wirelet {
	out := make(map[string][]Wirelet)
	for _, w := range ws {
		out[w.Target()] = append(out[w.Target()], w)
	}
	return out
}

// Select returns the wirelets of p with type W, in order.
func Select[W Wirelet](p *Pipeline) []W {
	if p == nil {
		return nil
	}
	var out []W
	for _, w := range p.Wirelets() {
		if v, ok := w.(W); ok {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the last wirelet of p with type W.
func Last[W Wirelet](p *Pipeline) (W, bool) {
	all := Select[W](p)
	if len(all) == 0 {
		var zero W
		return zero, false
	}
	return all[len(all)-1], true
}
