package scope

import (
	"context"
	"errors"
	"reflect"

	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
	"github.com/vk/hookwire/internal/wirelet"
)

// Freeze freezes the nested scopes still configurable, then s. For every
// live extension, by ascending depth then name, it initializes the wirelet
// pipeline, runs Link when the parent scope has the same extension, and runs
// PostConfigure. Extensions used by a PostConfigure are configured the same
// way before the scope becomes read-only. Any error fails the scope.
func (s *Scope) Freeze(ctx context.Context) error {
	const op = "scope.Freeze"
	logger := ctxlog.FromContext(ctx)
	if err := s.checkConfigurable(op); err != nil {
		return err
	}

	for _, child := range s.Children() {
		if child.State() != Configurable {
			continue
		}
		if err := child.Freeze(ctx); err != nil {
			s.metrics.Freeze(metrics.ResultError)
			return s.fail(err)
		}
	}

	// A PostConfigure may use further extensions; they are configured in
	// later rounds until none is left.
	configured := make(map[*extension]bool)
	for {
		var round []*extension
		for _, e := range s.ordered() {
			if !configured[e] {
				round = append(round, e)
			}
		}
		if len(round) == 0 {
			break
		}
		for _, e := range round {
			configured[e] = true
			if err := s.configure(ctx, e); err != nil {
				s.metrics.Freeze(metrics.ResultError)
				return s.fail(err)
			}
		}
	}

	s.mu.Lock()
	s.state = Frozen
	s.mu.Unlock()
	s.metrics.Freeze(metrics.ResultOK)
	logger.Debug("Froze scope.", "scope", s.Path(), "extensions", len(s.created))
	return nil
}

func (s *Scope) configure(ctx context.Context, e *extension) error {
	if e.pipeline.State() == wirelet.Uninitialized {
		if err := e.pipeline.Initialize(ctx); err != nil {
			return err
		}
	}
	if s.parent != nil {
		if l, ok := e.instance.(Linker); ok {
			if pe := s.parent.lookup(e.def.Type); pe != nil {
				if err := l.Link(ctx, e.handle, pe.handle); err != nil {
					return err
				}
			}
		}
	}
	if pc, ok := e.instance.(PostConfigurer); ok {
		if err := pc.PostConfigure(ctx, e.handle); err != nil {
			return err
		}
	}
	return nil
}

// Spawn derives a fresh pipeline from the initialized pipeline of extension
// type t, for launching a new runtime instance from the frozen scope.
func (s *Scope) Spawn(ctx context.Context, t reflect.Type, ws ...wirelet.Wirelet) (*wirelet.Pipeline, error) {
	const op = "scope.Spawn"
	if st := s.State(); st != Frozen {
		return nil, fault.IllegalState(op, "scope %q is %s", s.name, st)
	}
	e := s.lookup(t)
	if e == nil {
		return nil, fault.Declaration(op, "%s is not live in scope %q", introspect.CanonicalName(t), s.name)
	}
	retargeted := make([]wirelet.Wirelet, len(ws))
	for i, w := range ws {
		retargeted[i] = retarget(w, e.def.Name)
	}
	return e.pipeline.Spawn(ctx, retargeted...)
}

// Close closes the nested scopes that were frozen or failed, then calls
// Close on the live extensions by descending depth. Every extension is
// closed even when an earlier one fails; the errors are joined.
func (s *Scope) Close(ctx context.Context) error {
	const op = "scope.Close"
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return fault.IllegalState(op, "scope %q is already closed", s.name)
	}
	if s.state == Configurable {
		s.mu.Unlock()
		return fault.IllegalState(op, "scope %q must be frozen before it is closed", s.name)
	}
	s.state = Closed
	s.mu.Unlock()

	var errs []error
	for _, child := range s.Children() {
		if st := child.State(); st == Closed || st == Configurable {
			continue
		}
		if err := child.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	exts := s.ordered()
	for i := len(exts) - 1; i >= 0; i-- {
		e := exts[i]
		if c, ok := e.instance.(Closer); ok {
			if err := c.Close(ctx, e.handle); err != nil {
				errs = append(errs, err)
			}
		}
	}
	ctxlog.FromContext(ctx).Debug("Closed scope.", "scope", s.Path())
	return errors.Join(errs...)
}
