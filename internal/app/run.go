package app

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/config"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/scope"
	"github.com/vk/hookwire/internal/wirelet"
)

// Run builds every scope of the assembly, freezes it and prints the live
// extension plan. With a health check port it then serves health and metrics
// until ctx is done. The scopes are closed before Run returns.
func (a *App) Run(ctx context.Context) (err error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.cfg.HealthcheckPort > 0 {
		if err := a.startHealthcheckServer(ctx); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, a.closeHealthcheckServer(ctx))
		}()
	}

	if len(a.model.Scopes) == 0 {
		a.logger.Warn("No scopes found in assembly, nothing to build.")
		return nil
	}

	defer func() {
		err = errors.Join(err, a.close(ctx, err))
	}()

	for _, cs := range a.model.Scopes {
		s := scope.New(cs.Name, a.registry, scope.WithMetrics(a.metrics), scope.WithPolicy(a.policy()))
		a.scopes = append(a.scopes, s)
		if err := a.build(ctx, s, cs); err != nil {
			return fmt.Errorf("failed to build scope %q: %w", s.Path(), err)
		}
	}
	for _, s := range a.scopes {
		if err := s.Freeze(ctx); err != nil {
			return fmt.Errorf("failed to freeze scope %q: %w", s.Path(), err)
		}
	}
	a.logger.Info("Assembly built.", "scopes", len(a.scopes))
	a.printPlan()

	if a.httpServer != nil {
		a.logger.Info("Serving health and metrics until interrupted.")
		<-ctx.Done()
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}

func (a *App) policy() capture.Policy {
	if a.cfg.Strict {
		return capture.Strict
	}
	return capture.Lenient
}

// build wires and populates s from its model, then builds the nested scopes.
func (a *App) build(ctx context.Context, s *scope.Scope, cs *config.Scope) error {
	ctx = ctxlog.With(ctx, "source", cs.Source)
	if err := s.Wire(options(cs.Wirelets)...); err != nil {
		return err
	}
	for _, name := range cs.Use {
		if _, err := s.UseNamed(ctx, name); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("Scope populated.", "scope", s.Path(), "extensions", len(s.Live()))

	for _, cc := range cs.Children {
		child, err := s.NewChild(cc.Name)
		if err != nil {
			return err
		}
		if err := a.build(ctx, child, cc); err != nil {
			return err
		}
	}
	return nil
}

// options flattens wirelet blocks into option wirelets, sorted by key so
// pipelines are deterministic.
func options(ws []*config.Wirelet) []wirelet.Wirelet {
	var out []wirelet.Wirelet
	for _, w := range ws {
		keys := make([]string, 0, len(w.Options))
		for k := range w.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, wirelet.Option{Extension: w.Extension, Key: k, Value: w.Options[k]})
		}
	}
	return out
}

// printPlan writes one line per scope and one per live extension: its depth
// and its canonical name and version.
func (a *App) printPlan() {
	var visit func(s *scope.Scope)
	visit = func(s *scope.Scope) {
		fmt.Fprintf(a.outW, "scope %s\n", s.Path())
		for _, l := range s.Live() {
			fmt.Fprintf(a.outW, "  %d %s\n", l.Depth, l.Definition)
		}
		for _, c := range s.Children() {
			visit(c)
		}
	}
	for _, s := range a.scopes {
		visit(s)
	}
}

// close closes every scope in reverse order of creation. Scopes left
// configurable by a failed build are aborted with cause first.
func (a *App) close(ctx context.Context, cause error) error {
	var errs []error
	for i := len(a.scopes) - 1; i >= 0; i-- {
		s := a.scopes[i]
		s.Abort(cause)
		if s.State() == scope.Closed {
			continue
		}
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close scope %q: %w", s.Path(), err))
		}
	}
	return errors.Join(errs...)
}
