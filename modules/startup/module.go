// Package startup runs the start methods of inspected instances when their
// scope is frozen.
//
// Methods marked `startup` run in declaration order, then the single method
// marked `main`, if any. A start method takes no arguments or a single
// context.Context and may return an error.
package startup

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/hookwire/internal/aggregate"
	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/operator"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scan"
	"github.com/vk/hookwire/internal/scope"
	"github.com/vk/hookwire/internal/wirelet"
	"github.com/vk/hookwire/modules/settings"
)

// Markers recognized by the extension.
const (
	HookMarker = "startup"
	MainMarker = "main"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the extension.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Define(New,
		registry.Version("1.0.0"),
		registry.Alias("startup"),
		registry.Requires[settings.Extension](),
		registry.ActivatedBy(HookMarker, MainMarker),
		registry.Description("Start methods run when the scope is frozen."),
	))
}

// Options are the wirelet options of the extension.
type Options struct {
	Disabled bool `cty:"disabled"`
}

// Plan is the start sequence of one class.
type Plan struct {
	hooks []method
	main  *method
}

// Methods lists the members of the plan in run order.
func (p *Plan) Methods() []string {
	out := make([]string, 0, len(p.hooks)+1)
	for _, m := range p.hooks {
		out = append(out, m.app.Member().String())
	}
	if p.main != nil {
		out = append(out, p.main.app.Member().String())
	}
	return out
}

type method struct {
	app     *operator.Applicator
	withCtx bool
}

func (m method) run(ctx context.Context, instance any) error {
	v, err := m.app.Apply(instance)
	if err != nil {
		return err
	}
	var args []any
	if m.withCtx {
		args = append(args, ctx)
	}
	_, err = v.(operator.Invoker)(args...)
	return err
}

type target struct {
	plan     *Plan
	instance any
}

// Extension collects start plans and runs them.
type Extension struct {
	targets []target
	ran     []string
}

// New returns an empty extension.
func New() *Extension { return &Extension{} }

// Ran lists the methods run so far, in order.
func (e *Extension) Ran() []string { return e.ran }

// Markers implements scope.ClassInspector.
func (*Extension) Markers() *scan.MarkerSet {
	methods := []introspect.MemberKind{introspect.MethodKind}
	return scan.NewMarkerSet(
		scan.MarkerSpec{Name: HookMarker, Group: "startup", Kinds: methods},
		scan.MarkerSpec{Name: MainMarker, Group: "startup", Kinds: methods},
	)
}

// NewAggregator implements scope.ClassInspector.
func (*Extension) NewAggregator() any { return &methods{} }

// Apply records the plan of instance. Plans of inspected types are dropped.
func (e *Extension) Apply(_ context.Context, h *scope.Handle, result any, instance any) error {
	if err := h.CheckConfigurable(); err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	e.targets = append(e.targets, target{plan: result.(*Plan), instance: instance})
	return nil
}

// PostConfigure runs every recorded plan in inspection order.
func (e *Extension) PostConfigure(ctx context.Context, h *scope.Handle) error {
	const op = "startup.PostConfigure"
	logger := ctxlog.FromContext(ctx)

	var opts Options
	if err := wirelet.Decode(h.Wirelets(), &opts); err != nil {
		return err
	}
	if opts.Disabled {
		logger.Debug("Startup disabled.", "scope", h.Scope().Path(), "plans", len(e.targets))
		return nil
	}

	for _, t := range e.targets {
		run := t.plan.hooks
		if t.plan.main != nil {
			run = append(run[:len(run):len(run)], *t.plan.main)
		}
		for _, m := range run {
			name := m.app.Member().String()
			logger.Debug("Running start method.", "scope", h.Scope().Path(), "method", name)
			if err := m.run(ctx, t.instance); err != nil {
				return fmt.Errorf("%s: start method %s: %w", op, name, err)
			}
			e.ran = append(e.ran, name)
		}
	}
	return nil
}

var contextType = reflect.TypeFor[context.Context]()

type methods struct {
	hooks []*capture.MethodCapture
	mains []*capture.MethodCapture
}

func (g *methods) HookMethod(c *capture.MethodCapture) error {
	if err := c.RequireInstance(); err != nil {
		return err
	}
	if err := c.RequireExported(); err != nil {
		return err
	}
	if err := c.RequireNumIn(0); err != nil {
		if err := c.RequireNumIn(1); err != nil {
			return fault.Structural("startup.HookMethod", c.Member().String(), "start methods take no arguments or a context.Context")
		}
		if c.Member().Type.In(0) != contextType {
			return fault.Structural("startup.HookMethod", c.Member().String(), "start methods take no arguments or a context.Context")
		}
	}
	switch c.Marker().Name {
	case MainMarker:
		g.mains = append(g.mains, c)
	default:
		g.hooks = append(g.hooks, c)
	}
	return nil
}

func (g *methods) Build() (*Plan, error) {
	main, err := aggregate.AtMostOne("main method", g.mains)
	if err != nil {
		return nil, err
	}
	p := &Plan{}
	for _, c := range g.hooks {
		p.hooks = append(p.hooks, newMethod(c))
	}
	if main != nil {
		m := newMethod(main)
		p.main = &m
	}
	return p, nil
}

func newMethod(c *capture.MethodCapture) method {
	return method{app: operator.Invoke().Applicator(c), withCtx: c.Member().Type.NumIn() == 1}
}

var (
	_ scope.ClassInspector = (*Extension)(nil)
	_ scope.PostConfigurer = (*Extension)(nil)
)
