// Package logging is the base built-in extension. It owns the scope logger
// and injects it into `hook:"logger"` fields of inspected classes.
package logging

import (
	"context"
	"log/slog"
	"reflect"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/operator"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scan"
	"github.com/vk/hookwire/internal/scope"
	"github.com/vk/hookwire/internal/wirelet"
)

// Marker is the field marker requesting a logger.
const Marker = "logger"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the extension.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Define(New,
		registry.Version("1.0.0"),
		registry.Alias("logging"),
		registry.ActivatedBy(Marker),
		registry.Description("Scope logger injected into logger fields."),
	))
}

// Options are the wirelet options of the extension.
type Options struct {
	Component string `cty:"component"`
}

// Extension holds the logger of one scope.
type Extension struct {
	logger   *slog.Logger
	injected []string
}

// New returns an extension with no logger. The logger is set in
// PostConstruct.
func New() *Extension { return &Extension{} }

// Logger returns the scope logger.
func (e *Extension) Logger() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// Injected lists the members a logger was stored in.
func (e *Extension) Injected() []string { return e.injected }

// PostConstruct derives the scope logger from the context logger.
func (e *Extension) PostConstruct(ctx context.Context, h *scope.Handle) error {
	e.logger = ctxlog.FromContext(ctx).With("scope", h.Scope().Path())
	return nil
}

// Link rebases a nested scope's logger on the parent scope's logger.
func (e *Extension) Link(_ context.Context, h *scope.Handle, parent *scope.Handle) error {
	p, ok := parent.Instance().(*Extension)
	if !ok {
		return nil
	}
	e.logger = p.Logger().With("scope", h.Scope().Path())
	return nil
}

// PostConfigure applies the component option, if any.
func (e *Extension) PostConfigure(ctx context.Context, h *scope.Handle) error {
	var opts Options
	if err := wirelet.Decode(h.Wirelets(), &opts); err != nil {
		return err
	}
	if opts.Component != "" {
		e.logger = e.Logger().With("component", opts.Component)
	}
	ctxlog.FromContext(ctx).Debug("Logging configured.", "scope", h.Scope().Path(), "injected", len(e.injected))
	return nil
}

// Markers implements scope.ClassInspector.
func (*Extension) Markers() *scan.MarkerSet {
	return scan.NewMarkerSet(scan.MarkerSpec{Name: Marker, Group: "logging", Kinds: []introspect.MemberKind{introspect.FieldKind}})
}

// NewAggregator implements scope.ClassInspector.
func (*Extension) NewAggregator() any { return &fields{} }

// Apply stores a class logger in every logger field of instance.
func (e *Extension) Apply(_ context.Context, h *scope.Handle, result any, instance any) error {
	if err := h.CheckConfigurable(); err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	for _, a := range result.([]*operator.Applicator) {
		v, err := a.Apply(instance)
		if err != nil {
			return err
		}
		logger := e.Logger().With("class", introspect.ShortName(a.Member().Owner))
		if name, ok := a.Marker().Arg("name"); ok {
			logger = logger.With("logger", name)
		}
		if err := v.(operator.Setter)(logger); err != nil {
			return err
		}
		e.injected = append(e.injected, a.Member().String())
	}
	return nil
}

var loggerType = reflect.TypeFor[*slog.Logger]()

type fields struct {
	set []*capture.FieldCapture
}

func (g *fields) HookField(c *capture.FieldCapture) error {
	if err := c.RequireInstance(); err != nil {
		return err
	}
	if err := c.RequireNotFinal(); err != nil {
		return err
	}
	if err := c.RequireAssignableFrom(loggerType); err != nil {
		return err
	}
	g.set = append(g.set, c)
	return nil
}

func (g *fields) Build() ([]*operator.Applicator, error) {
	out := make([]*operator.Applicator, len(g.set))
	for i, c := range g.set {
		out[i] = operator.Set().Applicator(c)
	}
	return out, nil
}

var (
	_ scope.PostConstructor = (*Extension)(nil)
	_ scope.Linker          = (*Extension)(nil)
	_ scope.PostConfigurer  = (*Extension)(nil)
	_ scope.ClassInspector  = (*Extension)(nil)
)
