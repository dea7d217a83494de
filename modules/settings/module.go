// Package settings injects keyed configuration values into
// `hook:"setting"` fields.
//
// A value comes from, in decreasing precedence, an option wirelet addressed
// to the extension, the environment variable named by the marker's env
// option, and the marker's default option. Values are converted to the field
// type with cty conversion rules, so "8080" fills an int field.
package settings

import (
	"context"
	"os"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/operator"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scan"
	"github.com/vk/hookwire/internal/scope"
	"github.com/vk/hookwire/internal/wirelet"
	"github.com/vk/hookwire/modules/logging"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Marker is the field marker requesting a setting.
const Marker = "setting"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the extension.
func (m *Module) Register(r *registry.Registry) {
	r.Register(registry.Define(New,
		registry.Version("1.0.0"),
		registry.Alias("settings"),
		registry.RequiresVersion[logging.Extension](">=1.0.0"),
		registry.ActivatedBy(Marker),
		registry.Description("Keyed settings injected into setting fields."),
	))
}

// Extension resolves settings for one scope.
type Extension struct {
	lookupEnv func(string) (string, bool)
	applied   map[string]cty.Value
}

// New returns an extension reading the process environment.
func New() *Extension {
	return &Extension{lookupEnv: os.LookupEnv, applied: make(map[string]cty.Value)}
}

// WithEnv replaces the environment lookup. It is meant for tests.
func (e *Extension) WithEnv(lookup func(string) (string, bool)) *Extension {
	e.lookupEnv = lookup
	return e
}

// Applied returns the keys resolved so far, sorted.
func (e *Extension) Applied() []string {
	keys := make([]string, 0, len(e.applied))
	for k := range e.applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value returns the value a key resolved to.
func (e *Extension) Value(key string) (cty.Value, bool) {
	v, ok := e.applied[key]
	return v, ok
}

// Markers implements scope.ClassInspector.
func (*Extension) Markers() *scan.MarkerSet {
	return scan.NewMarkerSet(scan.MarkerSpec{Name: Marker, Group: "settings", Kinds: []introspect.MemberKind{introspect.FieldKind}})
}

// NewAggregator implements scope.ClassInspector.
func (*Extension) NewAggregator() any { return &fields{} }

// Apply resolves and stores every setting field of instance. Every value is
// resolved and converted before the first field is stored, so a failing
// setting leaves instance untouched.
func (e *Extension) Apply(ctx context.Context, h *scope.Handle, result any, instance any) error {
	const op = "settings.Apply"
	if err := h.CheckConfigurable(); err != nil {
		return err
	}
	if instance == nil {
		return nil
	}
	logs, err := scope.Dependency[logging.Extension](h)
	if err != nil {
		return err
	}
	opts := wirelet.Options(h.Wirelets())

	type store struct {
		s      setting
		set    operator.Setter
		val    cty.Value
		out    reflect.Value
		source string
	}
	var stores []store
	for _, s := range result.([]setting) {
		val, source, ok, err := e.resolve(s, opts)
		if err != nil {
			return fault.Structural(op, s.app.Member().String(), "setting %q: %v", s.key, err)
		}
		if !ok {
			if s.required {
				return fault.Structural(op, s.app.Member().String(), "no value for required setting %q", s.key)
			}
			continue
		}
		out := reflect.New(s.app.Member().Type)
		if err := gocty.FromCtyValue(val, out.Interface()); err != nil {
			return fault.Structural(op, s.app.Member().String(), "setting %q: %v", s.key, err)
		}
		set, err := s.app.Apply(instance)
		if err != nil {
			return err
		}
		stores = append(stores, store{s: s, set: set.(operator.Setter), val: val, out: out, source: source})
	}

	for _, st := range stores {
		if err := st.set(st.out.Elem().Interface()); err != nil {
			return err
		}
		e.applied[st.s.key] = st.val
		logs.Logger().DebugContext(ctx, "Applied setting.", "key", st.s.key, "source", st.source, "member", st.s.app.Member().String())
	}
	return nil
}

// resolve finds the raw value of s and converts it to the field type.
func (e *Extension) resolve(s setting, opts map[string]cty.Value) (cty.Value, string, bool, error) {
	raw, source := cty.NilVal, ""
	if v, ok := opts[s.key]; ok {
		raw, source = v, "wirelet"
	} else if v, ok := e.env(s.env); ok {
		raw, source = cty.StringVal(v), "env"
	} else if s.hasDefault {
		raw, source = cty.StringVal(s.def), "default"
	} else {
		return cty.NilVal, "", false, nil
	}

	ty, err := gocty.ImpliedType(reflect.New(s.app.Member().Type).Interface())
	if err != nil {
		return cty.NilVal, "", false, err
	}
	val, err := convert.Convert(raw, ty)
	if err != nil {
		return cty.NilVal, "", false, err
	}
	return val, source, true, nil
}

func (e *Extension) env(name string) (string, bool) {
	if name == "" || e.lookupEnv == nil {
		return "", false
	}
	return e.lookupEnv(name)
}

type setting struct {
	app        *operator.Applicator
	key        string
	env        string
	def        string
	hasDefault bool
	required   bool
}

type fields struct {
	order []setting
}

func (g *fields) HookField(c *capture.FieldCapture) error {
	if err := c.RequireInstance(); err != nil {
		return err
	}
	if err := c.RequireNotFinal(); err != nil {
		return err
	}
	m := c.Marker()
	key, ok := m.Arg("key")
	if !ok || key == "" {
		key = strings.ToLower(c.Member().Name)
	}

	s := setting{key: key, required: m.Flag("required")}
	s.env, _ = m.Arg("env")
	s.def, s.hasDefault = m.Arg("default")
	s.app = operator.Set().Applicator(c)
	g.order = append(g.order, s)
	return nil
}

// Build fails when two fields read the same key.
func (g *fields) Build() ([]setting, error) {
	readers := make(map[string]*introspect.Member, len(g.order))
	for _, s := range g.order {
		m := s.app.Member()
		if prev, dup := readers[s.key]; dup {
			return nil, fault.Declaration("settings.Build", "%s and %s both read setting %q", prev, m, s.key)
		}
		readers[s.key] = m
	}
	return g.order, nil
}

var _ scope.ClassInspector = (*Extension)(nil)
