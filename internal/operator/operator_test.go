package operator

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

var (
	defaultPort = 8080
	banner      = "hookwire"
)

func version() string { return "1.0.0" }

func sum(base int, more ...int) int {
	for _, m := range more {
		base += m
	}
	return base
}

type server struct {
	Port int    `hook:"port"`
	Name string `hook:"name" member:"final"`
}

func (s *server) Addr() string { return s.Name + ":" + itoa(s.Port) }

func (s *server) Start(fail bool) error {
	if fail {
		return errors.New("boom")
	}
	return nil
}

func (*server) HookMethods() []introspect.MethodHook {
	return []introspect.MethodHook{
		{Method: "Addr", Markers: "addr"},
		{Method: "Start", Markers: "start"},
	}
}

func (*server) HookStatics() []introspect.StaticHook {
	return []introspect.StaticHook{
		{Name: "defaultPort", Target: &defaultPort, Markers: "port"},
		{Name: "banner", Target: &banner, Markers: "name", Final: true},
		{Name: "version", Target: version, Markers: "version"},
		{Name: "sum", Target: sum, Markers: "sum"},
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

// captures scans server and indexes member captures by member name.
func captures(t *testing.T, sess *capture.Session) map[string]capture.MemberCapture {
	t.Helper()
	c, err := introspect.NewReflective("").Introspect(reflect.TypeFor[server]())
	require.NoError(t, err)
	out := make(map[string]capture.MemberCapture)
	for _, a := range c.Annotations {
		switch a.Member.Kind {
		case introspect.FieldKind:
			out[a.Member.Name] = capture.NewField(sess, a.Member, a.Markers[0])
		case introspect.MethodKind:
			out[a.Member.Name] = capture.NewMethod(sess, a.Member, a.Markers[0])
		}
	}
	return out
}

func allOperators() []Operator {
	return []Operator{Get(), Supply(), Set(), Invoke()}
}

func TestApplyStatic_InstanceMemberAlwaysUnsupported(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))
	for _, name := range []string{"Port", "Name", "Addr", "Start"} {
		for _, o := range allOperators() {
			_, err := o.ApplyStatic(caps[name])
			assert.ErrorIs(t, err, fault.ErrUnsupported, "%s on %s", o, name)
		}
	}
}

func TestApplyStatic_Values(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))

	v, err := Get().ApplyStatic(caps["defaultPort"])
	require.NoError(t, err)
	assert.Equal(t, 8080, v)

	v, err = Get().ApplyStatic(caps["version"])
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)

	s, err := Supply().ApplyStatic(caps["defaultPort"])
	require.NoError(t, err)
	supplier := s.(Supplier)

	set, err := Set().ApplyStatic(caps["defaultPort"])
	require.NoError(t, err)
	t.Cleanup(func() { defaultPort = 8080 })
	require.NoError(t, set.(Setter)(9090))
	assert.Equal(t, 9090, defaultPort)
	got, err := supplier()
	require.NoError(t, err)
	assert.Equal(t, 9090, got, "supplier reads the live value")

	assert.ErrorIs(t, set.(Setter)("nope"), fault.ErrStructural)

	inv, err := Invoke().ApplyStatic(caps["sum"])
	require.NoError(t, err)
	out, err := inv.(Invoker)(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{6}, out)

	_, err = inv.(Invoker)()
	assert.ErrorIs(t, err, fault.ErrStructural)
}

func TestApplyStatic_StructuralPrerequisites(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))

	_, err := Set().ApplyStatic(caps["banner"])
	assert.ErrorIs(t, err, fault.ErrStructural, "final field")

	_, err = Set().ApplyStatic(caps["version"])
	assert.ErrorIs(t, err, fault.ErrStructural, "method")

	_, err = Invoke().ApplyStatic(caps["defaultPort"])
	assert.ErrorIs(t, err, fault.ErrStructural, "field")

	_, err = Get().ApplyStatic(caps["sum"])
	assert.ErrorIs(t, err, fault.ErrStructural, "method with arguments")
}

func TestApplyStatic_SealedSession(t *testing.T) {
	sess := capture.NewSession("op", capture.Lenient)
	caps := captures(t, sess)
	require.NoError(t, sess.BeginBuild())
	require.NoError(t, sess.Seal())

	_, err := Get().ApplyStatic(caps["defaultPort"])
	assert.ErrorIs(t, err, fault.ErrIllegalState)
}

func TestApplicator_NeverFailsOnCreation(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))
	for name, c := range caps {
		for _, o := range allOperators() {
			assert.NotPanics(t, func() {
				a := o.Applicator(c)
				assert.NotNil(t, a, "%s on %s", o, name)
			})
		}
	}
}

func TestApplicator_InstanceResolution(t *testing.T) {
	sess := capture.NewSession("op", capture.Lenient)
	caps := captures(t, sess)

	port := Get().Applicator(caps["Port"])
	setPort := Set().Applicator(caps["Port"])
	addr := Get().Applicator(caps["Addr"])
	start := Invoke().Applicator(caps["Start"])

	// Applicators outlive the session.
	require.NoError(t, sess.BeginBuild())
	require.NoError(t, sess.Seal())

	srv := &server{Port: 80, Name: "local"}
	v, err := port.Apply(srv)
	require.NoError(t, err)
	assert.Equal(t, 80, v)

	setter, err := setPort.Apply(srv)
	require.NoError(t, err)
	require.NoError(t, setter.(Setter)(8443))
	assert.Equal(t, 8443, srv.Port)

	v, err = addr.Apply(srv)
	require.NoError(t, err)
	assert.Equal(t, "local:8443", v)

	inv, err := start.Apply(srv)
	require.NoError(t, err)
	out, err := inv.(Invoker)(true)
	assert.EqualError(t, err, "boom")
	require.Len(t, out, 1)

	_, err = port.Apply(nil)
	assert.ErrorIs(t, err, fault.ErrIllegalState)

	_, err = port.Apply(server{})
	assert.ErrorIs(t, err, fault.ErrStructural)

	_, err = Set().Applicator(caps["Name"]).Apply(srv)
	assert.ErrorIs(t, err, fault.ErrStructural)
}

func TestApplicator_StaticIgnoresInstance(t *testing.T) {
	a := Get().Applicator(captures(t, capture.NewSession("op", capture.Lenient))["version"])
	assert.True(t, a.IsStatic())
	v, err := a.Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v)
	assert.Equal(t, "get operator.server.version", a.String())
}

func TestApplicator_WhenReady(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))
	a := Get().Applicator(caps["Port"])
	slot := NewSlot()

	var got []any
	a.WhenReady(slot, func(v any, err error) {
		require.NoError(t, err)
		got = append(got, v)
	})
	assert.Empty(t, got)

	require.NoError(t, slot.Fill(&server{Port: 7}))
	assert.Equal(t, []any{7}, got)

	a.WhenReady(slot, func(v any, err error) { got = append(got, v) })
	assert.Equal(t, []any{7, 7}, got, "filled slot runs callback at once")

	assert.ErrorIs(t, slot.Fill(&server{}), fault.ErrIllegalState)
}

func TestFuse(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))
	fused, err := Fuse(
		Get().Applicator(caps["Port"]),
		Get().Applicator(caps["Addr"]),
		Get().Applicator(caps["version"]),
	)
	require.NoError(t, err)

	out, err := fused(&server{Port: 1, Name: "h"})
	require.NoError(t, err)
	assert.Equal(t, []any{1, "h:1", "1.0.0"}, out)

	_, err = Fuse(Set().Applicator(caps["Name"]))
	assert.ErrorIs(t, err, fault.ErrStructural)
}

func TestApplicator_ConcurrentApply(t *testing.T) {
	caps := captures(t, capture.NewSession("op", capture.Lenient))
	a := Get().Applicator(caps["Addr"])
	srv := &server{Port: 3, Name: "c"}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.Apply(srv)
			assert.NoError(t, err)
			assert.Equal(t, "c:3", v)
		}()
	}
	wg.Wait()
}
