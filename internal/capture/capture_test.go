package capture

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
)

type target struct {
	Out  io.Writer `hook:"writer"`
	Name string    `hook:"name" member:"final"`
	id   int       `hook:"id"`
}

func (*target) Greet() string { return "hi" }

func (*target) HookMethods() []introspect.MethodHook {
	return []introspect.MethodHook{{Method: "Greet", Markers: "greeter"}}
}

func members(t *testing.T) map[string]*introspect.Member {
	t.Helper()
	c, err := introspect.NewReflective("").Introspect(reflect.TypeFor[target]())
	require.NoError(t, err)
	out := make(map[string]*introspect.Member)
	for _, a := range c.Annotations {
		out[a.Member.Name] = a.Member
	}
	return out
}

func TestSession_StateMachine(t *testing.T) {
	s := NewSession("scan", Strict)
	assert.Equal(t, Open, s.State())
	assert.Equal(t, Strict, s.Policy())
	require.NoError(t, s.CheckOpen("op"))

	require.NoError(t, s.BeginBuild())
	assert.Equal(t, Building, s.State())
	assert.ErrorIs(t, s.CheckOpen("op"), fault.ErrIllegalState)
	assert.NoError(t, s.CheckUsable("op"))

	err := s.BeginBuild()
	assert.ErrorIs(t, err, fault.ErrIllegalState, "build twice")

	require.NoError(t, s.Seal())
	assert.Equal(t, Sealed, s.State())
	assert.ErrorIs(t, s.CheckUsable("op"), fault.ErrIllegalState)
	assert.ErrorIs(t, s.Seal(), fault.ErrIllegalState)
}

func TestSession_Fail(t *testing.T) {
	s := NewSession("scan", Lenient)
	first := errors.New("first")
	s.Fail(first)
	s.Fail(errors.New("second"))

	assert.Equal(t, Failed, s.State())
	assert.Same(t, first, s.Err())
	assert.ErrorIs(t, s.BeginBuild(), fault.ErrIllegalState)
}

func TestFieldCapture_Contracts(t *testing.T) {
	ms := members(t)
	s := NewSession("scan", Lenient)

	out := NewField(s, ms["Out"], introspect.Marker{Name: "writer"})
	assert.Equal(t, reflect.TypeFor[target](), out.Owner())
	assert.Equal(t, "field capture.target.Out @writer", out.String())

	assert.NoError(t, out.RequireInstance())
	assert.NoError(t, out.RequireNotFinal())
	assert.NoError(t, out.RequireExported())
	assert.NoError(t, out.RequireAssignableFrom(reflect.TypeFor[*nopWriter]()))
	assert.NoError(t, out.RequireAssignableTo(reflect.TypeFor[io.Writer]()))

	err := out.RequireStatic()
	assert.ErrorIs(t, err, fault.ErrStructural)
	assert.ErrorContains(t, err, "capture.target.Out")

	err = out.RequireFinal()
	assert.ErrorIs(t, err, fault.ErrStructural)

	err = out.RequireAssignableFrom(reflect.TypeFor[int]())
	assert.ErrorIs(t, err, fault.ErrStructural)

	name := NewField(s, ms["Name"], introspect.Marker{Name: "name"})
	assert.True(t, name.IsFinal())
	assert.ErrorIs(t, name.RequireNotFinal(), fault.ErrStructural)
	assert.ErrorIs(t, name.RequireAssignableTo(reflect.TypeFor[int]()), fault.ErrStructural)

	id := NewField(s, ms["id"], introspect.Marker{Name: "id"})
	assert.ErrorIs(t, id.RequireExported(), fault.ErrAccessDenied)
}

func TestMethodCapture_Contracts(t *testing.T) {
	ms := members(t)
	s := NewSession("scan", Lenient)
	greet := NewMethod(s, ms["Greet"], introspect.Marker{Name: "greeter"})

	assert.NoError(t, greet.RequireNumIn(0))
	assert.ErrorIs(t, greet.RequireNumIn(1), fault.ErrStructural)
	assert.NoError(t, greet.RequireAssignableTo(reflect.TypeFor[string]()))
	assert.ErrorIs(t, greet.RequireAssignableFrom(reflect.TypeFor[string]()), fault.ErrStructural)
	assert.True(t, greet.IsFinal())
}

func TestCaptures_UnusableAfterSeal(t *testing.T) {
	ms := members(t)
	s := NewSession("scan", Lenient)
	out := NewField(s, ms["Out"], introspect.Marker{Name: "writer"})
	inst := NewInstance(s, reflect.ValueOf(&target{}), introspect.Marker{Name: "component"})

	require.NoError(t, s.BeginBuild())
	require.NoError(t, s.Seal())

	assert.ErrorIs(t, out.RequireInstance(), fault.ErrIllegalState)
	assert.ErrorIs(t, out.RequireAssignableTo(reflect.TypeFor[io.Writer]()), fault.ErrIllegalState)
	_, err := inst.Value()
	assert.ErrorIs(t, err, fault.ErrIllegalState)

	// Descriptive accessors keep working.
	assert.Equal(t, "writer", out.Marker().Name)
	assert.Same(t, s, out.Session())
}

func TestTypeCapture_RequireImplements(t *testing.T) {
	c, err := introspect.NewReflective("").Introspect(reflect.TypeFor[target]())
	require.NoError(t, err)
	s := NewSession("scan", Lenient)
	tc := NewType(s, c, introspect.Marker{Name: "component"})

	assert.Same(t, c, tc.Class())
	assert.NoError(t, tc.RequireImplements(reflect.TypeFor[introspect.MethodHooker]()))
	assert.ErrorIs(t, tc.RequireImplements(reflect.TypeFor[io.Reader]()), fault.ErrStructural)
	assert.ErrorIs(t, tc.RequireImplements(reflect.TypeFor[int]()), fault.ErrDeclaration)
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
