package settings

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scope"
	"github.com/vk/hookwire/internal/wirelet"
	"github.com/vk/hookwire/modules/logging"
	"github.com/zclconf/go-cty/cty"
)

type server struct {
	Host  string `hook:"setting,default=localhost"`
	Port  int    `hook:"setting,key=port,env=APP_PORT,default=80"`
	Debug bool   `hook:"setting,key=debug"`
	Token string `hook:"setting,key=token,required"`
	Name  string `hook:"setting,key=name"`
}

type duplicated struct {
	A string `hook:"setting,key=x"`
	B string `hook:"setting,key=x"`
}

func newScope(t *testing.T, env map[string]string, opts ...wirelet.Wirelet) (*scope.Scope, *Extension) {
	t.Helper()
	r := registry.New()
	r.Load(&logging.Module{}, &Module{})
	s := scope.New("app", r)
	require.NoError(t, s.Wire(opts...))

	ext, err := scope.Use[Extension](context.Background(), s)
	require.NoError(t, err)
	ext.WithEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	return s, ext
}

func option(key string, v cty.Value) wirelet.Option {
	return wirelet.Option{Extension: "settings", Key: key, Value: v}
}

func TestApply_Precedence(t *testing.T) {
	s, ext := newScope(t,
		map[string]string{"APP_PORT": "8080"},
		option("token", cty.StringVal("s3cret")),
		option("debug", cty.True),
	)
	srv := &server{Name: "keep"}

	_, err := s.Inspect(context.Background(), srv)
	require.NoError(t, err)
	assert.Equal(t, server{Host: "localhost", Port: 8080, Debug: true, Token: "s3cret", Name: "keep"}, *srv)
	assert.Equal(t, []string{"debug", "host", "port", "token"}, ext.Applied())

	v, ok := ext.Value("port")
	require.True(t, ok)
	port, _ := v.AsBigFloat().Int64()
	assert.Equal(t, int64(8080), port)

	_, ok = scope.Get[logging.Extension](s)
	assert.True(t, ok, "logging is a required dependency")
}

func TestApply_WireletBeatsEnv(t *testing.T) {
	s, _ := newScope(t,
		map[string]string{"APP_PORT": "8080"},
		option("token", cty.StringVal("t")),
		option("port", cty.NumberIntVal(9090)),
	)
	srv := &server{}
	_, err := s.Inspect(context.Background(), srv)
	require.NoError(t, err)
	assert.Equal(t, 9090, srv.Port)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name    string
		opts    []wirelet.Wirelet
		target  any
		kind    error
		message string
	}{
		{
			name:    "missing required",
			target:  &server{},
			kind:    fault.ErrStructural,
			message: `no value for required setting "token"`,
		},
		{
			name:    "conversion",
			opts:    []wirelet.Wirelet{option("token", cty.StringVal("t")), option("port", cty.StringVal("eighty"))},
			target:  &server{},
			kind:    fault.ErrStructural,
			message: "settings.server.Port",
		},
		{
			name:    "duplicate key",
			target:  &duplicated{},
			kind:    fault.ErrDeclaration,
			message: `settings.duplicated.A and settings.duplicated.B both read setting "x"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newScope(t, nil, tt.opts...)
			_, err := s.Inspect(context.Background(), tt.target)
			assert.ErrorIs(t, err, tt.kind)
			assert.ErrorContains(t, err, tt.message)
			assert.Equal(t, scope.Failed, s.State())
		})
	}
}

func TestApply_TypeInspectionLeavesNothingApplied(t *testing.T) {
	s, ext := newScope(t, nil)
	_, err := s.Inspect(context.Background(), reflect.TypeFor[server]())
	require.NoError(t, err)
	assert.Empty(t, ext.Applied())
}

func TestApply_FailureLeavesInstanceUntouched(t *testing.T) {
	s, ext := newScope(t,
		map[string]string{"APP_PORT": "eighty"},
		option("token", cty.StringVal("t")),
		option("debug", cty.True),
	)
	srv := &server{Name: "keep"}

	_, err := s.Inspect(context.Background(), srv)

	assert.ErrorIs(t, err, fault.ErrStructural)
	assert.ErrorContains(t, err, "settings.server.Port")
	assert.Equal(t, server{Name: "keep"}, *srv, "Host resolves before Port but is not stored")
	assert.Empty(t, ext.Applied())
}
