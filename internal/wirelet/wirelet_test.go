package wirelet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/fault"
	"github.com/zclconf/go-cty/cty"
)

type name struct {
	ext   string
	value string
}

func (n name) Target() string { return n.ext }

func opt(key string, v cty.Value) Option {
	return Option{Extension: "server", Key: key, Value: v}
}

func TestPipeline_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p, err := New("server", name{"server", "a"})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, p.State())

	var seen []int
	require.NoError(t, p.OnInitialize(func(_ context.Context, p *Pipeline) error {
		seen = append(seen, p.Len())
		return nil
	}))
	require.NoError(t, p.Add(name{"server", "b"}))
	require.NoError(t, p.Initialize(ctx))
	assert.Equal(t, Initialized, p.State())
	assert.Equal(t, []int{2}, seen)

	assert.ErrorIs(t, p.Add(name{"server", "c"}), fault.ErrIllegalState)
	assert.ErrorIs(t, p.OnInitialize(nil), fault.ErrIllegalState)
	assert.ErrorIs(t, p.Initialize(ctx), fault.ErrIllegalState)
	assert.Len(t, p.Wirelets(), 2)
}

func TestPipeline_RejectsForeignWirelets(t *testing.T) {
	_, err := New("server", name{"client", "x"})
	assert.ErrorIs(t, err, fault.ErrDeclaration)

	p, err := New("server")
	require.NoError(t, err)
	assert.ErrorIs(t, p.Add(nil), fault.ErrDeclaration)
}

func TestPipeline_FailedHookKeepsPipelineOpen(t *testing.T) {
	p, err := New("server")
	require.NoError(t, err)
	boom := errors.New("boom")
	require.NoError(t, p.OnInitialize(func(context.Context, *Pipeline) error { return boom }))

	assert.ErrorIs(t, p.Initialize(context.Background()), boom)
	assert.Equal(t, Uninitialized, p.State())
}

func TestPipeline_Spawn(t *testing.T) {
	ctx := context.Background()
	template, err := New("server", name{"server", "base"})
	require.NoError(t, err)
	runs := 0
	require.NoError(t, template.OnInitialize(func(context.Context, *Pipeline) error {
		runs++
		return nil
	}))

	_, err = template.Spawn(ctx)
	assert.ErrorIs(t, err, fault.ErrIllegalState, "source must be initialized")

	require.NoError(t, template.Initialize(ctx))
	first, err := template.Spawn(ctx, name{"server", "one"})
	require.NoError(t, err)
	second, err := first.Spawn(ctx, name{"server", "two"})
	require.NoError(t, err)

	assert.Equal(t, 3, runs, "hooks run for every spawned pipeline")
	assert.Same(t, template, first.Previous())
	assert.Same(t, first, second.Previous())
	assert.Equal(t, []*Pipeline{second, first, template}, second.Chain())

	values := func(p *Pipeline) []string {
		var out []string
		for _, n := range Select[name](p) {
			out = append(out, n.value)
		}
		return out
	}
	assert.Equal(t, []string{"base"}, values(template), "source is untouched")
	assert.Equal(t, []string{"base", "one"}, values(first))
	assert.Equal(t, []string{"base", "one", "two"}, values(second))
	assert.Equal(t, Initialized, second.State())

	_, err = template.Spawn(ctx, name{"client", "x"})
	assert.ErrorIs(t, err, fault.ErrDeclaration)
}

func TestRoute_PreservesOrderPerTarget(t *testing.T) {
	ws := []Wirelet{
		name{"a", "1"}, name{"b", "1"}, name{"a", "2"}, opt("port", cty.NumberIntVal(1)), name{"a", "3"},
	}
	routed := Route(ws)
	assert.Equal(t, []Wirelet{name{"a", "1"}, name{"a", "2"}, name{"a", "3"}}, routed["a"])
	assert.Len(t, routed["b"], 1)
	assert.Len(t, routed["server"], 1)
}

func TestSelectAndLast(t *testing.T) {
	p, err := New("server", name{"server", "x"}, opt("port", cty.NumberIntVal(1)), name{"server", "y"})
	require.NoError(t, err)

	last, ok := Last[name](p)
	require.True(t, ok)
	assert.Equal(t, "y", last.value)

	_, ok = Last[Option](nil)
	assert.False(t, ok)
}

type serverSettings struct {
	Port    int      `cty:"port"`
	Host    string   `cty:"host"`
	Tags    []string `cty:"tags"`
	Verbose bool     `cty:"verbose"`
}

func TestDecode(t *testing.T) {
	p, err := New("server",
		opt("port", cty.StringVal("8080")),
		opt("tags", cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})),
		opt("port", cty.NumberIntVal(9090)),
	)
	require.NoError(t, err)

	s := serverSettings{Host: "localhost"}
	require.NoError(t, Decode(p, &s))
	assert.Equal(t, serverSettings{Port: 9090, Host: "localhost", Tags: []string{"a", "b"}}, s)
	assert.Equal(t, "server.port", opt("port", cty.NullVal(cty.Number)).String())
}

func TestDecode_Errors(t *testing.T) {
	p, err := New("server", opt("nope", cty.True), opt("port", cty.StringVal("eighty")))
	require.NoError(t, err)

	var s serverSettings
	err = Decode(p, &s)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrDeclaration)
	assert.ErrorContains(t, err, `unsupported option "nope"`)
	assert.ErrorContains(t, err, `option "port"`)

	assert.ErrorIs(t, Decode(p, s), fault.ErrDeclaration)
}
