package scan

import (
	"context"
	"log/slog"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/capture"
	"github.com/vk/hookwire/internal/fault"
	"github.com/vk/hookwire/internal/introspect"
	"github.com/vk/hookwire/internal/metrics"
)

var injectMarkers = NewMarkerSet(
	MarkerSpec{Name: "inject", Group: "inject", Kinds: []introspect.MemberKind{introspect.FieldKind}},
	MarkerSpec{Name: "component", Group: "inject", Kinds: []introspect.MemberKind{introspect.TypeKind}},
	MarkerSpec{Name: "start", Group: "inject", Kinds: []introspect.MemberKind{introspect.MethodKind}},
)

type service struct {
	Log   *slog.Logger `hook:"inject"`
	Other string       `hook:"unrelated"`
	Port  int          `hook:"inject;unrelated"`
}

func (*service) HookTypes() []string { return []string{"component"} }

func (*service) Start() error { return nil }

func (*service) HookMethods() []introspect.MethodHook {
	return []introspect.MethodHook{{Method: "Start", Markers: "start"}}
}

func TestScan_EmitsInDeclarationOrder(t *testing.T) {
	s := New(introspect.NewReflective(""))
	sess := capture.NewSession("inject", capture.Strict)

	caps, err := s.Scan(context.Background(), sess, reflect.TypeFor[service](), injectMarkers)
	require.NoError(t, err)

	var got []string
	for _, c := range caps {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"type scan.service @component",
		"field scan.service.Log @inject",
		"field scan.service.Port @inject",
		"method scan.service.Start() @start",
	}, got)

	_, isType := caps[0].(*capture.TypeCapture)
	assert.True(t, isType)
	for _, c := range caps {
		assert.Same(t, sess, c.Session())
	}
}

func TestScanInstance_EmitsInstanceCapture(t *testing.T) {
	s := New(introspect.NewReflective(""))
	sess := capture.NewSession("inject", capture.Lenient)
	svc := &service{}

	caps, err := s.ScanInstance(context.Background(), sess, svc, injectMarkers)
	require.NoError(t, err)
	require.NotEmpty(t, caps)

	ic, ok := caps[0].(*capture.InstanceCapture)
	require.True(t, ok)
	v, err := ic.Value()
	require.NoError(t, err)
	assert.Same(t, svc, v)

	_, err = s.ScanInstance(context.Background(), sess, service{}, injectMarkers)
	assert.ErrorIs(t, err, fault.ErrDeclaration)
}

type mixed struct {
	Both string `hook:"inject;other"`
}

func TestScan_IncompatibleGroups(t *testing.T) {
	set := injectMarkers.Union(NewMarkerSet(MarkerSpec{Name: "other", Group: "settings"}))
	s := New(introspect.NewReflective(""))

	_, err := s.Scan(context.Background(), capture.NewSession("x", capture.Lenient), reflect.TypeFor[mixed](), set)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrDeclaration)
	assert.ErrorContains(t, err, "inject, settings")
}

type wrongKind struct{}

func (*wrongKind) HookTypes() []string { return []string{"inject"} }

func TestScan_MarkerOnDisallowedKind(t *testing.T) {
	s := New(introspect.NewReflective(""))
	_, err := s.Scan(context.Background(), capture.NewSession("x", capture.Lenient), reflect.TypeFor[wrongKind](), injectMarkers)
	assert.ErrorIs(t, err, fault.ErrDeclaration)
	assert.ErrorContains(t, err, "not allowed on type")
}

type hidden struct {
	secret string `hook:"inject"`
}

func TestScan_UnexportedMatchIsAccessDenied(t *testing.T) {
	s := New(introspect.NewReflective(""))
	_, err := s.Scan(context.Background(), capture.NewSession("x", capture.Lenient), reflect.TypeFor[hidden](), injectMarkers)
	assert.ErrorIs(t, err, fault.ErrAccessDenied)
	assert.ErrorContains(t, err, "scan.hidden.secret")
}

func TestScan_UnrecognizedOnlyIsIgnored(t *testing.T) {
	s := New(introspect.NewReflective(""))
	caps, err := s.Scan(context.Background(), capture.NewSession("x", capture.Lenient), reflect.TypeFor[hidden](), NewMarkerSet(MarkerSpec{Name: "nothing"}))
	require.NoError(t, err)
	assert.Empty(t, caps)
}

func TestScan_ClosedSession(t *testing.T) {
	s := New(introspect.NewReflective(""))
	sess := capture.NewSession("x", capture.Lenient)
	require.NoError(t, sess.BeginBuild())

	_, err := s.Scan(context.Background(), sess, reflect.TypeFor[service](), injectMarkers)
	assert.ErrorIs(t, err, fault.ErrIllegalState)
}

func TestScan_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(introspect.NewReflective(""), WithMetrics(metrics.New(reg)))

	_, err := s.Scan(context.Background(), capture.NewSession("x", capture.Lenient), reflect.TypeFor[service](), injectMarkers)
	require.NoError(t, err)

	n, err := promtest.GatherAndCount(reg, "hookwire_scan_captures_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one series per variant")
}

func TestMarkerSet_Names(t *testing.T) {
	set := NewMarkerSet(MarkerSpec{Name: "b"}, MarkerSpec{Name: "a"}, MarkerSpec{Name: "b", Group: "g"})
	assert.Equal(t, []string{"b", "a"}, set.Names())
	spec, ok := set.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, "g", spec.Group)

	var nilSet *MarkerSet
	_, ok = nilSet.Lookup("a")
	assert.False(t, ok)
}
