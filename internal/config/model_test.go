package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModel_WalkParentsFirst(t *testing.T) {
	m := &Model{Scopes: []*Scope{
		{Name: "app", Children: []*Scope{
			{Name: "api", Children: []*Scope{{Name: "v1"}}},
			{Name: "jobs"},
		}},
		{Name: "tools"},
	}}

	var got []string
	require.NoError(t, m.Walk(func(path string, _ *Scope) error {
		got = append(got, path)
		return nil
	}))

	want := []string{"app", "app/api", "app/api/v1", "app/jobs", "tools"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk order mismatch (-want +got):\n%s", diff)
	}
}

func TestModel_WalkStopsOnError(t *testing.T) {
	m := &Model{Scopes: []*Scope{{Name: "a"}, {Name: "b"}}}
	stop := assert.AnError
	calls := 0
	err := m.Walk(func(string, *Scope) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
