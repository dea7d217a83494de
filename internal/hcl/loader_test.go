package hcl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/config"
	"github.com/vk/hookwire/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestLoad_ScopesAndWirelets(t *testing.T) {
	path := testutil.WriteAssembly(t, `
scope "app" {
  use = ["startup"]

  wirelet "settings" {
    port  = 8080
    debug = true
  }

  wirelet "settings" {
    port = 9090
  }

  scope "worker" {
    use = ["logging"]

    wirelet "logging" {
      component = "worker-${region}"
    }
  }
}
`)
	model, err := NewLoader(WithVariable("region", cty.StringVal("eu"))).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, model.Scopes, 1)

	app := model.Scopes[0]
	assert.Equal(t, "app", app.Name)
	assert.Equal(t, []string{"startup"}, app.Use)
	assert.Equal(t, path, app.Source)
	require.Len(t, app.Wirelets, 1, "blocks for one extension merge")
	assert.Equal(t, "settings", app.Wirelets[0].Extension)
	port, _ := app.Wirelets[0].Options["port"].AsBigFloat().Int64()
	assert.Equal(t, int64(9090), port)
	assert.True(t, app.Wirelets[0].Options["debug"].RawEquals(cty.True))

	require.Len(t, app.Children, 1)
	worker := app.Children[0]
	assert.Equal(t, []string{"logging"}, worker.Use)
	assert.Equal(t, "worker-eu", worker.Wirelets[0].Options["component"].AsString())
}

func TestLoad_MultipleFiles(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"b.hcl":        `scope "b" {}`,
		"a.hcl":        `scope "a" {}`,
		"nested/c.hcl": `scope "c" {}`,
		"ignored.txt":  `not hcl`,
	})
	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)

	var names []string
	require.NoError(t, model.Walk(func(path string, _ *config.Scope) error {
		names = append(names, path)
		return nil
	}))
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "syntax",
			files: map[string]string{"main.hcl": `scope "app" {`},
			want:  "failed to parse HCL file",
		},
		{
			name:  "unknown block",
			files: map[string]string{"main.hcl": `step "print" "a" {}`},
			want:  "failed to decode HCL file",
		},
		{
			name:  "duplicate top-level scope",
			files: map[string]string{"a.hcl": `scope "app" {}`, "b.hcl": `scope "app" {}`},
			want:  `scope "app" declared in both`,
		},
		{
			name:  "duplicate nested scope",
			files: map[string]string{"main.hcl": `
scope "app" {
  scope "w" {}
  scope "w" {}
}`},
			want:  `declares nested scope "w" twice`,
		},
		{
			name:  "undefined variable",
			files: map[string]string{"main.hcl": `
scope "app" {
  wirelet "settings" {
    port = missing
  }
}`},
			want:  `option "port"`,
		},
		{
			name:  "nested block in wirelet",
			files: map[string]string{"main.hcl": `
scope "app" {
  wirelet "settings" {
    inner {}
  }
}`},
			want:  `wirelet "settings"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testutil.WriteFiles(t, tt.files)
			_, err := NewLoader().Load(context.Background(), dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), "does/not/exist.hcl")
	assert.ErrorContains(t, err, "error accessing path")
}
