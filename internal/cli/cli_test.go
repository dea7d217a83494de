package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/app"
)

var base = app.Config{LogFormat: "text", LogLevel: "info", CacheSize: 256}

func TestParse_FlagsOverrideBase(t *testing.T) {
	env := base
	env.AssemblyPath = "from-env.hcl"
	env.Strict = true

	cfg, exit, err := Parse([]string{"-log-level", "DEBUG", "-cache-size", "16", "-log-format", "json"}, &bytes.Buffer{}, env)
	require.NoError(t, err)
	require.False(t, exit)
	assert.Equal(t, &app.Config{
		AssemblyPath: "from-env.hcl",
		LogFormat:    "json",
		LogLevel:     "debug",
		CacheSize:    16,
		Strict:       true,
	}, cfg)
}

func TestParse_AssemblyPathPrecedence(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"flag", []string{"-assembly", "flag.hcl"}, "flag.hcl"},
		{"shorthand", []string{"-assembly", "flag.hcl", "-a", "short.hcl"}, "short.hcl"},
		{"positional", []string{"-a", "short.hcl", "pos.hcl"}, "pos.hcl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, _, err := Parse(tt.args, &bytes.Buffer{}, base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.AssemblyPath)
		})
	}
}

func TestParse_NoPathPrintsUsage(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse(nil, out, base)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
	assert.Contains(t, out.String(), app.EnvPrefix)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"-nope"}, "flag provided but not defined: -nope"},
		{"bad format", []string{"-log-format", "xml", "a.hcl"}, "invalid log-format"},
		{"bad level", []string{"-log-level", "loud", "a.hcl"}, "invalid log-level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse(tt.args, &bytes.Buffer{}, base)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.want)
		})
	}
}
