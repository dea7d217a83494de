package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/hookwire/internal/registry"
)

func TestLoadEnv_Defaults(t *testing.T) {
	cfg, err := LoadEnv("", nil)
	require.NoError(t, err)
	assert.Equal(t, Config{LogFormat: "text", LogLevel: "info", CacheSize: 256}, cfg)
}

func TestLoadEnv_DotenvThenEnviron(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("HOOKWIRE_LOG_LEVEL=debug\nHOOKWIRE_STRICT=true\nHOOKWIRE_ASSEMBLY=from-file\n"), 0o600))

	cfg, err := LoadEnv(dotenv, []string{"HOOKWIRE_ASSEMBLY=from-env", "HOOKWIRE_CACHE_SIZE=8", "UNRELATED=1"})
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AssemblyPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Strict)
	assert.Equal(t, 8, cfg.CacheSize)
}

func TestLoadEnv_MissingDotenvIsIgnored(t *testing.T) {
	_, err := LoadEnv(filepath.Join(t.TempDir(), "absent.env"), nil)
	assert.NoError(t, err)
}

func TestLoadEnv_BadValue(t *testing.T) {
	_, err := LoadEnv("", []string{"HOOKWIRE_HEALTHCHECK_PORT=http"})
	assert.ErrorContains(t, err, "parse env")
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Config{AssemblyPath: "a.hcl", LogFormat: "json", LogLevel: "warn"})
	require.NoError(t, err)
	assert.Equal(t, registry.DefaultCacheSize, cfg.CacheSize)

	_, err = NewConfig(Config{LogFormat: "yaml", LogLevel: "loud", HealthcheckPort: -1})
	require.Error(t, err)
	for _, want := range []string{"AssemblyPath", "log-format", "log-level", "healthcheck-port"} {
		assert.Contains(t, err.Error(), want)
	}
}
