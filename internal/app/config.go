package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/vk/hookwire/internal/registry"
)

// EnvPrefix prefixes every environment variable read into Config.
const EnvPrefix = "HOOKWIRE_"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	AssemblyPath string `env:"ASSEMBLY"`

	LogFormat       string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	HealthcheckPort int    `env:"HEALTHCHECK_PORT" envDefault:"0"`
	CacheSize       int    `env:"CACHE_SIZE" envDefault:"256"`
	Strict          bool   `env:"STRICT" envDefault:"false"`
}

// LoadEnv reads Config from environ, a list of KEY=value pairs such as
// os.Environ(), on top of the variables of dotenv when that file exists.
// Variables from environ win.
func LoadEnv(dotenv string, environ []string) (Config, error) {
	vars := make(map[string]string)
	if dotenv != "" {
		fileVars, err := godotenv.Read(dotenv)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", dotenv, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	var problems []string
	if cfg.AssemblyPath == "" {
		problems = append(problems, "AssemblyPath is a required configuration field and cannot be empty")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, "invalid log-format: must be 'text' or 'json'")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		problems = append(problems, "invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		problems = append(problems, fmt.Sprintf("invalid healthcheck-port %d", cfg.HealthcheckPort))
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = registry.DefaultCacheSize
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}
	return &cfg, nil
}
