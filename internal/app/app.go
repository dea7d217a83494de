package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vk/hookwire/internal/config"
	"github.com/vk/hookwire/internal/ctxlog"
	"github.com/vk/hookwire/internal/metrics"
	"github.com/vk/hookwire/internal/registry"
	"github.com/vk/hookwire/internal/scope"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	cfg      *Config
	registry *registry.Registry
	model    *config.Model
	gatherer *prometheus.Registry
	metrics  *metrics.Collector

	scopes     []*scope.Scope
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It loads the assembly,
// registers the extension modules and validates the registry. modules
// defaults to the built-in modules.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	model, err := loader.Load(ctx, cfg.AssemblyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load assembly: %w", err)
	}
	logger.Debug("Assembly loaded and translated into unified model.", "scopes", len(model.Scopes))

	gatherer := prometheus.NewRegistry()
	collector := metrics.New(gatherer)

	reg := registry.New(registry.WithCacheSize(cfg.CacheSize), registry.WithMetrics(collector))
	if len(modules) == 0 {
		modules = coreModules
	}
	reg.Load(modules...)
	logger.Debug("All extension modules registered.", "count", len(modules))

	// A definition that cannot resolve is a mismatch between modules compiled
	// into the binary, so it is treated as a programmer error.
	if err := reg.Validate(ctx); err != nil {
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		registry: reg,
		model:    model,
		gatherer: gatherer,
		metrics:  collector,
	}, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Scopes returns the top-level scopes built by Run.
func (a *App) Scopes() []*scope.Scope {
	return a.scopes
}

// Gatherer returns the Prometheus registry holding the application metrics.
func (a *App) Gatherer() prometheus.Gatherer {
	return a.gatherer
}
