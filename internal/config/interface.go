package config

import "context"

// Loader is the interface for a format-specific assembly loader.
type Loader interface {
	// Load reads the assembly files found under paths and translates them
	// into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
