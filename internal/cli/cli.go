package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/hookwire/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments on top of base, usually read from
// the environment. It returns the validated config, a boolean indicating if
// the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer, base app.Config) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("hookwire", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
hookwire - Builds extension assemblies and prints their live extension plan.

Usage:
  hookwire [options] [ASSEMBLY_PATH]

Arguments:
  ASSEMBLY_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
		fmt.Fprintf(output, "\nEvery option can also be set with a %s-prefixed environment variable or a .env file.\n", app.EnvPrefix)
	}

	assemblyFlag := flagSet.String("assembly", base.AssemblyPath, "Path to the assembly file or directory.")
	aFlag := flagSet.String("a", "", "Path to the assembly file or directory (shorthand).")
	healthPortFlag := flagSet.Int("healthcheck-port", base.HealthcheckPort, "Port for the HTTP health check and metrics server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", base.LogFormat, "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", base.LogLevel, "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	cacheSizeFlag := flagSet.Int("cache-size", base.CacheSize, "Capacity of the dependency resolution cache.")
	strictFlag := flagSet.Bool("strict", base.Strict, "Reject hook markers no aggregator handles.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *assemblyFlag
	if *aFlag != "" {
		path = *aFlag
	}
	if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Assembly path determined.", "path", path)

	if path == "" {
		slog.Debug("No assembly path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	cfg, err := app.NewConfig(app.Config{
		AssemblyPath:    path,
		LogFormat:       strings.ToLower(*logFormatFlag),
		LogLevel:        strings.ToLower(*logLevelFlag),
		HealthcheckPort: *healthPortFlag,
		CacheSize:       *cacheSizeFlag,
		Strict:          *strictFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}
