package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/hookwire/internal/app"
	"github.com/vk/hookwire/internal/cli"
	"github.com/vk/hookwire/internal/hcl"
)

// main is the entrypoint for the hookwire application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:], os.Environ())
	stop()
	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error handling.
func run(ctx context.Context, outW io.Writer, args, environ []string) (err error) {
	base, err := app.LoadEnv(".env", environ)
	if err != nil {
		return &cli.ExitError{Code: 2, Message: err.Error()}
	}
	appConfig, shouldExit, err := cli.Parse(args, outW, base)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// Registry validation panics on programmer errors; report them as a
	// normal failure.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	hookwireApp, err := app.NewApp(outW, appConfig, hcl.NewLoader())
	if err != nil {
		return err
	}
	return hookwireApp.Run(ctx)
}
