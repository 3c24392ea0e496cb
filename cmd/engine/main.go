// Package main is the entry point of the progress engine.
//
// The binary exposes the engine as a set of subcommands:
//   - serve: HTTP read-only views, health checks and the reconciliation scheduler
//   - migrate: database schema management
//   - enroll, complete, reconcile, recommend, overview: operator commands
//   - levels: prints the level curve
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

func main() {
	ctx, stop := signalContext()
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil && !isShutdown(err) {
		os.Exit(1)
	}
}

// runtimeEnv is shared by all subcommands after config is loaded.
type runtimeEnv struct {
	cfg    *config.Config
	logger *slog.Logger
}

var env runtimeEnv

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "progress-engine",
		Short:         "Progress, rewards and project relevance for learners",
		Version:       Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if Version != "dev" {
				cfg.App.Version = Version
			}
			env = runtimeEnv{
				cfg: cfg,
				logger: logger.New(logger.Options{
					Level:  cfg.Observability.LogLevel,
					Format: logger.Format(cfg.Observability.LogFormat),
					Output: os.Stderr,
				}).With(
					slog.String("app", cfg.App.Name),
					slog.String("env", cfg.App.Environment),
				),
			}
			slog.SetDefault(env.logger)
			return nil
		},
	}

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(enrollCmd())
	root.AddCommand(completeCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(recommendCmd())
	root.AddCommand(overviewCmd())
	root.AddCommand(levelsCmd())
	return root
}

// withApp builds the application for a single command and closes it afterwards.
func withApp(ctx context.Context, fn func(ctx context.Context, app *App) error) error {
	app, err := newApp(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// isShutdown reports whether err is a cancellation caused by a signal.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
