package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/progress-engine/internal/infrastructure/scheduler"
	httpserver "github.com/alem-hub/progress-engine/internal/interface/http"
)

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP views and the reconciliation scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	cfg, log := env.cfg, env.logger

	log.Info("starting progress engine",
		"version", cfg.App.Version,
		"driver", cfg.Database.Driver,
		"timezone", cfg.App.Timezone,
	)

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	if migrate && app.db != nil {
		applied, err := postgres.NewMigrator(app.db).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Info("migrations applied", "count", applied)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 1. SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled && cfg.Features.IsEnabled(config.FeatureReconciliation, "") {
		sched = scheduler.NewScheduler(scheduler.SchedulerConfig{
			Logger:         log,
			Timezone:       cfg.App.Location,
			JobTimeout:     cfg.Scheduler.JobTimeout,
			MaxHistorySize: 100,
			EnableMetrics:  true,
		})
		if err := sched.Register(app.reconcile, cfg.Scheduler.ReconcileSpec); err != nil {
			return fmt.Errorf("register reconcile job: %w", err)
		}
		sched.OnJobError(func(jobName string, err error) {
			log.Error("scheduled job failed", "job", jobName, "error", err)
		})
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		log.Info("scheduler disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	var (
		server *httpserver.Server
		errCh  <-chan error
	)
	if cfg.HTTP.Enabled {
		httpCfg := httpserver.DefaultConfig()
		httpCfg.Addr = cfg.HTTP.Addr
		httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
		httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout

		server = httpserver.NewServer(httpCfg, httpserver.Dependencies{
			Overview:      app.overview,
			Access:        app.access,
			Recommend:     app.recommend,
			HealthChecker: app.health,
			Logger:        log,
		})
		errCh = server.StartAsync()
	}

	log.Info("progress engine is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 3. WAIT FOR SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("HTTP server failed", "error", err)
			runErr = err
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown HTTP server", "error", err)
		}
	}
	if sched != nil {
		if err := sched.Stop(); err != nil {
			log.Warn("failed to stop scheduler", "error", err)
		}
		if m := sched.GetMetrics(); m != nil {
			log.Info("scheduler metrics", slog.Any("metrics", m.Snapshot()))
		}
	}

	log.Info("progress engine stopped")
	return runErr
}
