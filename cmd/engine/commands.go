package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alem-hub/progress-engine/config"
	"github.com/alem-hub/progress-engine/internal/application/command"
	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
				applied, err := m.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
				rolled, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if rolled == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %03d_%s\n", rolled.Version, rolled.Name)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *postgres.Migrator) error {
				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
				for _, mig := range migrations {
					applied := "pending"
					if mig.AppliedAt != nil {
						applied = mig.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(w, "%03d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()
			})
		},
	})
	return cmd
}

func withMigrator(ctx context.Context, fn func(ctx context.Context, m *postgres.Migrator) error) error {
	if env.cfg.Database.Driver != config.DriverPostgres {
		return errors.New("migrations require the postgres driver")
	}
	conn, err := postgres.NewConnectionFromURL(ctx, env.cfg.Database.URL, postgres.DefaultPoolSettings())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()
	return fn(ctx, postgres.NewMigrator(conn))
}

// ══════════════════════════════════════════════════════════════════════════════
// ENROLL
// ══════════════════════════════════════════════════════════════════════════════

func enrollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enroll <user-id>",
		Short: "Create a learner with zero XP at level 1",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				if err := enroll(ctx, app, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s\n", args[0])
				return nil
			})
		},
	}
}

func enroll(ctx context.Context, app *App, userID string) error {
	user, err := learner.NewUser(userID, timeutil.SystemClock{}.Now())
	if err != nil {
		return err
	}
	if err := app.learners.CreateUser(ctx, user); err != nil && !shared.IsAlreadyExists(err) {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE
// ══════════════════════════════════════════════════════════════════════════════

func completeCmd() *cobra.Command {
	var (
		userID   string
		data     string
		doEnroll bool
	)

	cmd := &cobra.Command{
		Use:   "complete <activity-id>...",
		Short: "Record activity completions and grant the rewards",
		Long: "Records each activity in order. With the memory driver state lives only for the\n" +
			"duration of the process, so pass --enroll and several activity ids to try a full flow.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				if doEnroll {
					if err := enroll(ctx, app, userID); err != nil {
						return err
					}
				}
				for _, activityID := range args {
					result, err := app.completeActivity.Handle(ctx, command.CompleteActivityCommand{
						UserID:     userID,
						ActivityID: activityID,
						Data:       json.RawMessage(data),
					})
					if result != nil {
						fmt.Fprintf(cmd.OutOrStdout(),
							"%s: module %s %d%% (%s), overall %d%%, first=%t, digest=%s\n",
							result.ActivityID,
							result.ModuleID,
							result.Module.ProgressPercent.Int(),
							result.Module.Status,
							result.Overall.Percent.Int(),
							result.FirstCompletion,
							hex.EncodeToString(result.PayloadDigest)[:16],
						)
					}
					if err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "learner id")
	cmd.Flags().StringVarP(&data, "data", "d", "", "submission payload as JSON")
	cmd.Flags().BoolVar(&doEnroll, "enroll", false, "create the learner first if missing")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE
// ══════════════════════════════════════════════════════════════════════════════

func reconcileCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Unlock achievements a learner already qualifies for",
		Long:  "Without --user runs the reconciliation job over recently active learners.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				out := cmd.OutOrStdout()
				if userID != "" {
					unlocked, err := app.engine.CheckAchievements(ctx, userID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %d achievement(s) unlocked\n", userID, len(unlocked))
					for _, id := range unlocked {
						fmt.Fprintf(out, "  %s\n", id)
					}
					return nil
				}

				runErr := app.reconcile.Run(ctx)
				if stats := app.reconcile.LastStats(); stats != nil {
					fmt.Fprintf(out, "checked=%d failed=%d unlocked=%d skipped_locked=%t took=%s\n",
						stats.UsersChecked, stats.UsersFailed, stats.Unlocked, stats.SkippedLocked, stats.Duration)
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "reconcile a single learner")
	return cmd
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

func recommendCmd() *cobra.Command {
	var (
		userID   string
		category string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Rank candidate projects by relevance to a learner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				result, err := app.recommend.Handle(ctx, query.RecommendProjectsQuery{
					UserID:   userID,
					Category: relevance.Category(category),
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SCORE\tQUALITY\tCATEGORY\tPROJECT")
				for _, p := range result.Projects {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.Score, p.Quality, p.Category, p.Title)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "learner id")
	cmd.Flags().StringVarP(&category, "category", "c", "", "only projects of this category")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of projects (0: configured default)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func overviewCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "overview",
		Short: "Print progress, XP, streaks and achievements of a learner as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *App) error {
				dto, err := app.overview.Handle(ctx, userID)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(dto)
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "learner id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func levelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "levels",
		Short: "Print the level curve",
		// Static table, no config needed.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "LEVEL\tXP\tTITLE")
			for l := shared.MinLevel; l <= shared.MaxLevel; l++ {
				fmt.Fprintf(w, "%d\t%d\t%s\n", l.Int(), learner.ThresholdFor(l), l.Title())
			}
			return w.Flush()
		},
	}
}
