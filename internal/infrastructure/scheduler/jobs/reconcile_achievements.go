// Package jobs contains implementations of scheduled jobs for the progress engine.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/retry"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILE ACHIEVEMENTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// AchievementChecker unlocks every achievement a user qualifies for.
type AchievementChecker interface {
	CheckAchievements(ctx context.Context, userID string) ([]learner.AchievementID, error)
}

// Locker provides a cluster-wide lock so that only one instance runs the job.
type Locker interface {
	TryLock(ctx context.Context, name, token string, ttl time.Duration) (bool, func(context.Context) error, error)
}

// ReconcileAchievementsJob runs CheckAchievements for every user active
// within the lookback window. It catches achievements whose triggering
// event was lost or whose stats changed outside the engine (projects,
// tasks, time logs).
type ReconcileAchievementsJob struct {
	// Dependencies
	users   learner.Repository
	checker AchievementChecker
	locker  Locker
	retrier *retry.Retrier
	clock   timeutil.Clock
	logger  *slog.Logger

	// Configuration
	config ReconcileAchievementsConfig

	// State
	lastStats atomic.Value // *ReconcileStats
}

// ReconcileAchievementsConfig contains configuration for the job.
type ReconcileAchievementsConfig struct {
	// Lookback is how far back a user must have been active.
	Lookback time.Duration

	// Concurrency is the number of users checked in parallel.
	Concurrency int

	// PageSize is the number of user IDs read per page.
	PageSize int

	// LockTTL is the lifetime of the cluster lock.
	LockTTL time.Duration
}

// DefaultReconcileAchievementsConfig returns sensible defaults.
func DefaultReconcileAchievementsConfig() ReconcileAchievementsConfig {
	return ReconcileAchievementsConfig{
		Lookback:    48 * time.Hour,
		Concurrency: 4,
		PageSize:    200,
		LockTTL:     10 * time.Minute,
	}
}

// ReconcileStats contains statistics from a reconciliation run.
type ReconcileStats struct {
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
	UsersChecked  int
	UsersFailed   int
	Unlocked      int
	SkippedLocked bool
}

// NewReconcileAchievementsJob creates a new reconciliation job. locker may be nil.
func NewReconcileAchievementsJob(
	users learner.Repository,
	checker AchievementChecker,
	locker Locker,
	clock timeutil.Clock,
	logger *slog.Logger,
	config ReconcileAchievementsConfig,
) *ReconcileAchievementsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	defaults := DefaultReconcileAchievementsConfig()
	if config.Lookback <= 0 {
		config.Lookback = defaults.Lookback
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}

	return &ReconcileAchievementsJob{
		users:   users,
		checker: checker,
		locker:  locker,
		retrier: retry.StoreRetrier(),
		clock:   clock,
		logger:  logger.With("job", "reconcile_achievements"),
		config:  config,
	}
}

// Name returns the job name.
func (j *ReconcileAchievementsJob) Name() string {
	return "reconcile_achievements"
}

// Description returns a human-readable description.
func (j *ReconcileAchievementsJob) Description() string {
	return "Unlocks achievements missed by event handling for recently active users"
}

// Run executes the reconciliation.
func (j *ReconcileAchievementsJob) Run(ctx context.Context) error {
	stats := &ReconcileStats{StartedAt: j.clock.Now()}
	defer func() {
		stats.CompletedAt = j.clock.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	if j.locker != nil {
		acquired, release, err := j.locker.TryLock(ctx, j.Name(), uuid.NewString(), j.config.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !acquired {
			stats.SkippedLocked = true
			j.logger.Info("another instance holds the lock, skipping")
			return nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				j.logger.Warn("failed to release lock", "error", err)
			}
		}()
	}

	since := j.clock.Now().Add(-j.config.Lookback)

	var (
		mu   sync.Mutex
		errs []error
	)

	page := shared.NewPagination(1, j.config.PageSize)
	for {
		ids, err := j.users.ListActiveUserIDs(ctx, since, page)
		if err != nil {
			return fmt.Errorf("list active users: %w", err)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(j.config.Concurrency)
		for _, id := range ids {
			g.Go(func() error {
				unlocked, err := retry.DoWithData(gctx, j.retrier, func(ctx context.Context) ([]learner.AchievementID, error) {
					return j.checker.CheckAchievements(ctx, id)
				})

				mu.Lock()
				defer mu.Unlock()
				stats.UsersChecked++
				stats.Unlocked += len(unlocked)
				if err != nil {
					stats.UsersFailed++
					errs = append(errs, fmt.Errorf("user %s: %w", id, err))
					j.logger.Error("reconciliation failed for user", "user_id", id, "error", err)
				}
				// One failing user does not stop the rest.
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return err
		}
		if len(ids) < page.Limit() {
			break
		}
		page = page.Next()
	}

	j.logger.Info("reconciliation finished",
		"users_checked", stats.UsersChecked,
		"users_failed", stats.UsersFailed,
		"unlocked", stats.Unlocked,
	)

	if len(errs) > 0 {
		return fmt.Errorf("reconcile %d of %d users failed: %w", stats.UsersFailed, stats.UsersChecked, errors.Join(errs...))
	}
	return nil
}

// LastStats returns statistics of the last run, or nil.
func (j *ReconcileAchievementsJob) LastStats() *ReconcileStats {
	if v := j.lastStats.Load(); v != nil {
		return v.(*ReconcileStats)
	}
	return nil
}
