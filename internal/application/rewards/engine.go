// Package rewards implements the rewards engine: XP and levels, achievements
// and daily streaks. Every counter change is one atomic write under a user
// row lock; events are published after commit.
package rewards

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// IDGenerator issues identifiers for achievement rows.
type IDGenerator interface {
	GenerateID() string
}

// Config contains engine configuration.
type Config struct {
	// Location defines calendar days for streaks.
	Location *time.Location
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{Location: timeutil.AlmatyTZ}
}

// Engine grants XP, unlocks achievements and maintains streaks.
type Engine struct {
	repo      learner.Repository
	stats     learner.StatsReader
	publisher shared.EventPublisher
	ids       IDGenerator
	clock     timeutil.Clock
	location  *time.Location
	logger    *slog.Logger
}

// NewEngine creates a new Engine.
func NewEngine(
	repo learner.Repository,
	stats learner.StatsReader,
	publisher shared.EventPublisher,
	ids IDGenerator,
	clock timeutil.Clock,
	config Config,
	logger *slog.Logger,
) *Engine {
	if config.Location == nil {
		config = DefaultConfig()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Engine{
		repo:      repo,
		stats:     stats,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		location:  config.Location,
		logger:    logger.With(slog.String("component", "rewards_engine")),
	}
}

// grant describes how a reward touches the user row.
type grant struct {
	// touch updates LastActiveAt. Reconciliation grants leave it alone
	// so that a nightly pass does not count as a day of activity.
	touch bool
}

// publish sends events after commit. Handler failures are logged: the
// reward is already durable and notifications are best-effort.
func (e *Engine) publish(ctx context.Context, events ...shared.Event) {
	for _, event := range events {
		if err := e.publisher.Publish(ctx, event); err != nil {
			e.logger.ErrorContext(ctx, "reward event handler failed",
				slog.String("event_type", string(event.EventType())),
				slog.String("user_id", event.AggregateID()),
				slog.Any("error", err),
			)
		}
	}
}
