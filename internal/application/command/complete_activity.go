// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/retry"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE ACTIVITY COMMAND
// Records an activity completion and recomputes module and overall progress
// from the completion log. Safe to replay: percentages are derived from
// scratch on every call.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteActivityCommand contains the data to record a completion.
type CompleteActivityCommand struct {
	// UserID is the learner completing the activity.
	UserID string `validate:"required,max=128"`

	// ActivityID is the completed activity.
	ActivityID string `validate:"required,max=128"`

	// Data is the opaque submission payload (optional, must be valid JSON).
	Data json.RawMessage

	// CorrelationID for tracing.
	CorrelationID string
}

var validate = validator.New()

// Validate validates the command.
func (c CompleteActivityCommand) Validate() error {
	if err := validate.Struct(c); err != nil {
		return shared.WrapError("curriculum", "CompleteActivity", shared.ErrInvalidInput, "invalid command", err)
	}
	if len(c.Data) > 0 && !json.Valid(c.Data) {
		return shared.NewDomainError("curriculum", "CompleteActivity", shared.ErrInvalidInput, "payload is not valid JSON")
	}
	return nil
}

// CompleteActivityResult contains the result of a completion.
type CompleteActivityResult struct {
	UserID     string
	ActivityID curriculum.ActivityID
	ModuleID   curriculum.ModuleID

	// FirstCompletion is true if the activity had never been completed by this user.
	FirstCompletion bool

	// ModuleNewlyCompleted is true on the transition of the module into COMPLETED.
	ModuleNewlyCompleted bool

	// Module is the recalculated module progress.
	Module *curriculum.ModuleProgress

	// Overall is the recalculated curriculum progress.
	Overall *curriculum.OverallProgress

	// PayloadDigest is the BLAKE2b-256 of the stored payload.
	PayloadDigest []byte

	// CompletedAt is when the completion was recorded.
	CompletedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CompleteActivityHandler handles the CompleteActivityCommand.
type CompleteActivityHandler struct {
	catalog   curriculum.CatalogRepository
	progress  curriculum.ProgressRepository
	users     learner.Repository
	publisher shared.EventPublisher
	retrier   *retry.Retrier
	clock     timeutil.Clock
	logger    *slog.Logger
}

// NewCompleteActivityHandler creates a new CompleteActivityHandler.
func NewCompleteActivityHandler(
	catalog curriculum.CatalogRepository,
	progress curriculum.ProgressRepository,
	users learner.Repository,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *CompleteActivityHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &CompleteActivityHandler{
		catalog:   catalog,
		progress:  progress,
		users:     users,
		publisher: publisher,
		retrier:   retry.StoreRetrier(),
		clock:     clock,
		logger:    logger.With(slog.String("handler", "complete_activity")),
	}
}

// Handle executes the complete activity command.
//
// The returned error joins failures of synchronous completion handlers
// (rewards). The completion itself is committed whenever result is non-nil.
func (h *CompleteActivityHandler) Handle(ctx context.Context, cmd CompleteActivityCommand) (*CompleteActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("complete_activity: %w", err)
	}

	if _, err := h.users.GetUser(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("complete_activity: %w", err)
	}

	activity, err := h.catalog.GetActivity(ctx, curriculum.ActivityID(cmd.ActivityID))
	if err != nil {
		return nil, fmt.Errorf("complete_activity: %w", err)
	}

	// Catalog data is immutable after publication and can be read outside the transaction.
	activities, err := h.catalog.ListActivities(ctx, activity.ModuleID)
	if err != nil {
		return nil, fmt.Errorf("complete_activity: list activities: %w", err)
	}
	required := curriculum.RequiredActivities(activities)

	totalModules, err := h.catalog.CountPublishedModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("complete_activity: count modules: %w", err)
	}

	digest := blake2b.Sum256(payloadBytes(cmd.Data))
	now := h.clock.Now()

	result := &CompleteActivityResult{
		UserID:        cmd.UserID,
		ActivityID:    activity.ID,
		ModuleID:      activity.ModuleID,
		PayloadDigest: digest[:],
		CompletedAt:   now,
	}

	err = h.retrier.Do(ctx, func(ctx context.Context) error {
		return h.progress.RunInTx(ctx, func(repo curriculum.ProgressRepository) error {
			completion := curriculum.NewActivityCompletion(cmd.UserID, activity.ID, cmd.Data, digest[:], now)
			first, err := repo.UpsertCompletion(ctx, completion)
			if err != nil {
				return err
			}

			mp, err := repo.LockModuleProgress(ctx, cmd.UserID, activity.ModuleID, now)
			if err != nil {
				return err
			}

			completed, err := repo.CompletedActivities(ctx, cmd.UserID, activity.ModuleID)
			if err != nil {
				return err
			}

			newlyCompleted := mp.Recalculate(curriculum.CountCompleted(required, completed), len(required), now)
			if err := repo.SaveModuleProgress(ctx, mp); err != nil {
				return err
			}

			all, err := repo.ListModuleProgress(ctx, cmd.UserID)
			if err != nil {
				return err
			}
			overall := curriculum.CalculateOverall(cmd.UserID, all, totalModules, now)
			if err := repo.SaveOverallProgress(ctx, overall); err != nil {
				return err
			}

			result.FirstCompletion = first
			result.ModuleNewlyCompleted = newlyCompleted
			result.Module = mp
			result.Overall = overall
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("complete_activity: %w", err)
	}

	h.logger.InfoContext(ctx, "activity completed",
		slog.String("user_id", cmd.UserID),
		slog.String("activity_id", cmd.ActivityID),
		slog.String("module_id", string(activity.ModuleID)),
		slog.Bool("first", result.FirstCompletion),
		slog.Int("module_percent", result.Module.ProgressPercent.Int()),
		slog.Int("overall_percent", result.Overall.Percent.Int()),
	)

	event := shared.NewActivityCompletedEvent(cmd.UserID, string(activity.ID), string(activity.ModuleID), now)
	event.FirstCompletion = result.FirstCompletion
	event.ModuleNewlyCompleted = result.ModuleNewlyCompleted
	event.ModulePercent = result.Module.ProgressPercent.Int()
	event.OverallPercent = result.Overall.Percent.Int()
	if cmd.CorrelationID != "" {
		event.BaseEvent = event.BaseEvent.WithCorrelationID(cmd.CorrelationID)
	}

	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.ErrorContext(ctx, "completion handlers failed",
			slog.String("user_id", cmd.UserID),
			slog.Any("error", err),
		)
		return result, fmt.Errorf("complete_activity: rewards: %w", err)
	}
	return result, nil
}

func payloadBytes(data json.RawMessage) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}

