package rewards

import (
	"context"
	"fmt"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// StreakResult is the outcome of a streak update.
type StreakResult struct {
	UserID string

	// Change describes the transition. Change.Changed is false when the
	// day was already credited.
	Change learner.StreakChange

	// Milestone is the streak achievement unlocked by this update, if any.
	Milestone learner.AchievementID
}

// UpdateStreak credits today's activity. Call it once per activity session.
//
// Days are calendar days in the engine's configured location (APP_TIMEZONE,
// Asia/Almaty by default), not 24-hour periods since the last activity:
// 23:30 and 00:30 the next day continue the streak, while 09:00 and 00:10
// two days later reset it even though fewer than 48 hours passed.
func (e *Engine) UpdateStreak(ctx context.Context, userID string) (*StreakResult, error) {
	now := e.clock.Now()
	var change learner.StreakChange

	err := e.repo.RunInTx(ctx, func(repo learner.Repository) error {
		user, err := repo.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		firstEver := user.LastActiveAt == nil
		days := 0
		if !firstEver {
			days = timeutil.CalendarDaysBetween(*user.LastActiveAt, now, e.location)
		}

		change = user.RecordActiveDay(days, firstEver, now)
		if !change.Changed {
			return nil
		}
		return repo.SaveUser(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("update_streak: %w", err)
	}

	result := &StreakResult{UserID: userID, Change: change}
	if !change.Changed {
		return result, nil
	}

	e.publish(ctx, shared.NewStreakUpdatedEvent(userID, change.Current, change.Longest, change.Reset, now))

	id, ok := learner.StreakMilestone(change.Current)
	if !ok {
		return result, nil
	}
	created, err := e.unlock(ctx, userID, id, map[string]interface{}{"streak": change.Current}, grant{touch: true})
	if err != nil {
		return result, err
	}
	if created {
		result.Milestone = id
	}
	return result, nil
}
