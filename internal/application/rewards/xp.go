package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// XPResult is the outcome of an XP grant.
type XPResult struct {
	UserID string

	// Change holds XP and level before and after the grant.
	Change learner.XPChange

	// Unlocked lists level milestone achievements unlocked as a consequence.
	Unlocked []learner.AchievementID
}

// LeveledUp reports whether the grant raised the level.
func (r *XPResult) LeveledUp() bool {
	return r.Change.LeveledUp()
}

// AwardXP adds amount XP to the user and recalculates the level in one
// atomic write. Negative amounts are rejected before any write.
func (e *Engine) AwardXP(ctx context.Context, userID string, amount int, reason string) (*XPResult, error) {
	return e.awardXP(ctx, userID, amount, reason, grant{touch: true})
}

func (e *Engine) awardXP(ctx context.Context, userID string, amount int, reason string, g grant) (*XPResult, error) {
	if amount < 0 {
		return nil, shared.ErrNegativeXP
	}

	now := e.clock.Now()
	var change learner.XPChange

	err := e.repo.RunInTx(ctx, func(repo learner.Repository) error {
		user, err := repo.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		if change, err = user.AddXP(amount, now, g.touch); err != nil {
			return err
		}
		return repo.SaveUser(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	e.logger.DebugContext(ctx, "xp awarded",
		"user_id", userID,
		"amount", amount,
		"reason", reason,
		"total_xp", change.NewXP.Int(),
	)

	e.publish(ctx, shared.NewXPGainedEvent(userID, amount, change.NewXP.Int(), reason, now))

	result := &XPResult{UserID: userID, Change: change}
	if !change.LeveledUp() {
		return result, nil
	}

	e.publish(ctx, shared.NewLevelUpEvent(userID, change.OldLevel.Int(), change.NewLevel.Int(), change.NewXP.Int(), now))

	unlocked, err := e.unlockLevelMilestones(ctx, userID, change, g)
	result.Unlocked = unlocked
	return result, err
}

// unlockLevelMilestones unlocks a milestone for every level crossed by the
// grant, so a jump from 4 to 6 still grants level-5.
func (e *Engine) unlockLevelMilestones(ctx context.Context, userID string, change learner.XPChange, g grant) ([]learner.AchievementID, error) {
	var (
		unlocked []learner.AchievementID
		errs     []error
	)
	for level := change.OldLevel + 1; level <= change.NewLevel; level++ {
		id, ok := learner.LevelMilestone(level)
		if !ok {
			continue
		}
		got, err := e.unlock(ctx, userID, id, map[string]interface{}{"level": level.Int()}, g)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if got {
			unlocked = append(unlocked, id)
		}
	}
	return unlocked, errors.Join(errs...)
}
