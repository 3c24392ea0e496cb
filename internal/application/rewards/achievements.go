package rewards

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// UnlockAchievement unlocks a catalogue achievement and grants its XP.
// Returns true iff this call created the unlock. Repeated and concurrent
// calls collapse to a single row and a single XP grant.
func (e *Engine) UnlockAchievement(ctx context.Context, userID string, id learner.AchievementID, metadata map[string]interface{}) (bool, error) {
	return e.unlock(ctx, userID, id, metadata, grant{touch: true})
}

func (e *Engine) unlock(ctx context.Context, userID string, id learner.AchievementID, metadata map[string]interface{}, g grant) (bool, error) {
	def, ok := learner.GetDefinition(id)
	if !ok {
		return false, shared.ErrUnknownAchievement
	}

	now := e.clock.Now()
	var (
		created bool
		change  learner.XPChange
	)

	err := e.repo.RunInTx(ctx, func(repo learner.Repository) error {
		user, err := repo.LockUser(ctx, userID)
		if err != nil {
			return err
		}

		has, err := repo.HasAchievement(ctx, userID, id)
		if err != nil || has {
			return err
		}

		achievement := learner.NewAchievement(e.ids.GenerateID(), userID, def, metadata, now)
		if err := repo.CreateAchievement(ctx, achievement); err != nil {
			if errors.Is(err, shared.ErrAchievementExists) {
				return nil
			}
			return err
		}

		if change, err = user.AddXP(def.XPReward, now, g.touch); err != nil {
			return err
		}
		if err := repo.SaveUser(ctx, user); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("unlock_achievement %s: %w", id, err)
	}
	if !created {
		return false, nil
	}

	e.logger.InfoContext(ctx, "achievement unlocked",
		slog.String("user_id", userID),
		slog.String("achievement_id", string(id)),
		slog.Int("xp", def.XPReward),
	)

	e.publish(ctx,
		shared.NewAchievementUnlockedEvent(userID, string(id), def.Name, def.Emoji, def.XPReward, now),
		shared.NewXPGainedEvent(userID, def.XPReward, change.NewXP.Int(), "achievement:"+string(id), now),
	)

	if change.LeveledUp() {
		e.publish(ctx, shared.NewLevelUpEvent(userID, change.OldLevel.Int(), change.NewLevel.Int(), change.NewXP.Int(), now))
		if _, err := e.unlockLevelMilestones(ctx, userID, change, g); err != nil {
			return true, err
		}
	}
	return true, nil
}

// CheckAchievements recomputes aggregate statistics and unlocks every
// qualifying achievement, including milestones of levels already reached.
// Safe to call repeatedly. Grants made here do not touch LastActiveAt.
// Streak milestones are not reconciled: they fire only on the exact day.
func (e *Engine) CheckAchievements(ctx context.Context, userID string) ([]learner.AchievementID, error) {
	var (
		projectStats, curriculumStats learner.ActivityStats
		user                          *learner.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = e.repo.GetUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		projectStats, err = e.stats.ProjectStats(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		curriculumStats, err = e.stats.CurriculumStats(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("check_achievements: load stats: %w", err)
	}

	candidates := learner.QualifyingAchievements(projectStats.Merge(curriculumStats))
	candidates = append(candidates, learner.LevelMilestonesUpTo(user.Level)...)

	var (
		unlocked []learner.AchievementID
		errs     []error
	)
	for _, id := range candidates {
		created, err := e.unlock(ctx, userID, id, nil, grant{touch: false})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if created {
			unlocked = append(unlocked, id)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return unlocked, fmt.Errorf("check_achievements: %w", err)
	}
	return unlocked, nil
}
