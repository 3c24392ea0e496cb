// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/progress-engine/internal/application/rewards"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACTIVITY COMPLETED HANDLER
// Превращает выполнение активности в награды:
// 1. Серия дней (одна сессия = один вызов)
// 2. XP за первое выполнение и достижение first-activity
// 3. XP за пройденный модуль, first-module и curriculum-complete
// 4. Сверка достижений по статистике
//
// Шаги независимы: ошибка одного не отменяет остальные, ошибки
// объединяются и возвращаются публикующему.
// ═══════════════════════════════════════════════════════════════════════════

// ActivityCompletedConfig содержит размеры наград за прогресс.
type ActivityCompletedConfig struct {
	// ActivityXP - XP за первое выполнение активности.
	ActivityXP int

	// ModuleXP - XP за прохождение модуля.
	ModuleXP int
}

// DefaultActivityCompletedConfig возвращает конфигурацию по умолчанию.
func DefaultActivityCompletedConfig() ActivityCompletedConfig {
	return ActivityCompletedConfig{
		ActivityXP: 10,
		ModuleXP:   100,
	}
}

// Причины начисления XP.
const (
	ReasonActivityCompleted = "activity_completed"
	ReasonModuleCompleted   = "module_completed"
)

// OnActivityCompletedHandler обрабатывает событие выполнения активности.
type OnActivityCompletedHandler struct {
	engine *rewards.Engine
	config ActivityCompletedConfig
	logger *slog.Logger
}

// NewOnActivityCompletedHandler создаёт обработчик.
func NewOnActivityCompletedHandler(engine *rewards.Engine, config ActivityCompletedConfig, logger *slog.Logger) *OnActivityCompletedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.ActivityXP < 0 || config.ModuleXP < 0 {
		config = DefaultActivityCompletedConfig()
	}
	return &OnActivityCompletedHandler{
		engine: engine,
		config: config,
		logger: logger.With("handler", "on_activity_completed"),
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnActivityCompletedHandler) Handle(ctx context.Context, event shared.Event) error {
	completed, ok := event.(shared.ActivityCompletedEvent)
	if !ok {
		h.logger.Warn("received non-ActivityCompletedEvent",
			"event_type", event.EventType(),
		)
		return nil
	}

	userID := completed.UserID
	var errs []error

	// 1. Серия - до начислений, чтобы вехи серии учитывались в этой же сессии.
	if _, err := h.engine.UpdateStreak(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("update streak: %w", err))
	}

	// 2. Первое выполнение активности.
	if completed.FirstCompletion {
		if h.config.ActivityXP > 0 {
			if _, err := h.engine.AwardXP(ctx, userID, h.config.ActivityXP, ReasonActivityCompleted); err != nil {
				errs = append(errs, fmt.Errorf("award activity xp: %w", err))
			}
		}
		if err := h.unlock(ctx, userID, learner.AchievementFirstActivity, map[string]interface{}{
			"activity_id": completed.ActivityID,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	// 3. Модуль пройден.
	if completed.ModuleNewlyCompleted {
		if h.config.ModuleXP > 0 {
			if _, err := h.engine.AwardXP(ctx, userID, h.config.ModuleXP, ReasonModuleCompleted); err != nil {
				errs = append(errs, fmt.Errorf("award module xp: %w", err))
			}
		}
		if err := h.unlock(ctx, userID, learner.AchievementFirstModule, map[string]interface{}{
			"module_id": completed.ModuleID,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if completed.OverallPercent >= 100 {
		if err := h.unlock(ctx, userID, learner.AchievementCurriculumComplete, nil); err != nil {
			errs = append(errs, err)
		}
	}

	// 4. Сверка по статистике проектов и программы.
	if _, err := h.engine.CheckAchievements(ctx, userID); err != nil {
		errs = append(errs, fmt.Errorf("check achievements: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		h.logger.Error("activity completion rewards failed",
			"user_id", userID,
			"activity_id", completed.ActivityID,
			"error", err,
		)
		return err
	}

	h.logger.Debug("activity completion rewards granted",
		"user_id", userID,
		"activity_id", completed.ActivityID,
		"first", completed.FirstCompletion,
		"module_completed", completed.ModuleNewlyCompleted,
	)
	return nil
}

func (h *OnActivityCompletedHandler) unlock(ctx context.Context, userID string, id learner.AchievementID, metadata map[string]interface{}) error {
	if _, err := h.engine.UnlockAchievement(ctx, userID, id, metadata); err != nil {
		return fmt.Errorf("unlock %s: %w", id, err)
	}
	return nil
}
