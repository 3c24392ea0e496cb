package eventhandler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/notification"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON REWARD GRANTED HANDLER
// Превращает события наград в уведомления студенту. Доставка best-effort:
// обработчик никогда не возвращает ошибку, неудачи логирует диспетчер.
// ═══════════════════════════════════════════════════════════════════════════

// OnRewardGrantedHandler обрабатывает AchievementUnlocked, LevelUp,
// StreakUpdated и ActivityCompleted (пройденный модуль).
type OnRewardGrantedHandler struct {
	dispatcher notification.Dispatcher
	logger     *slog.Logger
}

// NewOnRewardGrantedHandler создаёт обработчик.
func NewOnRewardGrantedHandler(dispatcher notification.Dispatcher, logger *slog.Logger) *OnRewardGrantedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnRewardGrantedHandler{
		dispatcher: dispatcher,
		logger:     logger.With("handler", "on_reward_granted"),
	}
}

// EventTypes возвращает типы событий, на которые нужно подписать обработчик.
func (h *OnRewardGrantedHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventAchievementUnlocked,
		shared.EventLevelUp,
		shared.EventStreakUpdated,
		shared.EventActivityCompleted,
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnRewardGrantedHandler) Handle(ctx context.Context, event shared.Event) error {
	msg, ok := h.messageFor(event)
	if !ok {
		return nil
	}
	if !h.dispatcher.Dispatch(ctx, msg) {
		h.logger.Debug("notification not delivered",
			"user_id", msg.UserID,
			"type", msg.Type,
		)
	}
	return nil
}

// messageFor строит уведомление. false - событие не требует уведомления.
func (h *OnRewardGrantedHandler) messageFor(event shared.Event) (notification.Message, bool) {
	switch e := event.(type) {
	case shared.AchievementUnlockedEvent:
		return notification.Message{
			UserID: e.UserID,
			Type:   notification.NotificationTypeAchievement,
			Title:  fmt.Sprintf("%s Новое достижение", e.Emoji),
			Text:   fmt.Sprintf("%s %s! +%d XP", e.Emoji, e.Name, e.XPAwarded),
			Metadata: map[string]interface{}{
				"achievement_id": e.AchievementID,
				"xp_awarded":     e.XPAwarded,
			},
		}, true

	case shared.LevelUpEvent:
		level := shared.Level(e.NewLevel)
		return notification.Message{
			UserID: e.UserID,
			Type:   notification.NotificationTypeLevelUp,
			Title:  "⬆️ Уровень повышен!",
			Text:   fmt.Sprintf("Теперь у тебя %d уровень (%s). Всего %d XP", e.NewLevel, level.Title(), e.TotalXP),
			Metadata: map[string]interface{}{
				"old_level": e.OldLevel,
				"new_level": e.NewLevel,
			},
		}, true

	case shared.StreakUpdatedEvent:
		if _, milestone := learner.StreakMilestone(e.CurrentStreak); !milestone {
			return notification.Message{}, false
		}
		return notification.Message{
			UserID: e.UserID,
			Type:   notification.NotificationTypeStreakMilestone,
			Title:  "🔥 Серия дней",
			Text:   fmt.Sprintf("Серия %d дней! Так держать!", e.CurrentStreak),
			Metadata: map[string]interface{}{
				"current_streak": e.CurrentStreak,
				"longest_streak": e.LongestStreak,
			},
		}, true

	case shared.ActivityCompletedEvent:
		if !e.ModuleNewlyCompleted {
			return notification.Message{}, false
		}
		return notification.Message{
			UserID: e.UserID,
			Type:   notification.NotificationTypeModuleCompleted,
			Title:  "📦 Модуль пройден!",
			Text:   fmt.Sprintf("Модуль пройден. Общий прогресс: %d%%", e.OverallPercent),
			Metadata: map[string]interface{}{
				"module_id":       e.ModuleID,
				"overall_percent": e.OverallPercent,
			},
		}, true
	}
	return notification.Message{}, false
}
