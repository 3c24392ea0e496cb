// Package notification содержит доменную модель пользовательских уведомлений.
// Уведомления - побочный эффект наград: их запись выполняется только после
// фиксации основного изменения, а ошибка записи не отменяет награду.
package notification

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidNotificationID - пустой ID уведомления.
	ErrInvalidNotificationID = errors.New("invalid notification ID")

	// ErrInvalidRecipientID - пустой ID получателя.
	ErrInvalidRecipientID = errors.New("invalid recipient ID")

	// ErrInvalidNotificationType - неизвестный тип уведомления.
	ErrInvalidNotificationType = errors.New("invalid notification type")

	// ErrEmptyMessage - пустой текст уведомления.
	ErrEmptyMessage = errors.New("notification message cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// NotificationType определяет тип уведомления.
type NotificationType string

const (
	// NotificationTypeAchievement - получено достижение.
	// "🏅 Новое достижение: Первый шаг!"
	NotificationTypeAchievement NotificationType = "achievement"

	// NotificationTypeLevelUp - повышение уровня.
	// "⬆️ Уровень повышен! Теперь ты Level 5"
	NotificationTypeLevelUp NotificationType = "level_up"

	// NotificationTypeStreakMilestone - достигнута веха серии.
	// "🔥 Серия 7 дней! Так держать!"
	NotificationTypeStreakMilestone NotificationType = "streak_milestone"

	// NotificationTypeModuleCompleted - пройден модуль.
	// "📦 Модуль пройден! Открыт следующий"
	NotificationTypeModuleCompleted NotificationType = "module_completed"
)

// IsValid проверяет, что тип известен.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationTypeAchievement, NotificationTypeLevelUp,
		NotificationTypeStreakMilestone, NotificationTypeModuleCompleted:
		return true
	}
	return false
}

// Emoji возвращает эмодзи по умолчанию для типа.
func (t NotificationType) Emoji() string {
	switch t {
	case NotificationTypeAchievement:
		return "🏅"
	case NotificationTypeLevelUp:
		return "⬆️"
	case NotificationTypeStreakMilestone:
		return "🔥"
	case NotificationTypeModuleCompleted:
		return "📦"
	default:
		return "🔔"
	}
}

// String возвращает строковое представление.
func (t NotificationType) String() string {
	return string(t)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification - сообщение для студента.
type Notification struct {
	// ID - уникальный идентификатор уведомления.
	ID string

	// UserID - получатель.
	UserID string

	// Type - тип уведомления.
	Type NotificationType

	// Title - заголовок.
	Title string

	// Message - текст уведомления.
	Message string

	// Metadata - произвольные данные (achievement_id, new_level и т.п.).
	Metadata map[string]interface{}

	// CreatedAt - время создания.
	CreatedAt time.Time

	// ReadAt - время прочтения (nil, если не прочитано).
	ReadAt *time.Time
}

// NewNotificationParams содержит параметры для создания уведомления.
type NewNotificationParams struct {
	ID       string
	UserID   string
	Type     NotificationType
	Title    string
	Message  string
	Metadata map[string]interface{}
	Now      time.Time
}

// NewNotification создаёт новое уведомление с валидацией.
func NewNotification(params NewNotificationParams) (*Notification, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, ErrInvalidNotificationID
	}
	if strings.TrimSpace(params.UserID) == "" {
		return nil, ErrInvalidRecipientID
	}
	if !params.Type.IsValid() {
		return nil, ErrInvalidNotificationType
	}
	if strings.TrimSpace(params.Message) == "" {
		return nil, ErrEmptyMessage
	}

	metadata := params.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	return &Notification{
		ID:        params.ID,
		UserID:    params.UserID,
		Type:      params.Type,
		Title:     params.Title,
		Message:   params.Message,
		Metadata:  metadata,
		CreatedAt: params.Now,
	}, nil
}

// IsRead возвращает true, если уведомление прочитано.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SINK
// ══════════════════════════════════════════════════════════════════════════════

// Writer - приёмник уведомлений. Ошибки записи не влияют на награды.
type Writer interface {
	Write(ctx context.Context, n *Notification) error
}

// Repository хранит уведомления для показа в интерфейсе.
type Repository interface {
	Writer

	// ListByUser возвращает последние уведомления студента.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
}

// Message - содержимое одного уведомления до присвоения ID.
type Message struct {
	UserID   string
	Type     NotificationType
	Title    string
	Text     string
	Metadata map[string]interface{}
}

// Dispatcher доставляет уведомления по принципу best-effort.
// Возвращает false, если сообщение не записано; ошибку не возвращает.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) bool
}
