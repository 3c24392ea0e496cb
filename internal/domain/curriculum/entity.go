package curriculum

import (
	"encoding/json"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleID - идентификатор модуля.
type ModuleID string

// IsValid проверяет, что идентификатор не пустой.
func (m ModuleID) IsValid() bool {
	return strings.TrimSpace(string(m)) != ""
}

// String возвращает строковое представление.
func (m ModuleID) String() string {
	return string(m)
}

// ActivityID - идентификатор активности.
type ActivityID string

// IsValid проверяет, что идентификатор не пустой.
func (a ActivityID) IsValid() bool {
	return strings.TrimSpace(string(a)) != ""
}

// String возвращает строковое представление.
func (a ActivityID) String() string {
	return string(a)
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE
// ══════════════════════════════════════════════════════════════════════════════

// PublicationStatus - статус публикации модуля.
type PublicationStatus string

const (
	// PublicationPublished - модуль доступен студентам.
	PublicationPublished PublicationStatus = "published"

	// PublicationUnpublished - черновик, не участвует в общем прогрессе.
	PublicationUnpublished PublicationStatus = "unpublished"
)

// IsValid проверяет корректность статуса.
func (s PublicationStatus) IsValid() bool {
	return s == PublicationPublished || s == PublicationUnpublished
}

// Module - упорядоченная единица учебной программы.
// Модули неизменяемы после публикации и только читаются движком.
type Module struct {
	// ID - уникальный идентификатор.
	ID ModuleID

	// Title - название модуля.
	Title string

	// OrderIndex - порядковый номер, начиная с 1, без пропусков.
	OrderIndex int

	// Status - статус публикации.
	Status PublicationStatus
}

// IsPublished возвращает true для опубликованного модуля.
func (m *Module) IsPublished() bool {
	return m.Status == PublicationPublished
}

// IsFirst возвращает true для первого модуля программы.
func (m *Module) IsFirst() bool {
	return m.OrderIndex <= 1
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

// Activity - атомарное учебное задание внутри модуля.
type Activity struct {
	// ID - уникальный идентификатор.
	ID ActivityID

	// ModuleID - модуль, которому принадлежит активность.
	ModuleID ModuleID

	// Title - название активности.
	Title string

	// OrderIndex - порядок внутри модуля.
	OrderIndex int

	// RequiredForCompletion - учитывается ли активность в проценте модуля.
	RequiredForCompletion bool
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY COMPLETION
// ══════════════════════════════════════════════════════════════════════════════

// ActivityCompletion - отметка о выполнении активности студентом.
// После Completed = true флаг никогда не сбрасывается: повторная отправка
// обновляет только Data, DataDigest и CompletedAt.
type ActivityCompletion struct {
	// UserID - идентификатор студента.
	UserID string

	// ActivityID - выполненная активность.
	ActivityID ActivityID

	// Completed - выполнена ли активность.
	Completed bool

	// CompletedAt - время последней отправки.
	CompletedAt time.Time

	// Data - непрозрачные данные ответа.
	Data json.RawMessage

	// DataDigest - BLAKE2b-256 от Data.
	DataDigest []byte
}

// NewActivityCompletion создаёт отметку о выполнении.
func NewActivityCompletion(userID string, activityID ActivityID, data json.RawMessage, digest []byte, now time.Time) *ActivityCompletion {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return &ActivityCompletion{
		UserID:      userID,
		ActivityID:  activityID,
		Completed:   true,
		CompletedAt: now,
		Data:        data,
		DataDigest:  digest,
	}
}
