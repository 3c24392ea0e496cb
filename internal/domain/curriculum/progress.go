package curriculum

import (
	"math"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STATUS
// ══════════════════════════════════════════════════════════════════════════════

// ProgressStatus - состояние прохождения модуля.
type ProgressStatus string

const (
	// StatusNotStarted - ни одна обязательная активность не выполнена.
	StatusNotStarted ProgressStatus = "NOT_STARTED"

	// StatusInProgress - выполнена часть обязательных активностей.
	StatusInProgress ProgressStatus = "IN_PROGRESS"

	// StatusCompleted - выполнены все обязательные активности.
	StatusCompleted ProgressStatus = "COMPLETED"
)

// IsValid проверяет корректность статуса.
func (s ProgressStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// StatusFor возвращает статус для процента выполнения.
func StatusFor(percent shared.Percent) ProgressStatus {
	switch {
	case percent <= 0:
		return StatusNotStarted
	case percent.IsComplete():
		return StatusCompleted
	default:
		return StatusInProgress
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// ModuleProgress - прогресс студента по одному модулю.
//
// Инвариант: Status == COMPLETED ⇔ ProgressPercent == 100 ⇔ CompletedAt != nil.
type ModuleProgress struct {
	// UserID - идентификатор студента.
	UserID string

	// ModuleID - модуль.
	ModuleID ModuleID

	// ProgressPercent - процент выполнения (0-100).
	ProgressPercent shared.Percent

	// Status - состояние прохождения.
	Status ProgressStatus

	// StartedAt - время создания записи.
	StartedAt time.Time

	// CompletedAt - время перехода в COMPLETED, затем не меняется.
	CompletedAt *time.Time

	// UpdatedAt - время последнего пересчёта.
	UpdatedAt time.Time
}

// NewModuleProgress создаёт пустой прогресс по модулю.
func NewModuleProgress(userID string, moduleID ModuleID, now time.Time) *ModuleProgress {
	return &ModuleProgress{
		UserID:          userID,
		ModuleID:        moduleID,
		ProgressPercent: 0,
		Status:          StatusNotStarted,
		StartedAt:       now,
		UpdatedAt:       now,
	}
}

// IsCompleted возвращает true, если модуль пройден.
func (p *ModuleProgress) IsCompleted() bool {
	return p != nil && p.Status == StatusCompleted
}

// Recalculate выставляет процент по числу выполненных обязательных активностей.
// Процент никогда не уменьшается: выполнения не отменяются, поэтому меньшее
// значение означает устаревший снимок. Возвращает true при переходе в COMPLETED.
func (p *ModuleProgress) Recalculate(completedRequired, required int, now time.Time) bool {
	percent := shared.PercentOf(completedRequired, required)
	if percent < p.ProgressPercent {
		percent = p.ProgressPercent
	}

	wasCompleted := p.Status == StatusCompleted
	p.ProgressPercent = percent
	p.Status = StatusFor(percent)
	p.UpdatedAt = now

	if p.Status == StatusCompleted && p.CompletedAt == nil {
		completedAt := now
		p.CompletedAt = &completedAt
	}

	return p.Status == StatusCompleted && !wasCompleted
}

// Validate проверяет инвариант статуса.
func (p *ModuleProgress) Validate() error {
	if !p.ProgressPercent.IsValid() || !p.Status.IsValid() {
		return shared.NewDomainError("curriculum", "Validate", shared.ErrValueOutOfRange, "progress out of range")
	}
	completed := p.Status == StatusCompleted
	if completed != p.ProgressPercent.IsComplete() || completed != (p.CompletedAt != nil) {
		return shared.NewDomainError("curriculum", "Validate", shared.ErrInvalidState, "status does not match percent")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// OVERALL PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// OverallProgress - общий прогресс студента по программе.
type OverallProgress struct {
	// UserID - идентификатор студента.
	UserID string

	// Percent - среднее по всем опубликованным модулям.
	Percent shared.Percent

	// CompletedModules - число пройденных модулей.
	CompletedModules int

	// TotalModules - число опубликованных модулей.
	TotalModules int

	// UpdatedAt - время пересчёта.
	UpdatedAt time.Time
}

// IsComplete возвращает true, если пройдены все модули.
func (o *OverallProgress) IsComplete() bool {
	return o.TotalModules > 0 && o.Percent.IsComplete()
}

// CalculateOverall считает средний процент по totalModules модулям.
// Модули без записи прогресса дают 0. Прогресс по модулям вне
// программы (например, неопубликованным) передавать не нужно.
func CalculateOverall(userID string, progress []*ModuleProgress, totalModules int, now time.Time) *OverallProgress {
	overall := &OverallProgress{
		UserID:       userID,
		TotalModules: totalModules,
		UpdatedAt:    now,
	}
	if totalModules <= 0 {
		return overall
	}

	sum := 0
	for _, p := range progress {
		sum += p.ProgressPercent.Int()
		if p.IsCompleted() {
			overall.CompletedModules++
		}
	}

	overall.Percent = shared.ClampPercent(math.Round(float64(sum) / float64(totalModules)))
	return overall
}
