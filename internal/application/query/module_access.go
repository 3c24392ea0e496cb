// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULE ACCESS QUERY
// Решает, открыт ли модуль, и какую активность выполнять следующей.
// Ничего не хранит: разблокировка вычисляется при чтении из прогресса
// по предыдущему модулю.
// ══════════════════════════════════════════════════════════════════════════════

// ModuleAccessQuery отвечает на вопросы о доступе к модулям.
type ModuleAccessQuery struct {
	catalog  curriculum.CatalogRepository
	progress curriculum.ProgressRepository
	users    learner.Repository
}

// NewModuleAccessQuery создаёт ModuleAccessQuery.
func NewModuleAccessQuery(
	catalog curriculum.CatalogRepository,
	progress curriculum.ProgressRepository,
	users learner.Repository,
) *ModuleAccessQuery {
	return &ModuleAccessQuery{catalog: catalog, progress: progress, users: users}
}

// IsModuleUnlocked возвращает true, если модуль с порядковым номером
// orderIndex открыт для студента. Модуль 1 открыт всегда.
// Для неизвестного студента возвращает ErrUserNotFound.
func (q *ModuleAccessQuery) IsModuleUnlocked(ctx context.Context, userID string, orderIndex int) (bool, error) {
	if userID == "" {
		return false, shared.NewDomainError("curriculum", "IsModuleUnlocked", shared.ErrInvalidInput, "user id is required")
	}
	if orderIndex < 1 {
		return false, shared.NewDomainError("curriculum", "IsModuleUnlocked", shared.ErrInvalidInput, "order index must be positive")
	}
	if _, err := q.users.GetUser(ctx, userID); err != nil {
		return false, fmt.Errorf("is_module_unlocked: %w", err)
	}
	if orderIndex == 1 {
		return true, nil
	}

	previous, err := q.catalog.GetModuleByOrder(ctx, orderIndex-1)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("is_module_unlocked: %w", err)
	}

	progress, err := q.progress.GetModuleProgress(ctx, userID, previous.ID)
	if err != nil {
		return false, fmt.Errorf("is_module_unlocked: %w", err)
	}

	return curriculum.IsUnlocked(orderIndex, progress), nil
}

// GetNextActivity возвращает первую невыполненную активность модуля
// по OrderIndex. Возвращает nil, если выполнены все.
// Для неизвестного студента возвращает ErrUserNotFound.
func (q *ModuleAccessQuery) GetNextActivity(ctx context.Context, userID string, moduleID curriculum.ModuleID) (*curriculum.Activity, error) {
	if userID == "" || !moduleID.IsValid() {
		return nil, shared.NewDomainError("curriculum", "GetNextActivity", shared.ErrInvalidInput, "user id and module id are required")
	}

	if _, err := q.users.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("get_next_activity: %w", err)
	}
	if _, err := q.catalog.GetModule(ctx, moduleID); err != nil {
		return nil, fmt.Errorf("get_next_activity: %w", err)
	}

	activities, err := q.catalog.ListActivities(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("get_next_activity: %w", err)
	}

	completed, err := q.progress.CompletedActivities(ctx, userID, moduleID)
	if err != nil {
		return nil, fmt.Errorf("get_next_activity: %w", err)
	}

	return curriculum.NextActivity(activities, completed), nil
}
