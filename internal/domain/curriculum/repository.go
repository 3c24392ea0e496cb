package curriculum

import (
	"context"
	"time"
)

// CatalogRepository - доступ только на чтение к структуре программы.
type CatalogRepository interface {
	// GetModule возвращает модуль по ID.
	// Возвращает shared.ErrModuleNotFound, если модуля нет.
	GetModule(ctx context.Context, id ModuleID) (*Module, error)

	// GetModuleByOrder возвращает опубликованный модуль по порядковому номеру.
	GetModuleByOrder(ctx context.Context, orderIndex int) (*Module, error)

	// ListPublishedModules возвращает опубликованные модули по OrderIndex.
	ListPublishedModules(ctx context.Context) ([]*Module, error)

	// CountPublishedModules возвращает число опубликованных модулей.
	CountPublishedModules(ctx context.Context) (int, error)

	// GetActivity возвращает активность по ID.
	// Возвращает shared.ErrActivityNotFound, если активности нет.
	GetActivity(ctx context.Context, id ActivityID) (*Activity, error)

	// ListActivities возвращает все активности модуля.
	ListActivities(ctx context.Context, moduleID ModuleID) ([]*Activity, error)
}

// ProgressRepository хранит выполнения и материализованный прогресс.
type ProgressRepository interface {
	// UpsertCompletion записывает выполнение. Возвращает true,
	// если активность выполнена этим студентом впервые.
	UpsertCompletion(ctx context.Context, completion *ActivityCompletion) (bool, error)

	// CompletedActivities возвращает множество выполненных активностей модуля.
	CompletedActivities(ctx context.Context, userID string, moduleID ModuleID) (map[ActivityID]bool, error)

	// LockModuleProgress возвращает прогресс по модулю, создавая его при
	// отсутствии, и блокирует запись до конца транзакции.
	LockModuleProgress(ctx context.Context, userID string, moduleID ModuleID, now time.Time) (*ModuleProgress, error)

	// SaveModuleProgress сохраняет пересчитанный прогресс.
	SaveModuleProgress(ctx context.Context, progress *ModuleProgress) error

	// GetModuleProgress возвращает прогресс по модулю или nil, если записи нет.
	GetModuleProgress(ctx context.Context, userID string, moduleID ModuleID) (*ModuleProgress, error)

	// ListModuleProgress возвращает прогресс по опубликованным модулям.
	ListModuleProgress(ctx context.Context, userID string) ([]*ModuleProgress, error)

	// SaveOverallProgress сохраняет общий прогресс.
	SaveOverallProgress(ctx context.Context, overall *OverallProgress) error

	// GetOverallProgress возвращает общий прогресс или nil.
	GetOverallProgress(ctx context.Context, userID string) (*OverallProgress, error)

	// RunInTx выполняет fn в одной транзакции.
	RunInTx(ctx context.Context, fn func(repo ProgressRepository) error) error
}
