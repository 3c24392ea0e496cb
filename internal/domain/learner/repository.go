package learner

import (
	"context"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// Repository хранит счётчики студентов и полученные достижения.
type Repository interface {
	// CreateUser создаёт студента, если его ещё нет.
	CreateUser(ctx context.Context, user *User) error

	// GetUser возвращает студента по ID.
	// Возвращает shared.ErrUserNotFound, если студента нет.
	GetUser(ctx context.Context, id string) (*User, error)

	// LockUser возвращает студента и блокирует запись до конца транзакции.
	LockUser(ctx context.Context, id string) (*User, error)

	// SaveUser сохраняет счётчики одним обновлением.
	SaveUser(ctx context.Context, user *User) error

	// HasAchievement проверяет, получено ли достижение.
	HasAchievement(ctx context.Context, userID string, id AchievementID) (bool, error)

	// CreateAchievement сохраняет достижение.
	// Возвращает shared.ErrAchievementExists при нарушении уникальности.
	CreateAchievement(ctx context.Context, achievement *Achievement) error

	// ListAchievements возвращает достижения студента по времени получения.
	ListAchievements(ctx context.Context, userID string) ([]*Achievement, error)

	// ListActiveUserIDs возвращает студентов, активных после since.
	ListActiveUserIDs(ctx context.Context, since time.Time, page shared.Pagination) ([]string, error)

	// RunInTx выполняет fn в одной транзакции.
	RunInTx(ctx context.Context, fn func(repo Repository) error) error
}
