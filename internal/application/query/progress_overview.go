package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OVERVIEW QUERY
// Сводка по студенту: модули с флагом разблокировки, общий прогресс,
// уровень, серия и полученные достижения.
// ══════════════════════════════════════════════════════════════════════════════

// ModuleOverviewDTO - состояние одного опубликованного модуля.
type ModuleOverviewDTO struct {
	ModuleID    string     `json:"module_id"`
	Title       string     `json:"title"`
	OrderIndex  int        `json:"order_index"`
	Status      string     `json:"status"`
	Percent     int        `json:"percent"`
	Unlocked    bool       `json:"unlocked"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AchievementDTO - полученное достижение.
type AchievementDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Emoji      string    `json:"emoji"`
	XPAwarded  int       `json:"xp_awarded"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ProgressOverviewDTO - сводка прогресса студента.
type ProgressOverviewDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Программа
	// ─────────────────────────────────────────────────────────────────────────

	UserID           string              `json:"user_id"`
	Modules          []ModuleOverviewDTO `json:"modules"`
	OverallPercent   int                 `json:"overall_percent"`
	CompletedModules int                 `json:"completed_modules"`
	TotalModules     int                 `json:"total_modules"`

	// ─────────────────────────────────────────────────────────────────────────
	// Награды
	// ─────────────────────────────────────────────────────────────────────────

	XP            int              `json:"xp"`
	Level         int              `json:"level"`
	LevelTitle    string           `json:"level_title"`
	LevelProgress int              `json:"level_progress"`
	XPToNextLevel int              `json:"xp_to_next_level"`
	CurrentStreak int              `json:"current_streak"`
	LongestStreak int              `json:"longest_streak"`
	LastActive    string           `json:"last_active,omitempty"`
	Achievements  []AchievementDTO `json:"achievements"`
}

// ProgressOverviewQuery собирает ProgressOverviewDTO.
type ProgressOverviewQuery struct {
	catalog  curriculum.CatalogRepository
	progress curriculum.ProgressRepository
	users    learner.Repository
	clock    timeutil.Clock
}

// NewProgressOverviewQuery создаёт ProgressOverviewQuery.
func NewProgressOverviewQuery(
	catalog curriculum.CatalogRepository,
	progress curriculum.ProgressRepository,
	users learner.Repository,
	clock timeutil.Clock,
) *ProgressOverviewQuery {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ProgressOverviewQuery{catalog: catalog, progress: progress, users: users, clock: clock}
}

// Handle возвращает сводку по студенту.
func (q *ProgressOverviewQuery) Handle(ctx context.Context, userID string) (*ProgressOverviewDTO, error) {
	if userID == "" {
		return nil, shared.NewDomainError("curriculum", "ProgressOverview", shared.ErrInvalidInput, "user id is required")
	}

	user, err := q.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress_overview: %w", err)
	}

	modules, err := q.catalog.ListPublishedModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("progress_overview: modules: %w", err)
	}

	rows, err := q.progress.ListModuleProgress(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress_overview: module progress: %w", err)
	}
	byModule := make(map[curriculum.ModuleID]*curriculum.ModuleProgress, len(rows))
	for _, p := range rows {
		byModule[p.ModuleID] = p
	}

	achievements, err := q.users.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("progress_overview: achievements: %w", err)
	}

	dto := &ProgressOverviewDTO{
		UserID:        user.ID,
		Modules:       make([]ModuleOverviewDTO, 0, len(modules)),
		XP:            user.XP.Int(),
		Level:         user.Level.Int(),
		LevelTitle:    user.Level.Title(),
		LevelProgress: user.LevelProgress(),
		XPToNextLevel: learner.XPToNextLevel(user.XP),
		CurrentStreak: user.CurrentStreak,
		LongestStreak: user.LongestStreak,
		Achievements:  make([]AchievementDTO, 0, len(achievements)),
	}
	if user.LastActiveAt != nil {
		dto.LastActive = timeutil.FormatRelative(*user.LastActiveAt, q.clock.Now())
	}

	// Модули отсортированы по OrderIndex, поэтому предыдущий уже обработан.
	var previous *curriculum.ModuleProgress
	for _, m := range modules {
		p := byModule[m.ID]
		item := ModuleOverviewDTO{
			ModuleID:   string(m.ID),
			Title:      m.Title,
			OrderIndex: m.OrderIndex,
			Status:     string(curriculum.StatusNotStarted),
			Unlocked:   curriculum.IsUnlocked(m.OrderIndex, previous),
		}
		if p != nil {
			item.Status = string(p.Status)
			item.Percent = p.ProgressPercent.Int()
			item.CompletedAt = p.CompletedAt
		}
		dto.Modules = append(dto.Modules, item)
		previous = p
	}

	overall := curriculum.CalculateOverall(userID, rows, len(modules), q.clock.Now())
	dto.OverallPercent = overall.Percent.Int()
	dto.CompletedModules = overall.CompletedModules
	dto.TotalModules = overall.TotalModules

	for _, a := range achievements {
		item := AchievementDTO{
			ID:         string(a.AchievementID),
			XPAwarded:  a.XPAwarded,
			UnlockedAt: a.UnlockedAt,
		}
		if def, ok := learner.GetDefinition(a.AchievementID); ok {
			item.Name = def.Name
			item.Emoji = def.Emoji
		}
		dto.Achievements = append(dto.Achievements, item)
	}

	return dto, nil
}
