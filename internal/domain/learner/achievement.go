package learner

import (
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATALOGUE
// ══════════════════════════════════════════════════════════════════════════════

// AchievementID - идентификатор достижения из каталога.
type AchievementID string

// String возвращает строковое представление.
func (a AchievementID) String() string {
	return string(a)
}

const (
	// AchievementFirstProject - создан первый проект.
	AchievementFirstProject AchievementID = "first-project"
	// AchievementFirstCompletedProject - завершён первый проект.
	AchievementFirstCompletedProject AchievementID = "first-completed-project"
	// AchievementTenTasks - выполнено 10 задач.
	AchievementTenTasks AchievementID = "10-tasks"
	// AchievementFiftyHours - залогировано 50 часов.
	AchievementFiftyHours AchievementID = "50-hours-logged"
	// AchievementStreak7 - 7 дней подряд.
	AchievementStreak7 AchievementID = "7-day-streak"
	// AchievementStreak30 - 30 дней подряд.
	AchievementStreak30 AchievementID = "30-day-streak"
	// AchievementLevel5 - достигнут 5 уровень.
	AchievementLevel5 AchievementID = "level-5"
	// AchievementLevel10 - достигнут 10 уровень.
	AchievementLevel10 AchievementID = "level-10"
	// AchievementLevel15 - достигнут 15 уровень.
	AchievementLevel15 AchievementID = "level-15"
	// AchievementLevel20 - достигнут 20 уровень.
	AchievementLevel20 AchievementID = "level-20"
	// AchievementFirstActivity - выполнена первая активность.
	AchievementFirstActivity AchievementID = "first-activity"
	// AchievementFirstModule - пройден первый модуль.
	AchievementFirstModule AchievementID = "first-module"
	// AchievementCurriculumComplete - пройдена вся программа.
	AchievementCurriculumComplete AchievementID = "curriculum-complete"
)

// Category - тег категории достижения.
type Category string

const (
	CategoryProjects   Category = "projects"
	CategoryTasks      Category = "tasks"
	CategoryTime       Category = "time"
	CategoryStreak     Category = "streak"
	CategoryLevel      Category = "level"
	CategoryCurriculum Category = "curriculum"
)

// Definition описывает достижение.
type Definition struct {
	ID          AchievementID
	Name        string
	Description string
	XPReward    int
	Category    Category
	Emoji       string
}

var definitions = []Definition{
	{AchievementFirstProject, "Первый проект", "Создан первый проект", 50, CategoryProjects, "🚀"},
	{AchievementFirstCompletedProject, "Доведено до конца", "Завершён первый проект", 100, CategoryProjects, "🏁"},
	{AchievementTenTasks, "Десятка", "Выполнено 10 задач", 75, CategoryTasks, "✅"},
	{AchievementFiftyHours, "Упорство", "Залогировано 50 часов работы", 150, CategoryTime, "⏱️"},
	{AchievementStreak7, "Неделя огня", "7 дней подряд", 100, CategoryStreak, "🔥"},
	{AchievementStreak30, "Железная воля", "30 дней подряд", 500, CategoryStreak, "💪"},
	{AchievementLevel5, "Подмастерье", "Достигнут 5 уровень", 100, CategoryLevel, "📚"},
	{AchievementLevel10, "Мастер", "Достигнут 10 уровень", 250, CategoryLevel, "🧙"},
	{AchievementLevel15, "Наставник", "Достигнут 15 уровень", 400, CategoryLevel, "🎓"},
	{AchievementLevel20, "Легенда", "Достигнут 20 уровень", 1000, CategoryLevel, "👑"},
	{AchievementFirstActivity, "Первый шаг", "Выполнена первая активность", 25, CategoryCurriculum, "👣"},
	{AchievementFirstModule, "Модуль закрыт", "Пройден первый модуль", 100, CategoryCurriculum, "📦"},
	{AchievementCurriculumComplete, "Выпускник", "Пройдена вся программа", 500, CategoryCurriculum, "🎉"},
}

var definitionsByID = func() map[AchievementID]Definition {
	m := make(map[AchievementID]Definition, len(definitions))
	for _, d := range definitions {
		m[d.ID] = d
	}
	return m
}()

// Definitions возвращает копию каталога достижений.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// GetDefinition возвращает определение достижения по ID.
func GetDefinition(id AchievementID) (Definition, bool) {
	d, ok := definitionsByID[id]
	return d, ok
}

// LevelMilestone возвращает достижение за уровень 5, 10, 15 или 20.
func LevelMilestone(level shared.Level) (AchievementID, bool) {
	switch level {
	case 5:
		return AchievementLevel5, true
	case 10:
		return AchievementLevel10, true
	case 15:
		return AchievementLevel15, true
	case 20:
		return AchievementLevel20, true
	}
	return "", false
}

// LevelMilestonesUpTo возвращает вехи всех уровней от 1 до level включительно.
func LevelMilestonesUpTo(level shared.Level) []AchievementID {
	var ids []AchievementID
	for l := shared.Level(1); l <= level; l++ {
		if id, ok := LevelMilestone(l); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// StreakMilestone возвращает достижение за серию ровно 7 или 30 дней.
func StreakMilestone(streak int) (AchievementID, bool) {
	switch streak {
	case 7:
		return AchievementStreak7, true
	case 30:
		return AchievementStreak30, true
	}
	return "", false
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Achievement - полученное достижение. Неизменяемо после создания,
// пара (UserID, AchievementID) уникальна.
type Achievement struct {
	// ID - идентификатор записи.
	ID string

	// UserID - идентификатор студента.
	UserID string

	// AchievementID - достижение из каталога.
	AchievementID AchievementID

	// XPAwarded - награда из определения на момент получения.
	XPAwarded int

	// Metadata - дополнительные данные (например, streak).
	Metadata map[string]interface{}

	// UnlockedAt - когда получено.
	UnlockedAt time.Time
}

// NewAchievement создаёт запись о достижении по определению.
func NewAchievement(id, userID string, def Definition, metadata map[string]interface{}, now time.Time) *Achievement {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &Achievement{
		ID:            id,
		UserID:        userID,
		AchievementID: def.ID,
		XPAwarded:     def.XPReward,
		Metadata:      metadata,
		UnlockedAt:    now,
	}
}
