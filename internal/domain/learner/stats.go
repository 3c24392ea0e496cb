package learner

import "context"

// ActivityStats - агрегаты, по которым проверяются достижения.
type ActivityStats struct {
	ProjectsCreated     int
	ProjectsCompleted   int
	TasksCompleted      int
	HoursLogged         float64
	ActivitiesCompleted int

	// ModulesCompleted и ModulesTotal считаются только по опубликованным модулям.
	ModulesCompleted int
	ModulesTotal     int
}

// StatsReader читает агрегаты студента из внешних таблиц (проекты, задачи,
// журнал времени) и из журнала выполнений.
type StatsReader interface {
	// ProjectStats возвращает ProjectsCreated, ProjectsCompleted, TasksCompleted и HoursLogged.
	ProjectStats(ctx context.Context, userID string) (ActivityStats, error)

	// CurriculumStats возвращает ActivitiesCompleted, ModulesCompleted и ModulesTotal.
	CurriculumStats(ctx context.Context, userID string) (ActivityStats, error)
}

// Merge объединяет непустые поля двух срезов статистики.
func (s ActivityStats) Merge(other ActivityStats) ActivityStats {
	return ActivityStats{
		ProjectsCreated:     max(s.ProjectsCreated, other.ProjectsCreated),
		ProjectsCompleted:   max(s.ProjectsCompleted, other.ProjectsCompleted),
		TasksCompleted:      max(s.TasksCompleted, other.TasksCompleted),
		HoursLogged:         max(s.HoursLogged, other.HoursLogged),
		ActivitiesCompleted: max(s.ActivitiesCompleted, other.ActivitiesCompleted),
		ModulesCompleted:    max(s.ModulesCompleted, other.ModulesCompleted),
		ModulesTotal:        max(s.ModulesTotal, other.ModulesTotal),
	}
}

// rule - условие получения достижения по агрегатам.
type rule struct {
	id        AchievementID
	qualifies func(ActivityStats) bool
}

var rules = []rule{
	{AchievementFirstProject, func(s ActivityStats) bool { return s.ProjectsCreated >= 1 }},
	{AchievementFirstCompletedProject, func(s ActivityStats) bool { return s.ProjectsCompleted >= 1 }},
	{AchievementTenTasks, func(s ActivityStats) bool { return s.TasksCompleted >= 10 }},
	{AchievementFiftyHours, func(s ActivityStats) bool { return s.HoursLogged >= 50 }},
	{AchievementFirstActivity, func(s ActivityStats) bool { return s.ActivitiesCompleted >= 1 }},
	{AchievementFirstModule, func(s ActivityStats) bool { return s.ModulesCompleted >= 1 }},
	{AchievementCurriculumComplete, func(s ActivityStats) bool {
		return s.ModulesTotal > 0 && s.ModulesCompleted >= s.ModulesTotal
	}},
}

// QualifyingAchievements возвращает достижения, условия которых выполнены.
// Серии и уровни сюда не входят: серии проверяются в момент изменения,
// уровни - по текущему уровню студента (LevelMilestonesUpTo).
func QualifyingAchievements(stats ActivityStats) []AchievementID {
	var ids []AchievementID
	for _, r := range rules {
		if r.qualifies(stats) {
			ids = append(ids, r.id)
		}
	}
	return ids
}
