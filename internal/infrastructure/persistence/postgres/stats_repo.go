package postgres

import (
	"context"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
)

// StatsRepository implements learner.StatsReader over the project,
// task, time log and completion tables.
type StatsRepository struct {
	conn *Connection
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(conn *Connection) *StatsRepository {
	return &StatsRepository{conn: conn}
}

// ProjectStats aggregates owned projects, finished tasks and logged hours.
func (r *StatsRepository) ProjectStats(ctx context.Context, userID string) (learner.ActivityStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM projects WHERE owner_id = $1),
			(SELECT COUNT(*) FROM projects WHERE owner_id = $1 AND status = 'completed'),
			(SELECT COUNT(*) FROM project_tasks WHERE assignee_id = $1 AND status = 'done'),
			(SELECT COALESCE(SUM(hours), 0)::float8 FROM time_logs WHERE user_id = $1)
	`

	var s learner.ActivityStats
	err := r.conn.Pool().QueryRow(ctx, query, userID).Scan(
		&s.ProjectsCreated, &s.ProjectsCompleted, &s.TasksCompleted, &s.HoursLogged,
	)
	return s, wrapErr("learner", "ProjectStats", err)
}

// CurriculumStats counts completed activities, and completed and total
// published modules.
func (r *StatsRepository) CurriculumStats(ctx context.Context, userID string) (learner.ActivityStats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM activity_completions WHERE user_id = $1 AND completed),
			(SELECT COUNT(*) FROM module_progress mp
				JOIN modules m ON m.id = mp.module_id
				WHERE mp.user_id = $1 AND mp.status = 'COMPLETED' AND m.status = 'published'),
			(SELECT COUNT(*) FROM modules WHERE status = 'published')
	`

	var s learner.ActivityStats
	err := r.conn.Pool().QueryRow(ctx, query, userID).Scan(&s.ActivitiesCompleted, &s.ModulesCompleted, &s.ModulesTotal)
	return s, wrapErr("learner", "CurriculumStats", err)
}

var _ learner.StatsReader = (*StatsRepository)(nil)
