package postgres

import (
	"context"
	"strconv"
	"strings"

	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// RelevanceRepository implements relevance.ProfileReader and
// relevance.ProjectReader for PostgreSQL.
type RelevanceRepository struct {
	conn *Connection
}

// NewRelevanceRepository creates a new RelevanceRepository.
func NewRelevanceRepository(conn *Connection) *RelevanceRepository {
	return &RelevanceRepository{conn: conn}
}

// GetProfile returns the questionnaire snapshot of a user.
func (r *RelevanceRepository) GetProfile(ctx context.Context, userID string) (*relevance.Profile, error) {
	query := `
		SELECT user_id, grade_level, favorite_subjects, current_activities, work_style,
			   impact_preference, challenge_level, top_values, top_strengths, career_clusters
		FROM profiles
		WHERE user_id = $1
	`

	var p relevance.Profile
	var workStyle, impact string
	err := r.conn.Pool().QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.GradeLevel, &p.FavoriteSubjects, &p.CurrentActivities, &workStyle,
		&impact, &p.ChallengeLevel, &p.TopValues, &p.TopStrengths, &p.CareerClusters,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, wrapErr("relevance", "GetProfile", err)
	}
	p.WorkStyle = relevance.WorkStyle(workStyle)
	p.ImpactPreference = relevance.ImpactScope(impact)
	return &p, nil
}

// ListProjects returns active candidate projects matching the filter.
func (r *RelevanceRepository) ListProjects(ctx context.Context, filter relevance.ProjectFilter) ([]relevance.Project, error) {
	var (
		conds = []string{"status = 'active'"}
		args  []interface{}
	)
	if filter.Category != "" {
		args = append(args, string(filter.Category))
		conds = append(conds, "category = $"+strconv.Itoa(len(args)))
	}
	if len(filter.IDs) > 0 {
		args = append(args, filter.IDs)
		conds = append(conds, "id = ANY($"+strconv.Itoa(len(args))+")")
	}

	query := `SELECT id, title, description, category FROM projects WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.conn.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("relevance", "ListProjects", err)
	}
	defer rows.Close()

	var projects []relevance.Project
	for rows.Next() {
		var p relevance.Project
		var category string
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &category); err != nil {
			return nil, wrapErr("relevance", "ListProjects", err)
		}
		p.Category = relevance.Category(category)
		projects = append(projects, p)
	}
	return projects, wrapErr("relevance", "ListProjects", rows.Err())
}

var (
	_ relevance.ProfileReader = (*RelevanceRepository)(nil)
	_ relevance.ProjectReader = (*RelevanceRepository)(nil)
)
