package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements curriculum.CatalogRepository for PostgreSQL.
type CatalogRepository struct {
	conn *Connection
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection) *CatalogRepository {
	return &CatalogRepository{conn: conn}
}

const moduleColumns = `id, title, order_index, status`

// GetModule returns a module by ID.
func (r *CatalogRepository) GetModule(ctx context.Context, id curriculum.ModuleID) (*curriculum.Module, error) {
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = $1`, string(id))
	m, err := scanModule(row)
	if IsNoRows(err) {
		return nil, shared.ErrModuleNotFound
	}
	return m, wrapErr("curriculum", "GetModule", err)
}

// GetModuleByOrder returns a published module by its order index.
func (r *CatalogRepository) GetModuleByOrder(ctx context.Context, orderIndex int) (*curriculum.Module, error) {
	row := r.conn.Pool().QueryRow(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE order_index = $1 AND status = 'published'`, orderIndex)
	m, err := scanModule(row)
	if IsNoRows(err) {
		return nil, shared.ErrModuleNotFound
	}
	return m, wrapErr("curriculum", "GetModuleByOrder", err)
}

// ListPublishedModules returns published modules ordered by order index.
func (r *CatalogRepository) ListPublishedModules(ctx context.Context) ([]*curriculum.Module, error) {
	rows, err := r.conn.Pool().Query(ctx,
		`SELECT `+moduleColumns+` FROM modules WHERE status = 'published' ORDER BY order_index`)
	if err != nil {
		return nil, wrapErr("curriculum", "ListPublishedModules", err)
	}
	defer rows.Close()

	var modules []*curriculum.Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, wrapErr("curriculum", "ListPublishedModules", err)
		}
		modules = append(modules, m)
	}
	return modules, wrapErr("curriculum", "ListPublishedModules", rows.Err())
}

// CountPublishedModules returns the number of published modules.
func (r *CatalogRepository) CountPublishedModules(ctx context.Context) (int, error) {
	var n int
	err := r.conn.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM modules WHERE status = 'published'`).Scan(&n)
	return n, wrapErr("curriculum", "CountPublishedModules", err)
}

const activityColumns = `id, module_id, title, order_index, required_for_completion`

// GetActivity returns an activity by ID.
func (r *CatalogRepository) GetActivity(ctx context.Context, id curriculum.ActivityID) (*curriculum.Activity, error) {
	row := r.conn.Pool().QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = $1`, string(id))
	a, err := scanActivity(row)
	if IsNoRows(err) {
		return nil, shared.ErrActivityNotFound
	}
	return a, wrapErr("curriculum", "GetActivity", err)
}

// ListActivities returns all activities of a module ordered by order index.
func (r *CatalogRepository) ListActivities(ctx context.Context, moduleID curriculum.ModuleID) ([]*curriculum.Activity, error) {
	return listActivities(ctx, r.conn.Pool(), moduleID)
}

func listActivities(ctx context.Context, q Querier, moduleID curriculum.ModuleID) ([]*curriculum.Activity, error) {
	rows, err := q.Query(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE module_id = $1 ORDER BY order_index`, string(moduleID))
	if err != nil {
		return nil, wrapErr("curriculum", "ListActivities", err)
	}
	defer rows.Close()

	var activities []*curriculum.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, wrapErr("curriculum", "ListActivities", err)
		}
		activities = append(activities, a)
	}
	return activities, wrapErr("curriculum", "ListActivities", rows.Err())
}

func scanModule(row pgx.Row) (*curriculum.Module, error) {
	var m curriculum.Module
	var id, status string
	if err := row.Scan(&id, &m.Title, &m.OrderIndex, &status); err != nil {
		return nil, err
	}
	m.ID = curriculum.ModuleID(id)
	m.Status = curriculum.PublicationStatus(status)
	return &m, nil
}

func scanActivity(row pgx.Row) (*curriculum.Activity, error) {
	var a curriculum.Activity
	var id, moduleID string
	if err := row.Scan(&id, &moduleID, &a.Title, &a.OrderIndex, &a.RequiredForCompletion); err != nil {
		return nil, err
	}
	a.ID = curriculum.ActivityID(id)
	a.ModuleID = curriculum.ModuleID(moduleID)
	return &a, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements curriculum.ProgressRepository for PostgreSQL.
// Outside RunInTx every call runs on the pool; inside, on the transaction.
type ProgressRepository struct {
	conn *Connection
	q    Querier
	inTx bool
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn, q: conn.Pool()}
}

// RunInTx executes fn in a single transaction. Nested calls reuse the outer one.
func (r *ProgressRepository) RunInTx(ctx context.Context, fn func(repo curriculum.ProgressRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&ProgressRepository{conn: r.conn, q: tx, inTx: true})
	})
	return wrapErr("curriculum", "RunInTx", err)
}

// UpsertCompletion records a completion. The completed flag is never cleared;
// a resubmission refreshes data, digest and time. xmax = 0 only for a freshly
// inserted row, which tells a first completion from a repeat.
func (r *ProgressRepository) UpsertCompletion(ctx context.Context, c *curriculum.ActivityCompletion) (bool, error) {
	query := `
		INSERT INTO activity_completions (user_id, activity_id, completed, completed_at, data, data_digest)
		VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (user_id, activity_id) DO UPDATE SET
			completed = TRUE,
			completed_at = EXCLUDED.completed_at,
			data = EXCLUDED.data,
			data_digest = EXCLUDED.data_digest
		RETURNING (xmax = 0)
	`

	var inserted bool
	err := r.q.QueryRow(ctx, query,
		c.UserID, string(c.ActivityID), c.CompletedAt, []byte(c.Data), c.DataDigest,
	).Scan(&inserted)
	if err != nil {
		return false, wrapErr("curriculum", "UpsertCompletion", err)
	}
	return inserted, nil
}

// CompletedActivities returns the set of completed activities in a module.
func (r *ProgressRepository) CompletedActivities(ctx context.Context, userID string, moduleID curriculum.ModuleID) (map[curriculum.ActivityID]bool, error) {
	query := `
		SELECT ac.activity_id
		FROM activity_completions ac
		JOIN activities a ON a.id = ac.activity_id
		WHERE ac.user_id = $1 AND a.module_id = $2 AND ac.completed
	`

	rows, err := r.q.Query(ctx, query, userID, string(moduleID))
	if err != nil {
		return nil, wrapErr("curriculum", "CompletedActivities", err)
	}
	defer rows.Close()

	completed := make(map[curriculum.ActivityID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("curriculum", "CompletedActivities", err)
		}
		completed[curriculum.ActivityID(id)] = true
	}
	return completed, wrapErr("curriculum", "CompletedActivities", rows.Err())
}

const progressColumns = `user_id, module_id, progress_percent, status, started_at, completed_at, updated_at`

// LockModuleProgress creates the row if absent and locks it until commit.
func (r *ProgressRepository) LockModuleProgress(ctx context.Context, userID string, moduleID curriculum.ModuleID, now time.Time) (*curriculum.ModuleProgress, error) {
	_, err := r.q.Exec(ctx, `
		INSERT INTO module_progress (user_id, module_id, progress_percent, status, started_at, updated_at)
		VALUES ($1, $2, 0, 'NOT_STARTED', $3, $3)
		ON CONFLICT (user_id, module_id) DO NOTHING
	`, userID, string(moduleID), now)
	if err != nil {
		return nil, wrapErr("curriculum", "LockModuleProgress", err)
	}

	row := r.q.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM module_progress WHERE user_id = $1 AND module_id = $2 FOR UPDATE`,
		userID, string(moduleID))
	p, err := scanModuleProgress(row)
	return p, wrapErr("curriculum", "LockModuleProgress", err)
}

// SaveModuleProgress stores recalculated progress. GREATEST keeps the
// stored percent from moving backwards under a stale writer.
func (r *ProgressRepository) SaveModuleProgress(ctx context.Context, p *curriculum.ModuleProgress) error {
	query := `
		INSERT INTO module_progress (user_id, module_id, progress_percent, status, started_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, module_id) DO UPDATE SET
			progress_percent = GREATEST(module_progress.progress_percent, EXCLUDED.progress_percent),
			status = CASE WHEN module_progress.status = 'COMPLETED' THEN 'COMPLETED' ELSE EXCLUDED.status END,
			completed_at = COALESCE(module_progress.completed_at, EXCLUDED.completed_at),
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.Exec(ctx, query,
		p.UserID, string(p.ModuleID), p.ProgressPercent.Int(), string(p.Status),
		p.StartedAt, p.CompletedAt, p.UpdatedAt,
	)
	return wrapErr("curriculum", "SaveModuleProgress", err)
}

// GetModuleProgress returns progress for a module or nil if none exists.
func (r *ProgressRepository) GetModuleProgress(ctx context.Context, userID string, moduleID curriculum.ModuleID) (*curriculum.ModuleProgress, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM module_progress WHERE user_id = $1 AND module_id = $2`,
		userID, string(moduleID))
	p, err := scanModuleProgress(row)
	if IsNoRows(err) {
		return nil, nil
	}
	return p, wrapErr("curriculum", "GetModuleProgress", err)
}

// ListModuleProgress returns progress rows for published modules only.
func (r *ProgressRepository) ListModuleProgress(ctx context.Context, userID string) ([]*curriculum.ModuleProgress, error) {
	query := `
		SELECT mp.user_id, mp.module_id, mp.progress_percent, mp.status, mp.started_at, mp.completed_at, mp.updated_at
		FROM module_progress mp
		JOIN modules m ON m.id = mp.module_id
		WHERE mp.user_id = $1 AND m.status = 'published'
		ORDER BY m.order_index
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapErr("curriculum", "ListModuleProgress", err)
	}
	defer rows.Close()

	var result []*curriculum.ModuleProgress
	for rows.Next() {
		p, err := scanModuleProgress(rows)
		if err != nil {
			return nil, wrapErr("curriculum", "ListModuleProgress", err)
		}
		result = append(result, p)
	}
	return result, wrapErr("curriculum", "ListModuleProgress", rows.Err())
}

// SaveOverallProgress stores the curriculum-wide percentage.
func (r *ProgressRepository) SaveOverallProgress(ctx context.Context, o *curriculum.OverallProgress) error {
	query := `
		INSERT INTO curriculum_progress (user_id, percent, completed_modules, total_modules, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			percent = EXCLUDED.percent,
			completed_modules = EXCLUDED.completed_modules,
			total_modules = EXCLUDED.total_modules,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.Exec(ctx, query, o.UserID, o.Percent.Int(), o.CompletedModules, o.TotalModules, o.UpdatedAt)
	return wrapErr("curriculum", "SaveOverallProgress", err)
}

// GetOverallProgress returns the stored overall progress or nil.
func (r *ProgressRepository) GetOverallProgress(ctx context.Context, userID string) (*curriculum.OverallProgress, error) {
	var o curriculum.OverallProgress
	var percent int
	err := r.q.QueryRow(ctx, `
		SELECT user_id, percent, completed_modules, total_modules, updated_at
		FROM curriculum_progress WHERE user_id = $1
	`, userID).Scan(&o.UserID, &percent, &o.CompletedModules, &o.TotalModules, &o.UpdatedAt)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("curriculum", "GetOverallProgress", err)
	}
	o.Percent = shared.Percent(percent)
	return &o, nil
}

func scanModuleProgress(row pgx.Row) (*curriculum.ModuleProgress, error) {
	var p curriculum.ModuleProgress
	var moduleID, status string
	var percent int
	if err := row.Scan(&p.UserID, &moduleID, &percent, &status, &p.StartedAt, &p.CompletedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ModuleID = curriculum.ModuleID(moduleID)
	p.ProgressPercent = shared.Percent(percent)
	p.Status = curriculum.ProgressStatus(status)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("module_progress %s/%s: %w", p.UserID, moduleID, err)
	}
	return &p, nil
}

var (
	_ curriculum.CatalogRepository  = (*CatalogRepository)(nil)
	_ curriculum.ProgressRepository = (*ProgressRepository)(nil)
)
