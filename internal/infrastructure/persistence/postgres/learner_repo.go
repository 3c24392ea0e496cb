package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository implements learner.Repository for PostgreSQL.
type LearnerRepository struct {
	conn *Connection
	q    Querier
	inTx bool
}

// NewLearnerRepository creates a new LearnerRepository.
func NewLearnerRepository(conn *Connection) *LearnerRepository {
	return &LearnerRepository{conn: conn, q: conn.Pool()}
}

// RunInTx executes fn in a single transaction. Nested calls reuse the outer one.
func (r *LearnerRepository) RunInTx(ctx context.Context, fn func(repo learner.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(&LearnerRepository{conn: r.conn, q: tx, inTx: true})
	})
	return wrapErr("learner", "RunInTx", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Users
// ─────────────────────────────────────────────────────────────────────────────

const userColumns = `id, xp, level, current_streak, longest_streak, last_active_at, created_at, updated_at`

// CreateUser inserts the user if it does not exist yet.
func (r *LearnerRepository) CreateUser(ctx context.Context, u *learner.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.q.Exec(ctx, query,
		u.ID, u.XP.Int(), u.Level.Int(), u.CurrentStreak, u.LongestStreak,
		u.LastActiveAt, u.CreatedAt, u.UpdatedAt,
	)
	return wrapErr("learner", "CreateUser", err)
}

// GetUser returns a user by ID.
func (r *LearnerRepository) GetUser(ctx context.Context, id string) (*learner.User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	return u, wrapErr("learner", "GetUser", err)
}

// LockUser returns a user and holds a row lock until the transaction ends.
func (r *LearnerRepository) LockUser(ctx context.Context, id string) (*learner.User, error) {
	row := r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	u, err := scanUser(row)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	return u, wrapErr("learner", "LockUser", err)
}

// SaveUser writes all counters in one statement.
func (r *LearnerRepository) SaveUser(ctx context.Context, u *learner.User) error {
	query := `
		UPDATE users SET
			xp = $1,
			level = $2,
			current_streak = $3,
			longest_streak = $4,
			last_active_at = $5,
			updated_at = $6
		WHERE id = $7
	`

	tag, err := r.q.Exec(ctx, query,
		u.XP.Int(), u.Level.Int(), u.CurrentStreak, u.LongestStreak, u.LastActiveAt, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return wrapErr("learner", "SaveUser", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrUserNotFound
	}
	return nil
}

// ListActiveUserIDs returns users active since the given time, one page at a time.
func (r *LearnerRepository) ListActiveUserIDs(ctx context.Context, since time.Time, page shared.Pagination) ([]string, error) {
	query := `
		SELECT id FROM users
		WHERE last_active_at >= $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, since, page.Limit(), page.Offset())
	if err != nil {
		return nil, wrapErr("learner", "ListActiveUserIDs", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("learner", "ListActiveUserIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, wrapErr("learner", "ListActiveUserIDs", rows.Err())
}

func scanUser(row pgx.Row) (*learner.User, error) {
	var u learner.User
	var xp, level int
	if err := row.Scan(&u.ID, &xp, &level, &u.CurrentStreak, &u.LongestStreak,
		&u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.XP = shared.XP(xp)
	u.Level = shared.Level(level)
	return &u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Achievements
// ─────────────────────────────────────────────────────────────────────────────

// HasAchievement reports whether the user already holds the achievement.
func (r *LearnerRepository) HasAchievement(ctx context.Context, userID string, id learner.AchievementID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM achievements WHERE user_id = $1 AND achievement_id = $2)`,
		userID, string(id),
	).Scan(&exists)
	return exists, wrapErr("learner", "HasAchievement", err)
}

// CreateAchievement inserts an achievement. The (user_id, achievement_id)
// unique constraint turns a concurrent duplicate into ErrAchievementExists.
func (r *LearnerRepository) CreateAchievement(ctx context.Context, a *learner.Achievement) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal achievement metadata: %w", err)
	}

	query := `
		INSERT INTO achievements (id, user_id, achievement_id, xp_awarded, metadata, unlocked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	tag, err := r.q.Exec(ctx, query, a.ID, a.UserID, string(a.AchievementID), a.XPAwarded, metadata, a.UnlockedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrAchievementExists
		}
		return wrapErr("learner", "CreateAchievement", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAchievementExists
	}
	return nil
}

// ListAchievements returns a user's achievements in unlock order.
func (r *LearnerRepository) ListAchievements(ctx context.Context, userID string) ([]*learner.Achievement, error) {
	query := `
		SELECT id, user_id, achievement_id, xp_awarded, metadata, unlocked_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at, achievement_id
	`

	rows, err := r.q.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapErr("learner", "ListAchievements", err)
	}
	defer rows.Close()

	var result []*learner.Achievement
	for rows.Next() {
		var a learner.Achievement
		var achievementID string
		var metadata []byte
		if err := rows.Scan(&a.ID, &a.UserID, &achievementID, &a.XPAwarded, &metadata, &a.UnlockedAt); err != nil {
			return nil, wrapErr("learner", "ListAchievements", err)
		}
		a.AchievementID = learner.AchievementID(achievementID)
		a.Metadata = map[string]interface{}{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal achievement metadata: %w", err)
			}
		}
		result = append(result, &a)
	}
	return result, wrapErr("learner", "ListAchievements", rows.Err())
}

var _ learner.Repository = (*LearnerRepository)(nil)
