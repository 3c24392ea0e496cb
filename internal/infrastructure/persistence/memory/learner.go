package memory

import (
	"context"
	"maps"
	"sort"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository implements learner.Repository.
type LearnerRepository struct {
	store *Store
	inTx  bool
}

// NewLearnerRepository creates a learner view over the store.
func NewLearnerRepository(store *Store) *LearnerRepository {
	return &LearnerRepository{store: store}
}

// RunInTx executes fn in a single transaction. Nested calls reuse the outer one.
func (r *LearnerRepository) RunInTx(ctx context.Context, fn func(repo learner.Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.store.runInTx(ctx, func() error {
		return fn(&LearnerRepository{store: r.store, inTx: true})
	})
}

// CreateUser inserts the user if it does not exist yet.
func (r *LearnerRepository) CreateUser(_ context.Context, u *learner.User) error {
	defer r.store.lockTables(r.inTx)()

	if _, ok := r.store.users[u.ID]; !ok {
		r.store.users[u.ID] = *u
	}
	return nil
}

// GetUser returns a user by ID.
func (r *LearnerRepository) GetUser(_ context.Context, id string) (*learner.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	u, ok := r.store.users[id]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	return &u, nil
}

// LockUser returns a user. Inside RunInTx the store-wide transaction lock is already held.
func (r *LearnerRepository) LockUser(ctx context.Context, id string) (*learner.User, error) {
	return r.GetUser(ctx, id)
}

// SaveUser writes all counters at once.
func (r *LearnerRepository) SaveUser(_ context.Context, u *learner.User) error {
	defer r.store.lockTables(r.inTx)()

	if _, ok := r.store.users[u.ID]; !ok {
		return shared.ErrUserNotFound
	}
	r.store.users[u.ID] = *u
	return nil
}

// HasAchievement reports whether the user already holds the achievement.
func (r *LearnerRepository) HasAchievement(_ context.Context, userID string, id learner.AchievementID) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	_, ok := r.store.achievements[userID][id]
	return ok, nil
}

// CreateAchievement inserts an achievement, enforcing (user, achievement) uniqueness.
func (r *LearnerRepository) CreateAchievement(_ context.Context, a *learner.Achievement) error {
	defer r.store.lockTables(r.inTx)()

	byUser := r.store.achievements[a.UserID]
	if byUser == nil {
		byUser = make(map[learner.AchievementID]learner.Achievement)
		r.store.achievements[a.UserID] = byUser
	}
	if _, ok := byUser[a.AchievementID]; ok {
		return shared.ErrAchievementExists
	}

	stored := *a
	stored.Metadata = maps.Clone(a.Metadata)
	byUser[a.AchievementID] = stored
	return nil
}

// ListAchievements returns a user's achievements in unlock order.
func (r *LearnerRepository) ListAchievements(_ context.Context, userID string) ([]*learner.Achievement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]*learner.Achievement, 0, len(r.store.achievements[userID]))
	for _, a := range r.store.achievements[userID] {
		a := a
		result = append(result, &a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UnlockedAt.Equal(result[j].UnlockedAt) {
			return result[i].UnlockedAt.Before(result[j].UnlockedAt)
		}
		return result[i].AchievementID < result[j].AchievementID
	})
	return result, nil
}

// ListActiveUserIDs returns users active since the given time, one page at a time.
func (r *LearnerRepository) ListActiveUserIDs(_ context.Context, since time.Time, page shared.Pagination) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ids []string
	for id, u := range r.store.users {
		if u.LastActiveAt != nil && !u.LastActiveAt.Before(since) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	offset := page.Offset()
	if offset >= len(ids) {
		return nil, nil
	}
	end := min(offset+page.Limit(), len(ids))
	return ids[offset:end], nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS READER
// ══════════════════════════════════════════════════════════════════════════════

// StatsReader implements learner.StatsReader.
type StatsReader struct {
	store *Store
}

// NewStatsReader creates a stats view over the store.
func NewStatsReader(store *Store) *StatsReader {
	return &StatsReader{store: store}
}

// ProjectStats returns the seeded project-side aggregates.
func (r *StatsReader) ProjectStats(_ context.Context, userID string) (learner.ActivityStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.projectStats[userID], nil
}

// CurriculumStats counts completed activities, and completed and total
// published modules.
func (r *StatsReader) CurriculumStats(_ context.Context, userID string) (learner.ActivityStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var s learner.ActivityStats
	for _, c := range r.store.completions[userID] {
		if c.Completed {
			s.ActivitiesCompleted++
		}
	}
	progress := r.store.moduleProgress[userID]
	for _, m := range r.store.publishedModules() {
		s.ModulesTotal++
		if p, ok := progress[m.ID]; ok && p.Status == curriculum.StatusCompleted {
			s.ModulesCompleted++
		}
	}
	return s, nil
}

var (
	_ learner.Repository  = (*LearnerRepository)(nil)
	_ learner.StatsReader = (*StatsReader)(nil)
)
