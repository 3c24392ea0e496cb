package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository implements curriculum.CatalogRepository.
type CatalogRepository struct {
	store *Store
}

// NewCatalogRepository creates a catalog view over the store.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{store: store}
}

// GetModule returns a module by ID.
func (r *CatalogRepository) GetModule(_ context.Context, id curriculum.ModuleID) (*curriculum.Module, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	m, ok := r.store.modules[id]
	if !ok {
		return nil, shared.ErrModuleNotFound
	}
	return &m, nil
}

// GetModuleByOrder returns a published module by its order index.
func (r *CatalogRepository) GetModuleByOrder(_ context.Context, orderIndex int) (*curriculum.Module, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, m := range r.store.modules {
		if m.OrderIndex == orderIndex && m.IsPublished() {
			return &m, nil
		}
	}
	return nil, shared.ErrModuleNotFound
}

// ListPublishedModules returns published modules ordered by order index.
func (r *CatalogRepository) ListPublishedModules(_ context.Context) ([]*curriculum.Module, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.publishedModules(), nil
}

// CountPublishedModules returns the number of published modules.
func (r *CatalogRepository) CountPublishedModules(_ context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.publishedModules()), nil
}

// GetActivity returns an activity by ID.
func (r *CatalogRepository) GetActivity(_ context.Context, id curriculum.ActivityID) (*curriculum.Activity, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.activities[id]
	if !ok {
		return nil, shared.ErrActivityNotFound
	}
	return &a, nil
}

// ListActivities returns all activities of a module ordered by order index.
func (r *CatalogRepository) ListActivities(_ context.Context, moduleID curriculum.ModuleID) ([]*curriculum.Activity, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*curriculum.Activity
	for _, a := range r.store.activities {
		if a.ModuleID == moduleID {
			a := a
			result = append(result, &a)
		}
	}
	return curriculum.SortActivities(result), nil
}

func (s *Store) publishedModules() []*curriculum.Module {
	var result []*curriculum.Module
	for _, m := range s.modules {
		if m.IsPublished() {
			m := m
			result = append(result, &m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderIndex < result[j].OrderIndex })
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements curriculum.ProgressRepository.
type ProgressRepository struct {
	store *Store
	inTx  bool
}

// NewProgressRepository creates a progress view over the store.
func NewProgressRepository(store *Store) *ProgressRepository {
	return &ProgressRepository{store: store}
}

// RunInTx executes fn in a single transaction. Nested calls reuse the outer one.
func (r *ProgressRepository) RunInTx(ctx context.Context, fn func(repo curriculum.ProgressRepository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.store.runInTx(ctx, func() error {
		return fn(&ProgressRepository{store: r.store, inTx: true})
	})
}

// UpsertCompletion records a completion and reports whether it is the first.
func (r *ProgressRepository) UpsertCompletion(_ context.Context, c *curriculum.ActivityCompletion) (bool, error) {
	defer r.store.lockTables(r.inTx)()

	byUser := r.store.completions[c.UserID]
	if byUser == nil {
		byUser = make(map[curriculum.ActivityID]curriculum.ActivityCompletion)
		r.store.completions[c.UserID] = byUser
	}

	_, exists := byUser[c.ActivityID]
	stored := *c
	stored.Completed = true
	byUser[c.ActivityID] = stored
	return !exists, nil
}

// CompletedActivities returns the set of completed activities in a module.
func (r *ProgressRepository) CompletedActivities(_ context.Context, userID string, moduleID curriculum.ModuleID) (map[curriculum.ActivityID]bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	completed := make(map[curriculum.ActivityID]bool)
	for id, c := range r.store.completions[userID] {
		if a, ok := r.store.activities[id]; ok && a.ModuleID == moduleID && c.Completed {
			completed[id] = true
		}
	}
	return completed, nil
}

// LockModuleProgress returns progress for a module, creating it if absent.
func (r *ProgressRepository) LockModuleProgress(_ context.Context, userID string, moduleID curriculum.ModuleID, now time.Time) (*curriculum.ModuleProgress, error) {
	defer r.store.lockTables(r.inTx)()

	byUser := r.store.moduleProgress[userID]
	if byUser == nil {
		byUser = make(map[curriculum.ModuleID]curriculum.ModuleProgress)
		r.store.moduleProgress[userID] = byUser
	}
	p, ok := byUser[moduleID]
	if !ok {
		p = *curriculum.NewModuleProgress(userID, moduleID, now)
		byUser[moduleID] = p
	}
	return &p, nil
}

// SaveModuleProgress stores recalculated progress without moving it backwards.
func (r *ProgressRepository) SaveModuleProgress(_ context.Context, p *curriculum.ModuleProgress) error {
	defer r.store.lockTables(r.inTx)()

	byUser := r.store.moduleProgress[p.UserID]
	if byUser == nil {
		byUser = make(map[curriculum.ModuleID]curriculum.ModuleProgress)
		r.store.moduleProgress[p.UserID] = byUser
	}

	next := *p
	if prev, ok := byUser[p.ModuleID]; ok {
		if prev.ProgressPercent > next.ProgressPercent {
			next.ProgressPercent = prev.ProgressPercent
		}
		if prev.Status == curriculum.StatusCompleted {
			next.Status = curriculum.StatusCompleted
		}
		if prev.CompletedAt != nil {
			next.CompletedAt = prev.CompletedAt
		}
		next.StartedAt = prev.StartedAt
	}
	byUser[p.ModuleID] = next
	return nil
}

// GetModuleProgress returns progress for a module or nil if none exists.
func (r *ProgressRepository) GetModuleProgress(_ context.Context, userID string, moduleID curriculum.ModuleID) (*curriculum.ModuleProgress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.moduleProgress[userID][moduleID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// ListModuleProgress returns progress for published modules only.
func (r *ProgressRepository) ListModuleProgress(_ context.Context, userID string) ([]*curriculum.ModuleProgress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*curriculum.ModuleProgress
	for _, m := range r.store.publishedModules() {
		if p, ok := r.store.moduleProgress[userID][m.ID]; ok {
			result = append(result, &p)
		}
	}
	return result, nil
}

// SaveOverallProgress stores the curriculum-wide percentage.
func (r *ProgressRepository) SaveOverallProgress(_ context.Context, o *curriculum.OverallProgress) error {
	defer r.store.lockTables(r.inTx)()
	r.store.overall[o.UserID] = *o
	return nil
}

// GetOverallProgress returns the stored overall progress or nil.
func (r *ProgressRepository) GetOverallProgress(_ context.Context, userID string) (*curriculum.OverallProgress, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	o, ok := r.store.overall[userID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

var (
	_ curriculum.CatalogRepository  = (*CatalogRepository)(nil)
	_ curriculum.ProgressRepository = (*ProgressRepository)(nil)
)
