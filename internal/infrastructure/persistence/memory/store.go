// Package memory implements an in-process store for every repository of the
// engine. It backs the "memory" database driver and the application tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/notification"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
)

// Store keeps all state in maps guarded by one mutex. Transactions are
// serialized by txMu, which plays the role of a row lock, and roll back by
// restoring a snapshot of the mutable tables. Repository writes made outside
// a transaction also take txMu, so a rollback never discards them.
//
// The catalog and external tables are not part of the snapshot. Seed and the
// Add/Put/Set helpers are meant for setup before the store is shared.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	// Catalog, read-only after seeding.
	modules    map[curriculum.ModuleID]curriculum.Module
	activities map[curriculum.ActivityID]curriculum.Activity

	// Mutable tables.
	users          map[string]learner.User
	achievements   map[string]map[learner.AchievementID]learner.Achievement
	completions    map[string]map[curriculum.ActivityID]curriculum.ActivityCompletion
	moduleProgress map[string]map[curriculum.ModuleID]curriculum.ModuleProgress
	overall        map[string]curriculum.OverallProgress

	// External tables.
	profiles      map[string]relevance.Profile
	projects      []relevance.Project
	projectStats  map[string]learner.ActivityStats
	notifications []notification.Notification
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		modules:        make(map[curriculum.ModuleID]curriculum.Module),
		activities:     make(map[curriculum.ActivityID]curriculum.Activity),
		users:          make(map[string]learner.User),
		achievements:   make(map[string]map[learner.AchievementID]learner.Achievement),
		completions:    make(map[string]map[curriculum.ActivityID]curriculum.ActivityCompletion),
		moduleProgress: make(map[string]map[curriculum.ModuleID]curriculum.ModuleProgress),
		overall:        make(map[string]curriculum.OverallProgress),
		profiles:       make(map[string]relevance.Profile),
		projectStats:   make(map[string]learner.ActivityStats),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Seeding
// ─────────────────────────────────────────────────────────────────────────────

// AddModule adds a module to the catalog.
func (s *Store) AddModule(m curriculum.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules[m.ID] = m
}

// AddActivity adds an activity to the catalog.
func (s *Store) AddActivity(a curriculum.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities[a.ID] = a
}

// PutProfile stores a questionnaire profile.
func (s *Store) PutProfile(p relevance.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

// AddProject adds a candidate project.
func (s *Store) AddProject(p relevance.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects = append(s.projects, p)
}

// SetProjectStats sets the project-side aggregates of a user.
func (s *Store) SetProjectStats(userID string, stats learner.ActivityStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projectStats[userID] = stats
}

// ─────────────────────────────────────────────────────────────────────────────
// Transactions
// ─────────────────────────────────────────────────────────────────────────────

type snapshot struct {
	users          map[string]learner.User
	achievements   map[string]map[learner.AchievementID]learner.Achievement
	completions    map[string]map[curriculum.ActivityID]curriculum.ActivityCompletion
	moduleProgress map[string]map[curriculum.ModuleID]curriculum.ModuleProgress
	overall        map[string]curriculum.OverallProgress
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		users:          maps.Clone(s.users),
		achievements:   cloneNested(s.achievements),
		completions:    cloneNested(s.completions),
		moduleProgress: cloneNested(s.moduleProgress),
		overall:        maps.Clone(s.overall),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.achievements = snap.achievements
	s.completions = snap.completions
	s.moduleProgress = snap.moduleProgress
	s.overall = snap.overall
}

// runInTx serializes fn against other transactions and restores the
// snapshot when fn fails or panics.
func (s *Store) runInTx(ctx context.Context, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.restore(snap)
			panic(p)
		}
		if err != nil {
			s.restore(snap)
		}
	}()
	return fn()
}

// lockTables locks the tables for a repository write. Outside a transaction
// the write also waits for txMu.
func (s *Store) lockTables(inTx bool) (unlock func()) {
	if !inTx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !inTx {
			s.txMu.Unlock()
		}
	}
}

func cloneNested[K comparable, V any, M ~map[K]V](m map[string]M) map[string]M {
	out := make(map[string]M, len(m))
	for k, inner := range m {
		out[k] = maps.Clone(inner)
	}
	return out
}

// Seed loads a catalog into the store.
func (s *Store) Seed(catalog *tuning.Catalog) {
	for _, m := range catalog.Modules {
		s.AddModule(m)
	}
	for _, a := range catalog.Activities {
		s.AddActivity(a)
	}
	for _, p := range catalog.Projects {
		s.AddProject(p)
	}
}
