package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	catalog  *memory.CatalogRepository
	progress *memory.ProgressRepository
	users    *memory.LearnerRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog, err := tuning.LoadCatalog("")
	require.NoError(t, err)
	store := memory.NewStore()
	store.Seed(catalog)

	f := &fixture{
		store:    store,
		catalog:  memory.NewCatalogRepository(store),
		progress: memory.NewProgressRepository(store),
		users:    memory.NewLearnerRepository(store),
	}
	u, err := learner.NewUser("student-1", now)
	require.NoError(t, err)
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return f
}

// complete records completions and recalculates the module the way the
// completion command does.
func (f *fixture) complete(t *testing.T, moduleID curriculum.ModuleID, ids ...curriculum.ActivityID) {
	t.Helper()
	ctx := context.Background()

	for _, id := range ids {
		_, err := f.progress.UpsertCompletion(ctx, curriculum.NewActivityCompletion("student-1", id, nil, nil, now))
		require.NoError(t, err)
	}

	activities, err := f.catalog.ListActivities(ctx, moduleID)
	require.NoError(t, err)
	required := curriculum.RequiredActivities(activities)
	completed, err := f.progress.CompletedActivities(ctx, "student-1", moduleID)
	require.NoError(t, err)

	p, err := f.progress.LockModuleProgress(ctx, "student-1", moduleID, now)
	require.NoError(t, err)
	p.Recalculate(curriculum.CountCompleted(required, completed), len(required), now)
	require.NoError(t, f.progress.SaveModuleProgress(ctx, p))
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE ACCESS
// ══════════════════════════════════════════════════════════════════════════════

func TestIsModuleUnlocked(t *testing.T) {
	f := newFixture(t)
	q := NewModuleAccessQuery(f.catalog, f.progress, f.users)
	ctx := context.Background()

	unlocked, err := q.IsModuleUnlocked(ctx, "student-1", 1)
	require.NoError(t, err)
	assert.True(t, unlocked, "first module is always open")

	unlocked, err = q.IsModuleUnlocked(ctx, "student-1", 2)
	require.NoError(t, err)
	assert.False(t, unlocked)

	f.complete(t, "intro", "intro-variables", "intro-conditions")
	unlocked, err = q.IsModuleUnlocked(ctx, "student-1", 2)
	require.NoError(t, err)
	assert.False(t, unlocked, "partial progress does not unlock")

	f.complete(t, "intro", "intro-loops")
	unlocked, err = q.IsModuleUnlocked(ctx, "student-1", 2)
	require.NoError(t, err)
	assert.True(t, unlocked)

	unlocked, err = q.IsModuleUnlocked(ctx, "student-1", 3)
	require.NoError(t, err)
	assert.False(t, unlocked)

	// Beyond the last published module there is no predecessor chain.
	unlocked, err = q.IsModuleUnlocked(ctx, "student-1", 9)
	require.NoError(t, err)
	assert.False(t, unlocked)
}

func TestIsModuleUnlocked_InvalidInput(t *testing.T) {
	f := newFixture(t)
	q := NewModuleAccessQuery(f.catalog, f.progress, f.users)
	ctx := context.Background()

	_, err := q.IsModuleUnlocked(ctx, "", 1)
	assert.True(t, shared.IsValidation(err))

	_, err = q.IsModuleUnlocked(ctx, "student-1", 0)
	assert.True(t, shared.IsValidation(err))
}

func TestGetNextActivity(t *testing.T) {
	f := newFixture(t)
	q := NewModuleAccessQuery(f.catalog, f.progress, f.users)
	ctx := context.Background()

	next, err := q.GetNextActivity(ctx, "student-1", "intro")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, curriculum.ActivityID("intro-variables"), next.ID)

	f.complete(t, "intro", "intro-variables", "intro-loops")
	next, err = q.GetNextActivity(ctx, "student-1", "intro")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, curriculum.ActivityID("intro-conditions"), next.ID)

	// Optional activities are still offered in order.
	f.complete(t, "intro", "intro-conditions")
	next, err = q.GetNextActivity(ctx, "student-1", "intro")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, curriculum.ActivityID("intro-quiz"), next.ID)

	f.complete(t, "intro", "intro-quiz")
	next, err = q.GetNextActivity(ctx, "student-1", "intro")
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestGetNextActivity_Errors(t *testing.T) {
	f := newFixture(t)
	q := NewModuleAccessQuery(f.catalog, f.progress, f.users)
	ctx := context.Background()

	_, err := q.GetNextActivity(ctx, "", "intro")
	assert.True(t, shared.IsValidation(err))

	_, err = q.GetNextActivity(ctx, "student-1", "missing")
	assert.ErrorIs(t, err, shared.ErrModuleNotFound)
}

func TestModuleAccess_UnknownUser(t *testing.T) {
	f := newFixture(t)
	q := NewModuleAccessQuery(f.catalog, f.progress, f.users)
	ctx := context.Background()

	// Even the always-open first module requires a known user.
	_, err := q.IsModuleUnlocked(ctx, "ghost", 1)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.True(t, shared.IsNotFound(err))

	_, err = q.IsModuleUnlocked(ctx, "ghost", 2)
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = q.GetNextActivity(ctx, "ghost", "intro")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS OVERVIEW
// ══════════════════════════════════════════════════════════════════════════════

func TestProgressOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.complete(t, "intro", "intro-variables", "intro-conditions", "intro-loops")
	f.complete(t, "functions", "functions-basics")

	u, err := f.users.GetUser(ctx, "student-1")
	require.NoError(t, err)
	_, err = u.AddXP(300, now.Add(-2*time.Hour), true)
	require.NoError(t, err)
	u.CurrentStreak, u.LongestStreak = 3, 5
	require.NoError(t, f.users.SaveUser(ctx, u))

	def, _ := learner.GetDefinition(learner.AchievementFirstModule)
	require.NoError(t, f.users.CreateAchievement(ctx, learner.NewAchievement("a-1", "student-1", def, nil, now)))

	q := NewProgressOverviewQuery(f.catalog, f.progress, f.users, timeutil.FixedClock{T: now})
	dto, err := q.Handle(ctx, "student-1")
	require.NoError(t, err)

	require.Len(t, dto.Modules, 3)
	assert.Equal(t, "intro", dto.Modules[0].ModuleID)
	assert.Equal(t, string(curriculum.StatusCompleted), dto.Modules[0].Status)
	assert.Equal(t, 100, dto.Modules[0].Percent)
	assert.True(t, dto.Modules[0].Unlocked)
	assert.NotNil(t, dto.Modules[0].CompletedAt)

	assert.Equal(t, 50, dto.Modules[1].Percent)
	assert.True(t, dto.Modules[1].Unlocked)
	assert.Equal(t, string(curriculum.StatusInProgress), dto.Modules[1].Status)

	assert.Equal(t, 0, dto.Modules[2].Percent)
	assert.False(t, dto.Modules[2].Unlocked)
	assert.Equal(t, string(curriculum.StatusNotStarted), dto.Modules[2].Status)

	assert.Equal(t, 50, dto.OverallPercent)
	assert.Equal(t, 1, dto.CompletedModules)
	assert.Equal(t, 3, dto.TotalModules)

	assert.Equal(t, 300, dto.XP)
	assert.Equal(t, 3, dto.Level)
	assert.Equal(t, 3, dto.CurrentStreak)
	assert.Equal(t, 5, dto.LongestStreak)
	assert.Equal(t, 200, dto.XPToNextLevel)
	assert.Equal(t, "2 ч назад", dto.LastActive)

	require.Len(t, dto.Achievements, 1)
	assert.Equal(t, string(learner.AchievementFirstModule), dto.Achievements[0].ID)
	assert.Equal(t, def.Name, dto.Achievements[0].Name)
	assert.Equal(t, 100, dto.Achievements[0].XPAwarded)
}

func TestProgressOverview_NewUser(t *testing.T) {
	f := newFixture(t)
	q := NewProgressOverviewQuery(f.catalog, f.progress, f.users, timeutil.FixedClock{T: now})

	dto, err := q.Handle(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, 0, dto.OverallPercent)
	assert.Equal(t, 1, dto.Level)
	assert.Empty(t, dto.LastActive)
	assert.Empty(t, dto.Achievements)
	assert.NotNil(t, dto.Achievements)
	require.Len(t, dto.Modules, 3)
	assert.True(t, dto.Modules[0].Unlocked)
	assert.False(t, dto.Modules[1].Unlocked)
}

func TestProgressOverview_Errors(t *testing.T) {
	f := newFixture(t)
	q := NewProgressOverviewQuery(f.catalog, f.progress, f.users, nil)
	ctx := context.Background()

	_, err := q.Handle(ctx, "")
	assert.True(t, shared.IsValidation(err))

	_, err = q.Handle(ctx, "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}
