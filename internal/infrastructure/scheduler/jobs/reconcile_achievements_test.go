package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

var now = time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

type fakeChecker struct {
	mu      sync.Mutex
	checked []string
	fail    map[string]error
}

func (c *fakeChecker) CheckAchievements(_ context.Context, userID string) ([]learner.AchievementID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checked = append(c.checked, userID)
	if err := c.fail[userID]; err != nil {
		return nil, err
	}
	return []learner.AchievementID{learner.AchievementFirstActivity}, nil
}

// seedUsers creates n users active an hour ago and one user inactive for a week.
func seedUsers(t *testing.T, n int) *memory.LearnerRepository {
	t.Helper()
	repo := memory.NewLearnerRepository(memory.NewStore())
	ctx := context.Background()

	add := func(id string, active time.Time) {
		u, err := learner.NewUser(id, now)
		require.NoError(t, err)
		u.LastActiveAt = &active
		require.NoError(t, repo.CreateUser(ctx, u))
	}
	for i := 0; i < n; i++ {
		add(fmt.Sprintf("student-%02d", i), now.Add(-time.Hour))
	}
	add("dormant", now.Add(-7*24*time.Hour))
	return repo
}

func newJob(users learner.Repository, checker AchievementChecker, locker Locker) *ReconcileAchievementsJob {
	return NewReconcileAchievementsJob(users, checker, locker, timeutil.FixedClock{T: now}, logger.Discard(), ReconcileAchievementsConfig{
		PageSize:    2,
		Concurrency: 2,
	})
}

func TestReconcile_ChecksEveryActiveUserAcrossPages(t *testing.T) {
	checker := &fakeChecker{}
	job := newJob(seedUsers(t, 5), checker, nil)

	require.NoError(t, job.Run(context.Background()))

	assert.ElementsMatch(t, []string{"student-00", "student-01", "student-02", "student-03", "student-04"}, checker.checked)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 5, stats.UsersChecked)
	assert.Equal(t, 0, stats.UsersFailed)
	assert.Equal(t, 5, stats.Unlocked)
	assert.False(t, stats.SkippedLocked)
}

func TestReconcile_OneFailingUserDoesNotStopTheRest(t *testing.T) {
	boom := errors.New("stats unavailable")
	checker := &fakeChecker{fail: map[string]error{"student-01": boom}}
	job := newJob(seedUsers(t, 3), checker, nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "student-01")

	stats := job.LastStats()
	assert.Equal(t, 3, stats.UsersChecked)
	assert.Equal(t, 1, stats.UsersFailed)
	assert.Equal(t, 2, stats.Unlocked)
}

func TestReconcile_NoActiveUsers(t *testing.T) {
	checker := &fakeChecker{}
	job := newJob(seedUsers(t, 0), checker, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, checker.checked)
	assert.Equal(t, 0, job.LastStats().UsersChecked)
}

// ══════════════════════════════════════════════════════════════════════════════
// CLUSTER LOCK
// ══════════════════════════════════════════════════════════════════════════════

func newLocker(t *testing.T) (*redis.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := redis.NewCache(context.Background(), redis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestReconcile_SkipsWhenLockHeld(t *testing.T) {
	cache, mr := newLocker(t)
	require.NoError(t, mr.Set(redis.PrefixLock+"reconcile_achievements", "other-instance"))

	checker := &fakeChecker{}
	job := newJob(seedUsers(t, 2), checker, cache)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, checker.checked)
	assert.True(t, job.LastStats().SkippedLocked)

	owner, err := mr.Get(redis.PrefixLock + "reconcile_achievements")
	require.NoError(t, err)
	assert.Equal(t, "other-instance", owner)
}

func TestReconcile_ReleasesLockAfterRun(t *testing.T) {
	cache, mr := newLocker(t)

	checker := &fakeChecker{}
	job := newJob(seedUsers(t, 2), checker, cache)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, checker.checked, 2)
	assert.False(t, mr.Exists(redis.PrefixLock+"reconcile_achievements"))

	// The next run acquires the lock again.
	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, checker.checked, 4)
}

func TestReconcile_LockUnavailable(t *testing.T) {
	cache, mr := newLocker(t)
	mr.Close()

	job := newJob(seedUsers(t, 1), &fakeChecker{}, cache)
	assert.Error(t, job.Run(context.Background()))
}

func TestNewReconcileAchievementsJob_Defaults(t *testing.T) {
	job := NewReconcileAchievementsJob(nil, nil, nil, nil, nil, ReconcileAchievementsConfig{})
	assert.Equal(t, DefaultReconcileAchievementsConfig(), job.config)
	assert.Equal(t, "reconcile_achievements", job.Name())
	assert.NotEmpty(t, job.Description())
	assert.Nil(t, job.LastStats())
}
