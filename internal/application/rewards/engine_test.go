package rewards

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

// 09:00 in Almaty.
var start = time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) GenerateID() string {
	return fmt.Sprintf("ach-%d", s.n.Add(1))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *recordingPublisher) count(t shared.EventType) int {
	n := 0
	for _, et := range p.types() {
		if et == t {
			n++
		}
	}
	return n
}

type fixture struct {
	store     *memory.Store
	users     *memory.LearnerRepository
	publisher *recordingPublisher
	clock     *manualClock
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{
		store:     store,
		users:     memory.NewLearnerRepository(store),
		publisher: &recordingPublisher{},
		clock:     &manualClock{t: start},
	}
	f.engine = NewEngine(f.users, memory.NewStatsReader(store), f.publisher, &seqIDs{}, f.clock, DefaultConfig(), logger.Discard())

	u, err := learner.NewUser("student-1", start)
	require.NoError(t, err)
	require.NoError(t, f.users.CreateUser(context.Background(), u))
	return f
}

func (f *fixture) user(t *testing.T) *learner.User {
	t.Helper()
	u, err := f.users.GetUser(context.Background(), "student-1")
	require.NoError(t, err)
	return u
}

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

func TestAwardXP_RejectsNegative(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.AwardXP(context.Background(), "student-1", -5, "test")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, shared.ErrNegativeXP)
	assert.Equal(t, shared.XP(0), f.user(t).XP)
	assert.Empty(t, f.publisher.events)
}

func TestAwardXP_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.AwardXP(context.Background(), "ghost", 10, "test")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestAwardXP_LevelUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.AwardXP(ctx, "student-1", 90, "test")
	require.NoError(t, err)
	assert.False(t, res.LeveledUp())
	assert.Equal(t, []shared.EventType{shared.EventXPGained}, f.publisher.types())

	res, err = f.engine.AwardXP(ctx, "student-1", 30, "test")
	require.NoError(t, err)
	assert.True(t, res.LeveledUp())
	assert.Equal(t, shared.Level(1), res.Change.OldLevel)
	assert.Equal(t, shared.Level(2), res.Change.NewLevel)
	assert.Equal(t, shared.XP(120), res.Change.NewXP)
	assert.Empty(t, res.Unlocked)

	u := f.user(t)
	assert.Equal(t, shared.XP(120), u.XP)
	assert.Equal(t, shared.Level(2), u.Level)
	require.NotNil(t, u.LastActiveAt)
	assert.Equal(t, 1, f.publisher.count(shared.EventLevelUp))
}

func TestAwardXP_UnlocksEveryCrossedLevelMilestone(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.AwardXP(context.Background(), "student-1", 900, "test")
	require.NoError(t, err)
	assert.Equal(t, shared.Level(5), res.Change.NewLevel)
	assert.Equal(t, []learner.AchievementID{learner.AchievementLevel5}, res.Unlocked)

	// 900 + 100 for the milestone.
	u := f.user(t)
	assert.Equal(t, shared.XP(1000), u.XP)
	assert.Equal(t, shared.Level(5), u.Level)

	assert.Equal(t, []shared.EventType{
		shared.EventXPGained,
		shared.EventLevelUp,
		shared.EventAchievementUnlocked,
		shared.EventXPGained,
	}, f.publisher.types())
}

func TestAwardXP_PublishFailureIsNotReturned(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("handler failed")

	res, err := f.engine.AwardXP(context.Background(), "student-1", 10, "test")
	require.NoError(t, err)
	assert.Equal(t, shared.XP(10), res.Change.NewXP)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestUnlockAchievement_Unknown(t *testing.T) {
	f := newFixture(t)

	created, err := f.engine.UnlockAchievement(context.Background(), "student-1", "no-such-thing", nil)
	assert.False(t, created)
	assert.ErrorIs(t, err, shared.ErrUnknownAchievement)
	assert.True(t, shared.IsInvalidState(err))
}

func TestUnlockAchievement_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.engine.UnlockAchievement(ctx, "student-1", learner.AchievementFirstActivity, map[string]interface{}{"activity_id": "intro-loops"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.engine.UnlockAchievement(ctx, "student-1", learner.AchievementFirstActivity, nil)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, shared.XP(25), f.user(t).XP)
	list, err := f.users.ListAchievements(ctx, "student-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "intro-loops", list[0].Metadata["activity_id"])
	assert.Equal(t, 1, f.publisher.count(shared.EventAchievementUnlocked))
}

func TestUnlockAchievement_ConcurrentCallsGrantOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 20
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.engine.UnlockAchievement(ctx, "student-1", learner.AchievementFirstModule, nil)
			assert.NoError(t, err)
			if ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, shared.XP(100), f.user(t).XP)
	list, err := f.users.ListAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUnlockAchievement_LevelUpCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.AwardXP(ctx, "student-1", 800, "test")
	require.NoError(t, err)

	// 800 + 500 crosses level 5 (850) and level 6 (1300); level-5 adds 100 more.
	created, err := f.engine.UnlockAchievement(ctx, "student-1", learner.AchievementCurriculumComplete, nil)
	require.NoError(t, err)
	assert.True(t, created)

	has, err := f.users.HasAchievement(ctx, "student-1", learner.AchievementLevel5)
	require.NoError(t, err)
	assert.True(t, has)
	assert.Equal(t, shared.XP(1400), f.user(t).XP)
}

func TestCheckAchievements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetProjectStats("student-1", learner.ActivityStats{ProjectsCreated: 2, TasksCompleted: 12})

	unlocked, err := f.engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []learner.AchievementID{learner.AchievementFirstProject, learner.AchievementTenTasks}, unlocked)

	u := f.user(t)
	assert.Equal(t, shared.XP(125), u.XP)
	assert.Nil(t, u.LastActiveAt, "reconciliation grants must not count as activity")

	again, err := f.engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, shared.XP(125), f.user(t).XP)
}

func TestCheckAchievements_UnknownUser(t *testing.T) {
	f := newFixture(t)
	f.store.SetProjectStats("ghost", learner.ActivityStats{ProjectsCreated: 1})

	_, err := f.engine.CheckAchievements(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

// flakyRepo fails the next n CreateAchievement calls with a transient error.
type flakyRepo struct {
	learner.Repository
	failures *atomic.Int32
}

func (r *flakyRepo) RunInTx(ctx context.Context, fn func(repo learner.Repository) error) error {
	return r.Repository.RunInTx(ctx, func(repo learner.Repository) error {
		return fn(&flakyRepo{Repository: repo, failures: r.failures})
	})
}

func (r *flakyRepo) CreateAchievement(ctx context.Context, a *learner.Achievement) error {
	if r.failures.Add(-1) >= 0 {
		return shared.NewDomainError("learner", "CreateAchievement", shared.ErrTransientStore, "connection reset")
	}
	return r.Repository.CreateAchievement(ctx, a)
}

func TestCheckAchievements_RecoversMissedLevelMilestone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	failures := &atomic.Int32{}
	failures.Store(1)
	repo := &flakyRepo{Repository: f.users, failures: failures}
	engine := NewEngine(repo, memory.NewStatsReader(f.store), f.publisher, &seqIDs{}, f.clock, DefaultConfig(), logger.Discard())

	_, err := engine.AwardXP(ctx, "student-1", 900, "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrTransientStore)

	u := f.user(t)
	assert.Equal(t, shared.Level(5), u.Level)
	assert.Equal(t, shared.XP(900), u.XP)
	has, err := f.users.HasAchievement(ctx, "student-1", learner.AchievementLevel5)
	require.NoError(t, err)
	require.False(t, has)

	// A later grant starts above level 5 and does not retry the milestone.
	_, err = engine.AwardXP(ctx, "student-1", 10, "test")
	require.NoError(t, err)

	unlocked, err := engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []learner.AchievementID{learner.AchievementLevel5}, unlocked)
	assert.Equal(t, shared.XP(1010), f.user(t).XP)

	again, err := engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestCheckAchievements_CurriculumComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	catalog, err := tuning.LoadCatalog("")
	require.NoError(t, err)
	f.store.Seed(catalog)

	progress := memory.NewProgressRepository(f.store)
	complete := func(id curriculum.ModuleID) {
		p, err := progress.LockModuleProgress(ctx, "student-1", id, start)
		require.NoError(t, err)
		p.Recalculate(1, 1, start)
		require.NoError(t, progress.SaveModuleProgress(ctx, p))
	}

	complete("intro")
	complete("functions")
	unlocked, err := f.engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []learner.AchievementID{learner.AchievementFirstModule}, unlocked)

	// draft-data is unpublished: three modules make the whole curriculum.
	complete("projects")
	unlocked, err = f.engine.CheckAchievements(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, []learner.AchievementID{learner.AchievementCurriculumComplete}, unlocked)
	assert.Equal(t, shared.XP(600), f.user(t).XP)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS
// ══════════════════════════════════════════════════════════════════════════════

func TestUpdateStreak_CalendarDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	assert.True(t, res.Change.Changed)
	assert.Equal(t, 1, res.Change.Current)
	assert.False(t, res.Change.Reset)

	// Same calendar day: nothing changes.
	f.clock.Set(start.Add(10 * time.Hour))
	res, err = f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	assert.False(t, res.Change.Changed)
	assert.Equal(t, 1, res.Change.Current)

	// 23:30 Almaty, then 00:30 the next day: one hour apart, two calendar days.
	f.clock.Set(time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC))
	_, err = f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	f.clock.Set(time.Date(2026, 3, 10, 19, 30, 0, 0, time.UTC))
	res, err = f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Change.Current)

	// A missed day resets the streak but keeps the longest.
	f.clock.Set(time.Date(2026, 3, 13, 5, 0, 0, 0, time.UTC))
	res, err = f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	assert.True(t, res.Change.Reset)
	assert.Equal(t, 1, res.Change.Current)
	assert.Equal(t, 2, res.Change.Longest)

	u := f.user(t)
	assert.Equal(t, 1, u.CurrentStreak)
	assert.Equal(t, 2, u.LongestStreak)
	assert.Equal(t, 3, f.publisher.count(shared.EventStreakUpdated))
}

func TestUpdateStreak_SkippedCalendarDayResetsWithin48Hours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 09:00 Almaty on the 10th.
	_, err := f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)

	// 00:10 Almaty on the 12th: 39h10m elapsed, but the 11th was skipped.
	f.clock.Set(time.Date(2026, 3, 11, 19, 10, 0, 0, time.UTC))
	res, err := f.engine.UpdateStreak(ctx, "student-1")
	require.NoError(t, err)
	assert.True(t, res.Change.Reset)
	assert.Equal(t, 1, res.Change.Current)
}

func TestUpdateStreak_SevenDaysUnlocksOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var milestones []learner.AchievementID
	day := func(i int) {
		f.clock.Set(start.AddDate(0, 0, i))
		res, err := f.engine.UpdateStreak(ctx, "student-1")
		require.NoError(t, err)
		if res.Milestone != "" {
			milestones = append(milestones, res.Milestone)
		}
	}

	for i := 0; i < 8; i++ {
		day(i)
	}
	assert.Equal(t, []learner.AchievementID{learner.AchievementStreak7}, milestones)
	assert.Equal(t, 8, f.user(t).CurrentStreak)

	// Break the streak and build it again: the achievement is not granted twice.
	for i := 10; i < 17; i++ {
		day(i)
	}
	assert.Len(t, milestones, 1)
	assert.Equal(t, 7, f.user(t).CurrentStreak)
	assert.Equal(t, shared.XP(100), f.user(t).XP)
}

func TestUpdateStreak_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.UpdateStreak(context.Background(), "ghost")
	assert.ErrorIs(t, err, shared.ErrUserNotFound)
}

func TestNewEngine_Defaults(t *testing.T) {
	e := NewEngine(nil, nil, nil, nil, nil, Config{}, logger.Discard())
	assert.Equal(t, timeutil.AlmatyTZ, e.location)
	assert.IsType(t, timeutil.SystemClock{}, e.clock)
}
