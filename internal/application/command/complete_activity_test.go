package command

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

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

func (p *recordingPublisher) completed() []shared.ActivityCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.ActivityCompletedEvent
	for _, e := range p.events {
		if ev, ok := e.(shared.ActivityCompletedEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store     *memory.Store
	progress  *memory.ProgressRepository
	publisher *recordingPublisher
	handler   *CompleteActivityHandler
}

func newFixture(t *testing.T, store *memory.Store) *fixture {
	t.Helper()
	if store == nil {
		catalog, err := tuning.LoadCatalog("")
		require.NoError(t, err)
		store = memory.NewStore()
		store.Seed(catalog)
	}

	users := memory.NewLearnerRepository(store)
	u, err := learner.NewUser("student-1", now)
	require.NoError(t, err)
	require.NoError(t, users.CreateUser(context.Background(), u))

	f := &fixture{
		store:     store,
		progress:  memory.NewProgressRepository(store),
		publisher: &recordingPublisher{},
	}
	f.handler = NewCompleteActivityHandler(
		memory.NewCatalogRepository(store),
		f.progress,
		users,
		f.publisher,
		timeutil.FixedClock{T: now},
		logger.Discard(),
	)
	return f
}

func (f *fixture) complete(t *testing.T, activityID string) *CompleteActivityResult {
	t.Helper()
	res, err := f.handler.Handle(context.Background(), CompleteActivityCommand{UserID: "student-1", ActivityID: activityID})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteActivity_Validation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		cmd  CompleteActivityCommand
	}{
		{"missing user", CompleteActivityCommand{ActivityID: "intro-loops"}},
		{"missing activity", CompleteActivityCommand{UserID: "student-1"}},
		{"invalid json", CompleteActivityCommand{UserID: "student-1", ActivityID: "intro-loops", Data: json.RawMessage(`{"a":`)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.handler.Handle(ctx, tt.cmd)
			assert.Nil(t, res)
			assert.True(t, shared.IsValidation(err))
		})
	}
	assert.Empty(t, f.publisher.events)
}

func TestCompleteActivity_UnknownUserOrActivity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.handler.Handle(ctx, CompleteActivityCommand{UserID: "ghost", ActivityID: "intro-loops"})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = f.handler.Handle(ctx, CompleteActivityCommand{UserID: "student-1", ActivityID: "nope"})
	assert.ErrorIs(t, err, shared.ErrActivityNotFound)
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteActivity_RecalculatesModuleAndOverall(t *testing.T) {
	f := newFixture(t, nil)

	res := f.complete(t, "intro-variables")
	assert.True(t, res.FirstCompletion)
	assert.False(t, res.ModuleNewlyCompleted)
	assert.Equal(t, curriculum.ModuleID("intro"), res.ModuleID)
	assert.Equal(t, shared.Percent(33), res.Module.ProgressPercent)
	assert.Equal(t, curriculum.StatusInProgress, res.Module.Status)
	assert.Equal(t, shared.Percent(11), res.Overall.Percent)
	assert.Equal(t, 3, res.Overall.TotalModules)

	f.complete(t, "intro-conditions")
	res = f.complete(t, "intro-loops")
	assert.True(t, res.ModuleNewlyCompleted)
	assert.Equal(t, shared.Percent(100), res.Module.ProgressPercent)
	assert.Equal(t, curriculum.StatusCompleted, res.Module.Status)
	require.NotNil(t, res.Module.CompletedAt)
	assert.Equal(t, shared.Percent(33), res.Overall.Percent)
	assert.Equal(t, 1, res.Overall.CompletedModules)

	stored, err := f.progress.GetOverallProgress(context.Background(), "student-1")
	require.NoError(t, err)
	assert.Equal(t, shared.Percent(33), stored.Percent)
}

func TestCompleteActivity_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)

	for _, id := range []string{"intro-variables", "intro-conditions", "intro-loops"} {
		f.complete(t, id)
	}

	res := f.complete(t, "intro-loops")
	assert.False(t, res.FirstCompletion)
	assert.False(t, res.ModuleNewlyCompleted)
	assert.Equal(t, shared.Percent(100), res.Module.ProgressPercent)
	assert.Equal(t, shared.Percent(33), res.Overall.Percent)

	events := f.publisher.completed()
	require.Len(t, events, 4)
	assert.False(t, events[3].FirstCompletion)
	assert.False(t, events[3].ModuleNewlyCompleted)
}

func TestCompleteActivity_OptionalActivityDoesNotCount(t *testing.T) {
	f := newFixture(t, nil)

	res := f.complete(t, "intro-quiz")
	assert.True(t, res.FirstCompletion)
	assert.Equal(t, shared.Percent(0), res.Module.ProgressPercent)
	assert.Equal(t, curriculum.StatusNotStarted, res.Module.Status)
}

func TestCompleteActivity_ModuleWithoutRequiredActivitiesIsComplete(t *testing.T) {
	store := memory.NewStore()
	store.AddModule(curriculum.Module{ID: "warmup", Title: "Warmup", OrderIndex: 1, Status: curriculum.PublicationPublished})
	store.AddActivity(curriculum.Activity{ID: "warmup-hello", ModuleID: "warmup", OrderIndex: 1})
	f := newFixture(t, store)

	res := f.complete(t, "warmup-hello")
	assert.True(t, res.ModuleNewlyCompleted)
	assert.Equal(t, shared.Percent(100), res.Module.ProgressPercent)
	assert.Equal(t, shared.Percent(100), res.Overall.Percent)
	assert.True(t, res.Overall.IsComplete())
}

func TestCompleteActivity_PayloadDigest(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	res := f.complete(t, "intro-variables")
	empty := blake2b.Sum256([]byte("null"))
	assert.Equal(t, empty[:], res.PayloadDigest)

	data := json.RawMessage(`{"score":9}`)
	res, err := f.handler.Handle(ctx, CompleteActivityCommand{UserID: "student-1", ActivityID: "intro-loops", Data: data})
	require.NoError(t, err)
	sum := blake2b.Sum256(data)
	assert.Equal(t, sum[:], res.PayloadDigest)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS & RETRIES
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteActivity_PublishesEvent(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.handler.Handle(context.Background(), CompleteActivityCommand{
		UserID:        "student-1",
		ActivityID:    "intro-variables",
		CorrelationID: "req-1",
	})
	require.NoError(t, err)

	events := f.publisher.completed()
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, shared.EventActivityCompleted, ev.EventType())
	assert.Equal(t, "student-1", ev.UserID)
	assert.Equal(t, "intro-variables", ev.ActivityID)
	assert.Equal(t, "intro", ev.ModuleID)
	assert.True(t, ev.FirstCompletion)
	assert.Equal(t, 33, ev.ModulePercent)
	assert.Equal(t, 11, ev.OverallPercent)
	assert.Equal(t, "req-1", ev.CorrelationID)
	assert.Equal(t, now, ev.OccurredAt())
}

func TestCompleteActivity_HandlerFailureKeepsCompletion(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("rewards down")
	f.publisher.err = boom

	res, err := f.handler.Handle(context.Background(), CompleteActivityCommand{UserID: "student-1", ActivityID: "intro-variables"})
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.True(t, res.FirstCompletion)

	completed, err := f.progress.CompletedActivities(context.Background(), "student-1", "intro")
	require.NoError(t, err)
	assert.True(t, completed["intro-variables"])
}

type flakyProgress struct {
	curriculum.ProgressRepository
	failures int
	calls    int
}

func (p *flakyProgress) RunInTx(ctx context.Context, fn func(repo curriculum.ProgressRepository) error) error {
	p.calls++
	if p.calls <= p.failures {
		return shared.WrapError("curriculum", "RunInTx", shared.ErrTransientStore, "connection reset", errors.New("eof"))
	}
	return p.ProgressRepository.RunInTx(ctx, fn)
}

func TestCompleteActivity_RetriesTransientStoreErrors(t *testing.T) {
	f := newFixture(t, nil)
	flaky := &flakyProgress{ProgressRepository: f.progress, failures: 1}
	f.handler.progress = flaky

	res := f.complete(t, "intro-variables")
	assert.True(t, res.FirstCompletion)
	assert.Equal(t, 2, flaky.calls)
}

func TestCompleteActivity_GivesUpOnPersistentStoreErrors(t *testing.T) {
	f := newFixture(t, nil)
	flaky := &flakyProgress{ProgressRepository: f.progress, failures: 10}
	f.handler.progress = flaky

	_, err := f.handler.Handle(context.Background(), CompleteActivityCommand{UserID: "student-1", ActivityID: "intro-variables"})
	assert.True(t, shared.IsTransient(err))
	assert.Equal(t, 3, flaky.calls)
	assert.Empty(t, f.publisher.events)
}

