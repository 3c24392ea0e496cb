package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/pkg/logger"
)

type fakeJob struct {
	name  string
	err   error
	runs  atomic.Int32
	delay time.Duration
}

func (j *fakeJob) Name() string        { return j.name }
func (j *fakeJob) Description() string { return "test job " + j.name }

func (j *fakeJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.delay > 0 {
		select {
		case <-time.After(j.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler(opts ...func(*SchedulerConfig)) *Scheduler {
	cfg := DefaultSchedulerConfig()
	cfg.Logger = logger.Discard()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewScheduler(cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

func TestRegister(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Register(&fakeJob{name: "b"}, "0 3 * * *"))
	require.NoError(t, s.Register(&fakeJob{name: "a"}, "@hourly"))

	err := s.Register(&fakeJob{name: "a"}, "@daily")
	assert.ErrorIs(t, err, ErrJobAlreadyExists)

	err = s.Register(&fakeJob{name: "c"}, "every now and then")
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// Six-field specs with seconds are not accepted.
	err = s.Register(&fakeJob{name: "d"}, "0 0 3 * * *")
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	assert.ErrorIs(t, s.Register(nil, "@daily"), ErrNilJob)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "b", jobs[1].Name)
	assert.Equal(t, "0 3 * * *", jobs[1].Schedule)
	assert.True(t, jobs[1].Enabled)
}

func TestUnregisterAndToggle(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&fakeJob{name: "a"}, "@daily"))

	require.NoError(t, s.DisableJob("a"))
	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.False(t, info.Enabled)
	require.NoError(t, s.EnableJob("a"))

	require.NoError(t, s.Unregister("a"))
	assert.ErrorIs(t, s.Unregister("a"), ErrJobNotFound)
	assert.ErrorIs(t, s.EnableJob("a"), ErrJobNotFound)

	_, err = s.GetJobInfo("a")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

func TestRunNow(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "a"}
	require.NoError(t, s.Register(job, "@daily"))
	require.NoError(t, s.DisableJob("a"))

	var completed []JobResult
	s.OnJobComplete(func(r JobResult) { completed = append(completed, r) })

	result, err := s.RunNow(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, int32(1), job.runs.Load(), "disabled jobs still run on demand")
	require.Len(t, completed, 1)

	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.RunCount)
	assert.Equal(t, int64(0), info.FailCount)
	require.NotNil(t, info.LastResult)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNow_Failure(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	require.NoError(t, s.Register(&fakeJob{name: "a", err: boom}, "@daily"))

	var failed string
	s.OnJobError(func(name string, err error) {
		failed = name
		assert.ErrorIs(t, err, boom)
	})

	result, err := s.RunNow(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.False(t, result.Success)
	assert.Equal(t, "a", failed)

	snap := s.GetMetrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalExecutions)
	assert.Equal(t, int64(1), snap.TotalFailures)
	assert.Zero(t, snap.SuccessRate)
}

func TestRunNow_JobTimeout(t *testing.T) {
	s := newTestScheduler(func(c *SchedulerConfig) { c.JobTimeout = 20 * time.Millisecond })
	require.NoError(t, s.Register(&fakeJob{name: "slow", delay: time.Second}, "@daily"))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHistoryIsBounded(t *testing.T) {
	s := newTestScheduler(func(c *SchedulerConfig) { c.MaxHistorySize = 3 })
	require.NoError(t, s.Register(&fakeJob{name: "a"}, "@daily"))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "a")
		require.NoError(t, err)
	}

	assert.Len(t, s.GetHistory(0), 3)
	assert.Len(t, s.GetHistory(2), 2)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

func TestStartStop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&fakeJob{name: "a"}, "@daily"))

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	info, err := s.GetJobInfo("a")
	require.NoError(t, err)
	assert.False(t, info.NextRun.IsZero())

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}
