package curriculum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusNotStarted, StatusFor(0))
	assert.Equal(t, StatusInProgress, StatusFor(1))
	assert.Equal(t, StatusInProgress, StatusFor(99))
	assert.Equal(t, StatusCompleted, StatusFor(100))
}

func TestModuleProgress_Recalculate(t *testing.T) {
	p := NewModuleProgress("u1", "m1", now)

	assert.False(t, p.Recalculate(1, 3, now))
	assert.Equal(t, shared.Percent(33), p.ProgressPercent)
	assert.Equal(t, StatusInProgress, p.Status)
	assert.Nil(t, p.CompletedAt)
	require.NoError(t, p.Validate())

	later := now.Add(time.Hour)
	assert.True(t, p.Recalculate(3, 3, later))
	assert.Equal(t, StatusCompleted, p.Status)
	require.NotNil(t, p.CompletedAt)
	assert.Equal(t, later, *p.CompletedAt)
	require.NoError(t, p.Validate())

	// Повторный пересчёт не переводит модуль в COMPLETED ещё раз.
	assert.False(t, p.Recalculate(3, 3, later.Add(time.Hour)))
	assert.Equal(t, later, *p.CompletedAt)
}

func TestModuleProgress_RecalculateNeverDecreases(t *testing.T) {
	p := NewModuleProgress("u1", "m1", now)
	p.Recalculate(2, 3, now)
	require.Equal(t, shared.Percent(67), p.ProgressPercent)

	// Новая обязательная активность не откатывает процент.
	p.Recalculate(2, 4, now)
	assert.Equal(t, shared.Percent(67), p.ProgressPercent)
}

func TestModuleProgress_ZeroRequiredIsComplete(t *testing.T) {
	p := NewModuleProgress("u1", "m1", now)
	assert.True(t, p.Recalculate(0, 0, now))
	assert.Equal(t, shared.Percent(100), p.ProgressPercent)
}

func TestModuleProgress_Validate(t *testing.T) {
	p := NewModuleProgress("u1", "m1", now)
	p.Status = StatusCompleted
	assert.True(t, shared.IsInvalidState(p.Validate()))

	p = NewModuleProgress("u1", "m1", now)
	p.ProgressPercent = 140
	assert.Error(t, p.Validate())
}

func TestCalculateOverall(t *testing.T) {
	done := NewModuleProgress("u1", "m1", now)
	done.Recalculate(2, 2, now)
	half := NewModuleProgress("u1", "m2", now)
	half.Recalculate(1, 2, now)

	o := CalculateOverall("u1", []*ModuleProgress{done, half}, 3, now)
	assert.Equal(t, shared.Percent(50), o.Percent)
	assert.Equal(t, 1, o.CompletedModules)
	assert.Equal(t, 3, o.TotalModules)
	assert.False(t, o.IsComplete())
}

func TestCalculateOverall_NoModules(t *testing.T) {
	o := CalculateOverall("u1", nil, 0, now)
	assert.Equal(t, shared.Percent(0), o.Percent)
	assert.False(t, o.IsComplete())
}

func TestIsUnlocked(t *testing.T) {
	assert.True(t, IsUnlocked(1, nil))
	assert.False(t, IsUnlocked(2, nil))

	prev := NewModuleProgress("u1", "m1", now)
	prev.Recalculate(1, 2, now)
	assert.False(t, IsUnlocked(2, prev))

	prev.Recalculate(2, 2, now)
	assert.True(t, IsUnlocked(2, prev))
}

func TestNextActivity(t *testing.T) {
	activities := []*Activity{
		{ID: "c", OrderIndex: 3},
		{ID: "a", OrderIndex: 1},
		{ID: "b", OrderIndex: 2},
	}

	next := NextActivity(activities, map[ActivityID]bool{"a": true})
	require.NotNil(t, next)
	assert.Equal(t, ActivityID("b"), next.ID)

	assert.Nil(t, NextActivity(activities, map[ActivityID]bool{"a": true, "b": true, "c": true}))

	// Исходный порядок не меняется.
	assert.Equal(t, ActivityID("c"), activities[0].ID)
}

func TestRequiredActivities(t *testing.T) {
	activities := []*Activity{
		{ID: "a", RequiredForCompletion: true},
		{ID: "b"},
		{ID: "c", RequiredForCompletion: true},
	}
	required := RequiredActivities(activities)
	assert.Len(t, required, 2)
	assert.Equal(t, 1, CountCompleted(required, map[ActivityID]bool{"a": true, "b": true}))
}

func TestNewActivityCompletion_NullPayload(t *testing.T) {
	c := NewActivityCompletion("u1", "a1", nil, nil, now)
	assert.True(t, c.Completed)
	assert.JSONEq(t, "null", string(c.Data))
}
