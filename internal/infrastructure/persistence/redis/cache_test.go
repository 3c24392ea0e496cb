package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
	"github.com/alem-hub/progress-engine/pkg/logger"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewCache(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

func TestCache_SetGetDelete(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	type payload struct {
		Name  string
		Count int
	}
	require.NoError(t, cache.Set(ctx, "k", payload{Name: "x", Count: 3}, time.Minute))

	var got payload
	require.NoError(t, cache.Get(ctx, "k", &got))
	assert.Equal(t, payload{Name: "x", Count: 3}, got)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, cache.Get(ctx, "k", &got), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "k2", 1, 0))
	require.NoError(t, cache.Delete(ctx, "k2"))
	assert.ErrorIs(t, cache.Get(ctx, "k2", &got), ErrCacheMiss)
	assert.NoError(t, cache.Delete(ctx))
}

func TestCache_EmptyKeyAndBadPayload(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	assert.ErrorIs(t, cache.Set(ctx, "", 1, time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Get(ctx, "", nil), ErrCacheKeyEmpty)

	require.NoError(t, mr.Set("broken", "{not json"))
	var v map[string]int
	assert.ErrorIs(t, cache.Get(ctx, "broken", &v), ErrCacheSerialization)
}

func TestNewCache_Unreachable(t *testing.T) {
	_, err := NewCache(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.ErrorIs(t, err, ErrCacheConnection)

	_, err = NewCache(context.Background(), Config{URL: "http://nope"})
	assert.Error(t, err)
}

func TestCache_TryLock(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ok, release, err := cache.TryLock(ctx, "reconcile", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _, err = cache.TryLock(ctx, "reconcile", "token-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(PrefixLock+"reconcile"))

	ok, _, err = cache.TryLock(ctx, "reconcile", "token-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_ReleaseDoesNotDeleteForeignLock(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	ok, release, err := cache.TryLock(ctx, "reconcile", "token-a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Блокировка истекла и перехвачена другим владельцем.
	mr.FastForward(2 * time.Second)
	ok, _, err = cache.TryLock(ctx, "reconcile", "token-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, release(ctx))
	got, err := mr.Get(PrefixLock + "reconcile")
	require.NoError(t, err)
	assert.Equal(t, "token-b", got)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE
// ══════════════════════════════════════════════════════════════════════════════

type countingProfiles struct {
	calls    atomic.Int32
	profiles map[string]*relevance.Profile
}

func (c *countingProfiles) GetProfile(_ context.Context, userID string) (*relevance.Profile, error) {
	c.calls.Add(1)
	p, ok := c.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return p, nil
}

func newProfiles() *countingProfiles {
	return &countingProfiles{profiles: map[string]*relevance.Profile{
		"u1": {
			UserID:           "u1",
			FavoriteSubjects: []string{"math"},
			WorkStyle:        relevance.WorkStyleSolo,
			ChallengeLevel:   6,
		},
	}}
}

func TestProfileCache_ReadThrough(t *testing.T) {
	cache, mr := newTestCache(t)
	store := newProfiles()
	pc := NewProfileCache(store, cache, nil, time.Minute, logger.Discard())
	ctx := context.Background()

	p, err := pc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 6, p.ChallengeLevel)
	assert.True(t, mr.Exists(PrefixProfile+"u1"))

	p, err = pc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"math"}, p.FavoriteSubjects)
	assert.Equal(t, int32(1), store.calls.Load())

	require.NoError(t, pc.Invalidate(ctx, "u1"))
	_, err = pc.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestProfileCache_NotFoundIsNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	store := newProfiles()
	pc := NewProfileCache(store, cache, nil, time.Minute, logger.Discard())

	_, err := pc.GetProfile(context.Background(), "ghost")
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, mr.Exists(PrefixProfile+"ghost"))
}

func TestProfileCache_DeadRedisFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	cache := NewCacheFromClient(client)
	t.Cleanup(func() { _ = cache.Close() })

	store := newProfiles()
	breaker := circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(1), circuitbreaker.WithCoolDown(time.Hour))
	pc := NewProfileCache(store, cache, breaker, time.Minute, logger.Discard())

	mr.Close()

	for i := 0; i < 3; i++ {
		p, err := pc.GetProfile(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", p.UserID)
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	assert.Equal(t, int32(3), store.calls.Load())
}
