package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/pkg/circuitbreaker"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE CACHE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileCache is a read-through relevance.ProfileReader. Cache errors never
// fail a read: the breaker trips on a dead Redis and reads go to the store.
type ProfileCache struct {
	next    relevance.ProfileReader
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
	logger  *slog.Logger
}

// NewProfileCache wraps next with a Redis cache.
func NewProfileCache(next relevance.ProfileReader, cache *Cache, breaker *circuitbreaker.CircuitBreaker, ttl time.Duration, logger *slog.Logger) *ProfileCache {
	if ttl <= 0 {
		ttl = TTLProfile
	}
	if breaker == nil {
		breaker = circuitbreaker.ProfileCacheBreaker(nil)
	}
	return &ProfileCache{
		next:    next,
		cache:   cache,
		breaker: breaker,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "profile_cache")),
	}
}

// GetProfile returns the cached profile or loads it from the store.
func (c *ProfileCache) GetProfile(ctx context.Context, userID string) (*relevance.Profile, error) {
	key := PrefixProfile + userID

	var cached relevance.Profile
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, key, &cached)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		return err
	})
	switch {
	case err == nil && cached.UserID != "":
		return &cached, nil
	case err != nil:
		c.logger.DebugContext(ctx, "profile cache read skipped", slog.String("user_id", userID), slog.Any("error", err))
	}

	profile, err := c.next.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, key, profile, c.ttl)
	}); err != nil {
		c.logger.DebugContext(ctx, "profile cache write skipped", slog.String("user_id", userID), slog.Any("error", err))
	}
	return profile, nil
}

// Invalidate drops the cached profile of a user.
func (c *ProfileCache) Invalidate(ctx context.Context, userID string) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, PrefixProfile+userID)
	})
}

var _ relevance.ProfileReader = (*ProfileCache)(nil)
