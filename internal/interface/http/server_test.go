package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/progress-engine/internal/application/query"
	"github.com/alem-hub/progress-engine/internal/domain/curriculum"
	"github.com/alem-hub/progress-engine/internal/domain/learner"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/progress-engine/internal/infrastructure/tuning"
	"github.com/alem-hub/progress-engine/internal/interface/http/handlers"
	"github.com/alem-hub/progress-engine/pkg/logger"
	"github.com/alem-hub/progress-engine/pkg/timeutil"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, health handlers.HealthChecker) *Server {
	t.Helper()
	catalog, err := tuning.LoadCatalog("")
	require.NoError(t, err)
	tables, err := tuning.DefaultKeywordTables()
	require.NoError(t, err)

	store := memory.NewStore()
	store.Seed(catalog)
	catalogRepo := memory.NewCatalogRepository(store)
	progress := memory.NewProgressRepository(store)
	users := memory.NewLearnerRepository(store)
	profiles := memory.NewRelevanceRepository(store)

	u, err := learner.NewUser("student-1", now)
	require.NoError(t, err)
	require.NoError(t, users.CreateUser(context.Background(), u))
	_, err = progress.UpsertCompletion(context.Background(), curriculum.NewActivityCompletion("student-1", "intro-variables", nil, nil, now))
	require.NoError(t, err)

	log := logger.Discard()
	return NewServer(DefaultConfig(), Dependencies{
		Overview:      query.NewProgressOverviewQuery(catalogRepo, progress, users, timeutil.FixedClock{T: now}),
		Access:        query.NewModuleAccessQuery(catalogRepo, progress, users),
		Recommend:     query.NewRecommendProjectsHandler(profiles, profiles, relevance.NewMatcher(tables), 0, log),
		HealthChecker: health,
		Logger:        log,
	})
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test")
	s := newTestServer(t, health)

	rec, body := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["healthy"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	health.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	rec, body = get(t, s, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["healthy"])

	rec, body = get(t, s, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestRequestIDIsPropagated(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

// ══════════════════════════════════════════════════════════════════════════════
// API
// ══════════════════════════════════════════════════════════════════════════════

func TestProgress(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := get(t, s, "/api/v1/users/student-1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student-1", body["user_id"])
	assert.Equal(t, float64(3), body["total_modules"])
	assert.Equal(t, float64(1), body["level"])

	rec, body = get(t, s, "/api/v1/users/ghost/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestModuleUnlocked(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := get(t, s, "/api/v1/users/student-1/modules/1/unlocked")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["unlocked"])

	rec, body = get(t, s, "/api/v1/users/student-1/modules/2/unlocked")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["unlocked"])

	rec, body = get(t, s, "/api/v1/users/student-1/modules/abc/unlocked")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_order", body["error"])

	rec, _ = get(t, s, "/api/v1/users/student-1/modules/0/unlocked")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = get(t, s, "/api/v1/users/ghost/modules/1/unlocked")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestNextActivity(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := get(t, s, "/api/v1/users/student-1/modules/intro/next")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["all_completed"])
	next, ok := body["next"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "intro-conditions", next["activity_id"])

	rec, _ = get(t, s, "/api/v1/users/student-1/modules/missing/next")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = get(t, s, "/api/v1/users/ghost/modules/intro/next")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestRecommendations(t *testing.T) {
	s := newTestServer(t, nil)

	rec, body := get(t, s, "/api/v1/users/student-1/recommendations?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["has_profile"])
	projects, ok := body["projects"].([]interface{})
	require.True(t, ok)
	assert.Len(t, projects, 2)

	rec, body = get(t, s, "/api/v1/users/student-1/recommendations?limit=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_limit", body["error"])

	rec, body = get(t, s, "/api/v1/users/student-1/recommendations?category=COOKING")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["error"])
}

func TestNotConfigured(t *testing.T) {
	s := NewServer(DefaultConfig(), Dependencies{Logger: logger.Discard()})

	rec, body := get(t, s, "/api/v1/users/student-1/progress")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_configured", body["error"])
}

func TestShutdownWithoutStart(t *testing.T) {
	s := NewServer(Config{}, Dependencies{Logger: logger.Discard()})
	assert.NoError(t, s.Shutdown(context.Background()))
}
