package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		unique    bool
	}{
		{"nil", nil, false, false},
		{"plain", errors.New("syntax error"), false, false},
		{"pool closed", ErrConnectionClosed, true, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true, false},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true, false},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true, false},
		{"connection exception", &pgconn.PgError{Code: "08006"}, true, false},
		{"cannot connect now", &pgconn.PgError{Code: "57P03"}, true, false},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false, true},
		{"check violation", &pgconn.PgError{Code: "23514"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.unique, IsUniqueViolation(tt.err))
		})
	}

	assert.True(t, IsNoRows(fmt.Errorf("get user: %w", pgx.ErrNoRows)))
	assert.False(t, IsNoRows(errors.New("other")))
}

func TestWrapErr(t *testing.T) {
	assert.NoError(t, wrapErr("learner", "GetUser", nil))

	err := wrapErr("learner", "SaveUser", &pgconn.PgError{Code: "40001"})
	assert.True(t, shared.IsTransient(err))
	assert.True(t, shared.IsRetryable(err))

	err = wrapErr("learner", "SaveUser", errors.New("boom"))
	assert.False(t, shared.IsRetryable(err))
	assert.Equal(t, "learner.SaveUser: boom", err.Error())
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()

	assert.Len(t, migrations, 4)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Name)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
		assert.False(t, m.IsApplied())
	}

	at := time.Now()
	assert.True(t, Migration{AppliedAt: &at}.IsApplied())
}
