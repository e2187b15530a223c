package postgres_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-deckgen/internal/jobqueue"
	"github.com/phrazzld/scry-deckgen/internal/platform/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock PgError creation helper
func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "jobs",
		ColumnName:     "payload",
		ConstraintName: "jobs_status_check",
	}
}

// mockResult implements sql.Result for testing
type mockResult struct {
	rowsAffected int64
	err          error
}

func (m mockResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (m mockResult) RowsAffected() (int64, error) {
	return m.rowsAffected, m.err
}

func TestMapError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		wantIs  error
		wantMsg string
	}{
		{
			name:   "no rows",
			err:    sql.ErrNoRows,
			wantIs: jobqueue.ErrJobNotFound,
		},
		{
			name:   "wrapped no rows",
			err:    fmt.Errorf("query failed: %w", sql.ErrNoRows),
			wantIs: jobqueue.ErrJobNotFound,
		},
		{
			name:   "unique violation",
			err:    newPgError("23505"),
			wantIs: postgres.ErrDuplicate,
		},
		{
			name:    "check violation",
			err:     newPgError("23514"),
			wantIs:  postgres.ErrInvalidEntity,
			wantMsg: "jobs_status_check",
		},
		{
			name:    "not null violation",
			err:     newPgError("23502"),
			wantIs:  postgres.ErrInvalidEntity,
			wantMsg: "payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mapped := postgres.MapError(tt.err)
			assert.ErrorIs(t, mapped, tt.wantIs)
			if tt.wantMsg != "" {
				assert.Contains(t, mapped.Error(), tt.wantMsg)
			}
		})
	}
}

func TestMapError_PassThrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, postgres.MapError(nil))

	plain := errors.New("connection reset")
	assert.Same(t, plain, postgres.MapError(plain))

	other := newPgError("40001")
	assert.Equal(t, error(other), postgres.MapError(other))
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	assert.False(t, postgres.IsUniqueViolation(nil))
	assert.False(t, postgres.IsUniqueViolation(errors.New("generic error")))
	assert.True(t, postgres.IsUniqueViolation(newPgError("23505")))
	assert.True(t, postgres.IsUniqueViolation(fmt.Errorf("insert: %w", newPgError("23505"))))
	assert.False(t, postgres.IsUniqueViolation(newPgError("23503")))
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.True(t, postgres.IsNotFoundError(sql.ErrNoRows))
	assert.True(t, postgres.IsNotFoundError(postgres.MapError(sql.ErrNoRows)))
	assert.False(t, postgres.IsNotFoundError(errors.New("boom")))
}

func TestCheckRowsAffected(t *testing.T) {
	t.Parallel()

	require.NoError(t, postgres.CheckRowsAffected(mockResult{rowsAffected: 1}))
	assert.ErrorIs(t, postgres.CheckRowsAffected(mockResult{rowsAffected: 0}), jobqueue.ErrJobNotFound)

	err := postgres.CheckRowsAffected(mockResult{err: errors.New("driver failure")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get rows affected")

	assert.Error(t, postgres.CheckRowsAffected(nil))
}
