package pgstore_test

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/zircuit-labs/zkr-go-sched/lease/pgstore"
)

const ttl = time.Second * 5

func newStore(t *testing.T) (*pgstore.Store, sqlmock.Sqlmock, clockwork.Clock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := clockwork.NewFakeClock()
	store := pgstore.New(bun.NewDB(db, pgdialect.New()), pgstore.WithClock(clock))
	return store, mock, clock
}

func TestTryInsert(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		rowsAffected int64
		expected     bool
	}{
		{
			name:         "key free or expired",
			rowsAffected: 1,
			expected:     true,
		},
		{
			name:         "live row blocks insert",
			rowsAffected: 0,
			expected:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock, clock := newStore(t)

			mock.ExpectExec(`^INSERT INTO "task_leases" AS "lease" .*ON CONFLICT \(key\) DO UPDATE SET owner = EXCLUDED\.owner, expires_at = EXCLUDED\.expires_at WHERE \(lease\.expires_at <= .*`).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			ok, err := store.TryInsert(t.Context(), "k", "instance-a", clock.Now().Add(ttl))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCompareAndDelete(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		rowsAffected int64
		expected     bool
	}{
		{
			name:         "owner holds the row",
			rowsAffected: 1,
			expected:     true,
		},
		{
			name:         "row absent or owned elsewhere",
			rowsAffected: 0,
			expected:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock, _ := newStore(t)

			mock.ExpectExec(`^DELETE FROM "task_leases" AS "lease" WHERE \(key = 'k'\) AND \(owner = 'instance-a'\)`).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			ok, err := store.CompareAndDelete(t.Context(), "k", "instance-a")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCompareAndExtend(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		rowsAffected int64
		expected     bool
	}{
		{
			name:         "owner holds a live row",
			rowsAffected: 1,
			expected:     true,
		},
		{
			name:         "row expired, absent, or owned elsewhere",
			rowsAffected: 0,
			expected:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, mock, clock := newStore(t)

			mock.ExpectExec(`^UPDATE "task_leases" AS "lease" SET expires_at = .* WHERE \(key = 'k'\) AND \(owner = 'instance-a'\) AND \(expires_at > .*`).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			ok, err := store.CompareAndExtend(t.Context(), "k", "instance-a", clock.Now().Add(ttl))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecErrorIsPropagated(t *testing.T) {
	t.Parallel()
	store, mock, clock := newStore(t)

	boom := errors.New("connection reset")
	mock.ExpectExec(`^INSERT INTO "task_leases"`).WillReturnError(boom)

	_, err := store.TryInsert(t.Context(), "k", "instance-a", clock.Now().Add(ttl))
	assert.ErrorIs(t, err, boom)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()
	store, mock, _ := newStore(t)

	mock.ExpectExec(`^CREATE TABLE IF NOT EXISTS "task_leases"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.EnsureSchema(t.Context()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
