// Package pgstore provides a lease.Store backed by a Postgres table. Each
// operation is a single statement, so atomicity comes from the database:
// TryInsert is an upsert whose update arm only fires on expired rows, and
// the compare operations are conditional DELETE/UPDATE statements whose
// affected-row count decides the comparison.
package pgstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

type leaseRecord struct {
	bun.BaseModel `bun:"table:task_leases,alias:lease"`

	Key       string    `bun:"key,pk"`
	Owner     string    `bun:"owner,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// Store is a lease.Store on a task_leases table.
type Store struct {
	db   *bun.DB
	opts options
}

type options struct {
	clock clockwork.Clock
}

// Option is an option func for New.
type Option func(options *options)

// WithClock substitutes the clock used for expiry comparisons. Intended
// for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// New returns a Store on db. The task_leases table must exist; see
// EnsureSchema.
func New(db *bun.DB, opts ...Option) *Store {
	options := options{
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{db: db, opts: options}
}

// EnsureSchema creates the task_leases table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*leaseRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return stacktrace.Wrap(err)
	}
	return nil
}

// TryInsert records the lease unless a live row for key exists. A conflicting
// row is overwritten only when its expiry has passed.
func (s *Store) TryInsert(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	rec := leaseRecord{Key: key, Owner: owner, ExpiresAt: expiresAt}

	res, err := s.db.NewInsert().
		Model(&rec).
		On("CONFLICT (key) DO UPDATE").
		Set("owner = EXCLUDED.owner").
		Set("expires_at = EXCLUDED.expires_at").
		Where("lease.expires_at <= ?", s.opts.clock.Now()).
		Exec(ctx)
	return rowChanged(res, err)
}

// CompareAndDelete removes the row for key only while owner holds it.
func (s *Store) CompareAndDelete(ctx context.Context, key, owner string) (bool, error) {
	res, err := s.db.NewDelete().
		Model((*leaseRecord)(nil)).
		Where("key = ?", key).
		Where("owner = ?", owner).
		Exec(ctx)
	return rowChanged(res, err)
}

// CompareAndExtend moves the expiry of key only while owner holds a live
// row.
func (s *Store) CompareAndExtend(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*leaseRecord)(nil)).
		Set("expires_at = ?", expiresAt).
		Where("key = ?", key).
		Where("owner = ?", owner).
		Where("expires_at > ?", s.opts.clock.Now()).
		Exec(ctx)
	return rowChanged(res, err)
}

func rowChanged(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, stacktrace.Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, stacktrace.Wrap(err)
	}
	return n > 0, nil
}
