// Package memstore provides an in-process lease.Store. It is the reference
// implementation of the store contract and the backend of choice for tests
// and single-binary deployments; real clusters want a shared backend such as
// natskv or pgstore.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type record struct {
	owner     string
	expiresAt time.Time
}

// Store is a lease.Store backed by a mutex-guarded map. All operations are
// atomic under the mutex.
type Store struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	records map[string]record
}

type options struct {
	clock clockwork.Clock
}

// Option is an option func for New.
type Option func(options *options)

// WithClock substitutes the clock used for expiry checks. Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	options := options{
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Store{
		clock:   options.clock,
		records: map[string]record{},
	}
}

// TryInsert records the lease unless a live record for key exists.
// An expired record is overwritten as if absent.
func (s *Store) TryInsert(_ context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, exists := s.records[key]; exists && rec.expiresAt.After(s.clock.Now()) {
		return false, nil
	}
	s.records[key] = record{owner: owner, expiresAt: expiresAt}
	return true, nil
}

// CompareAndDelete removes the record for key only while owner holds it.
func (s *Store) CompareAndDelete(_ context.Context, key, owner string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists || rec.owner != owner {
		return false, nil
	}
	delete(s.records, key)
	return true, nil
}

// CompareAndExtend moves the expiry of key only while owner holds a live
// record. An expired record cannot be extended; the owner has already lost
// exclusivity.
func (s *Store) CompareAndExtend(_ context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists || rec.owner != owner || !rec.expiresAt.After(s.clock.Now()) {
		return false, nil
	}
	rec.expiresAt = expiresAt
	s.records[key] = rec
	return true, nil
}
