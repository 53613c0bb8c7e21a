// Package lease provides cluster-wide mutual exclusion through time-bounded
// leases on named keys, backed by any store that offers three atomic
// primitives: insert-if-absent, compare-and-delete, and compare-and-extend.
//
// Leases carry a TTL rather than being held indefinitely because a process
// can crash mid-task without releasing; TTL expiry is the only recovery path
// in that case. Work that outlasts its TTL must renew periodically (see
// KeepAlive) or risk a second instance starting duplicate work; that is the
// caller's responsibility, not hidden here.
//
// Further reading: https://martin.kleppmann.com/2016/02/08/how-to-do-distributed-locking.html
package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/log/identity"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

var (
	// ErrLeaseLost indicates a renewal failed because the TTL expired and
	// another owner has taken over. The caller must abort in-progress work
	// immediately; exclusivity can no longer be assumed.
	ErrLeaseLost = errors.New("lease was unexpectedly lost")

	// ErrInvalidTTL is returned when a TTL is not positive.
	ErrInvalidTTL = errors.New("lease ttl must be greater than zero")
)

// Store is the storage backend for leases. All three operations must be
// atomic; a read-modify-write implementation would reintroduce exactly the
// race this package exists to prevent.
type Store interface {
	// TryInsert records (key, owner, expiresAt) if no live record for key
	// exists. A record whose expiry has passed counts as absent. It reports
	// whether the insert happened.
	TryInsert(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error)

	// CompareAndDelete removes the record for key only while owner still
	// holds it. It reports whether a record was removed.
	CompareAndDelete(ctx context.Context, key, owner string) (bool, error)

	// CompareAndExtend moves the expiry of key only while owner still holds
	// it and the record is live. It reports whether the extension happened.
	CompareAndExtend(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error)
}

// Lease is a time-bounded cluster-wide mutual-exclusion grant on a key.
type Lease struct {
	Key       string
	Owner     string
	ExpiresAt time.Time
}

// Coordinator acquires, renews, and releases leases against a Store on
// behalf of one owner identity.
type Coordinator struct {
	store Store
	opts  options
}

type options struct {
	owner  string
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option is an option func for New.
type Option func(options *options)

// WithOwner overrides the owner identity recorded on acquired leases.
// The default is this process's instance id.
func WithOwner(owner string) Option {
	return func(options *options) {
		options.owner = owner
	}
}

// WithClock substitutes the clock used for expiry calculations.
// Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// New creates a Coordinator over the given store.
func New(store Store, opts ...Option) *Coordinator {
	_, instanceID := identity.WhoAmI()
	options := options{
		owner:  instanceID,
		clock:  clockwork.NewRealClock(),
		logger: log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	options.logger = options.logger.With(slog.String("owner", options.owner))

	return &Coordinator{
		store: store,
		opts:  options,
	}
}

// Owner returns the identity recorded on leases this coordinator acquires.
func (c *Coordinator) Owner() string {
	return c.opts.owner
}

// TryAcquire attempts to take the lease on key for ttl. It reports false,
// without error, when another owner currently holds it; losing the race is
// an expected outcome, not a failure.
func (c *Coordinator) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	if ttl <= 0 {
		return nil, false, stacktrace.Wrap(ErrInvalidTTL)
	}

	expiresAt := c.opts.clock.Now().Add(ttl).UTC()
	ok, err := c.store.TryInsert(ctx, key, c.opts.owner, expiresAt)
	if err != nil {
		return nil, false, stacktrace.Wrap(err)
	}
	if !ok {
		c.opts.logger.Debug("lease held elsewhere", slog.String("key", key))
		return nil, false, nil
	}

	c.opts.logger.Info("lease acquired",
		slog.String("key", key), slog.Time("expires_at", expiresAt))
	return &Lease{Key: key, Owner: c.opts.owner, ExpiresAt: expiresAt}, true, nil
}

// Renew extends the lease by ttl from now. It fails with ErrLeaseLost when
// ownership has moved; the caller must then abort its in-progress work.
func (c *Coordinator) Renew(ctx context.Context, l *Lease, ttl time.Duration) error {
	if ttl <= 0 {
		return stacktrace.Wrap(ErrInvalidTTL)
	}

	expiresAt := c.opts.clock.Now().Add(ttl).UTC()
	ok, err := c.store.CompareAndExtend(ctx, l.Key, l.Owner, expiresAt)
	if err != nil {
		return stacktrace.Wrap(err)
	}
	if !ok {
		c.opts.logger.Warn("lease renewal failed - ownership moved", slog.String("key", l.Key))
		return errcontext.Add(stacktrace.Wrap(ErrLeaseLost), slog.String("key", l.Key))
	}

	l.ExpiresAt = expiresAt
	c.opts.logger.Debug("lease renewed",
		slog.String("key", l.Key), slog.Time("expires_at", expiresAt))
	return nil
}

// Release deletes the lease record if and only if this owner still holds
// it. Releasing a lease that has already expired and been re-granted is a
// deliberate no-op: the new owner's record must not be touched.
func (c *Coordinator) Release(ctx context.Context, l *Lease) error {
	ok, err := c.store.CompareAndDelete(ctx, l.Key, l.Owner)
	if err != nil {
		c.opts.logger.Warn("failed to release lease", slog.String("key", l.Key), log.ErrAttr(err))
		return stacktrace.Wrap(err)
	}
	if !ok {
		c.opts.logger.Debug("lease already reclaimed", slog.String("key", l.Key))
		return nil
	}

	c.opts.logger.Info("lease released", slog.String("key", l.Key))
	return nil
}

// KeepAlive renews the lease every interval until ctx is done, for work that
// outlasts a single TTL. The interval must be well under the ttl. It returns
// nil once ctx is done, or ErrLeaseLost as soon as a renewal fails.
func (c *Coordinator) KeepAlive(ctx context.Context, l *Lease, ttl, interval time.Duration) error {
	ticker := c.opts.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if err := c.Renew(ctx, l, ttl); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
