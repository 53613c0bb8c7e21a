// Package natskv provides a lease.Store backed by a NATS JetStream
// key-value bucket. Atomicity comes from KV revision fencing: inserts use
// Create, which fails if the key exists, and every delete or update names
// the revision it read, so a record that changed underneath is never
// touched.
package natskv

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const (
	defaultBucket = "task_leases"

	// bucketTTL is a backstop: records from instances that died without
	// releasing are purged by the server eventually, even if nothing
	// ever contends for their keys again. Lease TTLs must stay well
	// under this.
	bucketTTL = time.Minute * 15
)

type record struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store is a lease.Store on a JetStream KV bucket.
type Store struct {
	kv   jetstream.KeyValue
	opts options
}

type options struct {
	bucket string
	clock  clockwork.Clock
	logger *slog.Logger
}

// Option is an option func for New.
type Option func(options *options)

// WithBucket overrides the KV bucket name.
func WithBucket(bucket string) Option {
	return func(options *options) {
		options.bucket = bucket
	}
}

// WithClock substitutes the clock used for expiry checks. Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// New creates the KV bucket if needed and returns a Store on it.
func New(nc *nats.Conn, opts ...Option) (*Store, error) {
	options := options{
		bucket: defaultBucket,
		clock:  clockwork.NewRealClock(),
		logger: log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}

	kv, err := js.CreateOrUpdateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket:      options.bucket,
		TTL:         bucketTTL,
		Compression: true,
	})
	if err != nil {
		return nil, stacktrace.Wrap(err)
	}

	return &Store{kv: kv, opts: options}, nil
}

// TryInsert records the lease unless a live record for key exists.
func (s *Store) TryInsert(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	v, err := json.Marshal(record{Owner: owner, ExpiresAt: expiresAt})
	if err != nil {
		return false, stacktrace.Wrap(err)
	}

	for {
		_, err := s.kv.Create(ctx, key, v)
		switch {
		case errors.Is(err, jetstream.ErrKeyExists):
			// A record exists; decide below whether it still counts.
		case err != nil:
			return false, stacktrace.Wrap(err)
		default:
			return true, nil
		}

		kve, err := s.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			// Released between our Create and Get. Try again.
			continue
		case err != nil:
			return false, stacktrace.Wrap(err)
		}

		var rec record
		if err := json.Unmarshal(kve.Value(), &rec); err != nil {
			s.opts.logger.Warn("deleting garbage lease record",
				slog.String("key", key), log.ErrAttr(err))
			_ = s.kv.Delete(ctx, key, jetstream.LastRevision(kve.Revision()))
			continue
		}

		if rec.ExpiresAt.After(s.opts.clock.Now()) {
			return false, nil
		}

		// Expired. Delete at the revision we read; if another instance
		// reclaimed it first the fence fails and the next Create loses.
		_ = s.kv.Delete(ctx, key, jetstream.LastRevision(kve.Revision()))
	}
}

// CompareAndDelete removes the record for key only while owner holds it.
func (s *Store) CompareAndDelete(ctx context.Context, key, owner string) (bool, error) {
	kve, rec, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if rec.Owner != owner {
		return false, nil
	}

	err = s.kv.Delete(ctx, key, jetstream.LastRevision(kve.Revision()))
	if isRevisionMismatch(err) {
		return false, nil
	}
	if err != nil {
		return false, stacktrace.Wrap(err)
	}
	return true, nil
}

// CompareAndExtend moves the expiry of key only while owner holds a live
// record.
func (s *Store) CompareAndExtend(ctx context.Context, key, owner string, expiresAt time.Time) (bool, error) {
	kve, rec, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if rec.Owner != owner || !rec.ExpiresAt.After(s.opts.clock.Now()) {
		return false, nil
	}

	v, err := json.Marshal(record{Owner: owner, ExpiresAt: expiresAt})
	if err != nil {
		return false, stacktrace.Wrap(err)
	}

	_, err = s.kv.Update(ctx, key, v, kve.Revision())
	if isRevisionMismatch(err) {
		return false, nil
	}
	if err != nil {
		return false, stacktrace.Wrap(err)
	}
	return true, nil
}

func (s *Store) get(ctx context.Context, key string) (jetstream.KeyValueEntry, record, bool, error) {
	kve, err := s.kv.Get(ctx, key)
	switch {
	case errors.Is(err, jetstream.ErrKeyNotFound):
		return nil, record{}, false, nil
	case err != nil:
		return nil, record{}, false, stacktrace.Wrap(err)
	}

	var rec record
	if err := json.Unmarshal(kve.Value(), &rec); err != nil {
		// Garbage records are invisible here; TryInsert cleans them up.
		s.opts.logger.Warn("ignoring garbage lease record",
			slog.String("key", key), log.ErrAttr(err))
		return nil, record{}, false, nil
	}
	return kve, rec, true, nil
}

// isRevisionMismatch reports whether err means the key changed after we
// read it. That is a lost comparison, not a failure.
func isRevisionMismatch(err error) bool {
	if errors.Is(err, jetstream.ErrKeyExists) {
		return true
	}
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
