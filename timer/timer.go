// Package timer provides a cooperative interval timer for periodic tasks.
//
// Unlike time.Ticker, the timer coalesces: if a tick has been signalled but
// not yet consumed, further ticks collapse into it, so a slow consumer sees
// "at least one tick occurred" rather than a queue of stale ticks. The
// period can be changed between cycles and the current sleep can be
// short-circuited without terminating the loop.
package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-go-sched/timer/jitter"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

// ErrInvalidPeriod is returned by New when the period is not positive.
var ErrInvalidPeriod = errors.New("timer period must be greater than zero")

// Timer signals on C after every period. A Timer is one-shot with respect to
// its lifecycle: once stopped it cannot be restarted; create a new Timer
// instead.
type Timer struct {
	clock  clockwork.Clock
	jitter jitter.Transformation

	mu     sync.Mutex
	period time.Duration

	ticks chan struct{}
	wake  chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

type options struct {
	clock  clockwork.Clock
	jitter jitter.Transformation
}

// Option is an option func for New.
type Option func(options *options)

// WithClock substitutes the clock used for waiting. Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithJitter applies the given transformation to the period before each
// wait cycle.
func WithJitter(transform jitter.Transformation) Option {
	return func(options *options) {
		options.jitter = transform
	}
}

// New creates a Timer with the given period. The timer does not begin
// counting until Start is called.
func New(period time.Duration, opts ...Option) (*Timer, error) {
	if period <= 0 {
		return nil, stacktrace.Wrap(ErrInvalidPeriod)
	}

	options := options{
		clock:  clockwork.NewRealClock(),
		jitter: jitter.None(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Timer{
		clock:  options.clock,
		jitter: options.jitter,
		period: period,
		ticks:  make(chan struct{}, 1),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}, nil
}

// Start launches the timer loop. Subsequent calls are no-ops.
func (t *Timer) Start() {
	t.startOnce.Do(func() {
		go t.loop()
	})
}

// C returns the tick channel. Each elapsed period delivers at most one
// pending signal; an unconsumed signal absorbs later ones.
func (t *Timer) C() <-chan struct{} {
	return t.ticks
}

// SetPeriod updates the wait duration for future cycles. The cycle currently
// in progress is unaffected; use TriggerNow to cut it short. Non-positive
// durations are ignored.
func (t *Timer) SetPeriod(period time.Duration) {
	if period <= 0 {
		return
	}
	t.mu.Lock()
	t.period = period
	t.mu.Unlock()
}

// Period returns the current period.
func (t *Timer) Period() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.period
}

// TriggerNow cancels the current sleep and signals a tick immediately.
// The loop keeps running on its normal period afterwards.
func (t *Timer) TriggerNow() {
	select {
	case t.wake <- struct{}{}:
	default: // a wake is already pending
	}
}

// Stop terminates the loop promptly, even mid-sleep. Idempotent.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
	})
}

func (t *Timer) loop() {
	for {
		wait := t.clock.NewTimer(t.jitter(t.Period()))

		select {
		case <-wait.Chan():
			t.signal()
		case <-t.wake:
			stopTimer(wait)
			t.signal()
		case <-t.done:
			stopTimer(wait)
			return
		}
	}
}

// signal delivers a tick, coalescing with any pending one.
func (t *Timer) signal() {
	select {
	case t.ticks <- struct{}{}:
	default:
	}
}

func stopTimer(wait clockwork.Timer) {
	if !wait.Stop() {
		select {
		case <-wait.Chan():
		default:
		}
	}
}
