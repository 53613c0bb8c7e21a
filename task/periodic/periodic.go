// Package periodic provides a Task that executes a work unit at a fixed
// interval. Each execution (tick) runs inside a fresh scope, and a failing
// tick never stops the task: the error is logged and the next cycle
// proceeds. Within one task ticks never overlap; if a tick outlasts the
// interval, the timer coalesces and the next tick starts immediately after
// the current one finishes.
package periodic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/zircuit-labs/zkr-go-sched/calm"
	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/scope"
	"github.com/zircuit-labs/zkr-go-sched/task"
	"github.com/zircuit-labs/zkr-go-sched/timer"
	"github.com/zircuit-labs/zkr-go-sched/timer/jitter"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const defaultInterval = time.Minute

// Work is the user-supplied function executed once per tick. The scope
// context sc belongs exclusively to this tick and is released when the tick
// ends, regardless of outcome.
type Work interface {
	Run(ctx context.Context, sc scope.Context) error
}

// WorkFunc adapts a function to the Work interface.
type WorkFunc func(ctx context.Context, sc scope.Context) error

func (f WorkFunc) Run(ctx context.Context, sc scope.Context) error {
	return f(ctx, sc)
}

// Task periodically runs a work unit.
type Task struct {
	task.Lifecycle

	name string
	work Work
	opts options

	mu sync.Mutex
	tm *timer.Timer
}

type options struct {
	interval   time.Duration
	runAtStart bool
	graceBound time.Duration
	resolver   scope.Resolver
	logger     *slog.Logger
	clock      clockwork.Clock
	jitter     jitter.Transformation
}

// Option is an option func for New.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithInterval sets the tick interval.
// Non-positive durations are ignored.
func WithInterval(d time.Duration) Option {
	return func(options *options) {
		if d <= 0 {
			return
		}
		options.interval = d
	}
}

// WithRunAtStart executes the work unit immediately when the task starts,
// rather than waiting for the first interval.
func WithRunAtStart() Option {
	return func(options *options) {
		options.runAtStart = true
	}
}

// WithGraceBound overrides the registry's default shutdown grace period for
// this task.
func WithGraceBound(d time.Duration) Option {
	return func(options *options) {
		options.graceBound = d
	}
}

// WithScopeResolver sets the resolver used to create each tick's scope.
func WithScopeResolver(resolver scope.Resolver) Option {
	return func(options *options) {
		options.resolver = resolver
	}
}

// WithClock substitutes the timer clock. Intended for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(options *options) {
		options.clock = clock
	}
}

// WithJitter applies jitter to each wait cycle.
func WithJitter(transform jitter.Transformation) Option {
	return func(options *options) {
		options.jitter = transform
	}
}

// New creates a periodic Task. It does not begin running until Start.
func New(name string, work Work, opts ...Option) *Task {
	options := options{
		interval: defaultInterval,
		resolver: scope.NewNopResolver(),
		logger:   log.NewNilLogger(),
		clock:    clockwork.NewRealClock(),
		jitter:   jitter.None(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Task{
		name: name,
		work: work,
		opts: options,
	}
}

// Name returns the task identity.
func (t *Task) Name() string {
	return t.name
}

// GraceBound returns the per-task shutdown grace override, or zero when the
// registry default applies.
func (t *Task) GraceBound() time.Duration {
	return t.opts.graceBound
}

// Start begins the timer loop. A stopped task may be started again; each
// start creates a fresh timer.
func (t *Task) Start() error {
	ctx, finish, err := t.Begin()
	if err != nil {
		return err
	}

	tm, err := timer.New(t.opts.interval,
		timer.WithClock(t.opts.clock),
		timer.WithJitter(t.opts.jitter),
	)
	if err != nil {
		finish()
		return stacktrace.Wrap(err)
	}

	t.mu.Lock()
	t.tm = tm
	t.mu.Unlock()

	go t.run(ctx, tm, finish)
	return nil
}

// Stop halts the timer so no new tick begins, then waits for any in-flight
// tick until ctx is done.
func (t *Task) Stop(ctx context.Context) error {
	return t.End(ctx)
}

// SetInterval adjusts the tick interval. While running, the change takes
// effect on the next wait cycle; it also becomes the initial interval of
// future restarts.
func (t *Task) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opts.interval = d
	if t.tm != nil {
		t.tm.SetPeriod(d)
	}
}

// TriggerNow requests an immediate tick, skipping the remainder of the
// current wait. A no-op when the task is not running.
func (t *Task) TriggerNow() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tm != nil {
		t.tm.TriggerNow()
	}
}

func (t *Task) run(ctx context.Context, tm *timer.Timer, finish func()) {
	defer finish()
	defer tm.Stop()

	tm.Start()

	if t.opts.runAtStart {
		t.executeTick(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tm.C():
			// a coalesced tick may still be pending when Stop cancels
			// the context; it must not begin a new cycle
			if ctx.Err() != nil {
				return
			}
			// one tick at a time; the timer coalesces while this runs
			t.executeTick(ctx)
		}
	}
}

// executeTick runs the work unit once inside a fresh scope. The scope is
// closed on every exit path; a work unit error or panic is logged and
// contained here.
func (t *Task) executeTick(ctx context.Context) {
	sc, err := t.opts.resolver.NewScope()
	if err != nil {
		t.opts.logger.Error("failed to create execution scope",
			slog.String("task", t.name), log.ErrAttr(err))
		return
	}
	defer func() {
		if cerr := sc.Close(); cerr != nil {
			t.opts.logger.Warn("failed to close execution scope",
				slog.String("task", t.name), log.ErrAttr(cerr))
		}
	}()

	err = calm.Unpanic(func() error {
		return t.work.Run(ctx, sc)
	})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// shutdown interrupted the tick; not a work failure
	default:
		t.opts.logger.Error("work unit failed",
			slog.String("task", t.name), log.ErrAttr(err))
	}
}
