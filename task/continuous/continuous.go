// Package continuous provides a Task for work that runs its own loop rather
// than being driven by a timer, eg blocking on an external queue. The loop
// must watch its context and return promptly when cancelled; that is what
// makes Stop cooperative.
package continuous

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/zircuit-labs/zkr-go-sched/calm"
	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/task"
)

// Loop is the user-supplied body of a continuous task. Run is expected to
// block on its own wait condition and return nil once ctx is done.
type Loop interface {
	Run(ctx context.Context) error
}

// LoopFunc adapts a function to the Loop interface.
type LoopFunc func(ctx context.Context) error

func (f LoopFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Task runs a Loop until stopped.
type Task struct {
	task.Lifecycle

	name string
	loop Loop
	opts options
}

type options struct {
	graceBound time.Duration
	logger     *slog.Logger
}

// Option is an option func for New.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithGraceBound overrides the registry's default shutdown grace period for
// this task.
func WithGraceBound(d time.Duration) Option {
	return func(options *options) {
		options.graceBound = d
	}
}

// New creates a continuous Task. It does not begin running until Start.
func New(name string, loop Loop, opts ...Option) *Task {
	options := options{
		logger: log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Task{
		name: name,
		loop: loop,
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

// Start launches the loop.
func (t *Task) Start() error {
	ctx, finish, err := t.Begin()
	if err != nil {
		return err
	}

	go func() {
		defer finish()

		err := calm.Unpanic(func() error {
			return t.loop.Run(ctx)
		})
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		default:
			// A loop error ends this task but must never destabilize
			// the rest of the process.
			t.opts.logger.Error("continuous task failed",
				slog.String("task", t.name), log.ErrAttr(err))
		}
	}()
	return nil
}

// Stop signals cancellation and waits for the loop to return until ctx is
// done.
func (t *Task) Stop(ctx context.Context) error {
	return t.End(ctx)
}
