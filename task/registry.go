package task

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const defaultGraceBound = time.Second * 30

// Registry is the process-wide collection of tasks. It is constructed once
// at boot, exclusively owns its tasks, and serializes all management
// operations against each other. Task execution itself is not serialized;
// tasks run concurrently and independently.
type Registry struct {
	mu      sync.Mutex
	tasks   map[string]Task
	order   []string
	started bool
	opts    registryOptions
}

type registryOptions struct {
	enabled    bool
	graceBound time.Duration
	logger     *slog.Logger
}

// RegistryOption is an option func for NewRegistry.
type RegistryOption func(options *registryOptions)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(options *registryOptions) {
		options.logger = logger
	}
}

// WithEnabled controls whether StartAll does anything. Disabling lets an
// operator keep task registrations in place while running them on only one
// instance of a horizontally scaled deployment.
func WithEnabled(enabled bool) RegistryOption {
	return func(options *registryOptions) {
		options.enabled = enabled
	}
}

// WithGraceBound sets the default time allowed for a task to finish in-flight
// work during Stop. Tasks implementing GraceBounded override it individually.
func WithGraceBound(d time.Duration) RegistryOption {
	return func(options *registryOptions) {
		if d <= 0 {
			return
		}
		options.graceBound = d
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	options := registryOptions{
		enabled:    true,
		graceBound: defaultGraceBound,
		logger:     log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Registry{
		tasks: map[string]Task{},
		opts:  options,
	}
}

// Enabled reports whether StartAll will start anything.
func (r *Registry) Enabled() bool {
	return r.opts.enabled
}

// Names returns the registered identities in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Add registers a task. If the registry has already been started, the task
// is started immediately; if that start fails, the task is not registered
// and its identity stays free. Otherwise it stays in its Created state
// until StartAll. Fails with ErrDuplicateIdentity if the name is taken.
func (r *Registry) Add(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tasks[name]; exists {
		return errcontext.Add(stacktrace.Wrap(ErrDuplicateIdentity), slog.String("task", name))
	}
	r.tasks[name] = t
	r.order = append(r.order, name)

	if r.started {
		if err := t.Start(); err != nil {
			// keep Add atomic: a task that failed to start is not
			// registered, so the identity stays free
			delete(r.tasks, name)
			r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
			r.opts.logger.Error("failed to start task on add", slog.String("task", name), log.ErrAttr(err))
			return errcontext.Add(stacktrace.Wrap(err), slog.String("task", name))
		}
		r.opts.logger.Info("task started", slog.String("task", name))
	}
	return nil
}

// Remove stops a task, waiting out the grace bound, then drops it from the
// registry. Fails with ErrNotFound for an unknown identity.
func (r *Registry) Remove(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, exists := r.tasks[name]
	if !exists {
		return errcontext.Add(stacktrace.Wrap(ErrNotFound), slog.String("task", name))
	}

	r.stopTask(ctx, t)
	delete(r.tasks, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return nil
}

// StartAll starts every registered task in registration order. A failure to
// start one task is logged and does not prevent starting the rest; the
// joined errors are returned. When the registry is disabled this is a no-op.
func (r *Registry) StartAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.opts.enabled {
		r.opts.logger.Info("task registry disabled - not starting tasks")
		return nil
	}
	r.started = true

	var errs []error
	for _, name := range r.order {
		t := r.tasks[name]
		if err := t.Start(); err != nil {
			r.opts.logger.Error("failed to start task", slog.String("task", name), log.ErrAttr(err))
			errs = append(errs, errcontext.Add(stacktrace.Wrap(err), slog.String("task", name)))
			continue
		}
		r.opts.logger.Info("task started", slog.String("task", name))
	}
	return errors.Join(errs...)
}

// StopAll stops every task in reverse registration order, waiting out each
// task's grace bound. A task that exceeds its bound is logged as a warning
// and abandoned; shutdown proceeds regardless.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.started = false

	var errs []error
	for _, name := range slices.Backward(r.order) {
		if err := r.stopTask(ctx, r.tasks[name]); err != nil {
			errs = append(errs, errcontext.Add(err, slog.String("task", name)))
		}
	}
	return errors.Join(errs...)
}

// stopTask stops a single task bounded by its grace period. A grace period
// overrun is logged as a warning and not returned as an error.
func (r *Registry) stopTask(ctx context.Context, t Task) error {
	grace := r.opts.graceBound
	if gb, ok := t.(GraceBounded); ok && gb.GraceBound() > 0 {
		grace = gb.GraceBound()
	}

	stopCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	err := t.Stop(stopCtx)
	switch {
	case err == nil:
		r.opts.logger.Info("task stopped", slog.String("task", t.Name()))
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		r.opts.logger.Warn("task did not stop within grace bound",
			slog.String("task", t.Name()),
			slog.Duration("grace", grace),
		)
		return nil
	default:
		r.opts.logger.Error("failed to stop task", slog.String("task", t.Name()), log.ErrAttr(err))
		return stacktrace.Wrap(err)
	}
}
