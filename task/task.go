// Package task defines background tasks and the process-wide registry that
// owns them. A task is an independently schedulable unit of recurring or
// continuous work; the registry starts every registered task at boot and
// stops them all, bounded by a grace period, at shutdown.
package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

var (
	// ErrDuplicateIdentity is returned by Registry.Add when a task with the
	// same name is already registered.
	ErrDuplicateIdentity = errors.New("task identity already registered")

	// ErrNotFound is returned by Registry.Remove for an unknown identity.
	ErrNotFound = errors.New("task identity not found")

	// ErrAlreadyStarted is returned by Start on a task that is already
	// running or still stopping.
	ErrAlreadyStarted = errors.New("task already started")
)

// State is the lifecycle state of a task.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

// String implements the stringer interface.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// Task represents a long-lived unit of background work.
type Task interface {
	// Name provides the stable task identity, used as the registry key,
	// the cluster lock key, and for logging.
	Name() string

	// Start begins execution. A stopped task may be started again.
	Start() error

	// Stop halts execution cooperatively: no new work begins, and any work
	// in flight is awaited until ctx is done. Stopping a task that is not
	// running is a no-op.
	Stop(ctx context.Context) error

	// State reports the current lifecycle state.
	State() State
}

// GraceBounded is implemented by tasks that override the registry's default
// shutdown grace period.
type GraceBounded interface {
	GraceBound() time.Duration
}

// Lifecycle implements the Created/Running/Stopping/Stopped state machine
// shared by task implementations. The zero value is ready to use.
type Lifecycle struct {
	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// State reports the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Begin transitions to Running. It returns the context governing the run and
// a finish func that the run goroutine must call when it exits, on every
// path.
func (l *Lifecycle) Begin() (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRunning || l.state == StateStopping {
		return nil, nil, stacktrace.Wrap(ErrAlreadyStarted)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.state = StateRunning

	finish := func() {
		close(done)
		l.mu.Lock()
		// guard against a late finish from a previous run
		if l.done == done {
			l.state = StateStopped
		}
		l.mu.Unlock()
	}
	return ctx, finish, nil
}

// End transitions to Stopping, cancels the run context, and waits for the
// run goroutine to finish or ctx to expire. On expiry the run keeps draining
// in the background and the state reaches Stopped once it does.
func (l *Lifecycle) End(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateRunning {
		l.mu.Unlock()
		return nil
	}
	l.state = StateStopping
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()

	select {
	case <-done:
		l.mu.Lock()
		if l.done == done {
			l.state = StateStopped
		}
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return stacktrace.Wrap(ctx.Err())
	}
}
