// Package ossignal provides a task that listens for termination signals
// from the operating system and hands them to a callback, typically one
// that begins registry shutdown.
package ossignal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zircuit-labs/zkr-go-sched/log"
	"github.com/zircuit-labs/zkr-go-sched/task/continuous"
)

// DefaultSignals are the os signals listened for unless overridden.
var DefaultSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGQUIT,
}

type options struct {
	signals []os.Signal
	logger  *slog.Logger
}

// Option is an option func for NewTask.
type Option func(options *options)

// WithLogger sets the logger to be used.
func WithLogger(logger *slog.Logger) Option {
	return func(options *options) {
		options.logger = logger
	}
}

// WithSignals overrides the default signals being listened for.
func WithSignals(signals ...os.Signal) Option {
	return func(options *options) {
		options.signals = signals
	}
}

// NewTask creates a continuous task that waits for a termination signal and
// invokes handle once, then exits. Stopping the task stops listening.
func NewTask(handle func(os.Signal), opts ...Option) *continuous.Task {
	options := options{
		signals: DefaultSignals,
		logger:  log.NewNilLogger(),
	}
	for _, opt := range opts {
		opt(&options)
	}

	loop := continuous.LoopFunc(func(ctx context.Context) error {
		// the channel belongs to this run: a stopped task may be
		// started again, and a restart must register a fresh listener
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, options.signals...)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			// Logged as an error even though often expected: if the OS is
			// stopping a service unexpectedly, this may be the earliest
			// warning sign, and that is worth a false-positive alert.
			options.logger.Error("os signal received", slog.String("signal", sig.String()))
			if handle != nil {
				handle(sig)
			}
		case <-ctx.Done():
		}
		return nil
	})

	return continuous.New("os signal task", loop, continuous.WithLogger(options.logger))
}
