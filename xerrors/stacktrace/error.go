package stacktrace

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/zircuit-labs/zkr-go-sched/xerrors"
)

// depth of stack to ignore so that callers of Wrap don't see Wrap itself.
const wrapStackDepth = 4

// Disabled turns Wrap into a no-op when set.
var Disabled atomic.Bool

// Wrap attaches the current stack trace to err. An error that already
// carries a trace is returned unchanged; joined errors are wrapped
// child by child.
func Wrap(err error) error {
	if Disabled.Load() || err == nil {
		return err
	}

	if children := xerrors.Unjoin(err); len(children) > 1 {
		wrapped := make([]error, len(children))
		for i, child := range children {
			wrapped[i] = Wrap(child)
		}
		return errors.Join(wrapped...)
	}

	if _, ok := xerrors.Extract[StackTrace](err); ok {
		return err
	}
	return xerrors.Extend(GetStack(wrapStackDepth, true), err)
}

// Extract returns the StackTrace embedded in err, if any.
func Extract(err error) StackTrace {
	trace, ok := xerrors.Extract[StackTrace](err)
	if !ok {
		return nil
	}
	return trace
}

// Marshal renders the trace embedded in err for structured logging.
// It returns nil if err carries no trace.
func Marshal(err error) any {
	trace := Extract(err)
	if trace == nil {
		return nil
	}

	out := make([]map[string]string, 0, len(trace))
	for _, frame := range trace {
		out = append(out, map[string]string{
			"source": frame.File,
			"line":   strconv.Itoa(frame.LineNumber),
			"func":   frame.Function,
		})
	}
	return out
}
