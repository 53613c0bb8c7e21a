// Package calm converts panics into classified errors with stack traces.
package calm

import (
	"fmt"

	"github.com/zircuit-labs/zkr-go-sched/xerrors"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

// depth of stack to ignore so that the trace of a recovered panic
// does not include the deferred recovery function itself.
const panicStackDepth = 3

// Unpanic calls f, returning any panic as an error of class Panic.
// WARNING: a panic in a goroutine spawned by f cannot be recovered here;
// such goroutines must guard themselves.
func Unpanic(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e := fmt.Errorf("panic: %v", r)
			e = xerrors.Extend(stacktrace.GetStack(panicStackDepth, true), e)
			err = errclass.WrapAs(e, errclass.Panic)
		}
	}()

	return f()
}
