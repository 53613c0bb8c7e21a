// Package stacktrace captures program stack traces and attaches them to errors.
package stacktrace

import (
	"regexp"
	"runtime"
	"strings"
)

const (
	maxFrames     = 50
	runtimePrefix = "runtime."
	testingPrefix = "testing."
)

// matches source files belonging to the go runtime,
// eg `/usr/local/go/src/runtime/panic.go`
var runtimeRegex = regexp.MustCompile(`go[^/]*/src/runtime/[^.]+\.go`)

// matches source files belonging to the go testing package
var testingRegex = regexp.MustCompile(`go[^/]*/src/testing/[^.]+\.go`)

// Frame is one human-readable stack frame.
type Frame struct {
	File       string `json:"source"`
	LineNumber int    `json:"line"`
	Function   string `json:"func"`
}

// StackTrace is a series of frames, innermost first.
type StackTrace []Frame

// GetStack captures the current stack trace.
// skipFrames is the number of frames to skip; 1 makes GetStack itself the
// first frame. skipRuntime drops frames from the go runtime and testing
// packages.
func GetStack(skipFrames int, skipRuntime bool) StackTrace {
	var trace StackTrace

	pc := make([]uintptr, maxFrames)
	n := runtime.Callers(skipFrames, pc)
	frames := runtime.CallersFrames(pc[:n])

	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		if skipRuntime {
			if strings.HasPrefix(frame.Function, runtimePrefix) && runtimeRegex.MatchString(frame.File) {
				continue
			}
			if strings.HasPrefix(frame.Function, testingPrefix) && testingRegex.MatchString(frame.File) {
				continue
			}
		}
		trace = append(trace, Frame{
			File:       frame.File,
			LineNumber: frame.Line,
			Function:   frame.Function,
		})
	}

	return trace
}
