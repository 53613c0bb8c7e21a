// Package log builds slog loggers with the standard service defaults.
// Errors logged through ErrAttr are expanded with any stack trace, class,
// or context attached via the xerrors packages.
package log

import (
	"log/slog"
	"os"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/rs/zerolog"
	slogcommon "github.com/samber/slog-common"
	slogzerolog "github.com/samber/slog-zerolog/v2"

	"github.com/zircuit-labs/zkr-go-sched/version"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errclass"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/errcontext"
	"github.com/zircuit-labs/zkr-go-sched/xerrors/stacktrace"
)

const (
	ErrorKey      = "error"
	SourceKey     = "source"
	StackTraceKey = "stacktrace"
	ErrClassKey   = "class"
)

var logLevel = &slog.LevelVar{}

// SetLogLevel adjusts the level of all loggers created by NewLogger.
// An empty string is a no-op.
func SetLogLevel(level string) error {
	if level != "" {
		return logLevel.UnmarshalText([]byte(level))
	}
	return nil
}

// ErrAttr is a helper for logging error values.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrorKey, err)
}

type options struct {
	serviceName string
	instanceID  string
}

// Option is an option func for NewLogger.
type Option func(options *options)

// WithServiceName sets the service name included in every record.
func WithServiceName(name string) Option {
	return func(options *options) {
		options.serviceName = name
	}
}

// WithInstanceID sets the instance id included in every record.
func WithInstanceID(id string) Option {
	return func(options *options) {
		options.instanceID = id
	}
}

// NewLogger creates an slog logger backed by zerolog with the
// standard service defaults.
func NewLogger(opts ...Option) *slog.Logger {
	options := options{
		serviceName: "unknown",
	}
	for _, opt := range opts {
		opt(&options)
	}

	// ms granularity is sufficient
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	zctx := zerolog.
		New(os.Stdout).With(). // stdout, not stderr
		Timestamp().
		Str("service", options.serviceName).
		Str("git_commit", version.Info.GitCommit).
		Str("version", version.Info.Version)
	if options.instanceID != "" {
		zctx = zctx.Str("instance", options.instanceID)
	}
	zlogger := zctx.Logger()

	return slog.New(slogzerolog.Option{
		Converter: Converter,
		Level:     logLevel,
		Logger:    &zlogger,
	}.NewZerologHandler())
}

// NewTestLogger creates a logger for tests.
// NOTE: since this logger uses t.Log, output only appears when the test
// fails, and calling it after the test completes panics. The panic can be
// useful for flushing out goroutine leaks.
func NewTestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slogt.New(t, slogt.JSON()).With(slog.String("test", t.Name()))
}

// Converter is slogcommon.DefaultConverter with error attributes expanded
// using the data the xerrors packages attach. Exported for use in tests.
func Converter(addSource bool, replaceAttr func(groups []string, a slog.Attr) slog.Attr, loggerAttr []slog.Attr, groups []string, record *slog.Record) map[string]any {
	attrs := slogcommon.AppendRecordAttrsToAttrs(loggerAttr, groups, record)
	attrs = expandErrors(attrs)
	if addSource {
		attrs = append(attrs, slogcommon.Source(SourceKey, record))
	}
	attrs = slogcommon.ReplaceAttrs(replaceAttr, []string{}, attrs...)
	return slogcommon.AttrsToMap(attrs...)
}

// expandErrors replaces any "error" attribute holding an error value with its
// message, and appends an "error_context" group carrying the stack trace,
// class, and context attributes embedded in that error.
func expandErrors(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Key != ErrorKey {
			out = append(out, attr)
			continue
		}
		err, ok := attr.Value.Any().(error)
		if !ok || err == nil {
			out = append(out, attr)
			continue
		}

		out = append(out, slog.String(ErrorKey, err.Error()))

		var detail []any
		if trace := stacktrace.Marshal(err); trace != nil {
			detail = append(detail, slog.Any(StackTraceKey, trace))
		}
		if class := errclass.GetClass(err); class != errclass.Unknown {
			detail = append(detail, slog.String(ErrClassKey, class.String()))
		}
		for _, ctxAttr := range errcontext.Get(err).Flatten() {
			detail = append(detail, ctxAttr)
		}
		if len(detail) > 0 {
			out = append(out, slog.Group("error_context", detail...))
		}
	}
	return out
}
