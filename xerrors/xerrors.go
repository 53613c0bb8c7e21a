// Package xerrors wraps errors with arbitrary typed data that can be
// recovered later, even through deep chains of wrapping.
package xerrors

import (
	"errors"
	"log/slog"
)

// DataError carries a value of type T alongside an underlying error.
type DataError[T any] struct {
	Data T
	err  error
}

// Error returns the message of the underlying error.
func (e DataError[T]) Error() string {
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e DataError[T]) Unwrap() error {
	return e.err
}

// LogValue implements slog.LogValuer so that the attached data is
// rendered when the error is logged.
func (e DataError[T]) LogValue() slog.Value {
	if lv, ok := any(e.Data).(slog.LogValuer); ok {
		return lv.LogValue()
	}
	return slog.AnyValue(e.Data)
}

// Extend attaches data to err. A nil err remains nil.
func Extend[T any](data T, err error) error {
	if err == nil {
		return nil
	}
	return DataError[T]{Data: data, err: err}
}

// Extract recovers the most recently attached data of type T from err.
func Extract[T any](err error) (T, bool) {
	var de DataError[T]
	ok := errors.As(err, &de)
	return de.Data, ok
}

// Unjoin returns the direct children of an error produced by errors.Join,
// or a single-element slice for a plain error.
func Unjoin(err error) []error {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return joined.Unwrap()
	}
	return []error{err}
}
