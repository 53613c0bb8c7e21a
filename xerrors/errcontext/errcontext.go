// Package errcontext attaches structured log attributes to errors so that
// context gathered deep in a call stack survives to the logging site.
package errcontext

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/zircuit-labs/zkr-go-sched/xerrors"
)

// Context is the set of attributes attached to an error.
type Context map[string]slog.Value

// Flatten returns the attributes sorted by key.
func (c Context) Flatten() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(c))
	for _, key := range slices.Sorted(maps.Keys(c)) {
		attrs = append(attrs, slog.Attr{Key: key, Value: c[key]})
	}
	return attrs
}

// LogValue implements slog.LogValuer for Context.
func (c Context) LogValue() slog.Value {
	if len(c) == 0 {
		return slog.Value{}
	}
	return slog.GroupValue(c.Flatten()...)
}

// Add attaches attributes to err. Existing keys are replaced
// (last entry wins). For joined errors the attributes are applied to
// each child individually.
func Add(err error, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}

	if children := xerrors.Unjoin(err); len(children) > 1 {
		updated := make([]error, len(children))
		for i, child := range children {
			updated[i] = Add(child, attrs...)
		}
		return errors.Join(updated...)
	}

	ctx := make(Context, len(attrs))
	if existing := Get(err); existing != nil {
		ctx = maps.Clone(existing)
	}
	for _, attr := range attrs {
		ctx[attr.Key] = attr.Value
	}
	return xerrors.Extend(ctx, err)
}

// Get returns the newest Context attached to err, or nil.
func Get(err error) Context {
	if err == nil {
		return nil
	}
	if ctx, ok := xerrors.Extract[Context](err); ok {
		return ctx
	}
	return nil
}
