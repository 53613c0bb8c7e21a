package log

import (
	"context"
	"log/slog"
)

// NewNilLogger creates a logger that discards all records.
func NewNilLogger() *slog.Logger {
	return slog.New(&NilHandler{})
}

type NilHandler struct{}

// Enabled returns false for all levels, disabling all logs.
func (h *NilHandler) Enabled(context.Context, slog.Level) bool {
	return false
}

// Handle does nothing.
func (h *NilHandler) Handle(context.Context, slog.Record) error {
	return nil
}

// WithAttrs does nothing.
func (h *NilHandler) WithAttrs([]slog.Attr) slog.Handler {
	return h
}

// WithGroup does nothing.
func (h *NilHandler) WithGroup(string) slog.Handler {
	return h
}
