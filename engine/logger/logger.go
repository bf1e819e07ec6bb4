// Package logger holds the structured logger shared by every engine package.
// By default nothing is written; call SetLogger to enable output.
package logger

import (
	"context"
	"log/slog"
	"sync/atomic"
)

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var current atomic.Pointer[slog.Logger]

func init() {
	current.Store(slog.New(nopHandler{}))
}

// SetLogger installs l for all engine packages. Passing nil restores the
// silent default.
//
// Levels used:
//   - Debug: per-frame diagnostics (commit progress, pick buffer sync)
//   - Info: lifecycle events (context created, restored, destroyed)
//   - Warn: degraded optional features and dropped frames
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	current.Store(l)
}

// Logger returns the active logger.
func Logger() *slog.Logger {
	return current.Load()
}
