package renderer

import (
	"log/slog"
	"time"
)

// ContextBuilderOption is a functional option applied to a Context during construction via NewContext.
type ContextBuilderOption func(*Context)

// WithPixelRatio sets the ratio of drawing buffer pixels to window coordinates.
//
// Parameters:
//   - ratio: device pixel ratio, values <= 0 are ignored
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithPixelRatio(ratio float64) ContextBuilderOption {
	return func(c *Context) {
		c.SetPixelRatio(ratio)
	}
}

// WithDebug enables framebuffer completeness checks on every render target bind.
//
// Parameters:
//   - debug: true to enable the checks
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithDebug(debug bool) ContextBuilderOption {
	return func(c *Context) {
		c.debug = debug
	}
}

// WithLogger overrides the engine logger for this context.
//
// Parameters:
//   - l: the logger to use
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithLogger(l *slog.Logger) ContextBuilderOption {
	return func(c *Context) {
		c.log = l
	}
}

// WithClock replaces the time source used for restoration events.
//
// Parameters:
//   - now: returns the current time
//
// Returns:
//   - ContextBuilderOption: option function to apply
func WithClock(now func() time.Time) ContextBuilderOption {
	return func(c *Context) {
		if now != nil {
			c.clock = now
		}
	}
}
