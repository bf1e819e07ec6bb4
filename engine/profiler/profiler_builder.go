package profiler

import (
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
)

// ProfilerBuilderOption is a functional option for configuring a Profiler.
type ProfilerBuilderOption func(p *Profiler)

// WithInterval sets how often stats are computed and logged.
//
// Parameters:
//   - d: the interval, values <= 0 keep the 1 second default
//
// Returns:
//   - ProfilerBuilderOption: option function to apply
func WithInterval(d time.Duration) ProfilerBuilderOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithContext attaches the context whose GPU timer and resource stats are
// reported.
func WithContext(ctx *renderer.Context) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.ctx = ctx
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerBuilderOption {
	return func(p *Profiler) {
		p.now = now
	}
}
