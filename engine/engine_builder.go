package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/config"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/passes"
	"github.com/Carmen-Shannon/oxy-render/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithConfig applies a loaded configuration: backend, window, pass, loop and
// profiler settings. Options given after it override the matching fields.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
		e.drawProps = passes.DrawProps{ClearColor: cfg.Render.ClearColor, Marking: cfg.Render.Marking}
		e.commitBudget = cfg.CommitBudget()
		WithTickRate(cfg.Engine.TickRate)(e)
		WithRenderFrameLimit(cfg.Engine.FrameLimit)(e)
	}
}

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// The tick callback will be called at this rate for application updates.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets a custom configured window for the engine to use rather than allowing the engine
// to create and manage one internally. Its API must match the backend.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithBackend supplies an already created GPU backend. The window's
// context or surface must be the one the backend draws to.
func WithBackend(b gpu.Backend) EngineBuilderOption {
	return func(e *engine) {
		e.backend = b
	}
}

// WithCamera replaces the default orbit camera.
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithCommitBudget sets how long each frame may spend applying queued scene
// additions and removals.
//
// Parameters:
//   - d: the budget, scene.NoTimeLimit to apply everything at once
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithCommitBudget(d time.Duration) EngineBuilderOption {
	return func(e *engine) {
		e.commitBudget = d
	}
}

// WithPickCallback registers the left click pick callback.
func WithPickCallback(callback func(pick *passes.PickData, hit bool)) EngineBuilderOption {
	return func(e *engine) {
		e.pickCallback = callback
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
