package wgpu_backend

import "github.com/cogentcore/webgpu/wgpu"

// BackendBuilderOption is a functional option applied to a Backend during New.
type BackendBuilderOption func(b *Backend)

// WithVSync selects FIFO presentation when enabled and immediate
// presentation otherwise.
//
// Parameters:
//   - enabled: true to synchronise with the display
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithVSync(enabled bool) BackendBuilderOption {
	return func(b *Backend) {
		if enabled {
			b.presentMode = wgpu.PresentModeFifo
		} else {
			b.presentMode = wgpu.PresentModeImmediate
		}
	}
}

// WithForceFallbackAdapter requests the software fallback adapter.
func WithForceFallbackAdapter(force bool) BackendBuilderOption {
	return func(b *Backend) {
		b.forceFallback = force
	}
}
