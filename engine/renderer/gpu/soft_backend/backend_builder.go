package soft_backend

import "github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"

// BackendBuilderOption is a functional option for configuring a software Backend.
type BackendBuilderOption func(b *Backend)

// WithLimits replaces the reported device limits.
//
// Parameters:
//   - limits: the limits to report
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithLimits(limits gpu.Limits) BackendBuilderOption {
	return func(b *Backend) {
		b.info.Limits = limits
	}
}

// WithExtensions replaces the reported extension list.
//
// Parameters:
//   - extensions: the extension names to report (see the gpu.Ext* constants)
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithExtensions(extensions ...string) BackendBuilderOption {
	return func(b *Backend) {
		b.info.Extensions = append([]string(nil), extensions...)
	}
}

// WithoutExtensions removes the given names from the reported extension list.
func WithoutExtensions(extensions ...string) BackendBuilderOption {
	return func(b *Backend) {
		kept := b.info.Extensions[:0]
		for _, e := range b.info.Extensions {
			drop := false
			for _, x := range extensions {
				if e == x {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, e)
			}
		}
		b.info.Extensions = kept
	}
}

// WithFencePolls sets how many FenceStatus polls report pending before a
// fence signals. Zero signals immediately.
//
// Parameters:
//   - n: number of pending polls per fence
//
// Returns:
//   - BackendBuilderOption: option function to apply
func WithFencePolls(n int) BackendBuilderOption {
	return func(b *Backend) {
		b.fencePolls = max(n, 0)
	}
}
