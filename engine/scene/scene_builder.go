package scene

import "time"

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithComputeWorkers sets the number of worker goroutines used to compute
// bounding spheres of large scenes. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of compute workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithComputeWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		if n < 1 {
			n = 1
		}
		s.computeWorkers = n
	}
}

// WithParallelThreshold sets the renderable count from which bounding sphere
// computation is split across the compute workers.
//
// Parameters:
//   - n: the minimum renderable count for parallel computation
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithParallelThreshold(n int) SceneBuilderOption {
	return func(s *scene) {
		s.parallelThreshold = n
	}
}

// WithClock replaces the clock that times Commit budgets.
//
// Parameters:
//   - now: the clock
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithClock(now func() time.Time) SceneBuilderOption {
	return func(s *scene) {
		if now != nil {
			s.now = now
		}
	}
}
