package camera

import (
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
)

type CameraBuilderOption func(*cameraImpl)

// WithPosition sets the eye position.
//
// Parameters:
//   - p: world-space position
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's position
func WithPosition(p mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.position = p
	}
}

// WithTarget sets the look-at point.
//
// Parameters:
//   - t: world-space target
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's target
func WithTarget(t mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.target = t
	}
}

// WithUp sets the camera's up vector.
//
// Parameters:
//   - u: up vector
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(u mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.up = u
	}
}

// WithPerspective selects a perspective projection.
//
// Parameters:
//   - fov: vertical field of view in radians
//   - near, far: clip plane distances
//
// Returns:
//   - CameraBuilderOption: a function that sets the projection
func WithPerspective(fov, near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.mode = Perspective
		c.fov, c.near, c.far = fov, near, far
	}
}

// WithOrtho selects an orthographic projection with explicit bounds.
//
// Returns:
//   - CameraBuilderOption: a function that sets the projection
func WithOrtho(left, right, bottom, top, near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.mode = Orthographic
		c.left, c.right, c.bottom, c.top = left, right, bottom, top
		c.near, c.far = near, far
	}
}

// WithViewport sets the initial render area.
func WithViewport(x, y, width, height int) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.viewport = common.Viewport{X: x, Y: y, Width: width, Height: height}
	}
}

// WithController attaches a controller to the camera.
// After all options are applied, the camera reads its position and target from it.
//
// Parameters:
//   - ctrl: the controller to attach
//
// Returns:
//   - CameraBuilderOption: functional option to set the controller
func WithController(ctrl Controller) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
