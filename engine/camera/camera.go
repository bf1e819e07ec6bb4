package camera

import (
	"errors"
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
)

// Uniform names set by Camera.Uniforms.
const (
	UniformView                  = "uView"
	UniformProjection            = "uProjection"
	UniformProjectionView        = "uProjectionView"
	UniformInverseProjectionView = "uInvProjectionView"
	UniformCameraPosition        = "uCameraPosition"
	UniformNear                  = "uNear"
	UniformFar                   = "uFar"
	UniformIsOrtho               = "uIsOrtho"
)

// ErrEmptyViewport is returned by Unproject when the viewport covers no pixels.
var ErrEmptyViewport = errors.New("camera: empty viewport")

// ProjectionMode selects between a perspective and an orthographic projection.
type ProjectionMode uint8

const (
	Perspective ProjectionMode = iota
	Orthographic
)

func (m ProjectionMode) String() string {
	if m == Orthographic {
		return "orthographic"
	}
	return "perspective"
}

type cameraImpl struct {
	mu *sync.Mutex

	mode     ProjectionMode
	viewport common.Viewport

	position mgl32.Vec3
	target   mgl32.Vec3
	up       mgl32.Vec3

	fov  float32
	near float32
	far  float32

	// Orthographic bounds.
	left, right, bottom, top float32

	// Sub-pixel offset applied after projection, in pixels.
	offsetX, offsetY float32

	view                  mgl32.Mat4
	projection            mgl32.Mat4
	projectionView        mgl32.Mat4
	inverseProjectionView mgl32.Mat4

	controller Controller
}

// Camera holds the view and projection used by every render pass.
// Position and target come either from the setters or from an attached
// Controller, read on Update. Matrices are recomputed on every change.
type Camera interface {
	// Mode returns the projection mode.
	Mode() ProjectionMode

	// Viewport returns the area the camera renders to, in drawing-buffer
	// pixels with a bottom-left origin.
	Viewport() common.Viewport

	// SetViewport sets the render area. The perspective aspect follows it.
	//
	// Parameters:
	//   - v: the viewport
	SetViewport(v common.Viewport)

	Position() mgl32.Vec3
	SetPosition(p mgl32.Vec3)
	Target() mgl32.Vec3
	SetTarget(t mgl32.Vec3)
	Up() mgl32.Vec3
	SetUp(u mgl32.Vec3)

	// Fov returns the vertical field of view in radians.
	Fov() float32
	Near() float32
	Far() float32

	// SetPerspective switches to a perspective projection.
	//
	// Parameters:
	//   - fov: vertical field of view in radians
	//   - near, far: clip plane distances
	SetPerspective(fov, near, far float32)

	// SetOrtho switches to an orthographic projection with explicit bounds.
	//
	// Parameters:
	//   - left, right, bottom, top: view-space bounds
	//   - near, far: clip plane distances
	SetOrtho(left, right, bottom, top, near, far float32)

	// SetViewOffset shifts the projected image by a sub-pixel amount. Used
	// for multi-sample jitter.
	//
	// Parameters:
	//   - x, y: offset in viewport pixels
	SetViewOffset(x, y float32)

	// ClearViewOffset removes the view offset.
	ClearViewOffset()

	View() mgl32.Mat4
	Projection() mgl32.Mat4
	ProjectionView() mgl32.Mat4
	InverseProjectionView() mgl32.Mat4

	// Project maps a world position to window coordinates: x, y in viewport
	// pixels and depth in [0, 1].
	Project(p mgl32.Vec3) mgl32.Vec3

	// Unproject maps window coordinates back to a world position.
	//
	// Parameters:
	//   - win: x, y in viewport pixels and depth in [0, 1]
	//
	// Returns:
	//   - mgl32.Vec3: the world position
	//   - error: ErrEmptyViewport or a singular matrix error
	Unproject(win mgl32.Vec3) (mgl32.Vec3, error)

	// Uniforms returns the camera values passes set as program globals.
	Uniforms() map[string]any

	// Controller returns the attached controller, or nil.
	Controller() Controller

	// SetController attaches a controller read on Update.
	SetController(ctrl Controller)

	// Update reads position and target from the controller and recomputes
	// matrices. Without a controller it does nothing.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a perspective camera at the origin looking down -Z.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:       &sync.Mutex{},
		viewport: common.Viewport{Width: 1, Height: 1},
		target:   mgl32.Vec3{0, 0, -1},
		up:       mgl32.Vec3{0, 1, 0},
		fov:      45.0 * (math.Pi / 180.0), // radians
		near:     0.1,
		far:      100.0,
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.position, c.target = c.controller.Position(), c.controller.Target()
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Mode() ProjectionMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *cameraImpl) Viewport() common.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

func (c *cameraImpl) SetViewport(v common.Viewport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
	c.updateMatrices()
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) SetPosition(p mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) SetTarget(t mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.target = t
	c.updateMatrices()
}

func (c *cameraImpl) Up() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.up
}

func (c *cameraImpl) SetUp(u mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.up = u
	c.updateMatrices()
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetPerspective(fov, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Perspective
	c.fov, c.near, c.far = fov, near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetOrtho(left, right, bottom, top, near, far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = Orthographic
	c.left, c.right, c.bottom, c.top = left, right, bottom, top
	c.near, c.far = near, far
	c.updateMatrices()
}

func (c *cameraImpl) SetViewOffset(x, y float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offsetX, c.offsetY = x, y
	c.updateMatrices()
}

func (c *cameraImpl) ClearViewOffset() {
	c.SetViewOffset(0, 0)
}

func (c *cameraImpl) View() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

func (c *cameraImpl) Projection() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) ProjectionView() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionView
}

func (c *cameraImpl) InverseProjectionView() mgl32.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseProjectionView
}

func (c *cameraImpl) Project(p mgl32.Vec3) mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.viewport
	return mgl32.Project(p, c.view, c.projection, v.X, v.Y, v.Width, v.Height)
}

func (c *cameraImpl) Unproject(win mgl32.Vec3) (mgl32.Vec3, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.viewport
	if v.Empty() {
		return mgl32.Vec3{}, ErrEmptyViewport
	}
	return mgl32.UnProject(win, c.view, c.projection, v.X, v.Y, v.Width, v.Height)
}

func (c *cameraImpl) Uniforms() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]any{
		UniformView:                  c.view,
		UniformProjection:            c.projection,
		UniformProjectionView:        c.projectionView,
		UniformInverseProjectionView: c.inverseProjectionView,
		UniformCameraPosition:        c.position,
		UniformNear:                  c.near,
		UniformFar:                   c.far,
		UniformIsOrtho:               c.mode == Orthographic,
	}
}

func (c *cameraImpl) Controller() Controller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl Controller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.position, c.target = c.controller.Position(), c.controller.Target()
	c.updateMatrices()
}

// updateMatrices recalculates view, projection and their products.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	c.view = mgl32.LookAtV(c.position, c.target, c.up)

	switch c.mode {
	case Orthographic:
		c.projection = mgl32.Ortho(c.left, c.right, c.bottom, c.top, c.near, c.far)
	default:
		aspect := float32(1)
		if c.viewport.Height > 0 {
			aspect = float32(c.viewport.Width) / float32(c.viewport.Height)
		}
		c.projection = mgl32.Perspective(c.fov, aspect, c.near, c.far)
	}

	// The offset is applied in NDC, after the perspective divide, so it works
	// for both projection modes.
	if (c.offsetX != 0 || c.offsetY != 0) && !c.viewport.Empty() {
		tx := 2 * c.offsetX / float32(c.viewport.Width)
		ty := 2 * c.offsetY / float32(c.viewport.Height)
		c.projection = mgl32.Translate3D(tx, ty, 0).Mul4(c.projection)
	}

	c.projectionView = c.projection.Mul4(c.view)
	c.inverseProjectionView = c.projectionView.Inv()
}
