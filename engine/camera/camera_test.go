package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got mgl32.Vec3) {
	t.Helper()
	for i := range 3 {
		assert.InDelta(t, want[i], got[i], 1e-3, "component %d of %v", i, got)
	}
}

func TestOrthoRoundTrip(t *testing.T) {
	c := NewCamera(WithOrtho(0, 100, 100, 0, -1, 1), WithViewport(0, 0, 100, 100))
	assert.Equal(t, Orthographic, c.Mode())

	win := c.Project(mgl32.Vec3{15, 15, 0})
	assertVec(t, mgl32.Vec3{15, 85, 0.5}, win)

	p, err := c.Unproject(win)
	require.NoError(t, err)
	assertVec(t, mgl32.Vec3{15, 15, 0}, p)
}

func TestPerspectiveAspectFollowsViewport(t *testing.T) {
	c := NewCamera(WithPosition(mgl32.Vec3{0, 0, 10}), WithTarget(mgl32.Vec3{}))
	c.SetViewport(common.Viewport{Width: 200, Height: 100})
	p := c.Projection()
	assert.InDelta(t, p[5]/2, p[0], 1e-5)

	win := c.Project(mgl32.Vec3{})
	assert.InDelta(t, 100, win.X(), 1e-3)
	assert.InDelta(t, 50, win.Y(), 1e-3)
}

func TestViewOffsetShiftsImage(t *testing.T) {
	c := NewCamera(WithOrtho(0, 100, 0, 100, -1, 1), WithViewport(0, 0, 100, 100))
	before := c.Project(mgl32.Vec3{50, 50, 0})
	c.SetViewOffset(0.5, -0.25)
	after := c.Project(mgl32.Vec3{50, 50, 0})
	assert.InDelta(t, before.X()+0.5, after.X(), 1e-3)
	assert.InDelta(t, before.Y()-0.25, after.Y(), 1e-3)
	c.ClearViewOffset()
	assertVec(t, before, c.Project(mgl32.Vec3{50, 50, 0}))
}

func TestUnprojectEmptyViewport(t *testing.T) {
	c := NewCamera(WithViewport(0, 0, 0, 0))
	_, err := c.Unproject(mgl32.Vec3{})
	assert.ErrorIs(t, err, ErrEmptyViewport)
}

func TestUniforms(t *testing.T) {
	c := NewCamera(WithOrtho(-1, 1, -1, 1, 0, 2))
	u := c.Uniforms()
	assert.Equal(t, true, u[UniformIsOrtho])
	assert.Equal(t, c.ProjectionView(), u[UniformProjectionView])
	assert.Equal(t, float32(2), u[UniformFar])
}

func TestControllerDrivesCamera(t *testing.T) {
	ctrl := NewOrbitController(WithRadius(10), WithAngles(0, 0))
	assertVec(t, mgl32.Vec3{0, 0, 10}, ctrl.Position())

	c := NewCamera(WithController(ctrl))
	assertVec(t, mgl32.Vec3{0, 0, 10}, c.Position())

	ctrl.Zoom(1.0 / 3)
	assert.InDelta(t, 5, ctrl.Radius(), 1e-4)
	c.Update()
	assertVec(t, mgl32.Vec3{0, 0, 5}, c.Position())

	ctrl.Pan(2, 0)
	assertVec(t, mgl32.Vec3{2, 0, 0}, ctrl.Target())
	assertVec(t, mgl32.Vec3{2, 0, 5}, ctrl.Position())
}

func TestOrbitClampsElevation(t *testing.T) {
	ctrl := NewOrbitController(WithElevationLimits(0, 0.5), WithSpeeds(0.1, 1, 1))
	ctrl.Orbit(0, 100)
	assert.InDelta(t, 0.5, ctrl.Elevation(), 1e-6)
	ctrl.Orbit(0, -100)
	assert.InDelta(t, 0, ctrl.Elevation(), 1e-6)
	ctrl.Orbit(2, 0)
	assert.InDelta(t, 0.2, ctrl.Azimuth(), 1e-6)
}
