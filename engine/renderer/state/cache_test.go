package state

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/stretchr/testify/assert"
)

func newCache(t *testing.T) (*Cache, *soft_backend.Backend) {
	t.Helper()
	b := soft_backend.New(8, 8)
	c := New(b, 16)
	b.ResetCalls()
	return c, b
}

func TestCacheSkipsRedundantWrites(t *testing.T) {
	c, b := newCache(t)

	c.Enable(gpu.CapabilityBlend)
	c.Enable(gpu.CapabilityBlend)
	assert.Equal(t, 1, b.Calls("Enable"))
	assert.True(t, c.IsEnabled(gpu.CapabilityBlend))

	// default depth mask is already true
	c.DepthMask(true)
	assert.Zero(t, b.Calls("DepthMask"))
	c.DepthMask(false)
	c.DepthMask(false)
	assert.Equal(t, 1, b.Calls("DepthMask"))

	c.BlendFunc(gpu.BlendOne, gpu.BlendOne)
	c.BlendFuncSeparate(gpu.BlendOne, gpu.BlendOne, gpu.BlendOne, gpu.BlendOne)
	assert.Equal(t, 1, b.Calls("BlendFuncSeparate"))

	c.Viewport(0, 0, 4, 4)
	c.Viewport(0, 0, 4, 4)
	assert.Equal(t, 1, b.Calls("Viewport"))
	assert.Equal(t, [4]int32{0, 0, 4, 4}, c.CurrentViewport())

	c.ClearColor(0, 0, 0, 0)
	assert.Zero(t, b.Calls("ClearColor"))
}

func TestCacheMatchesDevice(t *testing.T) {
	c, b := newCache(t)
	c.Enable(gpu.CapabilityDepthTest)
	c.DepthFunc(gpu.CompareLessEqual)
	c.ColorMask(true, false, true, false)
	c.BlendEquation(gpu.BlendEquationAdd)
	c.Scissor(1, 2, 3, 4)
	c.EnableVertexAttrib(3)

	assert.Equal(t, b.QueryState(), c.Snapshot())
}

func TestCacheStencilFaces(t *testing.T) {
	c, b := newCache(t)

	c.StencilFuncSeparate(gpu.FaceFront, gpu.CompareEqual, 1, 0xff)
	assert.Equal(t, 1, b.Calls("StencilFuncSeparate"))
	assert.Equal(t, gpu.CompareEqual, c.StencilState(gpu.FaceFront).Func)
	assert.Equal(t, gpu.CompareAlways, c.StencilState(gpu.FaceBack).Func)

	// back still differs, so a both-faces call goes through
	c.StencilFunc(gpu.CompareEqual, 1, 0xff)
	assert.Equal(t, 2, b.Calls("StencilFuncSeparate"))
	c.StencilFunc(gpu.CompareEqual, 1, 0xff)
	assert.Equal(t, 2, b.Calls("StencilFuncSeparate"))

	c.StencilMask(0x0f)
	c.StencilMaskSeparate(gpu.FaceBack, 0x0f)
	assert.Equal(t, 1, b.Calls("StencilMaskSeparate"))
	assert.Equal(t, uint32(0x0f), c.StencilState(gpu.FaceBack).WriteMask)
}

func TestCacheVertexAttribs(t *testing.T) {
	c, b := newCache(t)

	c.EnableVertexAttrib(0)
	c.EnableVertexAttrib(1)
	c.DisableUnusedVertexAttribs()
	assert.Zero(t, b.Calls("DisableVertexAttribArray"))

	c.ClearVertexAttribsState()
	c.EnableVertexAttrib(0)
	c.DisableUnusedVertexAttribs()
	assert.Equal(t, 2, b.Calls("EnableVertexAttribArray"))
	assert.Equal(t, 1, b.Calls("DisableVertexAttribArray"))
	assert.True(t, c.VertexAttribEnabled(0))
	assert.False(t, c.VertexAttribEnabled(1))

	c.EnableVertexAttrib(-1)
	c.EnableVertexAttrib(16)
	assert.False(t, c.VertexAttribEnabled(16))
}

func TestCacheReset(t *testing.T) {
	c, b := newCache(t)
	c.CurrentProgramID = 4
	c.CurrentMaterialID = 5
	c.CurrentRenderItemID = 6
	c.Enable(gpu.CapabilityCullFace)

	// device state changed behind the cache's back
	b.Disable(gpu.CapabilityCullFace)
	c.Reset()

	assert.False(t, c.IsEnabled(gpu.CapabilityCullFace))
	assert.Equal(t, InvalidID, c.CurrentProgramID)
	assert.Equal(t, InvalidID, c.CurrentMaterialID)
	assert.Equal(t, InvalidID, c.CurrentRenderItemID)
}
