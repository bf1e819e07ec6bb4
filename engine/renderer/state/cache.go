// Package state keeps the last-applied value of every tracked pipeline
// parameter and turns each state change into a conditional write.
package state

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// InvalidID is the sentinel for "nothing bound" in the current-id fields.
const InvalidID = -1

// Cache mirrors the device pipeline state. The cached value equals the device
// value at all times, except between a context restoration and Reset.
//
// A Cache is owned by one Context and is not safe for concurrent use.
type Cache struct {
	b gpu.Backend

	enabled       [gpu.CapabilityCount]bool
	frontFace     gpu.Winding
	cullFace      gpu.Face
	depthMask     bool
	depthFunc     gpu.CompareFunc
	colorMask     [4]bool
	clearColor    [4]float32
	blendSrcRGB   gpu.BlendFactor
	blendDstRGB   gpu.BlendFactor
	blendSrcAlpha gpu.BlendFactor
	blendDstAlpha gpu.BlendFactor
	blendEqRGB    gpu.BlendEquation
	blendEqAlpha  gpu.BlendEquation
	blendColor    [4]float32
	stencilFront  gpu.StencilFaceState
	stencilBack   gpu.StencilFaceState
	viewport      [4]int32
	scissor       [4]int32

	// attribEnabled is the device flag, attribMarked the flags requested
	// since the last ClearVertexAttribsState.
	attribEnabled []bool
	attribMarked  []bool

	// CurrentProgramID, CurrentMaterialID and CurrentRenderItemID let render
	// items skip redundant binds. InvalidID means nothing is known to be bound.
	CurrentProgramID    int
	CurrentMaterialID   int
	CurrentRenderItemID int
}

// New creates a cache synchronized with the current device state.
//
// Parameters:
//   - b: the backend whose state is mirrored
//   - maxVertexAttribs: number of vertex attribute slots to track
//
// Returns:
//   - *Cache: the cache, already reset from the device
func New(b gpu.Backend, maxVertexAttribs int) *Cache {
	c := &Cache{
		b:             b,
		attribEnabled: make([]bool, maxVertexAttribs),
		attribMarked:  make([]bool, maxVertexAttribs),
	}
	c.Reset()
	return c
}

// Reset re-reads every tracked parameter from the device and invalidates the
// current program, material and render item ids.
func (c *Cache) Reset() {
	s := c.b.QueryState()
	c.enabled = s.Enabled
	c.frontFace = s.FrontFace
	c.cullFace = s.CullFace
	c.depthMask = s.DepthMask
	c.depthFunc = s.DepthFunc
	c.colorMask = s.ColorMask
	c.clearColor = s.ClearColor
	c.blendSrcRGB, c.blendDstRGB = s.BlendSrcRGB, s.BlendDstRGB
	c.blendSrcAlpha, c.blendDstAlpha = s.BlendSrcAlpha, s.BlendDstAlpha
	c.blendEqRGB, c.blendEqAlpha = s.BlendEqRGB, s.BlendEqAlpha
	c.blendColor = s.BlendColor
	c.stencilFront = s.StencilFront
	c.stencilBack = s.StencilBack
	c.viewport = s.Viewport
	c.scissor = s.Scissor
	for i := range c.attribEnabled {
		c.attribEnabled[i] = i < len(s.VertexAttribs) && s.VertexAttribs[i]
		c.attribMarked[i] = false
	}
	c.CurrentProgramID = InvalidID
	c.CurrentMaterialID = InvalidID
	c.CurrentRenderItemID = InvalidID
}

// Snapshot returns the cached parameters in the backend's snapshot form.
func (c *Cache) Snapshot() gpu.StateSnapshot {
	return gpu.StateSnapshot{
		Enabled:       c.enabled,
		FrontFace:     c.frontFace,
		CullFace:      c.cullFace,
		DepthMask:     c.depthMask,
		DepthFunc:     c.depthFunc,
		ColorMask:     c.colorMask,
		ClearColor:    c.clearColor,
		BlendSrcRGB:   c.blendSrcRGB,
		BlendDstRGB:   c.blendDstRGB,
		BlendSrcAlpha: c.blendSrcAlpha,
		BlendDstAlpha: c.blendDstAlpha,
		BlendEqRGB:    c.blendEqRGB,
		BlendEqAlpha:  c.blendEqAlpha,
		BlendColor:    c.blendColor,
		StencilFront:  c.stencilFront,
		StencilBack:   c.stencilBack,
		Viewport:      c.viewport,
		Scissor:       c.scissor,
		VertexAttribs: append([]bool(nil), c.attribEnabled...),
	}
}

// IsEnabled reports the cached flag of capability cap.
func (c *Cache) IsEnabled(cap gpu.Capability) bool {
	return c.enabled[cap]
}

// Enable turns capability cap on unless the cache already has it on.
func (c *Cache) Enable(cap gpu.Capability) {
	if c.enabled[cap] {
		return
	}
	c.b.Enable(cap)
	c.enabled[cap] = true
}

// Disable turns capability cap off unless the cache already has it off.
func (c *Cache) Disable(cap gpu.Capability) {
	if !c.enabled[cap] {
		return
	}
	c.b.Disable(cap)
	c.enabled[cap] = false
}

// FrontFace sets the winding that defines a front face.
func (c *Cache) FrontFace(w gpu.Winding) {
	if c.frontFace == w {
		return
	}
	c.b.FrontFace(w)
	c.frontFace = w
}

// CullFace selects the face(s) culled while CapabilityCullFace is on.
func (c *Cache) CullFace(f gpu.Face) {
	if c.cullFace == f {
		return
	}
	c.b.CullFace(f)
	c.cullFace = f
}

// DepthMask enables or disables depth writes.
func (c *Cache) DepthMask(write bool) {
	if c.depthMask == write {
		return
	}
	c.b.DepthMask(write)
	c.depthMask = write
}

// DepthFunc sets the depth test comparison.
func (c *Cache) DepthFunc(f gpu.CompareFunc) {
	if c.depthFunc == f {
		return
	}
	c.b.DepthFunc(f)
	c.depthFunc = f
}

// ColorMask selects the colour channels draws may write.
func (c *Cache) ColorMask(r, g, b, a bool) {
	m := [4]bool{r, g, b, a}
	if c.colorMask == m {
		return
	}
	c.b.ColorMask(r, g, b, a)
	c.colorMask = m
}

// ClearColor sets the colour used by colour clears.
func (c *Cache) ClearColor(r, g, b, a float32) {
	v := [4]float32{r, g, b, a}
	if c.clearColor == v {
		return
	}
	c.b.ClearColor(r, g, b, a)
	c.clearColor = v
}

// BlendFunc sets the same factors for colour and alpha.
func (c *Cache) BlendFunc(src, dst gpu.BlendFactor) {
	c.BlendFuncSeparate(src, dst, src, dst)
}

// BlendFuncSeparate sets colour and alpha blend factors independently.
func (c *Cache) BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha gpu.BlendFactor) {
	if c.blendSrcRGB == srcRGB && c.blendDstRGB == dstRGB && c.blendSrcAlpha == srcAlpha && c.blendDstAlpha == dstAlpha {
		return
	}
	c.b.BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha)
	c.blendSrcRGB, c.blendDstRGB = srcRGB, dstRGB
	c.blendSrcAlpha, c.blendDstAlpha = srcAlpha, dstAlpha
}

// BlendEquation sets the same equation for colour and alpha.
func (c *Cache) BlendEquation(eq gpu.BlendEquation) {
	c.BlendEquationSeparate(eq, eq)
}

// BlendEquationSeparate sets colour and alpha blend equations independently.
func (c *Cache) BlendEquationSeparate(rgb, alpha gpu.BlendEquation) {
	if c.blendEqRGB == rgb && c.blendEqAlpha == alpha {
		return
	}
	c.b.BlendEquationSeparate(rgb, alpha)
	c.blendEqRGB, c.blendEqAlpha = rgb, alpha
}

// BlendColor sets the constant colour of the constant blend factors.
func (c *Cache) BlendColor(r, g, b, a float32) {
	v := [4]float32{r, g, b, a}
	if c.blendColor == v {
		return
	}
	c.b.BlendColor(r, g, b, a)
	c.blendColor = v
}

// StencilFunc applies to both faces.
func (c *Cache) StencilFunc(fn gpu.CompareFunc, ref int32, mask uint32) {
	c.StencilFuncSeparate(gpu.FaceFrontAndBack, fn, ref, mask)
}

// StencilFuncSeparate updates one face, or both cached copies for
// FaceFrontAndBack. The device call is skipped only if every targeted face
// already matches.
func (c *Cache) StencilFuncSeparate(face gpu.Face, fn gpu.CompareFunc, ref int32, mask uint32) {
	match := func(s *gpu.StencilFaceState) bool {
		return s.Func == fn && s.Ref == ref && s.ValueMask == mask
	}
	set := func(s *gpu.StencilFaceState) {
		s.Func, s.Ref, s.ValueMask = fn, ref, mask
	}
	c.stencilApply(face, match, set, func() { c.b.StencilFuncSeparate(face, fn, ref, mask) })
}

// StencilMask applies to both faces.
func (c *Cache) StencilMask(mask uint32) {
	c.StencilMaskSeparate(gpu.FaceFrontAndBack, mask)
}

// StencilMaskSeparate sets the stencil write mask of one face, or both for
// FaceFrontAndBack.
func (c *Cache) StencilMaskSeparate(face gpu.Face, mask uint32) {
	match := func(s *gpu.StencilFaceState) bool { return s.WriteMask == mask }
	set := func(s *gpu.StencilFaceState) { s.WriteMask = mask }
	c.stencilApply(face, match, set, func() { c.b.StencilMaskSeparate(face, mask) })
}

// StencilOp applies to both faces.
func (c *Cache) StencilOp(fail, zfail, zpass gpu.StencilOp) {
	c.StencilOpSeparate(gpu.FaceFrontAndBack, fail, zfail, zpass)
}

// StencilOpSeparate sets the stencil fail, depth fail and pass operations of
// one face, or both for FaceFrontAndBack.
func (c *Cache) StencilOpSeparate(face gpu.Face, fail, zfail, zpass gpu.StencilOp) {
	match := func(s *gpu.StencilFaceState) bool {
		return s.Fail == fail && s.ZFail == zfail && s.ZPass == zpass
	}
	set := func(s *gpu.StencilFaceState) {
		s.Fail, s.ZFail, s.ZPass = fail, zfail, zpass
	}
	c.stencilApply(face, match, set, func() { c.b.StencilOpSeparate(face, fail, zfail, zpass) })
}

func (c *Cache) stencilApply(face gpu.Face, match func(*gpu.StencilFaceState) bool, set func(*gpu.StencilFaceState), call func()) {
	switch face {
	case gpu.FaceFront:
		if match(&c.stencilFront) {
			return
		}
		call()
		set(&c.stencilFront)
	case gpu.FaceBack:
		if match(&c.stencilBack) {
			return
		}
		call()
		set(&c.stencilBack)
	default:
		if match(&c.stencilFront) && match(&c.stencilBack) {
			return
		}
		call()
		set(&c.stencilFront)
		set(&c.stencilBack)
	}
}

// StencilState returns the cached state of one face (FaceBack or FaceFront).
func (c *Cache) StencilState(face gpu.Face) gpu.StencilFaceState {
	if face == gpu.FaceBack {
		return c.stencilBack
	}
	return c.stencilFront
}

// Viewport sets the viewport rectangle in drawing-buffer pixels.
func (c *Cache) Viewport(x, y, width, height int32) {
	v := [4]int32{x, y, width, height}
	if c.viewport == v {
		return
	}
	c.b.Viewport(x, y, width, height)
	c.viewport = v
}

// CurrentViewport returns the cached viewport as x, y, width, height.
func (c *Cache) CurrentViewport() [4]int32 {
	return c.viewport
}

// Scissor sets the scissor rectangle, used while CapabilityScissorTest is on.
func (c *Cache) Scissor(x, y, width, height int32) {
	v := [4]int32{x, y, width, height}
	if c.scissor == v {
		return
	}
	c.b.Scissor(x, y, width, height)
	c.scissor = v
}

// EnableVertexAttrib marks slot index as used by the current draw and enables
// it on the device if needed.
func (c *Cache) EnableVertexAttrib(index int) {
	if index < 0 || index >= len(c.attribEnabled) {
		return
	}
	c.attribMarked[index] = true
	if c.attribEnabled[index] {
		return
	}
	c.b.EnableVertexAttribArray(uint32(index))
	c.attribEnabled[index] = true
}

// ClearVertexAttribsState forgets which slots the current draw marked.
func (c *Cache) ClearVertexAttribsState() {
	for i := range c.attribMarked {
		c.attribMarked[i] = false
	}
}

// DisableUnusedVertexAttribs disables every enabled slot not marked since the
// last ClearVertexAttribsState.
func (c *Cache) DisableUnusedVertexAttribs() {
	for i, marked := range c.attribMarked {
		if marked || !c.attribEnabled[i] {
			continue
		}
		c.b.DisableVertexAttribArray(uint32(i))
		c.attribEnabled[i] = false
	}
}

// VertexAttribEnabled reports the cached device flag of slot index.
func (c *Cache) VertexAttribEnabled(index int) bool {
	return index >= 0 && index < len(c.attribEnabled) && c.attribEnabled[index]
}
