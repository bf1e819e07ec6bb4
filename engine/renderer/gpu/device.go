package gpu

import "slices"

// Extension names reported in DeviceInfo.Extensions. Backends translate
// their native extension strings to these.
const (
	ExtColorBufferFloat     = "color-buffer-float"
	ExtColorBufferHalfFloat = "color-buffer-half-float"
	ExtTextureFloat         = "texture-float"
	ExtTextureHalfFloat     = "texture-half-float"
	ExtTextureFloatLinear   = "texture-float-linear"
	ExtDepthTexture         = "depth-texture"
	ExtInstancedArrays      = "instanced-arrays"
	ExtVertexArrayObject    = "vertex-array-object"
	ExtDrawBuffers          = "draw-buffers"
	ExtFragDepth            = "frag-depth"
	ExtTimerQuery           = "timer-query"
	ExtFenceSync            = "fence-sync"
	ExtPixelBufferObject    = "pixel-buffer-object"
	ExtBlendMinMax          = "blend-minmax"
	ExtLoseContext          = "lose-context"
)

// Limits are the numeric device parameters the core cares about.
type Limits struct {
	MaxTextureSize             int
	MaxRenderbufferSize        int
	MaxDrawBuffers             int
	MaxVertexAttribs           int
	MaxTextureImageUnits       int
	MaxVertexTextureImageUnits int
}

// DeviceInfo describes the live device.
type DeviceInfo struct {
	Vendor     string
	Renderer   string
	Version    string
	Limits     Limits
	Extensions []string
}

// Has reports whether ext is present.
func (d DeviceInfo) Has(ext string) bool {
	return slices.Contains(d.Extensions, ext)
}

// StencilFaceState is the stencil configuration of one polygon face.
type StencilFaceState struct {
	Func      CompareFunc
	Ref       int32
	ValueMask uint32
	WriteMask uint32
	Fail      StencilOp
	ZFail     StencilOp
	ZPass     StencilOp
}

// StateSnapshot is the full set of pipeline parameters tracked by the state cache.
type StateSnapshot struct {
	Enabled       [CapabilityCount]bool
	FrontFace     Winding
	CullFace      Face
	DepthMask     bool
	DepthFunc     CompareFunc
	ColorMask     [4]bool
	ClearColor    [4]float32
	BlendSrcRGB   BlendFactor
	BlendDstRGB   BlendFactor
	BlendSrcAlpha BlendFactor
	BlendDstAlpha BlendFactor
	BlendEqRGB    BlendEquation
	BlendEqAlpha  BlendEquation
	BlendColor    [4]float32
	StencilFront  StencilFaceState
	StencilBack   StencilFaceState
	Viewport      [4]int32
	Scissor       [4]int32
	// VertexAttribs holds the enabled flag of each attribute slot.
	VertexAttribs []bool
}

// DefaultState returns the parameters of a freshly created context with a
// drawing buffer of the given size.
func DefaultState(width, height int32, maxVertexAttribs int) StateSnapshot {
	return StateSnapshot{
		FrontFace:     WindingCCW,
		CullFace:      FaceBack,
		DepthMask:     true,
		DepthFunc:     CompareLess,
		ColorMask:     [4]bool{true, true, true, true},
		BlendSrcRGB:   BlendOne,
		BlendDstRGB:   BlendZero,
		BlendSrcAlpha: BlendOne,
		BlendDstAlpha: BlendZero,
		StencilFront:  StencilFaceState{Func: CompareAlways, ValueMask: ^uint32(0), WriteMask: ^uint32(0)},
		StencilBack:   StencilFaceState{Func: CompareAlways, ValueMask: ^uint32(0), WriteMask: ^uint32(0)},
		Viewport:      [4]int32{0, 0, width, height},
		Scissor:       [4]int32{0, 0, width, height},
		VertexAttribs: make([]bool, maxVertexAttribs),
	}
}
