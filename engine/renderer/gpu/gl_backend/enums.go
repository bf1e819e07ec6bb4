package gl_backend

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
)

var capabilities = [gpu.CapabilityCount]uint32{
	gpu.CapabilityBlend:                 gl.BLEND,
	gpu.CapabilityCullFace:              gl.CULL_FACE,
	gpu.CapabilityDepthTest:             gl.DEPTH_TEST,
	gpu.CapabilityStencilTest:           gl.STENCIL_TEST,
	gpu.CapabilityScissorTest:           gl.SCISSOR_TEST,
	gpu.CapabilityPolygonOffsetFill:     gl.POLYGON_OFFSET_FILL,
	gpu.CapabilitySampleAlphaToCoverage: gl.SAMPLE_ALPHA_TO_COVERAGE,
}

var faces = []uint32{
	gpu.FaceBack:         gl.BACK,
	gpu.FaceFront:        gl.FRONT,
	gpu.FaceFrontAndBack: gl.FRONT_AND_BACK,
}

var windings = []uint32{
	gpu.WindingCCW: gl.CCW,
	gpu.WindingCW:  gl.CW,
}

var compareFuncs = []uint32{
	gpu.CompareNever:        gl.NEVER,
	gpu.CompareLess:         gl.LESS,
	gpu.CompareEqual:        gl.EQUAL,
	gpu.CompareLessEqual:    gl.LEQUAL,
	gpu.CompareGreater:      gl.GREATER,
	gpu.CompareNotEqual:     gl.NOTEQUAL,
	gpu.CompareGreaterEqual: gl.GEQUAL,
	gpu.CompareAlways:       gl.ALWAYS,
}

var blendFactors = []uint32{
	gpu.BlendZero:                  gl.ZERO,
	gpu.BlendOne:                   gl.ONE,
	gpu.BlendSrcColor:              gl.SRC_COLOR,
	gpu.BlendOneMinusSrcColor:      gl.ONE_MINUS_SRC_COLOR,
	gpu.BlendDstColor:              gl.DST_COLOR,
	gpu.BlendOneMinusDstColor:      gl.ONE_MINUS_DST_COLOR,
	gpu.BlendSrcAlpha:              gl.SRC_ALPHA,
	gpu.BlendOneMinusSrcAlpha:      gl.ONE_MINUS_SRC_ALPHA,
	gpu.BlendDstAlpha:              gl.DST_ALPHA,
	gpu.BlendOneMinusDstAlpha:      gl.ONE_MINUS_DST_ALPHA,
	gpu.BlendConstantColor:         gl.CONSTANT_COLOR,
	gpu.BlendOneMinusConstantColor: gl.ONE_MINUS_CONSTANT_COLOR,
	gpu.BlendConstantAlpha:         gl.CONSTANT_ALPHA,
	gpu.BlendOneMinusConstantAlpha: gl.ONE_MINUS_CONSTANT_ALPHA,
	gpu.BlendSrcAlphaSaturate:      gl.SRC_ALPHA_SATURATE,
}

var blendEquations = []uint32{
	gpu.BlendEquationAdd:             gl.FUNC_ADD,
	gpu.BlendEquationSubtract:        gl.FUNC_SUBTRACT,
	gpu.BlendEquationReverseSubtract: gl.FUNC_REVERSE_SUBTRACT,
	gpu.BlendEquationMin:             gl.MIN,
	gpu.BlendEquationMax:             gl.MAX,
}

var stencilOps = []uint32{
	gpu.StencilKeep:     gl.KEEP,
	gpu.StencilZero:     gl.ZERO,
	gpu.StencilReplace:  gl.REPLACE,
	gpu.StencilIncr:     gl.INCR,
	gpu.StencilIncrWrap: gl.INCR_WRAP,
	gpu.StencilDecr:     gl.DECR,
	gpu.StencilDecrWrap: gl.DECR_WRAP,
	gpu.StencilInvert:   gl.INVERT,
}

var primitives = []uint32{
	gpu.PrimitiveTriangles:     gl.TRIANGLES,
	gpu.PrimitiveTriangleStrip: gl.TRIANGLE_STRIP,
	gpu.PrimitiveLines:         gl.LINES,
	gpu.PrimitivePoints:        gl.POINTS,
}

var attachments = []uint32{
	gpu.AttachmentColor0: gl.COLOR_ATTACHMENT0,
	gpu.AttachmentColor1: gl.COLOR_ATTACHMENT1,
	gpu.AttachmentColor2: gl.COLOR_ATTACHMENT2,
	gpu.AttachmentColor3: gl.COLOR_ATTACHMENT3,
	gpu.AttachmentDepth:  gl.DEPTH_ATTACHMENT,
}

var usages = []uint32{
	gpu.UsageStatic:  gl.STATIC_DRAW,
	gpu.UsageDynamic: gl.DYNAMIC_DRAW,
	gpu.UsageStream:  gl.STREAM_DRAW,
}

// reverse finds the index of v in table, the gpu enum value.
func reverse[T ~uint8](table []uint32, v int32, def T) T {
	for i, e := range table {
		if e == uint32(v) {
			return T(i)
		}
	}
	return def
}

// texFormat is the GL internal format, pixel format and pixel type of a
// texture.
type texFormat struct {
	internal int32
	format   uint32
	xtype    uint32
}

func textureFormat(format gpu.TextureFormat, typ gpu.TextureType) texFormat {
	if format == gpu.FormatDepth {
		return texFormat{gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT}
	}
	xtype := uint32(gl.UNSIGNED_BYTE)
	switch typ {
	case gpu.TypeFp16:
		xtype = gl.HALF_FLOAT
	case gpu.TypeFloat32:
		xtype = gl.FLOAT
	}
	internal := map[gpu.TextureFormat][3]int32{
		gpu.FormatRGBA:  {gl.RGBA8, gl.RGBA16F, gl.RGBA32F},
		gpu.FormatRGB:   {gl.RGB8, gl.RGB16F, gl.RGB32F},
		gpu.FormatAlpha: {gl.R8, gl.R16F, gl.R32F},
	}[format][typ]
	pixel := map[gpu.TextureFormat]uint32{
		gpu.FormatRGBA:  gl.RGBA,
		gpu.FormatRGB:   gl.RGB,
		gpu.FormatAlpha: gl.RED,
	}[format]
	return texFormat{internal, pixel, xtype}
}

func framebufferStatus(s uint32) gpu.FramebufferStatus {
	switch s {
	case gl.FRAMEBUFFER_COMPLETE:
		return gpu.FramebufferComplete
	case gl.FRAMEBUFFER_INCOMPLETE_ATTACHMENT:
		return gpu.FramebufferIncompleteAttachment
	case gl.FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT:
		return gpu.FramebufferMissingAttachment
	case gl.FRAMEBUFFER_UNSUPPORTED:
		return gpu.FramebufferUnsupported
	}
	return gpu.FramebufferIncompleteDimensions
}
