package wgpu_backend

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

var compareFuncs = []wgpu.CompareFunction{
	gpu.CompareNever:        wgpu.CompareFunctionNever,
	gpu.CompareLess:         wgpu.CompareFunctionLess,
	gpu.CompareEqual:        wgpu.CompareFunctionEqual,
	gpu.CompareLessEqual:    wgpu.CompareFunctionLessEqual,
	gpu.CompareGreater:      wgpu.CompareFunctionGreater,
	gpu.CompareNotEqual:     wgpu.CompareFunctionNotEqual,
	gpu.CompareGreaterEqual: wgpu.CompareFunctionGreaterEqual,
	gpu.CompareAlways:       wgpu.CompareFunctionAlways,
}

// WebGPU has a single blend constant, so the alpha variants of the constant
// factors read the same colour.
var blendFactors = []wgpu.BlendFactor{
	gpu.BlendZero:                  wgpu.BlendFactorZero,
	gpu.BlendOne:                   wgpu.BlendFactorOne,
	gpu.BlendSrcColor:              wgpu.BlendFactorSrc,
	gpu.BlendOneMinusSrcColor:      wgpu.BlendFactorOneMinusSrc,
	gpu.BlendDstColor:              wgpu.BlendFactorDst,
	gpu.BlendOneMinusDstColor:      wgpu.BlendFactorOneMinusDst,
	gpu.BlendSrcAlpha:              wgpu.BlendFactorSrcAlpha,
	gpu.BlendOneMinusSrcAlpha:      wgpu.BlendFactorOneMinusSrcAlpha,
	gpu.BlendDstAlpha:              wgpu.BlendFactorDstAlpha,
	gpu.BlendOneMinusDstAlpha:      wgpu.BlendFactorOneMinusDstAlpha,
	gpu.BlendConstantColor:         wgpu.BlendFactorConstant,
	gpu.BlendOneMinusConstantColor: wgpu.BlendFactorOneMinusConstant,
	gpu.BlendConstantAlpha:         wgpu.BlendFactorConstant,
	gpu.BlendOneMinusConstantAlpha: wgpu.BlendFactorOneMinusConstant,
	gpu.BlendSrcAlphaSaturate:      wgpu.BlendFactorSrcAlphaSaturated,
}

var blendOperations = []wgpu.BlendOperation{
	gpu.BlendEquationAdd:             wgpu.BlendOperationAdd,
	gpu.BlendEquationSubtract:        wgpu.BlendOperationSubtract,
	gpu.BlendEquationReverseSubtract: wgpu.BlendOperationReverseSubtract,
	gpu.BlendEquationMin:             wgpu.BlendOperationMin,
	gpu.BlendEquationMax:             wgpu.BlendOperationMax,
}

var topologies = []wgpu.PrimitiveTopology{
	gpu.PrimitiveTriangles:     wgpu.PrimitiveTopologyTriangleList,
	gpu.PrimitiveTriangleStrip: wgpu.PrimitiveTopologyTriangleStrip,
	gpu.PrimitiveLines:         wgpu.PrimitiveTopologyLineList,
	gpu.PrimitivePoints:        wgpu.PrimitiveTopologyPointList,
}

var vertexFormats = [5]wgpu.VertexFormat{
	1: wgpu.VertexFormatFloat32,
	2: wgpu.VertexFormatFloat32x2,
	3: wgpu.VertexFormatFloat32x3,
	4: wgpu.VertexFormatFloat32x4,
}

// textureFormat maps a texture description to the wgpu storage format and
// the size in bytes of one stored texel. WebGPU has no three-component
// formats, so RGB is stored as RGBA. 32 bit float colour is not blendable
// without an optional feature and is stored as 16 bit float instead.
func textureFormat(format gpu.TextureFormat, typ gpu.TextureType) (wgpu.TextureFormat, int) {
	if format == gpu.FormatDepth {
		return wgpu.TextureFormatDepth32Float, 4
	}
	if format == gpu.FormatAlpha {
		if typ == gpu.TypeUint8 {
			return wgpu.TextureFormatR8Unorm, 1
		}
		return wgpu.TextureFormatR16Float, 2
	}
	if typ == gpu.TypeUint8 {
		return wgpu.TextureFormatRGBA8Unorm, 4
	}
	return wgpu.TextureFormatRGBA16Float, 8
}

func colorWriteMask(m [4]bool) wgpu.ColorWriteMask {
	out := wgpu.ColorWriteMaskNone
	for i, bit := range []wgpu.ColorWriteMask{wgpu.ColorWriteMaskRed, wgpu.ColorWriteMaskGreen, wgpu.ColorWriteMaskBlue, wgpu.ColorWriteMaskAlpha} {
		if m[i] {
			out |= bit
		}
	}
	return out
}

func cullMode(enabled bool, face gpu.Face) wgpu.CullMode {
	if !enabled {
		return wgpu.CullModeNone
	}
	if face == gpu.FaceFront {
		return wgpu.CullModeFront
	}
	return wgpu.CullModeBack
}

func frontFace(w gpu.Winding) wgpu.FrontFace {
	if w == gpu.WindingCW {
		return wgpu.FrontFaceCW
	}
	return wgpu.FrontFaceCCW
}
