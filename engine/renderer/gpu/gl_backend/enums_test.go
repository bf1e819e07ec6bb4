package gl_backend

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/stretchr/testify/assert"
)

func TestReverseLookup(t *testing.T) {
	for f := gpu.BlendZero; f <= gpu.BlendSrcAlphaSaturate; f++ {
		assert.Equal(t, f, reverse(blendFactors, int32(blendFactors[f]), gpu.BlendOne))
	}
	for c := gpu.CompareNever; c <= gpu.CompareAlways; c++ {
		assert.Equal(t, c, reverse(compareFuncs, int32(compareFuncs[c]), gpu.CompareLess))
	}
	assert.Equal(t, gpu.StencilInvert, reverse(stencilOps, gl.INVERT, gpu.StencilKeep))
	assert.Equal(t, gpu.BlendEquationMax, reverse(blendEquations, gl.MAX, gpu.BlendEquationAdd))
	assert.Equal(t, gpu.WindingCCW, reverse(windings, 0x1234, gpu.WindingCCW))
}

func TestTextureFormat(t *testing.T) {
	assert.Equal(t, texFormat{gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE}, textureFormat(gpu.FormatRGBA, gpu.TypeUint8))
	assert.Equal(t, texFormat{gl.RGBA16F, gl.RGBA, gl.HALF_FLOAT}, textureFormat(gpu.FormatRGBA, gpu.TypeFp16))
	assert.Equal(t, texFormat{gl.RGBA32F, gl.RGBA, gl.FLOAT}, textureFormat(gpu.FormatRGBA, gpu.TypeFloat32))
	assert.Equal(t, texFormat{gl.R8, gl.RED, gl.UNSIGNED_BYTE}, textureFormat(gpu.FormatAlpha, gpu.TypeUint8))
	assert.Equal(t, texFormat{gl.DEPTH_COMPONENT32F, gl.DEPTH_COMPONENT, gl.FLOAT}, textureFormat(gpu.FormatDepth, gpu.TypeUint8))
}

func TestFramebufferStatus(t *testing.T) {
	assert.Equal(t, gpu.FramebufferComplete, framebufferStatus(gl.FRAMEBUFFER_COMPLETE))
	assert.Equal(t, gpu.FramebufferMissingAttachment, framebufferStatus(gl.FRAMEBUFFER_INCOMPLETE_MISSING_ATTACHMENT))
	assert.Equal(t, gpu.FramebufferUnsupported, framebufferStatus(gl.FRAMEBUFFER_UNSUPPORTED))
}
