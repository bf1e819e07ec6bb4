package wgpu_backend

import (
	"encoding/binary"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHalfConversion(t *testing.T) {
	for _, f := range []float32{0, 1, -2, 0.5, 0.333, 65504, 6.1e-5, 1e-7} {
		assert.InDelta(t, f, halfFloat(halfBits(f)), float64(math32.Abs(f))*1e-3+6e-8, "value %v", f)
	}
	assert.Equal(t, uint16(0x3c00), halfBits(1))
	assert.Equal(t, uint16(0x7c00), halfBits(1e6))
	assert.Equal(t, uint16(0xfc00), halfBits(-1e6))
	assert.True(t, math32.IsNaN(halfFloat(halfBits(math32.NaN()))))
}

func TestFlipRect(t *testing.T) {
	x, y, w, h, ok := flipRect([4]int32{10, 20, 30, 40}, 100, 100)
	require.True(t, ok)
	assert.Equal(t, [4]uint32{10, 40, 30, 40}, [4]uint32{x, y, w, h})

	// clipped to the target
	x, y, w, h, ok = flipRect([4]int32{-10, -10, 50, 50}, 100, 80)
	require.True(t, ok)
	assert.Equal(t, [4]uint32{0, 40, 40, 40}, [4]uint32{x, y, w, h})

	_, _, _, _, ok = flipRect([4]int32{200, 0, 10, 10}, 100, 100)
	assert.False(t, ok)
}

func TestShaderLocations(t *testing.T) {
	assert.Equal(t, []uint32{0, 1, 5, 6}, shaderLocations(4, []int{3, 16, 2, 1}))
	assert.Equal(t, []uint32{0, 1}, shaderLocations(2, nil))
}

func TestVertexAttributesSplitsWideAttributes(t *testing.T) {
	attrs := vertexAttributes(3, 16)
	require.Len(t, attrs, 4)
	for i, a := range attrs {
		assert.Equal(t, wgpu.VertexFormatFloat32x4, a.Format)
		assert.Equal(t, uint64(i*16), a.Offset)
		assert.Equal(t, uint32(3+i), a.ShaderLocation)
	}
	attrs = vertexAttributes(0, 6)
	require.Len(t, attrs, 2)
	assert.Equal(t, wgpu.VertexFormatFloat32x2, attrs[1].Format)
}

func floatsAt(block []byte, offset, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = math32.Float32frombits(binary.LittleEndian.Uint32(block[offset+i*4:]))
	}
	return out
}

func TestPackUniform(t *testing.T) {
	block := make([]byte, 128)
	require.NoError(t, packUniform(block, gpu.UniformField{Name: "uAlpha", Offset: 0, Size: 4}, float32(0.5)))
	require.NoError(t, packUniform(block, gpu.UniformField{Name: "uColor", Offset: 16, Size: 12}, [3]float32{1, 2, 3}))
	require.NoError(t, packUniform(block, gpu.UniformField{Name: "uNormal", Offset: 32, Size: 48}, [9]float32{1, 2, 3, 4, 5, 6, 7, 8, 9}))
	require.NoError(t, packUniform(block, gpu.UniformField{Name: "uId", Offset: 80, Size: 4}, int32(-3)))

	assert.Equal(t, []float32{0.5}, floatsAt(block, 0, 1))
	assert.Equal(t, []float32{1, 2, 3}, floatsAt(block, 16, 3))
	assert.Equal(t, []float32{1, 2, 3}, floatsAt(block, 32, 3))
	assert.Equal(t, []float32{4, 5, 6}, floatsAt(block, 48, 3))
	assert.Equal(t, []float32{7, 8, 9}, floatsAt(block, 64, 3))
	assert.Equal(t, int32(-3), int32(binary.LittleEndian.Uint32(block[80:])))

	assert.Error(t, packUniform(block, gpu.UniformField{Name: "uFar", Offset: 120, Size: 16}, float32(1)))
	assert.Error(t, packUniform(block, gpu.UniformField{Name: "uBad", Offset: 0, Size: 4}, "x"))
}

func TestMakeKey(t *testing.T) {
	s := gpu.DefaultState(100, 100, maxVertexAttribs)
	s.BlendSrcRGB = gpu.BlendSrcAlpha
	s.Enabled[gpu.CapabilityDepthTest] = true
	v := newVertexArray()
	v.attribs[0] = attrib{enabled: true, buf: 1, components: 3}
	v.attribs[1] = attrib{enabled: true, buf: 2, components: 16, divisor: 1}
	v.attribs[2] = attrib{enabled: true, buf: 3, components: 2}

	colorOnly := target{count: 1}
	k := makeKey(&s, gpu.PrimitiveTriangles, colorOnly, v, 2)
	// blend factors only count while blending is on
	assert.Equal(t, gpu.BlendZero, k.srcRGB)
	// no depth attachment, no depth test
	assert.False(t, k.depthTest)
	assert.Equal(t, vertexSlot{used: true, components: 3, stride: 12}, k.slots[0])
	assert.Equal(t, vertexSlot{used: true, components: 16, stride: 64, instanced: true}, k.slots[1])
	assert.False(t, k.slots[2].used)

	s.Enabled[gpu.CapabilityBlend] = true
	withDepth := target{count: 1, depth: true}
	k2 := makeKey(&s, gpu.PrimitiveTriangles, withDepth, v, 2)
	assert.Equal(t, gpu.BlendSrcAlpha, k2.srcRGB)
	assert.True(t, k2.depthTest)
	assert.True(t, k2.depthWrite)
	assert.NotEqual(t, k, k2)
	assert.Equal(t, k2, makeKey(&s, gpu.PrimitiveTriangles, withDepth, v, 2))
}

func TestVertexLayoutsLeaveGaps(t *testing.T) {
	k := pipelineKey{}
	k.slots[0] = vertexSlot{used: true, components: 3, stride: 12}
	k.slots[2] = vertexSlot{used: true, components: 4, stride: 16, instanced: true}
	layouts := vertexLayouts(&k, []uint32{0, 1, 2, 3})
	require.Len(t, layouts, 3)
	assert.Empty(t, layouts[1].Attributes)
	assert.Equal(t, wgpu.VertexStepModeInstance, layouts[2].StepMode)
	assert.Equal(t, uint32(2), layouts[2].Attributes[0].ShaderLocation)
}

func TestTextureFormat(t *testing.T) {
	f, size := textureFormat(gpu.FormatRGB, gpu.TypeUint8)
	assert.Equal(t, wgpu.TextureFormatRGBA8Unorm, f)
	assert.Equal(t, 4, size)
	f, size = textureFormat(gpu.FormatRGBA, gpu.TypeFloat32)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, f)
	assert.Equal(t, 8, size)
	f, _ = textureFormat(gpu.FormatDepth, gpu.TypeUint8)
	assert.Equal(t, wgpu.TextureFormatDepth32Float, f)
}

func TestUploadTexels(t *testing.T) {
	rgb := &texture{format: gpu.FormatRGB, typ: gpu.TypeUint8}
	assert.Equal(t, []byte{1, 2, 3, 255, 4, 5, 6, 255}, uploadTexels(rgb, []byte{1, 2, 3, 4, 5, 6}))

	data := make([]byte, 16)
	for i, f := range []float32{1, 0.5, 0, 2} {
		binary.LittleEndian.PutUint32(data[i*4:], math32.Float32bits(f))
	}
	half := uploadTexels(&texture{format: gpu.FormatRGBA, typ: gpu.TypeFloat32}, data)
	require.Len(t, half, 8)
	assert.Equal(t, uint16(0x3c00), binary.LittleEndian.Uint16(half))
	assert.Equal(t, uint16(0x4000), binary.LittleEndian.Uint16(half[6:]))
}

func TestToRGBA8(t *testing.T) {
	dst := make([]byte, 8)
	require.True(t, toRGBA8(wgpu.TextureFormatBGRA8Unorm, []byte{3, 2, 1, 4, 30, 20, 10, 40}, 2, dst))
	assert.Equal(t, []byte{1, 2, 3, 4, 10, 20, 30, 40}, dst)

	src := make([]byte, 8)
	for i, f := range []float32{1, 0.5, -1, 2} {
		binary.LittleEndian.PutUint16(src[i*2:], halfBits(f))
	}
	require.True(t, toRGBA8(wgpu.TextureFormatRGBA16Float, src, 1, dst))
	assert.Equal(t, []byte{255, 128, 0, 255}, dst[:4])

	assert.False(t, toRGBA8(wgpu.TextureFormatDepth32Float, src, 1, dst))
}

func TestFlipRows(t *testing.T) {
	assert.Equal(t, []byte{5, 6, 3, 4, 1, 2}, flipRows([]byte{1, 2, 3, 4, 5, 6}, 2, 3))
}

func TestColorWriteMask(t *testing.T) {
	assert.Equal(t, wgpu.ColorWriteMaskAll, colorWriteMask([4]bool{true, true, true, true}))
	assert.Equal(t, wgpu.ColorWriteMaskRed|wgpu.ColorWriteMaskAlpha, colorWriteMask([4]bool{true, false, false, true}))
	assert.Equal(t, wgpu.CullModeNone, cullMode(false, gpu.FaceFront))
	assert.Equal(t, wgpu.CullModeFront, cullMode(true, gpu.FaceFront))
}
