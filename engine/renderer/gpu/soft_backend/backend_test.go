package soft_backend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floats(v ...float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// flatShader passes NDC positions through and paints uColor.
func flatShader() *Shader {
	return &Shader{
		Vertex: func(in *VertexInput) VertexOutput {
			p := in.Attrib(0)
			return VertexOutput{Position: mgl32.Vec4{p[0], p[1], p[2], 1}}
		},
		Fragment: func(in *FragmentInput) ([4]float32, bool) {
			return in.Uniforms.Vec4("uColor"), true
		},
	}
}

func setupQuad(t *testing.T, b *Backend, x0, y0, x1, y1, z float32) gpu.Handle {
	t.Helper()
	prog, err := b.CreateProgram(gpu.ProgramSource{Key: "flat", Attributes: []string{"aPosition"}, Native: flatShader()})
	require.NoError(t, err)
	buf, err := b.CreateBuffer(gpu.BufferAttribute)
	require.NoError(t, err)
	require.NoError(t, b.BufferData(buf, floats(
		x0, y0, z, x1, y0, z, x1, y1, z,
		x0, y0, z, x1, y1, z, x0, y1, z,
	), gpu.UsageStatic))
	vao, err := b.CreateVertexArray()
	require.NoError(t, err)
	b.BindVertexArray(vao)
	b.VertexAttribPointer(0, buf, 3, 0, 0)
	b.EnableVertexAttribArray(0)
	b.UseProgram(prog)
	return prog
}

func pixel(t *testing.T, b *Backend, x, y int) [4]byte {
	t.Helper()
	var px [4]byte
	require.NoError(t, b.ReadPixels(x, y, 1, 1, px[:]))
	return px
}

func TestClearHonoursScissorAndMask(t *testing.T) {
	b := New(4, 4)
	b.ClearColor(1, 0, 0, 1)
	b.Clear(gpu.ClearColor)
	assert.Equal(t, [4]byte{255, 0, 0, 255}, pixel(t, b, 3, 3))

	b.Enable(gpu.CapabilityScissorTest)
	b.Scissor(0, 0, 2, 2)
	b.ColorMask(false, true, true, true)
	b.ClearColor(0, 1, 0, 1)
	b.Clear(gpu.ClearColor)
	assert.Equal(t, [4]byte{255, 255, 0, 255}, pixel(t, b, 1, 1))
	assert.Equal(t, [4]byte{255, 0, 0, 255}, pixel(t, b, 3, 3))
}

func TestDrawArraysCoversQuad(t *testing.T) {
	b := New(10, 10)
	prog := setupQuad(t, b, -1, -1, 0, 0, 0)
	require.NoError(t, b.Uniform(prog, "uColor", mgl32.Vec4{0, 0, 1, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)

	assert.Equal(t, [4]byte{0, 0, 255, 255}, pixel(t, b, 2, 2))
	assert.Equal(t, [4]byte{0, 0, 255, 255}, pixel(t, b, 4, 4))
	assert.Equal(t, [4]byte{0, 0, 0, 0}, pixel(t, b, 5, 5))
	assert.Equal(t, 1, b.Calls("DrawArrays"))
}

func TestDepthTestRejectsFartherFragments(t *testing.T) {
	b := New(4, 4)
	b.Enable(gpu.CapabilityDepthTest)
	prog := setupQuad(t, b, -1, -1, 1, 1, -0.5)
	require.NoError(t, b.Uniform(prog, "uColor", mgl32.Vec4{1, 0, 0, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)

	far := setupQuad(t, b, -1, -1, 1, 1, 0.5)
	require.NoError(t, b.Uniform(far, "uColor", mgl32.Vec4{0, 1, 0, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)

	assert.Equal(t, [4]byte{255, 0, 0, 255}, pixel(t, b, 1, 1))
}

func TestCullFaceDropsBackFaces(t *testing.T) {
	b := New(4, 4)
	b.Enable(gpu.CapabilityCullFace)
	// Clockwise winding.
	prog := setupQuad(t, b, 1, -1, -1, 1, 0)
	require.NoError(t, b.Uniform(prog, "uColor", mgl32.Vec4{1, 1, 1, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, pixel(t, b, 1, 1))

	b.CullFace(gpu.FaceFront)
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)
	assert.Equal(t, [4]byte{255, 255, 255, 255}, pixel(t, b, 1, 1))
}

func TestAdditiveBlending(t *testing.T) {
	b := New(2, 2)
	b.ClearColor(0.2, 0, 0, 0)
	b.Clear(gpu.ClearColor)
	b.Enable(gpu.CapabilityBlend)
	b.BlendFuncSeparate(gpu.BlendOne, gpu.BlendOne, gpu.BlendOne, gpu.BlendOne)
	prog := setupQuad(t, b, -1, -1, 1, 1, 0)
	require.NoError(t, b.Uniform(prog, "uColor", mgl32.Vec4{0.4, 0.5, 0, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)

	px := pixel(t, b, 0, 0)
	assert.InDelta(t, 153, int(px[0]), 1)
	assert.InDelta(t, 128, int(px[1]), 1)
	assert.Equal(t, byte(255), px[3])
}

func TestFramebufferRenderAndRead(t *testing.T) {
	b := New(8, 8)
	tex, _ := b.CreateTexture()
	require.NoError(t, b.TexImage2D(tex, 4, 4, gpu.FormatRGBA, gpu.TypeUint8, gpu.FilterNearest, nil))
	rb, _ := b.CreateRenderbuffer()
	require.NoError(t, b.RenderbufferStorage(rb, 4, 4))
	fb, _ := b.CreateFramebuffer()
	require.NoError(t, b.FramebufferTexture2D(fb, gpu.AttachmentColor0, tex))
	require.NoError(t, b.FramebufferRenderbuffer(fb, gpu.AttachmentDepth, rb))
	assert.Equal(t, gpu.FramebufferComplete, b.CheckFramebufferStatus(fb))

	b.BindFramebuffer(fb)
	b.Viewport(0, 0, 4, 4)
	prog := setupQuad(t, b, -1, -1, 1, 1, 0)
	require.NoError(t, b.Uniform(prog, "uColor", mgl32.Vec4{0, 1, 0, 1}))
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)
	assert.Equal(t, [4]byte{0, 255, 0, 255}, pixel(t, b, 3, 3))

	b.BindFramebuffer(0)
	assert.Equal(t, [4]byte{0, 0, 0, 0}, pixel(t, b, 3, 3))
}

func TestMultipleDrawBuffers(t *testing.T) {
	b := New(4, 4)
	fb, _ := b.CreateFramebuffer()
	for _, att := range []gpu.Attachment{gpu.AttachmentColor0, gpu.AttachmentColor1} {
		tex, _ := b.CreateTexture()
		require.NoError(t, b.TexImage2D(tex, 4, 4, gpu.FormatRGBA, gpu.TypeFloat32, gpu.FilterNearest, nil))
		require.NoError(t, b.FramebufferTexture2D(fb, att, tex))
	}
	require.NoError(t, b.DrawBuffers(fb, []gpu.Attachment{gpu.AttachmentColor0, gpu.AttachmentColor1}))
	b.BindFramebuffer(fb)
	b.ClearColor(0, 0, 1, 1)
	b.Clear(gpu.ClearColor)

	sh := &Shader{
		Vertex: flatShader().Vertex,
		Outputs: func(in *FragmentInput) (out [gpu.MaxColorAttachments][4]float32, keep bool) {
			out[0] = [4]float32{1, 0, 0, 1}
			out[1] = [4]float32{0, 1, 0, 1}
			return out, true
		},
	}
	setupQuad(t, b, -1, -1, 0, 0, 0)
	prog, err := b.CreateProgram(gpu.ProgramSource{Key: "mrt", Attributes: []string{"aPosition"}, Native: sh})
	require.NoError(t, err)
	b.UseProgram(prog)
	b.DrawArrays(gpu.PrimitiveTriangles, 0, 6, 1)

	assert.Equal(t, [4]byte{255, 0, 0, 255}, pixel(t, b, 0, 0))
	assert.Equal(t, [4]byte{0, 0, 255, 255}, pixel(t, b, 3, 3))
	require.NoError(t, b.DrawBuffers(fb, []gpu.Attachment{gpu.AttachmentColor1}))
	assert.Equal(t, [4]byte{0, 255, 0, 255}, pixel(t, b, 0, 0))
	assert.Equal(t, [4]byte{0, 0, 255, 255}, pixel(t, b, 3, 3))
}

func TestFramebufferDimensionMismatch(t *testing.T) {
	b := New(8, 8)
	tex, _ := b.CreateTexture()
	require.NoError(t, b.TexImage2D(tex, 4, 4, gpu.FormatRGBA, gpu.TypeUint8, gpu.FilterNearest, nil))
	rb, _ := b.CreateRenderbuffer()
	require.NoError(t, b.RenderbufferStorage(rb, 2, 2))
	fb, _ := b.CreateFramebuffer()
	assert.Equal(t, gpu.FramebufferMissingAttachment, b.CheckFramebufferStatus(fb))
	require.NoError(t, b.FramebufferTexture2D(fb, gpu.AttachmentColor0, tex))
	require.NoError(t, b.FramebufferRenderbuffer(fb, gpu.AttachmentDepth, rb))
	assert.Equal(t, gpu.FramebufferIncompleteDimensions, b.CheckFramebufferStatus(fb))
}

func TestDoubleFreeIsCounted(t *testing.T) {
	b := New(1, 1)
	buf, _ := b.CreateBuffer(gpu.BufferAttribute)
	b.DeleteBuffer(buf)
	assert.Equal(t, 0, b.DoubleFrees())
	b.DeleteBuffer(buf)
	assert.Equal(t, 1, b.DoubleFrees())
}

func TestContextLossInvalidatesHandles(t *testing.T) {
	b := New(2, 2)
	buf, _ := b.CreateBuffer(gpu.BufferAttribute)
	b.Enable(gpu.CapabilityBlend)
	b.SimulateContextLoss()

	assert.True(t, b.IsContextLost())
	_, err := b.CreateBuffer(gpu.BufferAttribute)
	assert.ErrorIs(t, err, gpu.ErrContextLost)
	assert.ErrorIs(t, b.BufferData(buf, []byte{1}, gpu.UsageStatic), gpu.ErrInvalidHandle)

	b.SimulateContextRestore()
	assert.False(t, b.QueryState().Enabled[gpu.CapabilityBlend])
	// Deleting a handle from before the loss is a silent no-op.
	b.DeleteBuffer(buf)
	assert.Equal(t, 0, b.DoubleFrees())
	assert.Equal(t, 0, b.Live())
}

func TestFenceSignalsAfterPolls(t *testing.T) {
	b := New(1, 1, WithFencePolls(2))
	f, err := b.FenceSync()
	require.NoError(t, err)
	assert.Equal(t, gpu.FencePending, b.FenceStatus(f))
	assert.Equal(t, gpu.FencePending, b.FenceStatus(f))
	assert.Equal(t, gpu.FenceSignaled, b.FenceStatus(f))
	b.DeleteFence(f)
	assert.Equal(t, gpu.FenceFailed, b.FenceStatus(f))
}

func TestPixelBufferReadback(t *testing.T) {
	b := New(2, 2)
	b.ClearColor(0, 0, 1, 1)
	b.Clear(gpu.ClearColor)
	pb, err := b.CreatePixelBuffer(16)
	require.NoError(t, err)
	require.NoError(t, b.ReadPixelsToBuffer(pb, 0, 0, 2, 2))
	dst := make([]byte, 16)
	require.NoError(t, b.GetPixelBufferData(pb, dst))
	assert.Equal(t, []byte{0, 0, 255, 255}, dst[12:16])
}

func TestWithoutExtensions(t *testing.T) {
	b := New(1, 1, WithoutExtensions(gpu.ExtColorBufferFloat, gpu.ExtFenceSync))
	info := b.DeviceInfo()
	assert.False(t, info.Has(gpu.ExtColorBufferFloat))
	assert.False(t, info.Has(gpu.ExtFenceSync))
	assert.True(t, info.Has(gpu.ExtDrawBuffers))
}
