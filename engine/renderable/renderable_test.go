package renderable

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func colorSource() gpu.ProgramSource {
	return gpu.ProgramSource{
		Key:        "test-color",
		Attributes: []string{AttributePosition},
		Native: &soft_backend.Shader{
			Vertex: func(in *soft_backend.VertexInput) soft_backend.VertexOutput {
				p := in.Attrib(0)
				return soft_backend.VertexOutput{Position: mgl32.Vec4{p[0], p[1], 0, 1}}
			},
			Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
				c := in.Uniforms.Vec4("uColor")
				c[3] *= in.Uniforms.Float(UniformAlpha)
				return c, true
			},
		},
	}
}

func quadObject(id int, x0, y0, x1, y1 float32) *Object {
	v := NewValues()
	v.SetAttribute(AttributePosition, Attribute{
		Data:       []float32{x0, y0, x1, y0, x1, y1, x0, y0, x1, y1, x0, y1},
		Components: 2,
	})
	v.SetUniform("uColor", [4]float32{1, 0, 0, 1})
	return &Object{
		ID:       id,
		State:    DefaultState(),
		Values:   v,
		Programs: map[Variant]gpu.ProgramSource{VariantColor: colorSource()},
		DrawMode: gpu.PrimitiveTriangles,
	}
}

func newContext(t *testing.T, b *soft_backend.Backend) *renderer.Context {
	t.Helper()
	ctx, err := renderer.NewContext(b)
	require.NoError(t, err)
	return ctx
}

func readPixel(t *testing.T, ctx *renderer.Context, x, y int) [4]byte {
	t.Helper()
	var px [4]byte
	require.NoError(t, ctx.ReadPixels(x, y, 1, 1, px[:]))
	return px
}

func TestGetTyped(t *testing.T) {
	v := NewValues()
	v.SetValue(ValueInstanceCount, 3)
	n, ok := Get[int](v, ValueInstanceCount)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = Get[float32](v, ValueInstanceCount)
	assert.False(t, ok)
	assert.Equal(t, float32(2), GetOr(v, "missing", float32(2)))
}

func TestUpdateIfChangedBumpsVersion(t *testing.T) {
	v := NewValues()
	v.SetUniform(UniformAlpha, float32(1))
	c := v.Cell(UniformAlpha)
	assert.False(t, v.UpdateIfChanged(UniformAlpha, float32(1)))
	assert.Equal(t, 0, c.Version())
	assert.True(t, v.UpdateIfChanged(UniformAlpha, float32(0.5)))
	assert.Equal(t, 1, c.Version())
	assert.False(t, v.UpdateIfChanged("missing", 1))
}

func TestRenderDrawsQuad(t *testing.T) {
	b := soft_backend.New(10, 10)
	ctx := newContext(t, b)
	r, err := New(ctx, quadObject(1, -1, -1, 0, 0))
	require.NoError(t, err)

	require.NoError(t, r.Render(VariantColor, nil, nil))
	assert.Equal(t, [4]byte{255, 0, 0, 255}, readPixel(t, ctx, 2, 2))
	assert.Equal(t, [4]byte{0, 0, 0, 0}, readPixel(t, ctx, 7, 7))
	assert.Equal(t, 1, ctx.Stats().DrawCount)

	// Variants without a program draw nothing.
	require.NoError(t, r.Render(VariantPick, nil, nil))
	assert.Equal(t, 1, ctx.Stats().DrawCount)
}

func TestRenderSkipsRedundantBinds(t *testing.T) {
	b := soft_backend.New(4, 4)
	ctx := newContext(t, b)
	r1, err := New(ctx, quadObject(1, -1, -1, 0, 0))
	require.NoError(t, err)
	r2, err := New(ctx, quadObject(2, 0, 0, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, b.Calls("CreateProgram"))
	assert.Same(t, r1.Program(VariantColor), r2.Program(VariantColor))

	b.ResetCalls()
	require.NoError(t, r1.Render(VariantColor, nil, nil))
	require.NoError(t, r1.Render(VariantColor, nil, nil))
	assert.Equal(t, 1, b.Calls("UseProgram"))
	assert.Equal(t, 1, b.Calls("BindVertexArray"))

	require.NoError(t, r2.Render(VariantColor, nil, nil))
	assert.Equal(t, 1, b.Calls("UseProgram"))
	assert.Equal(t, 2, b.Calls("BindVertexArray"))
	assert.Equal(t, 3, b.Calls("DrawArrays"))
}

func TestAlphaFactorDrivesUniform(t *testing.T) {
	b := soft_backend.New(2, 2)
	ctx := newContext(t, b)
	obj := quadObject(1, -1, -1, 1, 1)
	obj.Values.SetValue(ValueAlpha, float32(0.8))
	r, err := New(ctx, obj)
	require.NoError(t, err)

	r.State().AlphaFactor = 2
	require.NoError(t, r.Render(VariantColor, nil, nil))
	alpha, _ := Get[float32](r.Values(), UniformAlpha)
	assert.Equal(t, float32(1), alpha)

	r.State().AlphaFactor = 0.5
	require.NoError(t, r.Render(VariantColor, nil, nil))
	alpha, _ = Get[float32](r.Values(), UniformAlpha)
	assert.InDelta(t, 0.4, alpha, 1e-6)
}

func TestUpdateUploadsChangedAttributes(t *testing.T) {
	b := soft_backend.New(10, 10)
	ctx := newContext(t, b)
	obj := quadObject(1, -1, -1, 0, 0)
	r, err := New(ctx, obj)
	require.NoError(t, err)

	b.ResetCalls()
	require.NoError(t, r.Update())
	assert.Zero(t, b.Calls("BufferData")+b.Calls("BufferSubData"))

	obj.Values.SetAttribute(AttributePosition, Attribute{
		Data:       []float32{0, 0, 1, 0, 1, 1, 0, 0, 1, 1, 0, 1},
		Components: 2,
	})
	require.NoError(t, r.Update())
	assert.Equal(t, 1, b.Calls("BufferSubData"))

	require.NoError(t, r.Render(VariantColor, nil, nil))
	assert.Equal(t, [4]byte{255, 0, 0, 255}, readPixel(t, ctx, 7, 7))
	assert.Equal(t, [4]byte{0, 0, 0, 0}, readPixel(t, ctx, 2, 2))
}

func TestResetReuploadsAfterContextRestore(t *testing.T) {
	b := soft_backend.New(10, 10)
	ctx := newContext(t, b)
	obj := quadObject(1, -1, -1, 0, 0)
	r, err := New(ctx, obj)
	require.NoError(t, err)

	b.SimulateContextLoss()
	ctx.SetContextLost()
	b.SimulateContextRestore()
	require.NoError(t, ctx.HandleContextRestored())

	b.ResetCalls()
	require.NoError(t, r.Reset())
	assert.Equal(t, 1, b.Calls("BufferData")+b.Calls("BufferSubData"))

	require.NoError(t, r.Render(VariantColor, nil, nil))
	assert.Equal(t, [4]byte{255, 0, 0, 255}, readPixel(t, ctx, 2, 2))
	assert.Zero(t, b.DoubleFrees())

	r.Dispose()
	b.ResetCalls()
	require.NoError(t, r.Reset())
	assert.Zero(t, b.Calls("BufferData")+b.Calls("BufferSubData"))
}

func TestDisposeReleasesResources(t *testing.T) {
	b := soft_backend.New(4, 4)
	ctx := newContext(t, b)
	r, err := New(ctx, quadObject(1, -1, -1, 1, 1))
	require.NoError(t, err)
	r.Dispose()
	assert.True(t, r.State().Disposed)
	assert.Zero(t, b.Live())

	b.ResetCalls()
	require.NoError(t, r.Render(VariantColor, nil, nil))
	require.NoError(t, r.Update())
	assert.Zero(t, b.Calls("DrawArrays"))
}

func TestComputeRenderableFillsViewport(t *testing.T) {
	b := soft_backend.New(4, 4)
	ctx := newContext(t, b)
	v := NewValues()
	v.SetUniform("uColor", [4]float32{0, 0, 1, 1})
	v.SetUniform(UniformAlpha, float32(1))
	c, err := NewCompute(ctx, colorSource(), v)
	require.NoError(t, err)
	ctx.NamedRenderables.Set("fill", c)

	require.NoError(t, c.Render())
	assert.Equal(t, [4]byte{0, 0, 255, 255}, readPixel(t, ctx, 0, 0))
	assert.Equal(t, [4]byte{0, 0, 255, 255}, readPixel(t, ctx, 3, 3))

	c.Dispose()
	c.Dispose()
	assert.Zero(t, b.Live())
}

func TestTransformOf(t *testing.T) {
	v := NewValues()
	m := mgl32.Translate3D(1, 2, 3)
	v.SetAttribute(AttributeTransform, Attribute{Data: m[:], Components: 16, Divisor: 1})
	got := TransformOf(v)
	require.Len(t, got, 1)
	assert.Equal(t, m, got[0])
}
