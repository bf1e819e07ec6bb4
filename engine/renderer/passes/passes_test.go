package passes

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func worldVertex(in *soft_backend.VertexInput) soft_backend.VertexOutput {
	p := in.Attrib(0)
	pv := in.Uniforms.Mat4(camera.UniformProjectionView)
	return soft_backend.VertexOutput{Position: pv.Mul4x1(mgl32.Vec4{p[0], p[1], 0, 1})}
}

func testPrograms() map[renderable.Variant]gpu.ProgramSource {
	attrs := []string{renderable.AttributePosition}
	return map[renderable.Variant]gpu.ProgramSource{
		renderable.VariantColor: {
			Key:        "test-color",
			Attributes: attrs,
			Native: &soft_backend.Shader{
				Vertex: worldVertex,
				Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
					c := in.Uniforms.Vec4("uColor")
					c[3] *= in.Uniforms.Float(renderable.UniformAlpha)
					return c, true
				},
			},
		},
		renderable.VariantColorWboit: {
			Key:        "test-color-wboit",
			Attributes: attrs,
			Native: &soft_backend.Shader{
				Vertex: worldVertex,
				Outputs: func(in *soft_backend.FragmentInput) (out [gpu.MaxColorAttachments][4]float32, keep bool) {
					c := in.Uniforms.Vec4("uColor")
					a := c[3] * in.Uniforms.Float(renderable.UniformAlpha)
					out[0] = [4]float32{c[0] * a, c[1] * a, c[2] * a, a}
					out[1] = [4]float32{a, a, a, a}
					return out, true
				},
			},
		},
		renderable.VariantPick: {
			Key:        "test-pick",
			Attributes: attrs,
			Native: &soft_backend.Shader{
				Vertex: worldVertex,
				Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
					id := 0
					if renderable.PickType(in.Uniforms.Int(renderable.UniformPickType)) == renderable.PickObject {
						id = int(in.Uniforms.Int(renderable.UniformObjectID))
					}
					c := PackID(id)
					return [4]float32{c[0], c[1], c[2], 1}, true
				},
			},
		},
		renderable.VariantDepth: {
			Key:        "test-depth",
			Attributes: attrs,
			Native: &soft_backend.Shader{
				Vertex: worldVertex,
				Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
					return PackDepth(in.FragCoord.Z()), true
				},
			},
		},
	}
}

// quad covers world [x0, x1] x [y0, y1] on the z = 0 plane.
func quad(id int, x0, y0, x1, y1 float32, color [4]float32) *renderable.Object {
	v := renderable.NewValues()
	v.SetAttribute(renderable.AttributePosition, renderable.Attribute{
		Data:       []float32{x0, y0, x1, y0, x1, y1, x0, y0, x1, y1, x0, y1},
		Components: 2,
	})
	v.SetUniform("uColor", color)
	return &renderable.Object{
		ID:       id,
		State:    renderable.DefaultState(),
		Values:   v,
		Programs: testPrograms(),
		DrawMode: gpu.PrimitiveTriangles,
	}
}

type fixture struct {
	backend *soft_backend.Backend
	ctx     *renderer.Context
	scene   scene.Scene
	camera  camera.Camera
	passes  *Passes
}

// newFixture sets up a 100x100 buffer looked at through a y-down ortho
// camera, so world units equal window pixels with a top-left origin.
func newFixture(t *testing.T, backendOptions []soft_backend.BackendBuilderOption, options ...PassesBuilderOption) *fixture {
	t.Helper()
	b := soft_backend.New(100, 100, backendOptions...)
	ctx, err := renderer.NewContext(b)
	require.NoError(t, err)
	s := scene.NewScene(ctx)
	p, err := NewPasses(ctx, s, options...)
	require.NoError(t, err)
	t.Cleanup(p.Dispose)
	cam := camera.NewCamera(
		camera.WithOrtho(0, 100, 100, 0, -1, 1),
		camera.WithViewport(0, 0, 100, 100),
	)
	return &fixture{backend: b, ctx: ctx, scene: s, camera: cam, passes: p}
}

func (f *fixture) add(t *testing.T, objects ...*renderable.Object) {
	t.Helper()
	for _, o := range objects {
		f.scene.Add(o)
	}
	assert.False(t, f.scene.Commit(scene.NoTimeLimit))
}

func readPixel(t *testing.T, ctx *renderer.Context, x, y int) [4]byte {
	t.Helper()
	var px [4]byte
	require.NoError(t, ctx.ReadPixels(x, y, 1, 1, px[:]))
	return px
}

func TestSpiral2D(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 0}}, Spiral2D(0))

	ring1 := [][2]int{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	assert.Equal(t, ring1, Spiral2D(1))

	ring2 := Spiral2D(2)
	require.Len(t, ring2, 25)
	assert.Equal(t, ring1, ring2[:9])
	seen := map[[2]int]bool{}
	for _, d := range ring2 {
		assert.False(t, seen[d], "duplicate offset %v", d)
		assert.LessOrEqual(t, max(d[0], -d[0], d[1], -d[1]), 2)
		seen[d] = true
	}
}

func quantizeBytes(c []float32) []byte {
	out := make([]byte, len(c))
	for i, v := range c {
		out[i] = byte(min(max(v, 0), 1)*255 + 0.5)
	}
	return out
}

func TestPackID(t *testing.T) {
	for _, id := range []int{0, 7, 255, 256, 65535, 123456, NullID - 1} {
		c := PackID(id)
		b := quantizeBytes(c[:])
		assert.Equal(t, id, UnpackRGBToInt(b[0], b[1], b[2]), "id %d", id)
	}
	assert.Equal(t, NullID, UnpackRGBToInt(255, 255, 255))
}

func TestPackDepth(t *testing.T) {
	for _, d := range []float32{0, 0.25, 0.3, 0.5, 0.731, 0.99} {
		c := PackDepth(d)
		assert.InDelta(t, d, UnpackDepth(quantizeBytes(c[:])), 1e-6, "depth %v", d)
	}
	assert.GreaterOrEqual(t, UnpackDepth([]byte{255, 255, 255, 255}), float32(emptyDepth))
}

func TestJitterOffsetsAndWeights(t *testing.T) {
	for level := 0; level <= MaxSampleLevel; level++ {
		offsets := JitterOffsets(level)
		require.Len(t, offsets, 1<<level)
		var sum float32
		for i := range offsets {
			w := SampleWeight(i, len(offsets))
			assert.Positive(t, w)
			sum += w
		}
		assert.InDelta(t, 1, sum, 1e-5, "level %d", level)
	}
	assert.Equal(t, [][2]float32{{0.25, 0.25}, {-0.25, -0.25}}, JitterOffsets(1))
	assert.Len(t, JitterOffsets(MaxSampleLevel+3), 32)
}

func TestParseModes(t *testing.T) {
	m, err := ParseTransparencyMode("wboit")
	require.NoError(t, err)
	assert.Equal(t, Wboit, m)
	_, err = ParseTransparencyMode("sorted")
	assert.Error(t, err)

	ms, err := ParseMultiSampleMode("temporal")
	require.NoError(t, err)
	assert.Equal(t, MultiSampleTemporal, ms)
	assert.Equal(t, "temporal", ms.String())
	_, err = ParseMultiSampleMode("always")
	assert.Error(t, err)
}

func TestDrawOpaque(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(7, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))

	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}))
	require.NoError(t, f.passes.Draw.ColorTarget().Bind())
	// window y is flipped: world (15, 15) lands on row 84
	assert.Equal(t, [4]byte{255, 0, 0, 255}, readPixel(t, f.ctx, 15, 84))
	assert.Equal(t, [4]byte{0, 0, 0, 255}, readPixel(t, f.ctx, 50, 50))
}

func TestDrawBlendedTransparency(t *testing.T) {
	f := newFixture(t, nil)
	o := quad(1, 10, 10, 20, 20, [4]float32{1, 0, 0, 1})
	o.Values.SetValue(renderable.ValueAlpha, float32(0.5))
	f.add(t, o)

	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}))
	require.NoError(t, f.passes.Draw.ColorTarget().Bind())
	px := readPixel(t, f.ctx, 15, 84)
	assert.InDelta(t, 128, int(px[0]), 1)
	assert.Zero(t, px[1])
}

func TestDrawWboit(t *testing.T) {
	f := newFixture(t, nil, WithTransparency(Wboit))
	require.Equal(t, Wboit, f.passes.Draw.Transparency())
	o := quad(1, 10, 10, 20, 20, [4]float32{0, 1, 0, 1})
	o.Values.SetValue(renderable.ValueAlpha, float32(0.5))
	f.add(t, o)

	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}))
	require.NoError(t, f.passes.Draw.ColorTarget().Bind())
	px := readPixel(t, f.ctx, 15, 84)
	assert.Zero(t, px[0])
	assert.InDelta(t, 128, int(px[1]), 1)
	assert.Equal(t, byte(255), px[3])
}

func TestTransparencyFallsBackWithoutFloatTargets(t *testing.T) {
	f := newFixture(t,
		[]soft_backend.BackendBuilderOption{soft_backend.WithoutExtensions(gpu.ExtColorBufferFloat, gpu.ExtColorBufferHalfFloat)},
		WithTransparency(Wboit),
	)
	assert.Equal(t, Blended, f.passes.Draw.Transparency())

	f.passes.Draw.SetTransparency(Dpoit)
	assert.Equal(t, Blended, f.passes.Draw.Transparency())
}

func TestDpoitFallsBackWithoutBlendMinMax(t *testing.T) {
	f := newFixture(t,
		[]soft_backend.BackendBuilderOption{soft_backend.WithoutExtensions(gpu.ExtBlendMinMax)},
		WithTransparency(Dpoit),
	)
	assert.Equal(t, Blended, f.passes.Draw.Transparency())
	f.passes.Draw.SetTransparency(Wboit)
	assert.Equal(t, Wboit, f.passes.Draw.Transparency())
}

func TestDpoitDrawsRenderablesWithoutVariant(t *testing.T) {
	f := newFixture(t, nil, WithTransparency(Dpoit))
	require.Equal(t, Dpoit, f.passes.Draw.Transparency())
	o := quad(1, 10, 10, 20, 20, [4]float32{1, 0, 0, 1})
	o.Values.SetValue(renderable.ValueAlpha, float32(0.5))
	f.add(t, o)

	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}))
	require.NoError(t, f.passes.Draw.ColorTarget().Bind())
	assert.InDelta(t, 128, int(readPixel(t, f.ctx, 15, 84)[0]), 1)
}

func TestPickIdentify(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(7, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))
	w, h := f.passes.Pick.Size()
	assert.Equal(t, 50, w)
	assert.Equal(t, 50, h)

	pd, ok := f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)
	assert.Equal(t, PickingID{ObjectID: 7, InstanceID: 0, GroupID: 0}, pd.ID)
	assert.InDelta(t, 15, pd.Position.X(), 1)
	assert.InDelta(t, 15, pd.Position.Y(), 1)
	assert.InDelta(t, 0, pd.Position.Z(), 1e-3)

	pd, ok = f.passes.PickHelper.Identify(50, 50, f.camera)
	assert.False(t, ok)
	assert.Nil(t, pd)
}

func TestPickIdentifiesIDZero(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(0, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))

	pd, ok := f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)
	assert.Equal(t, PickingID{}, pd.ID)

	_, ok = f.passes.PickHelper.Identify(80, 80, f.camera)
	assert.False(t, ok)
}

func TestDrawAndPickSurviveContextRestore(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(7, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))
	props := DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}
	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, props))
	_, ok := f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)

	f.backend.SimulateContextLoss()
	f.ctx.SetContextLost()
	f.backend.SimulateContextRestore()
	resetScene := func() { require.NoError(t, f.scene.Reset()) }
	require.NoError(t, f.ctx.HandleContextRestored(resetScene, f.passes.Reset))

	require.NoError(t, f.passes.Draw.Render(f.scene, f.camera, props))
	require.NoError(t, f.passes.Draw.ColorTarget().Bind())
	assert.Equal(t, [4]byte{255, 0, 0, 255}, readPixel(t, f.ctx, 15, 84))
	assert.Equal(t, [4]byte{0, 0, 0, 255}, readPixel(t, f.ctx, 50, 50))

	pd, ok := f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)
	assert.Equal(t, 7, pd.ID.ObjectID)
	_, ok = f.passes.PickHelper.Identify(50, 50, f.camera)
	assert.False(t, ok)
	assert.Zero(t, f.backend.DoubleFrees())
}

func TestPickSpiralFindsNeighbour(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(3, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))

	// one pick pixel right of the quad edge
	pd, ok := f.passes.PickHelper.Identify(21, 15, f.camera)
	require.True(t, ok)
	assert.Equal(t, 3, pd.ID.ObjectID)

	f.passes.PickHelper.SetPickPadding(0)
	_, ok = f.passes.PickHelper.Identify(21, 15, f.camera)
	assert.False(t, ok)
}

func TestPickSkipsUnpickable(t *testing.T) {
	f := newFixture(t, nil)
	colorOnly := quad(1, 30, 30, 40, 40, [4]float32{1, 0, 0, 1})
	colorOnly.State.ColorOnly = true
	hidden := quad(2, 60, 60, 70, 70, [4]float32{1, 0, 0, 1})
	hidden.State.Pickable = false
	f.add(t, colorOnly, hidden)

	_, ok := f.passes.PickHelper.Identify(35, 35, f.camera)
	assert.False(t, ok)
	_, ok = f.passes.PickHelper.Identify(65, 65, f.camera)
	assert.False(t, ok)
}

func TestPickBuffersAreCached(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(7, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))
	assert.True(t, f.passes.PickHelper.Dirty())

	f.backend.ResetCalls()
	_, ok := f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)
	_, ok = f.passes.PickHelper.Identify(12, 12, f.camera)
	require.True(t, ok)
	assert.Equal(t, 4, f.backend.Calls("ReadPixels"))
	assert.False(t, f.passes.PickHelper.Dirty())

	f.passes.Reset()
	assert.True(t, f.passes.PickHelper.Dirty())
	_, ok = f.passes.PickHelper.Identify(15, 15, f.camera)
	require.True(t, ok)
	assert.Equal(t, 8, f.backend.Calls("ReadPixels"))
}

func TestPickSizeFollowsDrawPass(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.passes.SetSize(200, 80))
	w, h := f.passes.Pick.Size()
	assert.Equal(t, 100, w)
	assert.Equal(t, 40, h)

	require.NoError(t, f.passes.Pick.SetPickBaseScale(0.25))
	w, h = f.passes.Pick.Size()
	assert.Equal(t, 50, w)
	assert.Equal(t, 20, h)
	assert.Error(t, f.passes.Pick.SetPickBaseScale(0))
}

func TestMultiSampleOn(t *testing.T) {
	f := newFixture(t, nil, WithMultiSample(MultiSampleOn, 2))
	f.add(t, quad(1, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))

	more, err := f.passes.MultiSample.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}})
	require.NoError(t, err)
	assert.False(t, more)

	require.NoError(t, f.passes.MultiSample.Output().Bind())
	px := readPixel(t, f.ctx, 15, 84)
	assert.Equal(t, byte(255), px[0])
	assert.Equal(t, byte(255), px[3])

	// the jitter is removed after the frame
	plain := camera.NewCamera(camera.WithOrtho(0, 100, 100, 0, -1, 1), camera.WithViewport(0, 0, 100, 100))
	assert.Equal(t, plain.Uniforms()[camera.UniformProjection], f.camera.Uniforms()[camera.UniformProjection])
}

func TestMultiSampleTemporal(t *testing.T) {
	f := newFixture(t, nil, WithMultiSample(MultiSampleTemporal, 1))
	f.add(t, quad(1, 10, 10, 20, 20, [4]float32{1, 0, 0, 1}))
	props := DrawProps{ClearColor: [4]float32{0, 0, 0, 1}}

	more, err := f.passes.MultiSample.Render(f.scene, f.camera, props)
	require.NoError(t, err)
	assert.True(t, more)
	require.NoError(t, f.passes.MultiSample.Output().Bind())
	assert.Equal(t, byte(255), readPixel(t, f.ctx, 15, 84)[0])

	more, err = f.passes.MultiSample.Render(f.scene, f.camera, props)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 2, f.passes.MultiSample.SampleIndex())

	more, err = f.passes.MultiSample.Render(f.scene, f.camera, props)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 2, f.passes.MultiSample.SampleIndex())

	f.passes.MultiSample.Reset()
	assert.Zero(t, f.passes.MultiSample.SampleIndex())
}

func TestPresentCopiesToDefaultFramebuffer(t *testing.T) {
	f := newFixture(t, nil)
	f.add(t, quad(1, 10, 10, 20, 20, [4]float32{0, 0, 1, 1}))

	_, err := f.passes.MultiSample.Render(f.scene, f.camera, DrawProps{ClearColor: [4]float32{0, 0, 0, 1}})
	require.NoError(t, err)
	require.NoError(t, f.passes.Present())
	f.ctx.UnbindFramebuffer()
	assert.Equal(t, [4]byte{0, 0, 255, 255}, readPixel(t, f.ctx, 15, 84))
	assert.Equal(t, [4]byte{0, 0, 0, 255}, readPixel(t, f.ctx, 80, 20))
}
