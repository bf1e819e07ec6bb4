package scene

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func source(key string) gpu.ProgramSource {
	return gpu.ProgramSource{
		Key:        key,
		Attributes: []string{renderable.AttributePosition},
		Native: &soft_backend.Shader{
			Vertex: func(in *soft_backend.VertexInput) soft_backend.VertexOutput {
				p := in.Attrib(0)
				return soft_backend.VertexOutput{Position: mgl32.Vec4{p[0], p[1], 0, 1}}
			},
			Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
				return [4]float32{1, 1, 1, 1}, true
			},
		},
	}
}

func object(id, material int, x0, y0, x1, y1 float32) *renderable.Object {
	v := renderable.NewValues()
	v.SetAttribute(renderable.AttributePosition, renderable.Attribute{
		Data:       []float32{x0, y0, x1, y0, x1, y1, x0, y0, x1, y1, x0, y1},
		Components: 2,
	})
	return &renderable.Object{
		ID:         id,
		MaterialID: material,
		State:      renderable.DefaultState(),
		Values:     v,
		Programs:   map[renderable.Variant]gpu.ProgramSource{renderable.VariantColor: source("scene-test")},
		DrawMode:   gpu.PrimitiveTriangles,
	}
}

func newScene(t *testing.T, options ...SceneBuilderOption) (Scene, *soft_backend.Backend) {
	t.Helper()
	b := soft_backend.New(8, 8)
	ctx, err := renderer.NewContext(b)
	require.NoError(t, err)
	return NewScene(ctx, options...), b
}

// steppingClock advances by step on every read.
func steppingClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func TestCommitAppliesQueue(t *testing.T) {
	s, _ := newScene(t)
	a, b := object(1, 0, 0, 0, 1, 1), object(2, 0, 0, 0, 1, 1)
	s.Add(a)
	s.Add(b)
	s.Add(a)
	assert.True(t, s.NeedsCommit())
	assert.Equal(t, 2, s.CommitQueueSize())
	assert.False(t, s.Has(a))

	assert.False(t, s.Commit(NoTimeLimit))
	assert.False(t, s.NeedsCommit())
	assert.True(t, s.Has(a))
	assert.True(t, s.Has(b))
	assert.Equal(t, 2, s.Count())

	s.Remove(a)
	assert.True(t, s.Has(a))
	assert.False(t, s.Commit(NoTimeLimit))
	assert.False(t, s.Has(a))
	assert.Equal(t, 1, s.Count())
}

func TestCommitZeroBudgetAppliesNothing(t *testing.T) {
	s, _ := newScene(t)
	s.Add(object(1, 0, 0, 0, 1, 1))
	assert.True(t, s.Commit(0))
	assert.Zero(t, s.Count())
	assert.Equal(t, 1, s.CommitQueueSize())
}

func TestCommitIsTimeBoxed(t *testing.T) {
	s, _ := newScene(t, WithClock(steppingClock(time.Millisecond)))
	for i := range 5 {
		s.Add(object(i, 0, 0, 0, 1, 1))
	}

	// Start reads the clock once, each check once more.
	assert.True(t, s.Commit(2*time.Millisecond))
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, 4, s.CommitQueueSize())

	for s.Commit(2 * time.Millisecond) {
	}
	assert.Equal(t, 5, s.Count())
	assert.False(t, s.NeedsCommit())
}

func TestQueueCancelsOppositeOperation(t *testing.T) {
	s, _ := newScene(t)
	o := object(1, 0, 0, 0, 1, 1)

	s.Add(o)
	s.Remove(o)
	s.Commit(NoTimeLimit)
	assert.False(t, s.Has(o))

	s.Add(o)
	s.Commit(NoTimeLimit)
	s.Remove(o)
	s.Add(o)
	assert.Equal(t, 1, s.CommitQueueSize())
	s.Commit(NoTimeLimit)
	assert.True(t, s.Has(o))
	assert.Equal(t, 1, s.Count())
}

func TestCommitSortsByProgramMaterialID(t *testing.T) {
	s, _ := newScene(t)
	other := object(0, 0, 0, 0, 1, 1)
	other.Programs[renderable.VariantColor] = source("scene-test-other")
	s.Add(object(5, 2, 0, 0, 1, 1))
	s.Add(other)
	s.Add(object(3, 1, 0, 0, 1, 1))
	s.Add(object(4, 1, 0, 0, 1, 1))
	s.Commit(NoTimeLimit)

	var ids []int
	s.ForEach(func(r renderable.Renderable, _ *renderable.Object) {
		ids = append(ids, r.ID())
	})
	assert.Equal(t, []int{3, 4, 5, 0}, ids)
}

func TestAggregatesUseVisiblePrimitives(t *testing.T) {
	s, _ := newScene(t)
	opaque := object(1, 0, 0, 0, 1, 1)
	opaque.Values.SetValue(renderable.ValueMarkerAverage, float32(1))
	half := object(2, 0, 0, 0, 1, 1)
	half.Values.SetValue(renderable.ValueAlpha, float32(0.5))
	volume := object(3, 0, 0, 0, 1, 1)
	volume.Kind = renderable.KindVolume
	volume.Values.SetValue(renderable.ValueAlpha, float32(0))
	for _, o := range []*renderable.Object{opaque, half, volume} {
		s.Add(o)
	}
	s.Commit(NoTimeLimit)

	assert.Len(t, s.Primitives(), 2)
	assert.Len(t, s.Volumes(), 1)
	assert.InDelta(t, 0.75, s.OpacityAverage(), 1e-6)
	assert.InDelta(t, 0.5, s.MarkerAverage(), 1e-6)
	assert.InDelta(t, 0, s.TransparencyMin(), 1e-6)
	assert.True(t, s.HasOpaque())

	// Aggregates are pulled, not pushed.
	s.Primitives()[0].State().Visible = false
	assert.True(t, s.HasOpaque())
	assert.True(t, s.SyncVisibility())
	assert.False(t, s.SyncVisibility())
	assert.False(t, s.HasOpaque())
	assert.InDelta(t, 0.5, s.OpacityAverage(), 1e-6)
	assert.InDelta(t, 0.5, s.TransparencyMin(), 1e-6)
	assert.Zero(t, s.MarkerAverage())
}

func TestXrayHalvesOpacity(t *testing.T) {
	s, _ := newScene(t)
	o := object(1, 0, 0, 0, 1, 1)
	o.Values.SetValue(renderable.ValueXrayShaded, true)
	o.Values.SetValue(renderable.ValueTransparencyAverage, float32(0.5))
	s.Add(o)
	s.Commit(NoTimeLimit)
	assert.InDelta(t, 0.25, s.OpacityAverage(), 1e-6)
	assert.False(t, s.HasOpaque())
}

func TestBoundingSphere(t *testing.T) {
	s, _ := newScene(t)
	a := object(1, 0, 0, 0, 2, 0)
	b := object(2, 0, 10, 0, 12, 0)
	c := object(3, 0, 0, 0, 0, 0)
	c.Values.SetValue(renderable.ValueBoundingSphere, common.Sphere{Center: mgl32.Vec3{0, 50, 0}, Radius: 1})
	for _, o := range []*renderable.Object{a, b, c} {
		s.Add(o)
	}
	s.Commit(NoTimeLimit)

	all := s.BoundingSphere()
	for _, p := range []mgl32.Vec3{{0, 0, 0}, {12, 0, 0}, {0, 51, 0}} {
		assert.True(t, common.SphereContains(all, p), "%v", p)
	}

	c.State.Visible = false
	s.SyncVisibility()
	visible := s.BoundingSphereVisible()
	assert.InDelta(t, 6, visible.Center.X(), 1e-4)
	assert.InDelta(t, 6, visible.Radius, 1e-4)
	assert.Equal(t, all, s.BoundingSphere())
}

func TestBoundingSphereUsesInstanceTransforms(t *testing.T) {
	s, _ := newScene(t)
	o := object(1, 0, -1, -1, 1, 1)
	m := mgl32.Translate3D(100, 0, 0)
	o.Values.SetAttribute(renderable.AttributeTransform, renderable.Attribute{Data: m[:], Components: 16, Divisor: 1})
	s.Add(o)
	s.Commit(NoTimeLimit)
	sp := s.BoundingSphere()
	assert.InDelta(t, 100, sp.Center.X(), 1e-4)
}

func TestBoundingSphereParallelMatchesSerial(t *testing.T) {
	serial, _ := newScene(t)
	parallel, _ := newScene(t, WithComputeWorkers(4), WithParallelThreshold(1))
	for i := range 37 {
		x := float32(i * 3)
		serial.Add(object(i, 0, x, 0, x+1, float32(i)))
		parallel.Add(object(i, 0, x, 0, x+1, float32(i)))
	}
	serial.Commit(NoTimeLimit)
	parallel.Commit(NoTimeLimit)
	assert.Equal(t, serial.BoundingSphere(), parallel.BoundingSphere())
}

func TestUpdateMarksSphereDirty(t *testing.T) {
	s, _ := newScene(t)
	o := object(1, 0, 0, 0, 2, 0)
	s.Add(o)
	s.Commit(NoTimeLimit)
	before := s.BoundingSphere()

	o.Values.SetAttribute(renderable.AttributePosition, renderable.Attribute{
		Data:       []float32{0, 0, 20, 0, 20, 0, 0, 0, 20, 0, 0, 0},
		Components: 2,
	})
	require.NoError(t, s.Update([]*renderable.Object{o}, true))
	assert.Equal(t, before, s.BoundingSphere())
	require.NoError(t, s.Update(nil, false))
	assert.InDelta(t, 10, s.BoundingSphere().Radius, 1e-4)
}

func TestClearDisposes(t *testing.T) {
	s, b := newScene(t)
	o := object(1, 0, 0, 0, 1, 1)
	s.Add(o)
	s.Commit(NoTimeLimit)
	s.Add(object(2, 0, 0, 0, 1, 1))
	assert.NotZero(t, b.Live())

	s.Clear()
	assert.Zero(t, s.Count())
	assert.False(t, s.NeedsCommit())
	assert.True(t, o.State.Disposed)
	assert.Zero(t, b.Live())
	assert.True(t, s.BoundingSphere().IsEmpty())
}

func TestResetReuploadsEveryRenderable(t *testing.T) {
	s, b := newScene(t)
	s.Add(object(1, 0, 0, 0, 1, 1))
	s.Add(object(2, 0, 2, 2, 3, 3))
	s.Commit(NoTimeLimit)

	b.SimulateContextLoss()
	s.Context().SetContextLost()
	b.SimulateContextRestore()
	require.NoError(t, s.Context().HandleContextRestored(func() { require.NoError(t, s.Reset()) }))

	b.ResetCalls()
	require.NoError(t, s.Reset())
	assert.Equal(t, 2, b.Calls("BufferData")+b.Calls("BufferSubData"))
	assert.Zero(t, b.DoubleFrees())
}

func TestDisposeStopsWorkersAndStaysUsable(t *testing.T) {
	s, b := newScene(t, WithComputeWorkers(4), WithParallelThreshold(1))
	for i := range 8 {
		s.Add(object(i, 0, 0, 0, float32(i+1), 1))
	}
	s.Commit(NoTimeLimit)
	require.False(t, s.BoundingSphere().IsEmpty())

	s.Dispose()
	s.Dispose()
	assert.Zero(t, s.Count())
	assert.Zero(t, b.Live())

	// spheres fall back to the serial path once the pool is stopped
	s.Add(object(1, 0, 0, 0, 2, 0))
	s.Add(object(2, 0, 0, 0, 2, 0))
	s.Commit(NoTimeLimit)
	assert.InDelta(t, 1, s.BoundingSphere().Radius, 1e-4)
}
