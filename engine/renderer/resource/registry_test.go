package resource

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSource(key string) gpu.ProgramSource {
	return gpu.ProgramSource{
		Key:        key,
		Attributes: []string{"aPosition"},
		Native: &soft_backend.Shader{
			Vertex: func(in *soft_backend.VertexInput) soft_backend.VertexOutput {
				return soft_backend.VertexOutput{Position: mgl32.Vec4{0, 0, 0, 1}}
			},
			Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
				return [4]float32{1, 1, 1, 1}, true
			},
		},
	}
}

func TestIDsAreUnique(t *testing.T) {
	r := NewRegistry(soft_backend.New(1, 1))
	a, err := r.CreateBuffer(gpu.BufferAttribute, gpu.UsageStatic, []byte{1, 2, 3, 4})
	require.NoError(t, err)
	b, err := r.CreateTexture(gpu.FormatRGBA, gpu.TypeUint8, gpu.FilterNearest)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Greater(t, NextID(), b.ID())
}

func TestStatsTrackLiveCountsAndBytes(t *testing.T) {
	r := NewRegistry(soft_backend.New(1, 1))
	buf, err := r.CreateBuffer(gpu.BufferAttribute, gpu.UsageStatic, make([]byte, 64))
	require.NoError(t, err)
	tex, err := r.CreateTexture(gpu.FormatRGBA, gpu.TypeUint8, gpu.FilterNearest)
	require.NoError(t, err)
	require.NoError(t, tex.Define(4, 4, nil))

	s := r.Stats()
	assert.Equal(t, 1, s.Count(KindBuffer))
	assert.Equal(t, 1, s.Count(KindTexture))
	assert.Equal(t, 64, s.Bytes[KindBuffer])
	assert.Equal(t, 64, s.Bytes[KindTexture])

	require.NoError(t, buf.Update(make([]byte, 16)))
	assert.Equal(t, 16, r.Stats().Bytes[KindBuffer])

	buf.Destroy()
	tex.Destroy()
	s = r.Stats()
	assert.Zero(t, s.Count(KindBuffer))
	assert.Zero(t, s.Bytes[KindBuffer])
	assert.Zero(t, s.Bytes[KindTexture])
}

func TestDestroyIsIdempotent(t *testing.T) {
	b := soft_backend.New(1, 1)
	r := NewRegistry(b)
	buf, err := r.CreateBuffer(gpu.BufferElements, gpu.UsageStatic, nil)
	require.NoError(t, err)
	buf.Destroy()
	buf.Destroy()
	assert.Equal(t, 1, b.Calls("DeleteBuffer"))
	assert.Zero(t, b.DoubleFrees())
	assert.False(t, r.Live(KindBuffer, buf.ID()))
}

func TestProgramCacheIsRefCounted(t *testing.T) {
	b := soft_backend.New(1, 1)
	r := NewRegistry(b)
	p1, err := r.Program(testSource("flat"))
	require.NoError(t, err)
	p2, err := r.Program(testSource("flat"))
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, b.Calls("CreateProgram"))
	assert.Equal(t, 2, r.ProgramRefs("flat"))
	assert.Equal(t, 0, p1.AttributeLocation("aPosition"))
	assert.Equal(t, -1, p1.AttributeLocation("aNormal"))

	r.ReleaseProgram(p1)
	assert.Equal(t, 0, b.Calls("DeleteProgram"))
	r.ReleaseProgram(p2)
	assert.Equal(t, 1, b.Calls("DeleteProgram"))
	assert.Zero(t, r.ProgramRefs("flat"))

	p3, err := r.Program(testSource("flat"))
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
}

func TestResetRecreatesEveryResource(t *testing.T) {
	b := soft_backend.New(4, 4)
	r := NewRegistry(b)
	tex, err := r.CreateTexture(gpu.FormatRGBA, gpu.TypeUint8, gpu.FilterNearest)
	require.NoError(t, err)
	require.NoError(t, tex.Define(2, 2, nil))
	rb, err := r.CreateRenderbuffer(2, 2)
	require.NoError(t, err)
	fb, err := r.CreateFramebuffer()
	require.NoError(t, err)
	require.NoError(t, fb.AttachTexture(gpu.AttachmentColor0, tex))
	require.NoError(t, fb.AttachDepth(rb))
	buf, err := r.CreateBuffer(gpu.BufferAttribute, gpu.UsageStatic, make([]byte, 12))
	require.NoError(t, err)
	_, err = r.CreateVertexArray([]AttributeBinding{{Location: 0, Buffer: buf, Components: 3}}, nil)
	require.NoError(t, err)
	_, err = r.Program(testSource("flat"))
	require.NoError(t, err)

	oldTex, oldFB := tex.Handle(), fb.Handle()
	b.SimulateContextLoss()
	b.SimulateContextRestore()
	require.NoError(t, r.Reset())

	assert.NotEqual(t, oldTex, tex.Handle())
	assert.NotEqual(t, oldFB, fb.Handle())
	assert.Equal(t, gpu.FramebufferComplete, fb.Status())
	assert.Equal(t, 6, b.Live())
}

func TestRegistryDestroyReleasesEverything(t *testing.T) {
	b := soft_backend.New(1, 1)
	r := NewRegistry(b)
	_, err := r.CreateBuffer(gpu.BufferAttribute, gpu.UsageStatic, []byte{0})
	require.NoError(t, err)
	_, err = r.CreateRenderbuffer(1, 1)
	require.NoError(t, err)
	_, err = r.Program(testSource("flat"))
	require.NoError(t, err)

	r.Destroy()
	assert.Zero(t, b.Live())
	assert.Zero(t, b.DoubleFrees())
	assert.Zero(t, r.ProgramRefs("flat"))
}

func TestRecordDraw(t *testing.T) {
	r := NewRegistry(soft_backend.New(1, 1))
	r.RecordDraw(1)
	r.RecordDraw(5)
	s := r.Stats()
	assert.Equal(t, 2, s.DrawCount)
	assert.Equal(t, 6, s.InstanceCount)
	assert.Equal(t, 1, s.InstancedDrawCount)
	r.ResetFrameStats()
	assert.Zero(t, r.Stats().DrawCount)
}
