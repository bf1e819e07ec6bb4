package renderer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, b *soft_backend.Backend, options ...ContextBuilderOption) *Context {
	t.Helper()
	c, err := NewContext(b, options...)
	require.NoError(t, err)
	return c
}

func TestNewContextRejectsMissingCapabilities(t *testing.T) {
	limits := gpu.Limits{MaxTextureSize: 1024, MaxRenderbufferSize: 1024, MaxDrawBuffers: 4, MaxVertexAttribs: 16, MaxTextureImageUnits: 8, MaxVertexTextureImageUnits: 0}
	_, err := NewContext(soft_backend.New(4, 4, soft_backend.WithLimits(limits)))
	assert.ErrorIs(t, err, ErrMissingCapability)

	limits.MaxVertexTextureImageUnits, limits.MaxVertexAttribs = 4, 4
	_, err = NewContext(soft_backend.New(4, 4, soft_backend.WithLimits(limits)))
	assert.ErrorIs(t, err, ErrMissingCapability)
}

func TestCapabilitiesReportOptionalFeatures(t *testing.T) {
	c := newTestContext(t, soft_backend.New(4, 4, soft_backend.WithoutExtensions(gpu.ExtTimerQuery)))
	caps := c.Capabilities()
	assert.True(t, caps.DrawBuffers)
	assert.False(t, caps.TimerQuery)
	assert.Contains(t, caps.Missing(), gpu.ExtTimerQuery)
	assert.Nil(t, c.Timer())
}

func TestClearGoesThroughStateCache(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	c.Clear(1, 0, 0, 1)
	b.ResetCalls()
	c.Clear(1, 0, 0, 1)
	assert.Zero(t, b.Calls("ClearColor"))
	assert.Zero(t, b.Calls("Viewport"))
	assert.Equal(t, 1, b.Calls("Clear"))

	var px [4]byte
	require.NoError(t, c.ReadPixels(0, 0, 1, 1, px[:]))
	assert.Equal(t, [4]byte{255, 0, 0, 255}, px)
}

func TestAlphaTargetNeedsDrawBuffers(t *testing.T) {
	limits := gpu.Limits{MaxTextureSize: 1024, MaxRenderbufferSize: 1024, MaxDrawBuffers: 1, MaxVertexAttribs: 16, MaxTextureImageUnits: 8, MaxVertexTextureImageUnits: 4}
	c := newTestContext(t, soft_backend.New(4, 4, soft_backend.WithLimits(limits)))
	_, err := c.CreateRenderTarget(4, 4, false, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatAlpha)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, c.RenderTargets())
}

func TestFloatTargetFallsBackToUint8(t *testing.T) {
	c := newTestContext(t, soft_backend.New(4, 4, soft_backend.WithoutExtensions(gpu.ExtColorBufferFloat, gpu.ExtColorBufferHalfFloat)))
	rt, err := c.CreateRenderTarget(4, 4, true, gpu.TypeFloat32, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	assert.Equal(t, gpu.TypeUint8, rt.Type())
}

func TestRenderTargetSetSize(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	rt, err := c.CreateRenderTarget(8, 8, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)

	b.ResetCalls()
	require.NoError(t, rt.SetSize(8, 8))
	assert.Zero(t, b.Calls("TexImage2D"))
	assert.Zero(t, b.Calls("RenderbufferStorage"))

	require.NoError(t, rt.SetSize(16, 4))
	assert.Equal(t, 1, b.Calls("TexImage2D"))
	assert.Equal(t, 1, b.Calls("RenderbufferStorage"))
	assert.Equal(t, 16, rt.Width())
	assert.Equal(t, gpu.FramebufferComplete, rt.Framebuffer().Status())

	require.NoError(t, rt.Bind())
	assert.Equal(t, [4]int32{0, 0, 16, 4}, c.State.CurrentViewport())
}

func TestRenderTargetSetSizeFailureKeepsOldSize(t *testing.T) {
	limits := gpu.Limits{MaxTextureSize: 1024, MaxRenderbufferSize: 64, MaxDrawBuffers: 4, MaxVertexAttribs: 16, MaxTextureImageUnits: 8, MaxVertexTextureImageUnits: 4}
	c := newTestContext(t, soft_backend.New(4, 4, soft_backend.WithLimits(limits)))
	rt, err := c.CreateRenderTarget(32, 32, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)

	require.Error(t, rt.SetSize(128, 128))
	assert.Equal(t, 32, rt.Width())
	assert.Equal(t, 32, rt.Texture().Width())
	assert.Equal(t, 32, rt.DepthBuffer().Width())

	// a retry is attempted again, not skipped as unchanged
	require.Error(t, rt.SetSize(128, 128))
	assert.Equal(t, 32, rt.Texture().Width())
	assert.Equal(t, 32, rt.DepthBuffer().Width())

	require.NoError(t, rt.SetSize(64, 48))
	assert.Equal(t, 64, rt.Texture().Width())
	assert.Equal(t, 48, rt.DepthBuffer().Height())
	assert.Equal(t, gpu.FramebufferComplete, rt.Framebuffer().Status())
}

func TestRenderTargetSetSizeRollsBackDepth(t *testing.T) {
	limits := gpu.Limits{MaxTextureSize: 64, MaxRenderbufferSize: 1024, MaxDrawBuffers: 4, MaxVertexAttribs: 16, MaxTextureImageUnits: 8, MaxVertexTextureImageUnits: 4}
	c := newTestContext(t, soft_backend.New(4, 4, soft_backend.WithLimits(limits)))
	rt, err := c.CreateRenderTarget(32, 32, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)

	require.Error(t, rt.SetSize(128, 128))
	assert.Equal(t, 32, rt.Width())
	assert.Equal(t, 32, rt.Texture().Width())
	assert.Equal(t, 32, rt.DepthBuffer().Width())
	assert.Equal(t, 32, rt.DepthBuffer().Height())
}

func TestRenderTargetSetSizeAfterDestroy(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	rt, err := c.CreateRenderTarget(4, 4, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	rt.Destroy()

	b.ResetCalls()
	assert.ErrorIs(t, rt.SetSize(8, 8), ErrTargetDestroyed)
	assert.Zero(t, b.Calls("TexImage2D"))
	assert.Zero(t, b.Calls("RenderbufferStorage"))
}

func TestRenderTargetDebugBindReportsIncomplete(t *testing.T) {
	c := newTestContext(t, soft_backend.New(4, 4), WithDebug(true))
	rt, err := c.CreateRenderTarget(4, 4, false, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	require.NoError(t, rt.Bind())

	rt.Texture().Destroy()
	err = rt.Bind()
	var fbErr *FramebufferError
	require.True(t, errors.As(err, &fbErr))
	assert.Equal(t, gpu.FramebufferIncompleteAttachment, fbErr.Status)
}

func TestRenderTargetDestroyIsIdempotent(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	rt, err := c.CreateRenderTarget(4, 4, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	rt.Destroy()
	rt.Destroy()
	assert.Zero(t, c.RenderTargets())
	assert.Zero(t, b.DoubleFrees())
	assert.Zero(t, b.Live())
}

func TestReadPixelsAsync(t *testing.T) {
	b := soft_backend.New(2, 2, soft_backend.WithFencePolls(1))
	c := newTestContext(t, b)
	c.Clear(0, 1, 0, 1)

	dst := make([]byte, 16)
	f, err := c.ReadPixelsAsync(0, 0, 2, 2, dst)
	require.NoError(t, err)
	assert.False(t, f.Done())

	_, err = c.ReadPixelsAsync(0, 0, 2, 2, dst)
	assert.ErrorIs(t, err, ErrBusy)

	assert.Equal(t, 1, c.Poll())
	assert.Equal(t, 0, c.Poll())
	require.True(t, f.Done())
	require.NoError(t, f.Err())
	assert.Equal(t, []byte{0, 255, 0, 255}, dst[:4])

	_, err = c.ReadPixelsAsync(0, 0, 2, 2, dst)
	assert.NoError(t, err)
}

func TestReadPixelsAsyncRejectsShortBuffer(t *testing.T) {
	b := soft_backend.New(2, 2)
	c := newTestContext(t, b)
	b.ResetCalls()

	f, err := c.ReadPixelsAsync(0, 0, 2, 2, make([]byte, 4))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Nil(t, f)
	assert.Zero(t, b.Calls("ReadPixelsToBuffer"))
	assert.Zero(t, b.Calls("FenceSync"))
	assert.Zero(t, c.Poll())

	// nothing is left pending
	_, err = c.ReadPixelsAsync(0, 0, 2, 2, make([]byte, 16))
	assert.NoError(t, err)
}

func TestReadPixelsAsyncWithoutPixelBuffers(t *testing.T) {
	b := soft_backend.New(1, 1, soft_backend.WithoutExtensions(gpu.ExtPixelBufferObject))
	c := newTestContext(t, b)
	f, err := c.ReadPixelsAsync(0, 0, 1, 1, make([]byte, 4))
	require.NoError(t, err)
	assert.True(t, f.Done())
	assert.Zero(t, b.Calls("FenceSync"))
}

func TestAwaitDrivesPoll(t *testing.T) {
	c := newTestContext(t, soft_backend.New(1, 1, soft_backend.WithFencePolls(3)))
	f := c.WaitForGpuCommandsComplete()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Await(ctx, f))
	assert.True(t, f.Done())
}

func TestWaitWithoutFenceReadsOnePixel(t *testing.T) {
	b := soft_backend.New(1, 1, soft_backend.WithoutExtensions(gpu.ExtFenceSync))
	c := newTestContext(t, b)
	f := c.WaitForGpuCommandsComplete()
	assert.True(t, f.Done())
	assert.Equal(t, 1, b.Calls("ReadPixels"))
}

func TestContextLossFailsPendingReads(t *testing.T) {
	b := soft_backend.New(1, 1, soft_backend.WithFencePolls(5))
	c := newTestContext(t, b)
	f, err := c.ReadPixelsAsync(0, 0, 1, 1, make([]byte, 4))
	require.NoError(t, err)
	b.SimulateContextLoss()
	c.SetContextLost()
	assert.True(t, c.IsContextLost())
	assert.ErrorIs(t, f.Err(), gpu.ErrContextLost)
}

func TestHandleContextRestored(t *testing.T) {
	b := soft_backend.New(4, 4)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := newTestContext(t, b, WithClock(func() time.Time { return at }))
	rt, err := c.CreateRenderTarget(4, 4, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	c.State.Enable(gpu.CapabilityBlend)
	c.State.CurrentProgramID = 3

	var events []RestoredEvent
	unsubscribe := c.OnContextRestored(func(ev RestoredEvent) { events = append(events, ev) })

	b.SimulateContextLoss()
	c.SetContextLost()
	b.SimulateContextRestore()

	var hookSawComplete bool
	require.NoError(t, c.HandleContextRestored(func() {
		hookSawComplete = rt.Framebuffer().Status() == gpu.FramebufferComplete
	}))
	assert.True(t, hookSawComplete)
	assert.Equal(t, Live, c.LossState())
	assert.False(t, c.State.IsEnabled(gpu.CapabilityBlend))
	assert.Equal(t, -1, c.State.CurrentProgramID)
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].At)

	// Idempotent while live.
	require.NoError(t, c.HandleContextRestored())
	assert.Len(t, events, 1)

	unsubscribe()
	b.SimulateContextLoss()
	c.SetContextLost()
	b.SimulateContextRestore()
	require.NoError(t, c.HandleContextRestored())
	assert.Len(t, events, 1)
}

func TestHandleContextRestoredResetsEachTargetOnce(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	withDepth, err := c.CreateRenderTarget(4, 4, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	colorOnly, err := c.CreateRenderTarget(8, 8, false, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)

	restored := 0
	c.OnContextRestored(func(RestoredEvent) { restored++ })

	b.SimulateContextLoss()
	c.SetContextLost()
	b.SimulateContextRestore()
	b.ResetCalls()
	require.NoError(t, c.HandleContextRestored())

	// Registry recreation defines and attaches each resource once, target
	// re-initialisation once more.
	assert.Equal(t, 4, b.Calls("TexImage2D"))
	assert.Equal(t, 4, b.Calls("FramebufferTexture2D"))
	assert.Equal(t, 2, b.Calls("RenderbufferStorage"))
	assert.Equal(t, 2, b.Calls("FramebufferRenderbuffer"))
	assert.Equal(t, 1, restored)
	assert.Equal(t, gpu.FramebufferComplete, withDepth.Framebuffer().Status())
	assert.Equal(t, gpu.FramebufferComplete, colorOnly.Framebuffer().Status())
	assert.Equal(t, 8, colorOnly.Texture().Width())

	b.ResetCalls()
	require.NoError(t, c.HandleContextRestored())
	assert.Zero(t, b.Calls("TexImage2D"))
	assert.Equal(t, 1, restored)
	assert.Zero(t, b.DoubleFrees())
}

type countingRenderable struct{ disposed int }

func (r *countingRenderable) Render() error { return nil }
func (r *countingRenderable) Update()       {}
func (r *countingRenderable) Dispose()      { r.disposed++ }

func TestDestroy(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	_, err := c.CreateRenderTarget(4, 4, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
	require.NoError(t, err)
	named := &countingRenderable{}
	c.NamedRenderables.Set("copy", named)

	c.Destroy(DoNotForceContextLoss())
	c.Destroy()
	assert.Equal(t, 1, named.disposed)
	assert.Zero(t, b.Live())
	assert.Equal(t, 1, b.Calls("UnbindAll"))
	assert.Zero(t, b.Calls("LoseContext"))
	assert.False(t, b.IsContextLost())
}

func TestDestroyForcesContextLoss(t *testing.T) {
	b := soft_backend.New(4, 4)
	c := newTestContext(t, b)
	c.Destroy()
	assert.True(t, b.IsContextLost())
}

func TestNamedRangeIsSorted(t *testing.T) {
	n := newNamed[int]()
	n.Set("b", 2)
	n.Set("a", 1)
	n.Set("c", 3)
	n.Delete("c")
	var got []string
	n.Range(func(name string, _ int) bool {
		got = append(got, name)
		return true
	})
	assert.Equal(t, []string{"a", "b"}, got)
	v, ok := n.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestGpuTimer(t *testing.T) {
	b := soft_backend.New(2, 2)
	c := newTestContext(t, b)
	timer := c.Timer()
	require.NotNil(t, timer)
	timer.Mark("draw")
	timer.Mark("nested")
	timer.MarkEnd("nested")
	timer.MarkEnd("draw")
	results := timer.Resolve()
	require.Len(t, results, 1)
	assert.Equal(t, "draw", results[0].Label)
	assert.Zero(t, b.Live())
}
