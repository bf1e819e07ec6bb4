package profiler

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestTickReportsPerInterval(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	ctx, err := renderer.NewContext(soft_backend.New(4, 4))
	require.NoError(t, err)
	require.NotNil(t, ctx.Timer())

	p := NewProfiler(WithClock(clock.now), WithContext(ctx), WithInterval(time.Second))

	clock.t = clock.t.Add(500 * time.Millisecond)
	assert.False(t, p.Tick())

	ctx.Timer().Mark("draw")
	ctx.Timer().MarkEnd("draw")
	clock.t = clock.t.Add(500 * time.Millisecond)
	require.True(t, p.Tick())

	s := p.Last()
	assert.InDelta(t, 2, s.FPS, 1e-9)
	assert.Contains(t, s.GPU, "draw")
	assert.Positive(t, s.SysMB)

	// totals restart with each interval
	clock.t = clock.t.Add(time.Second)
	require.True(t, p.Tick())
	assert.InDelta(t, 1, p.Last().FPS, 1e-9)
	assert.NotContains(t, p.Last().GPU, "draw")
}

func TestTickWithoutContext(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	p := NewProfiler(WithClock(clock.now), WithInterval(0))
	clock.t = clock.t.Add(time.Second)
	assert.True(t, p.Tick())
	assert.Empty(t, p.Last().GPU)
}
