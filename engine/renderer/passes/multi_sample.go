package passes

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// MultiSampleMode selects how jittered frames are accumulated.
type MultiSampleMode uint8

const (
	// MultiSampleOff renders a single frame.
	MultiSampleOff MultiSampleMode = iota
	// MultiSampleOn renders every sample of the level in one call.
	MultiSampleOn
	// MultiSampleTemporal renders one sample per call until the level is
	// exhausted.
	MultiSampleTemporal
)

func (m MultiSampleMode) String() string {
	switch m {
	case MultiSampleOn:
		return "on"
	case MultiSampleTemporal:
		return "temporal"
	}
	return "off"
}

// ParseMultiSampleMode converts a configuration string to a MultiSampleMode.
func ParseMultiSampleMode(s string) (MultiSampleMode, error) {
	switch s {
	case "", "off":
		return MultiSampleOff, nil
	case "on":
		return MultiSampleOn, nil
	case "temporal":
		return MultiSampleTemporal, nil
	}
	return MultiSampleOff, fmt.Errorf("unknown multi-sample mode %q", s)
}

// MaxSampleLevel is the highest jitter table index. Level n has 2^n samples.
const MaxSampleLevel = 5

// jitterVectors are sub-pixel offsets in sixteenths of a pixel.
var jitterVectors = [MaxSampleLevel + 1][][2]float32{
	{{0, 0}},
	{{4, 4}, {-4, -4}},
	{{-2, -6}, {6, -2}, {-6, 2}, {2, 6}},
	{{1, -3}, {-1, 3}, {5, 1}, {-3, -5}, {-5, 5}, {-7, -1}, {3, 7}, {7, -7}},
	{
		{1, 1}, {-1, -3}, {-3, 2}, {4, -1}, {-5, -2}, {2, 5}, {5, 3}, {3, -5},
		{-2, 6}, {0, -7}, {-4, -6}, {-6, 4}, {-8, 0}, {7, -4}, {6, 7}, {-7, -8},
	},
	{
		{-4, -7}, {-7, -5}, {-3, -5}, {-5, -4}, {-1, -4}, {-2, -2}, {-6, -1}, {-4, 0},
		{-7, 1}, {-1, 2}, {-6, 3}, {-3, 3}, {-7, 6}, {-3, 6}, {-5, 7}, {-1, 7},
		{5, -7}, {1, -6}, {6, -5}, {4, -4}, {2, -3}, {7, -2}, {1, -1}, {4, -1},
		{2, 1}, {6, 2}, {0, 4}, {4, 4}, {2, 5}, {7, 5}, {5, 6}, {3, 7},
	},
}

// JitterOffsets returns the pixel offsets of sample level level, clamped to
// [0, MaxSampleLevel].
func JitterOffsets(level int) [][2]float32 {
	level = min(max(level, 0), MaxSampleLevel)
	src := jitterVectors[level]
	out := make([][2]float32, len(src))
	for i, v := range src {
		out[i] = [2]float32{v[0] * 0.0625, v[1] * 0.0625}
	}
	return out
}

// SampleWeight is the compose weight of sample i out of n. Weights are
// spread slightly around 1/n so rounding errors of uint8 targets cancel out;
// they sum to 1.
func SampleWeight(i, n int) float32 {
	base := 1 / float32(n)
	const roundingRange = 1.0 / 32
	centered := -0.5 + (float32(i)+0.5)/float32(n)
	return base + roundingRange*centered
}

// MultiSamplePass accumulates jittered draw pass frames into a compose target.
// The accumulation must be reset by the caller whenever the camera or scene
// changes.
type MultiSamplePass struct {
	ctx  *renderer.Context
	draw *DrawPass

	mode        MultiSampleMode
	sampleLevel int

	composeTarget *renderer.RenderTarget
	holdTarget    *renderer.RenderTarget
	compose       *renderable.ComputeRenderable

	sampleIndex int
	weightSum   float32
	output      *renderer.RenderTarget
}

// NewMultiSamplePass creates the compose and hold targets at the draw pass size.
//
// Parameters:
//   - ctx: the owning context
//   - draw: the draw pass rendering each sample
//   - mode: the accumulation mode
//   - sampleLevel: the jitter table, clamped to [0, MaxSampleLevel]
//
// Returns:
//   - *MultiSamplePass: the pass
//   - error: error if a target or program could not be created
func NewMultiSamplePass(ctx *renderer.Context, draw *DrawPass, mode MultiSampleMode, sampleLevel int) (*MultiSamplePass, error) {
	ct := draw.ColorTarget()
	m := &MultiSamplePass{
		ctx:         ctx,
		draw:        draw,
		mode:        mode,
		sampleLevel: min(max(sampleLevel, 0), MaxSampleLevel),
		output:      ct,
	}
	var err error
	if m.composeTarget, err = ctx.CreateRenderTarget(ct.Width(), ct.Height(), false, gpu.TypeFloat32, gpu.FilterNearest, gpu.FormatRGBA); err != nil {
		return nil, fmt.Errorf("multi-sample compose target: %w", err)
	}
	if m.holdTarget, err = ctx.CreateRenderTarget(ct.Width(), ct.Height(), false, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA); err != nil {
		m.Dispose()
		return nil, fmt.Errorf("multi-sample hold target: %w", err)
	}
	values := renderable.NewValues()
	values.SetUniform(UniformWeight, float32(1))
	if m.compose, err = renderable.NewCompute(ctx, composeSource(), values); err != nil {
		m.Dispose()
		return nil, fmt.Errorf("multi-sample compose: %w", err)
	}
	return m, nil
}

func (m *MultiSamplePass) Mode() MultiSampleMode { return m.mode }

// SetMode changes the mode and resets the accumulation.
func (m *MultiSamplePass) SetMode(mode MultiSampleMode) {
	m.mode = mode
	m.Reset()
}

func (m *MultiSamplePass) SampleLevel() int { return m.sampleLevel }

// SetSampleLevel changes the jitter table and resets the accumulation.
func (m *MultiSamplePass) SetSampleLevel(level int) {
	m.sampleLevel = min(max(level, 0), MaxSampleLevel)
	m.Reset()
}

// Reset restarts temporal accumulation.
func (m *MultiSamplePass) Reset() {
	m.sampleIndex = 0
	m.weightSum = 0
}

// SampleIndex returns the number of temporal samples accumulated so far.
func (m *MultiSamplePass) SampleIndex() int { return m.sampleIndex }

// Output returns the target holding the latest resolved frame.
func (m *MultiSamplePass) Output() *renderer.RenderTarget { return m.output }

// SetSize resizes the compose and hold targets and resets the accumulation.
func (m *MultiSamplePass) SetSize(width, height int) error {
	m.Reset()
	return errors.Join(m.composeTarget.SetSize(width, height), m.holdTarget.SetSize(width, height))
}

// Render draws the next frame.
//
// Parameters:
//   - s: the scene to draw
//   - cam: the camera, its view offset is changed and cleared
//   - props: draw pass options
//
// Returns:
//   - bool: true if temporal samples remain
//   - error: the joined draw and compose errors
func (m *MultiSamplePass) Render(s scene.Scene, cam camera.Camera, props DrawProps) (bool, error) {
	switch m.mode {
	case MultiSampleOn:
		return false, m.renderAll(s, cam, props)
	case MultiSampleTemporal:
		return m.renderTemporal(s, cam, props)
	}
	m.output = m.draw.ColorTarget()
	return false, m.draw.Render(s, cam, props)
}

// composeSample adds the draw pass colour, scaled by weight, to target.
func (m *MultiSamplePass) composeSample(target *renderer.RenderTarget, clearFirst bool, weight float32) error {
	if err := target.Bind(); err != nil {
		return err
	}
	st := m.ctx.State
	st.Disable(gpu.CapabilityScissorTest)
	st.Disable(gpu.CapabilityDepthTest)
	st.ColorMask(true, true, true, true)
	if clearFirst {
		st.ClearColor(0, 0, 0, 0)
		m.ctx.Backend().Clear(gpu.ClearColor)
	}
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationAdd)
	st.BlendFunc(gpu.BlendOne, gpu.BlendOne)
	m.compose.Values().UpdateIfChanged(UniformWeight, weight)
	beginSubPass(m.ctx)
	err := m.compose.RenderWith([]renderable.NamedTexture{{Name: TextureColor, Texture: m.draw.ColorTarget().Texture()}})
	st.Disable(gpu.CapabilityBlend)
	return err
}

func (m *MultiSamplePass) renderAll(s scene.Scene, cam camera.Camera, props DrawProps) error {
	if t := m.ctx.Timer(); t != nil {
		t.Mark(TimerMultiSample)
		defer t.MarkEnd(TimerMultiSample)
	}
	defer cam.ClearViewOffset()
	offsets := JitterOffsets(m.sampleLevel)
	var errs []error
	for i, o := range offsets {
		cam.SetViewOffset(o[0], o[1])
		errs = append(errs, m.draw.Render(s, cam, props))
		if err := m.composeSample(m.composeTarget, i == 0, SampleWeight(i, len(offsets))); err != nil {
			return err
		}
	}
	m.output = m.composeTarget
	return errors.Join(errs...)
}

func (m *MultiSamplePass) renderTemporal(s scene.Scene, cam camera.Camera, props DrawProps) (bool, error) {
	offsets := JitterOffsets(m.sampleLevel)
	n := len(offsets)
	if m.sampleIndex >= n {
		return false, nil
	}
	if t := m.ctx.Timer(); t != nil {
		t.Mark(TimerMultiSample)
		defer t.MarkEnd(TimerMultiSample)
	}
	i := m.sampleIndex
	o := offsets[i]
	cam.SetViewOffset(o[0], o[1])
	err := m.draw.Render(s, cam, props)
	cam.ClearViewOffset()
	if err != nil {
		return false, err
	}
	w := SampleWeight(i, n)
	if err := m.composeSample(m.composeTarget, i == 0, w); err != nil {
		return false, err
	}
	m.weightSum += w

	// normalize the partial sum into the hold target
	if err := m.holdTarget.Bind(); err != nil {
		return false, err
	}
	st := m.ctx.State
	st.Disable(gpu.CapabilityBlend)
	st.Disable(gpu.CapabilityDepthTest)
	m.compose.Values().UpdateIfChanged(UniformWeight, 1/m.weightSum)
	beginSubPass(m.ctx)
	if err := m.compose.RenderWith([]renderable.NamedTexture{{Name: TextureColor, Texture: m.composeTarget.Texture()}}); err != nil {
		return false, err
	}

	m.sampleIndex++
	m.output = m.holdTarget
	return m.sampleIndex < n, nil
}

// Dispose destroys the targets and the compose program.
func (m *MultiSamplePass) Dispose() {
	if m.composeTarget != nil {
		m.composeTarget.Destroy()
	}
	if m.holdTarget != nil {
		m.holdTarget.Destroy()
	}
	if m.compose != nil {
		m.compose.Dispose()
	}
}
