package passes

import (
	"errors"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// DefaultPickBaseScale is the fraction of the draw resolution pick targets
// are rendered at.
const DefaultPickBaseScale = 0.5

// PickPass renders object, instance and group ids plus packed depth into
// four same-size RGBA8 targets.
type PickPass struct {
	ctx           *renderer.Context
	draw          *DrawPass
	pickBaseScale float64

	objectTarget   *renderer.RenderTarget
	instanceTarget *renderer.RenderTarget
	groupTarget    *renderer.RenderTarget
	depthTarget    *renderer.RenderTarget

	width, height int
}

// NewPickPass creates the pick targets sized from the draw pass colour target.
//
// Parameters:
//   - ctx: the owning context
//   - draw: the draw pass whose size the pick targets follow
//   - pickBaseScale: resolution fraction, values <= 0 use DefaultPickBaseScale
//
// Returns:
//   - *PickPass: the pass
//   - error: error if a target could not be created
func NewPickPass(ctx *renderer.Context, draw *DrawPass, pickBaseScale float64) (*PickPass, error) {
	if pickBaseScale <= 0 {
		pickBaseScale = DefaultPickBaseScale
	}
	p := &PickPass{ctx: ctx, draw: draw, pickBaseScale: pickBaseScale}
	p.width, p.height = p.scaledSize()
	targets := []**renderer.RenderTarget{&p.objectTarget, &p.instanceTarget, &p.groupTarget, &p.depthTarget}
	for _, t := range targets {
		rt, err := ctx.CreateRenderTarget(p.width, p.height, true, gpu.TypeUint8, gpu.FilterNearest, gpu.FormatRGBA)
		if err != nil {
			p.Dispose()
			return nil, fmt.Errorf("pick target: %w", err)
		}
		*t = rt
	}
	return p, nil
}

func (p *PickPass) scaledSize() (int, int) {
	ct := p.draw.ColorTarget()
	r := p.PickRatio()
	return int(math.Ceil(float64(ct.Width()) * r)), int(math.Ceil(float64(ct.Height()) * r))
}

// PickBaseScale returns the configured resolution fraction.
func (p *PickPass) PickBaseScale() float64 { return p.pickBaseScale }

// SetPickBaseScale changes the resolution fraction and resizes the targets.
func (p *PickPass) SetPickBaseScale(scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("pick base scale must be positive, got %v", scale)
	}
	p.pickBaseScale = scale
	return p.SyncSize()
}

// PickRatio is the pick target size relative to the draw target, corrected
// for the device pixel ratio.
func (p *PickPass) PickRatio() float64 {
	return p.pickBaseScale / p.ctx.PixelRatio()
}

// Size returns the size of the pick targets.
func (p *PickPass) Size() (int, int) { return p.width, p.height }

// SyncSize resizes the pick targets to follow the draw pass. It must be
// called after every draw pass resize.
func (p *PickPass) SyncSize() error {
	w, h := p.scaledSize()
	if w == p.width && h == p.height {
		return nil
	}
	p.width, p.height = w, h
	return errors.Join(
		p.objectTarget.SetSize(w, h),
		p.instanceTarget.SetSize(w, h),
		p.groupTarget.SetSize(w, h),
		p.depthTarget.SetSize(w, h),
	)
}

func (p *PickPass) BindObject() error   { return p.objectTarget.Bind() }
func (p *PickPass) BindInstance() error { return p.instanceTarget.Bind() }
func (p *PickPass) BindGroup() error    { return p.groupTarget.Bind() }
func (p *PickPass) BindDepth() error    { return p.depthTarget.Bind() }

func isPickable(r renderable.Renderable) bool {
	st := r.State()
	return st.Visible && st.Pickable && !st.ColorOnly
}

// renderVariant clears the bound target to white and draws every pickable
// primitive with variant v.
func (p *PickPass) renderVariant(s scene.Scene, globals map[string]any, v renderable.Variant) error {
	st := p.ctx.State
	st.Disable(gpu.CapabilityScissorTest)
	st.Disable(gpu.CapabilityBlend)
	st.ColorMask(true, true, true, true)
	st.DepthMask(true)
	st.ClearColor(1, 1, 1, 1)
	p.ctx.Backend().Clear(gpu.ClearColor | gpu.ClearDepth)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthFunc(gpu.CompareLess)
	beginSubPass(p.ctx)
	var errs []error
	for _, r := range s.Primitives() {
		if isPickable(r) {
			errs = append(errs, r.Render(v, globals, nil))
		}
	}
	return errors.Join(errs...)
}

// Render draws the object, instance, group and depth targets in that order.
//
// Parameters:
//   - s: the scene to draw
//   - cam: the camera
//
// Returns:
//   - error: the joined bind and draw errors
func (p *PickPass) Render(s scene.Scene, cam camera.Camera) error {
	if t := p.ctx.Timer(); t != nil {
		t.Mark(TimerPick)
		defer t.MarkEnd(TimerPick)
	}
	steps := []struct {
		bind     func() error
		variant  renderable.Variant
		pickType renderable.PickType
	}{
		{p.BindObject, renderable.VariantPick, renderable.PickObject},
		{p.BindInstance, renderable.VariantPick, renderable.PickInstance},
		{p.BindGroup, renderable.VariantPick, renderable.PickGroup},
		{p.BindDepth, renderable.VariantDepth, 0},
	}
	var errs []error
	for _, step := range steps {
		if err := step.bind(); err != nil {
			return err
		}
		globals := passGlobals(p.ctx, cam, map[string]any{renderable.UniformPickType: int32(step.pickType)})
		errs = append(errs, p.renderVariant(s, globals, step.variant))
	}
	return errors.Join(errs...)
}

// Dispose destroys the pick targets.
func (p *PickPass) Dispose() {
	for _, t := range []*renderer.RenderTarget{p.objectTarget, p.instanceTarget, p.groupTarget, p.depthTarget} {
		if t != nil {
			t.Destroy()
		}
	}
}
