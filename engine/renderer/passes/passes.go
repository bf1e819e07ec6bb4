package passes

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// Passes bundles the passes of one view sharing a drawing buffer.
type Passes struct {
	ctx *renderer.Context

	Draw        *DrawPass
	Pick        *PickPass
	MultiSample *MultiSamplePass
	PickHelper  *PickHelper

	present *renderable.ComputeRenderable
}

// NewPasses creates every pass at the current drawing buffer size.
//
// Parameters:
//   - ctx: the owning context
//   - s: the scene the pick helper renders
//   - options: functional options to configure the passes
//
// Returns:
//   - *Passes: the passes
//   - error: error if a target or program could not be created
func NewPasses(ctx *renderer.Context, s scene.Scene, options ...PassesBuilderOption) (*Passes, error) {
	cfg := passesConfig{
		colorType:     gpu.TypeUint8,
		colorFilter:   gpu.FilterNearest,
		transparency:  Blended,
		dpoitPasses:   DefaultDpoitPasses,
		pickBaseScale: DefaultPickBaseScale,
		pickPadding:   DefaultPickPadding,
	}
	for _, option := range options {
		option(&cfg)
	}
	w, h := ctx.DrawingBufferSize()
	p := &Passes{ctx: ctx}
	var err error
	if p.Draw, err = NewDrawPass(ctx, w, h, cfg.colorType, cfg.colorFilter, cfg.transparency, cfg.dpoitPasses); err != nil {
		return nil, err
	}
	if p.Pick, err = NewPickPass(ctx, p.Draw, cfg.pickBaseScale); err != nil {
		p.Dispose()
		return nil, err
	}
	if p.MultiSample, err = NewMultiSamplePass(ctx, p.Draw, cfg.msMode, cfg.sampleLevel); err != nil {
		p.Dispose()
		return nil, err
	}
	if p.present, err = renderable.NewCompute(ctx, copySource(), nil); err != nil {
		p.Dispose()
		return nil, err
	}
	p.PickHelper = NewPickHelper(ctx, s, p.Pick, common.Viewport{Width: w, Height: h})
	p.PickHelper.SetPickPadding(cfg.pickPadding)
	return p, nil
}

// SetSize resizes every pass and the pickable viewport.
func (p *Passes) SetSize(width, height int) error {
	err := errors.Join(
		p.Draw.SetSize(width, height),
		p.Pick.SyncSize(),
		p.MultiSample.SetSize(width, height),
	)
	p.PickHelper.SetViewport(0, 0, width, height)
	return err
}

// UpdateSize follows the context's drawing buffer size.
func (p *Passes) UpdateSize() error {
	return p.SetSize(p.ctx.DrawingBufferSize())
}

// Present copies the multi-sample output to the default framebuffer.
func (p *Passes) Present() error {
	p.ctx.UnbindFramebuffer()
	w, h := p.ctx.DrawingBufferSize()
	st := p.ctx.State
	st.Viewport(0, 0, int32(w), int32(h))
	st.Disable(gpu.CapabilityScissorTest)
	st.Disable(gpu.CapabilityBlend)
	st.Disable(gpu.CapabilityDepthTest)
	st.ColorMask(true, true, true, true)
	beginSubPass(p.ctx)
	return p.present.RenderWith([]renderable.NamedTexture{{Name: TextureColor, Texture: p.MultiSample.Output().Texture()}})
}

// Reset invalidates cached pick buffers and accumulation after a context
// restoration. Pass it to Context.HandleContextRestored.
func (p *Passes) Reset() {
	p.PickHelper.MarkDirty()
	p.MultiSample.Reset()
}

// Dispose destroys every pass.
func (p *Passes) Dispose() {
	if p.present != nil {
		p.present.Dispose()
	}
	if p.MultiSample != nil {
		p.MultiSample.Dispose()
	}
	if p.Pick != nil {
		p.Pick.Dispose()
	}
	if p.Draw != nil {
		p.Draw.Dispose()
	}
}
