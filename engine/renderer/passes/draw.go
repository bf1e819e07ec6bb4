// Package passes orchestrates full-scene traversals into render targets: the
// visible frame, the pick frame and the multi-sample accumulation.
package passes

import (
	"errors"
	"fmt"
	"maps"

	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/state"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
)

// TransparencyMode selects how transparent renderables are composited.
type TransparencyMode uint8

const (
	// Blended draws transparent renderables in scene order with alpha blending.
	Blended TransparencyMode = iota
	// Wboit is weighted blended order independent transparency.
	Wboit
	// Dpoit is dual depth peeling.
	Dpoit
)

func (m TransparencyMode) String() string {
	switch m {
	case Wboit:
		return "wboit"
	case Dpoit:
		return "dpoit"
	}
	return "blended"
}

// ParseTransparencyMode converts a configuration string to a TransparencyMode.
func ParseTransparencyMode(s string) (TransparencyMode, error) {
	switch s {
	case "", "blended":
		return Blended, nil
	case "wboit":
		return Wboit, nil
	case "dpoit":
		return Dpoit, nil
	}
	return Blended, fmt.Errorf("unknown transparency mode %q", s)
}

// Timer labels of the passes.
const (
	TimerDraw        = "draw"
	TimerPick        = "pick"
	TimerMultiSample = "multi-sample"
)

// DefaultDpoitPasses is the number of dual depth peeling iterations.
const DefaultDpoitPasses = 2

// DrawProps are the per-frame options of DrawPass.Render.
type DrawProps struct {
	ClearColor [4]float32
	// Marking enables the marking overlay for renderables with markers.
	Marking bool
}

// DrawPass renders the visible frame into its colour target.
type DrawPass struct {
	ctx         *renderer.Context
	colorTarget *renderer.RenderTarget

	effective   TransparencyMode
	dpoitPasses int
	warned      bool

	wboit *wboitTargets
	dpoit *dpoitTargets

	wboitEvaluate  *renderable.ComputeRenderable
	dpoitBlendBack *renderable.ComputeRenderable
	dpoitEvaluate  *renderable.ComputeRenderable
}

// NewDrawPass creates the colour target and, if the device supports it, the
// order independent transparency targets.
//
// Parameters:
//   - ctx: the owning context
//   - width, height: initial size of the colour target
//   - typ, filter: colour target type and sampling filter
//   - transparency: the requested transparency mode
//   - dpoitPasses: peeling iterations for Dpoit, values < 1 use DefaultDpoitPasses
//
// Returns:
//   - *DrawPass: the pass
//   - error: error if a target or program could not be created
func NewDrawPass(ctx *renderer.Context, width, height int, typ gpu.TextureType, filter gpu.Filter, transparency TransparencyMode, dpoitPasses int) (*DrawPass, error) {
	if dpoitPasses < 1 {
		dpoitPasses = DefaultDpoitPasses
	}
	ct, err := ctx.CreateRenderTarget(width, height, true, typ, filter, gpu.FormatRGBA)
	if err != nil {
		return nil, fmt.Errorf("draw pass colour target: %w", err)
	}
	d := &DrawPass{ctx: ctx, colorTarget: ct, dpoitPasses: dpoitPasses}
	if err := d.SetTransparency(transparency); err != nil {
		d.Dispose()
		return nil, err
	}
	return d, nil
}

// ColorTarget returns the target the visible frame is drawn into.
func (d *DrawPass) ColorTarget() *renderer.RenderTarget { return d.colorTarget }

// Transparency returns the mode actually used, after any fallback.
func (d *DrawPass) Transparency() TransparencyMode { return d.effective }

// SetTransparency switches the transparency mode. Wboit and Dpoit fall back
// to Blended when the device cannot render to float targets; the fallback is
// logged once.
func (d *DrawPass) SetTransparency(mode TransparencyMode) error {
	caps := d.ctx.Capabilities()
	effective := mode
	if (mode == Wboit && !caps.SupportsWboit()) || (mode == Dpoit && !caps.SupportsDpoit()) {
		if !d.warned {
			logger.Logger().Warn("transparency mode unsupported, using blended", "mode", mode.String())
			d.warned = true
		}
		effective = Blended
	}
	d.effective = effective
	w, h := d.colorTarget.Width(), d.colorTarget.Height()
	switch effective {
	case Wboit:
		if d.wboit == nil {
			t, err := newWboitTargets(d.ctx, d.colorTarget, w, h)
			if err != nil {
				return err
			}
			d.wboit = t
		}
		if d.wboitEvaluate == nil {
			c, err := renderable.NewCompute(d.ctx, wboitEvaluateSource(), nil)
			if err != nil {
				return fmt.Errorf("wboit evaluate: %w", err)
			}
			d.wboitEvaluate = c
		}
	case Dpoit:
		if d.dpoit == nil {
			t, err := newDpoitTargets(d.ctx, d.colorTarget, w, h)
			if err != nil {
				return err
			}
			d.dpoit = t
		}
		if d.dpoitBlendBack == nil {
			c, err := renderable.NewCompute(d.ctx, dpoitBlendBackSource(), nil)
			if err != nil {
				return fmt.Errorf("dpoit blend back: %w", err)
			}
			d.dpoitBlendBack = c
		}
		if d.dpoitEvaluate == nil {
			c, err := renderable.NewCompute(d.ctx, dpoitEvaluateSource(), nil)
			if err != nil {
				return fmt.Errorf("dpoit evaluate: %w", err)
			}
			d.dpoitEvaluate = c
		}
	}
	return nil
}

// SetSize resizes the colour target and the transparency targets.
func (d *DrawPass) SetSize(width, height int) error {
	var errs []error
	errs = append(errs, d.colorTarget.SetSize(width, height))
	if d.wboit != nil {
		errs = append(errs, d.wboit.setSize(width, height))
	}
	if d.dpoit != nil {
		errs = append(errs, d.dpoit.setSize(width, height))
	}
	return errors.Join(errs...)
}

// Dispose destroys every target and program of the pass.
func (d *DrawPass) Dispose() {
	d.colorTarget.Destroy()
	if d.wboit != nil {
		d.wboit.destroy()
	}
	if d.dpoit != nil {
		d.dpoit.destroy()
	}
	for _, c := range []*renderable.ComputeRenderable{d.wboitEvaluate, d.dpoitBlendBack, d.dpoitEvaluate} {
		if c != nil {
			c.Dispose()
		}
	}
}

// passGlobals are the uniforms every renderable program receives when it
// becomes current.
func passGlobals(ctx *renderer.Context, cam camera.Camera, extra map[string]any) map[string]any {
	g := cam.Uniforms()
	vp := cam.Viewport()
	g[UniformViewport] = [4]float32{float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height)}
	g[UniformPixelRatio] = float32(ctx.PixelRatio())
	maps.Copy(g, extra)
	return g
}

// beginSubPass forces globals to be set again on the next program use.
func beginSubPass(ctx *renderer.Context) {
	ctx.State.CurrentProgramID = state.InvalidID
	ctx.State.CurrentMaterialID = state.InvalidID
	ctx.State.CurrentRenderItemID = state.InvalidID
}

func isTransparent(r renderable.Renderable) bool {
	return r.Kind() == renderable.KindVolume || !renderable.IsOpaque(r)
}

// variantOr returns v if r has a program for it, else fallback.
func variantOr(r renderable.Renderable, v, fallback renderable.Variant) renderable.Variant {
	if r.Program(v) != nil {
		return v
	}
	return fallback
}

// Render draws the visible frame of s seen through cam.
//
// Parameters:
//   - s: the scene to draw
//   - cam: the camera
//   - props: per-frame options
//
// Returns:
//   - error: the first bind error, or the joined draw errors
func (d *DrawPass) Render(s scene.Scene, cam camera.Camera, props DrawProps) error {
	if t := d.ctx.Timer(); t != nil {
		t.Mark(TimerDraw)
		defer t.MarkEnd(TimerDraw)
	}
	st := d.ctx.State
	if err := d.colorTarget.Bind(); err != nil {
		return err
	}
	st.Disable(gpu.CapabilityScissorTest)
	st.ColorMask(true, true, true, true)
	st.DepthMask(true)
	c := props.ClearColor
	st.ClearColor(c[0], c[1], c[2], c[3])
	d.ctx.Backend().Clear(gpu.ClearColor | gpu.ClearDepth)

	globals := passGlobals(d.ctx, cam, nil)
	var errs []error
	renderables := s.Renderables()

	// opaque
	st.Disable(gpu.CapabilityBlend)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthFunc(gpu.CompareLess)
	beginSubPass(d.ctx)
	for _, r := range renderables {
		rs := r.State()
		if !rs.Visible || isTransparent(r) {
			continue
		}
		st.DepthMask(rs.WriteDepth)
		errs = append(errs, r.Render(renderable.VariantColor, globals, nil))
	}

	// Renderables without an order independent variant are blended
	// afterwards.
	var rest []renderable.Renderable
	switch d.effective {
	case Wboit:
		var err error
		rest, err = d.renderWboit(renderables, globals)
		errs = append(errs, err)
	case Dpoit:
		var err error
		rest, err = d.renderDpoit(renderables, globals)
		errs = append(errs, err)
	default:
		for _, r := range renderables {
			if r.State().Visible && isTransparent(r) {
				rest = append(rest, r)
			}
		}
	}
	errs = append(errs, d.renderBlended(rest, globals))

	if props.Marking && s.MarkerAverage() > 0 {
		errs = append(errs, d.renderMarking(renderables, globals))
	}
	return errors.Join(errs...)
}

func (d *DrawPass) renderBlended(rs []renderable.Renderable, globals map[string]any) error {
	if len(rs) == 0 {
		return nil
	}
	if err := d.colorTarget.Bind(); err != nil {
		return err
	}
	st := d.ctx.State
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationAdd)
	st.BlendFuncSeparate(gpu.BlendSrcAlpha, gpu.BlendOneMinusSrcAlpha, gpu.BlendOne, gpu.BlendOneMinusSrcAlpha)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthFunc(gpu.CompareLess)
	st.DepthMask(false)
	beginSubPass(d.ctx)
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.Render(variantOr(r, renderable.VariantColorBlended, renderable.VariantColor), globals, nil))
	}
	st.Disable(gpu.CapabilityBlend)
	st.DepthMask(true)
	return errors.Join(errs...)
}

func (d *DrawPass) renderWboit(rs []renderable.Renderable, globals map[string]any) ([]renderable.Renderable, error) {
	var oit, rest []renderable.Renderable
	for _, r := range rs {
		if !r.State().Visible || !isTransparent(r) {
			continue
		}
		if r.Kind() == renderable.KindPrimitive && r.Program(renderable.VariantColorWboit) != nil {
			oit = append(oit, r)
		} else {
			rest = append(rest, r)
		}
	}
	if len(oit) == 0 {
		return rest, nil
	}
	st := d.ctx.State
	if err := d.wboit.bind(); err != nil {
		return rest, err
	}
	st.ClearColor(0, 0, 0, 1)
	d.ctx.Backend().Clear(gpu.ClearColor)
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationAdd)
	st.BlendFuncSeparate(gpu.BlendOne, gpu.BlendOne, gpu.BlendZero, gpu.BlendOneMinusSrcAlpha)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthMask(false)
	beginSubPass(d.ctx)
	var errs []error
	for _, r := range oit {
		errs = append(errs, r.Render(renderable.VariantColorWboit, globals, nil))
	}

	if err := d.colorTarget.Bind(); err != nil {
		return rest, err
	}
	st.Disable(gpu.CapabilityDepthTest)
	st.BlendFuncSeparate(gpu.BlendSrcAlpha, gpu.BlendOneMinusSrcAlpha, gpu.BlendOne, gpu.BlendOneMinusSrcAlpha)
	beginSubPass(d.ctx)
	errs = append(errs, d.wboitEvaluate.RenderWith([]renderable.NamedTexture{
		{Name: TextureWboitA, Texture: d.wboit.a},
		{Name: TextureWboitB, Texture: d.wboit.b},
	}))
	st.Disable(gpu.CapabilityBlend)
	st.DepthMask(true)
	return rest, errors.Join(errs...)
}

func (d *DrawPass) renderDpoit(rs []renderable.Renderable, globals map[string]any) ([]renderable.Renderable, error) {
	var oit, rest []renderable.Renderable
	for _, r := range rs {
		if !r.State().Visible || !isTransparent(r) {
			continue
		}
		if r.Kind() == renderable.KindPrimitive && r.Program(renderable.VariantColorDpoit) != nil {
			oit = append(oit, r)
		} else {
			rest = append(rest, r)
		}
	}
	if len(oit) == 0 {
		return rest, nil
	}
	st := d.ctx.State
	t := d.dpoit
	var errs []error

	if err := t.prepare(); err != nil {
		return rest, err
	}
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationMax)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthMask(false)
	beginSubPass(d.ctx)
	first := maps.Clone(globals)
	first[UniformDpoitPass] = int32(0)
	for _, r := range oit {
		errs = append(errs, r.Render(renderable.VariantColorDpoit, first, nil))
	}

	for pass := 1; pass <= d.dpoitPasses; pass++ {
		read := t.read
		if err := t.bindPeel(); err != nil {
			return rest, err
		}
		st.Enable(gpu.CapabilityBlend)
		st.BlendEquation(gpu.BlendEquationMax)
		st.Enable(gpu.CapabilityDepthTest)
		st.DepthMask(false)
		beginSubPass(d.ctx)
		peel := maps.Clone(globals)
		peel[UniformDpoitPass] = int32(pass)
		shared := []renderable.NamedTexture{
			{Name: TextureDpoitDepth, Texture: t.depth[read]},
			{Name: TextureDpoitFrontColor, Texture: t.front[read]},
		}
		for _, r := range oit {
			errs = append(errs, r.Render(renderable.VariantColorDpoit, peel, shared))
		}

		if err := t.blendBack.Bind(); err != nil {
			return rest, err
		}
		st.Disable(gpu.CapabilityDepthTest)
		st.BlendEquation(gpu.BlendEquationAdd)
		st.BlendFuncSeparate(gpu.BlendSrcAlpha, gpu.BlendOneMinusSrcAlpha, gpu.BlendOne, gpu.BlendOneMinusSrcAlpha)
		beginSubPass(d.ctx)
		errs = append(errs, d.dpoitBlendBack.RenderWith([]renderable.NamedTexture{
			{Name: TextureDpoitBackColor, Texture: t.back[t.write()]},
		}))
		t.swap()
	}

	if err := d.colorTarget.Bind(); err != nil {
		return rest, err
	}
	st.Disable(gpu.CapabilityDepthTest)
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationAdd)
	st.BlendFunc(gpu.BlendOne, gpu.BlendOneMinusSrcAlpha)
	beginSubPass(d.ctx)
	errs = append(errs, d.dpoitEvaluate.RenderWith([]renderable.NamedTexture{
		{Name: TextureDpoitFrontColor, Texture: t.front[t.read]},
		{Name: TextureDpoitBlendBack, Texture: t.blendBack.Texture()},
	}))
	st.Disable(gpu.CapabilityBlend)
	st.DepthMask(true)
	return rest, errors.Join(errs...)
}

func (d *DrawPass) renderMarking(rs []renderable.Renderable, globals map[string]any) error {
	if err := d.colorTarget.Bind(); err != nil {
		return err
	}
	st := d.ctx.State
	st.Enable(gpu.CapabilityBlend)
	st.BlendEquation(gpu.BlendEquationAdd)
	st.BlendFuncSeparate(gpu.BlendSrcAlpha, gpu.BlendOneMinusSrcAlpha, gpu.BlendOne, gpu.BlendOneMinusSrcAlpha)
	st.Enable(gpu.CapabilityDepthTest)
	st.DepthFunc(gpu.CompareLessEqual)
	st.DepthMask(false)
	beginSubPass(d.ctx)
	var errs []error
	for _, r := range rs {
		if !r.State().Visible || renderable.GetOr(r.Values(), renderable.ValueMarkerAverage, float32(0)) <= 0 {
			continue
		}
		errs = append(errs, r.Render(renderable.VariantMarking, globals, nil))
	}
	st.Disable(gpu.CapabilityBlend)
	st.DepthFunc(gpu.CompareLess)
	st.DepthMask(true)
	return errors.Join(errs...)
}

// wboitTargets are the two float accumulation textures, depth tested against
// the colour target's depth.
type wboitTargets struct {
	ctx  *renderer.Context
	fb   *resource.Framebuffer
	a, b *resource.Texture
}

func newWboitTargets(ctx *renderer.Context, color *renderer.RenderTarget, width, height int) (*wboitTargets, error) {
	t := &wboitTargets{ctx: ctx}
	var err error
	if t.a, err = ctx.Resources.CreateTexture(gpu.FormatRGBA, gpu.TypeFloat32, gpu.FilterNearest); err != nil {
		return nil, err
	}
	if t.b, err = ctx.Resources.CreateTexture(gpu.FormatRGBA, gpu.TypeFloat32, gpu.FilterNearest); err != nil {
		t.destroy()
		return nil, err
	}
	if t.fb, err = ctx.Resources.CreateFramebuffer(); err != nil {
		t.destroy()
		return nil, err
	}
	if err := t.setSize(width, height); err != nil {
		t.destroy()
		return nil, err
	}
	errs := []error{
		t.fb.AttachTexture(gpu.AttachmentColor0, t.a),
		t.fb.AttachTexture(gpu.AttachmentColor1, t.b),
		t.fb.AttachDepth(color.DepthBuffer()),
		t.fb.SetDrawBuffers(gpu.AttachmentColor0, gpu.AttachmentColor1),
	}
	if err := errors.Join(errs...); err != nil {
		t.destroy()
		return nil, fmt.Errorf("wboit framebuffer: %w", err)
	}
	return t, nil
}

func (t *wboitTargets) setSize(width, height int) error {
	if t.a.Width() == width && t.a.Height() == height {
		return nil
	}
	return errors.Join(t.a.Define(width, height, nil), t.b.Define(width, height, nil))
}

func (t *wboitTargets) bind() error {
	t.fb.Bind()
	if t.ctx.Debug() {
		if status := t.fb.Status(); status != gpu.FramebufferComplete {
			return &renderer.FramebufferError{Framebuffer: t.fb.ID(), Status: status}
		}
	}
	t.ctx.State.Viewport(0, 0, int32(t.a.Width()), int32(t.a.Height()))
	return nil
}

func (t *wboitTargets) destroy() {
	for _, tex := range []*resource.Texture{t.a, t.b} {
		if tex != nil {
			tex.Destroy()
		}
	}
	if t.fb != nil {
		t.fb.Destroy()
	}
}

// dpoitTargets hold two ping-pong framebuffers, each with a min/max depth
// texture plus front and back colour, and the blend-back accumulation target.
type dpoitTargets struct {
	ctx       *renderer.Context
	fbs       [2]*resource.Framebuffer
	depth     [2]*resource.Texture
	front     [2]*resource.Texture
	back      [2]*resource.Texture
	blendBack *renderer.RenderTarget
	read      int
}

func newDpoitTargets(ctx *renderer.Context, color *renderer.RenderTarget, width, height int) (*dpoitTargets, error) {
	t := &dpoitTargets{ctx: ctx}
	create := func() (*resource.Texture, error) {
		return ctx.Resources.CreateTexture(gpu.FormatRGBA, gpu.TypeFloat32, gpu.FilterNearest)
	}
	var err error
	for i := range 2 {
		if t.depth[i], err = create(); err != nil {
			t.destroy()
			return nil, err
		}
		if t.front[i], err = create(); err != nil {
			t.destroy()
			return nil, err
		}
		if t.back[i], err = create(); err != nil {
			t.destroy()
			return nil, err
		}
		if t.fbs[i], err = ctx.Resources.CreateFramebuffer(); err != nil {
			t.destroy()
			return nil, err
		}
	}
	if t.blendBack, err = ctx.CreateRenderTarget(width, height, false, gpu.TypeFloat32, gpu.FilterNearest, gpu.FormatRGBA); err != nil {
		t.destroy()
		return nil, err
	}
	if err := t.setSize(width, height); err != nil {
		t.destroy()
		return nil, err
	}
	for i := range 2 {
		errs := []error{
			t.fbs[i].AttachTexture(gpu.AttachmentColor0, t.depth[i]),
			t.fbs[i].AttachTexture(gpu.AttachmentColor1, t.front[i]),
			t.fbs[i].AttachTexture(gpu.AttachmentColor2, t.back[i]),
			t.fbs[i].AttachDepth(color.DepthBuffer()),
		}
		if err := errors.Join(errs...); err != nil {
			t.destroy()
			return nil, fmt.Errorf("dpoit framebuffer: %w", err)
		}
	}
	return t, nil
}

func (t *dpoitTargets) write() int { return 1 - t.read }

func (t *dpoitTargets) swap() { t.read = t.write() }

// clear resets framebuffer i: depth to (-1, -1) so MAX blending picks the
// first layer, colours to zero. Draw buffers are left selecting all three.
func (t *dpoitTargets) clear(i int) error {
	fb := t.fbs[i]
	fb.Bind()
	st := t.ctx.State
	st.Disable(gpu.CapabilityScissorTest)
	st.ColorMask(true, true, true, true)
	b := t.ctx.Backend()
	if err := fb.SetDrawBuffers(gpu.AttachmentColor0); err != nil {
		return err
	}
	st.ClearColor(-1, -1, 0, 0)
	b.Clear(gpu.ClearColor)
	if err := fb.SetDrawBuffers(gpu.AttachmentColor1, gpu.AttachmentColor2); err != nil {
		return err
	}
	st.ClearColor(0, 0, 0, 0)
	b.Clear(gpu.ClearColor)
	return fb.SetDrawBuffers(gpu.AttachmentColor0, gpu.AttachmentColor1, gpu.AttachmentColor2)
}

// prepare clears the blend-back target and the read framebuffer and binds
// the latter for the initial depth pass.
func (t *dpoitTargets) prepare() error {
	if err := t.blendBack.Bind(); err != nil {
		return err
	}
	t.ctx.State.ClearColor(0, 0, 0, 0)
	t.ctx.Backend().Clear(gpu.ClearColor)
	t.read = 0
	if err := t.clear(t.read); err != nil {
		return err
	}
	w, h := t.blendBack.Width(), t.blendBack.Height()
	t.ctx.State.Viewport(0, 0, int32(w), int32(h))
	return nil
}

// bindPeel clears and binds the write framebuffer.
func (t *dpoitTargets) bindPeel() error {
	if err := t.clear(t.write()); err != nil {
		return err
	}
	w, h := t.blendBack.Width(), t.blendBack.Height()
	t.ctx.State.Viewport(0, 0, int32(w), int32(h))
	return nil
}

func (t *dpoitTargets) setSize(width, height int) error {
	var errs []error
	for i := range 2 {
		for _, tex := range []*resource.Texture{t.depth[i], t.front[i], t.back[i]} {
			if tex.Width() != width || tex.Height() != height {
				errs = append(errs, tex.Define(width, height, nil))
			}
		}
	}
	errs = append(errs, t.blendBack.SetSize(width, height))
	return errors.Join(errs...)
}

func (t *dpoitTargets) destroy() {
	for i := range 2 {
		for _, tex := range []*resource.Texture{t.depth[i], t.front[i], t.back[i]} {
			if tex != nil {
				tex.Destroy()
			}
		}
		if t.fbs[i] != nil {
			t.fbs[i].Destroy()
		}
	}
	if t.blendBack != nil {
		t.blendBack.Destroy()
	}
}
