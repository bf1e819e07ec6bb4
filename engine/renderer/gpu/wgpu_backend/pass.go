package wgpu_backend

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

func (b *Backend) commandEncoder() (*wgpu.CommandEncoder, error) {
	if b.encoder != nil {
		return b.encoder, nil
	}
	enc, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	b.encoder = enc
	return enc, nil
}

func (b *Backend) endPass() {
	if b.pass == nil {
		return
	}
	b.pass.End()
	b.pass.Release()
	b.pass = nil
}

// submit finishes the open encoder and hands it to the queue. The uniform
// ring is free again once its writes are ordered before the submission.
func (b *Backend) submit() {
	if b.encoder == nil {
		return
	}
	cmd, err := b.encoder.Finish(nil)
	b.encoder.Release()
	b.encoder = nil
	b.encoded = false
	b.ringCursor = 0
	if err != nil {
		logger.Logger().Error("finish command encoder", "error", err)
		return
	}
	b.queue.Submit(cmd)
	cmd.Release()
}

// resolveTarget collects the attachments of fb in draw buffer order.
func (b *Backend) resolveTarget(fb gpu.Handle) ([]*wgpu.TextureView, *wgpu.TextureView, target, int, int, error) {
	var t target
	if fb == 0 {
		view, err := b.frame()
		if err != nil {
			return nil, nil, t, 0, 0, err
		}
		t.colors[0], t.count, t.depth = b.surfaceFormat, 1, true
		return []*wgpu.TextureView{view}, b.defaultDepth.view, t, b.width, b.height, nil
	}
	f, ok := b.framebuffers[fb]
	if !ok {
		return nil, nil, t, 0, 0, gpu.ErrInvalidHandle
	}
	var views []*wgpu.TextureView
	width, height := 0, 0
	for i, att := range f.drawBuffers {
		if att >= gpu.AttachmentDepth {
			return nil, nil, t, 0, 0, fmt.Errorf("draw buffer %d is %s", i, att)
		}
		tex := b.textures[f.colors[att]]
		if tex == nil || tex.tex == nil {
			return nil, nil, t, 0, 0, fmt.Errorf("framebuffer %d: nothing attached to %s", fb, att)
		}
		views = append(views, tex.view)
		t.colors[i] = tex.native
		width, height = tex.width, tex.height
	}
	t.count = len(views)
	var depthView *wgpu.TextureView
	if d := b.depthOf(f); d != nil && d.tex != nil {
		depthView, t.depth = d.view, true
		width, height = d.width, d.height
	}
	if t.count == 0 && !t.depth {
		return nil, nil, t, 0, 0, fmt.Errorf("framebuffer %d has no attachments", fb)
	}
	return views, depthView, t, width, height, nil
}

// beginPass opens a render pass on the bound framebuffer. Aspects named in
// clear are cleared by the load op; everything else is loaded.
func (b *Backend) beginPass(clear gpu.ClearMask) error {
	b.endPass()
	views, depth, t, width, height, err := b.resolveTarget(b.boundFB)
	if err != nil {
		return err
	}
	enc, err := b.commandEncoder()
	if err != nil {
		return err
	}

	colorLoad := wgpu.LoadOpLoad
	if clear&gpu.ClearColor != 0 {
		colorLoad = wgpu.LoadOpClear
	}
	cc := b.state.ClearColor
	desc := &wgpu.RenderPassDescriptor{}
	for _, v := range views {
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    v,
			LoadOp:  colorLoad,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(cc[0]), G: float64(cc[1]), B: float64(cc[2]), A: float64(cc[3]),
			},
		})
	}
	if depth != nil {
		depthLoad := wgpu.LoadOpLoad
		if clear&gpu.ClearDepth != 0 {
			depthLoad = wgpu.LoadOpClear
		}
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:            depth,
			DepthLoadOp:     depthLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		}
	}
	b.pass = enc.BeginRenderPass(desc)
	b.passTarget, b.passWidth, b.passHeight = t, width, height
	b.encoded = true
	return nil
}

// Clear restarts the pass on the bound framebuffer with clearing load ops.
// Scissor and colour mask do not restrict it.
func (b *Backend) Clear(mask gpu.ClearMask) {
	mask &^= gpu.ClearStencil
	if mask == 0 {
		return
	}
	if err := b.beginPass(mask); err != nil {
		logger.Logger().Warn("wgpu clear", "error", err)
	}
}

// flipRect converts a bottom-left rectangle to the top-left origin of a
// target of the given size, clipped to the target.
func flipRect(r [4]int32, width, height int) (x, y, w, h uint32, ok bool) {
	x0, x1 := max(int(r[0]), 0), min(int(r[0]+r[2]), width)
	y0, y1 := max(int(r[1]), 0), min(int(r[1]+r[3]), height)
	if x1 <= x0 || y1 <= y0 {
		return 0, 0, 0, 0, false
	}
	return uint32(x0), uint32(height - y1), uint32(x1 - x0), uint32(y1 - y0), true
}

// stageUniforms copies the program's uniform block into the ring and
// returns its dynamic offset.
func (b *Backend) stageUniforms(p *program) uint32 {
	if len(p.uniforms) == 0 {
		return 0
	}
	size := align(uint64(len(p.uniforms)), uniformAlign)
	if b.ringCursor+size > uniformRingSize {
		b.endPass()
		b.submit()
	}
	offset := b.ringCursor
	b.queue.WriteBuffer(b.uniformRing, offset, p.uniforms)
	b.ringCursor += size
	return uint32(offset)
}

func (b *Backend) draw(mode gpu.PrimitiveMode, encode func(pass *wgpu.RenderPassEncoder)) {
	if b.state.Enabled[gpu.CapabilityCullFace] && b.state.CullFace == gpu.FaceFrontAndBack {
		return
	}
	p, ok := b.programs[b.currentProgram]
	if !ok {
		return
	}
	if err := b.encodeDraw(p, mode, encode); err != nil {
		logger.Logger().Warn("wgpu draw skipped", "error", err)
	}
}

func (b *Backend) encodeDraw(p *program, mode gpu.PrimitiveMode, encode func(pass *wgpu.RenderPassEncoder)) error {
	offset := b.stageUniforms(p)
	if b.pass == nil {
		if err := b.beginPass(0); err != nil {
			return err
		}
	}
	vao := b.currentVAO()
	key := makeKey(&b.state, mode, b.passTarget, vao, len(p.locations))
	pl, err := b.renderPipeline(p, key)
	if err != nil {
		return err
	}
	group, err := b.textureGroup(p)
	if err != nil {
		return err
	}
	vx, vy, vw, vh, ok := flipRect(b.state.Viewport, b.passWidth, b.passHeight)
	if !ok {
		return nil
	}
	sx, sy, sw, sh := uint32(0), uint32(0), uint32(b.passWidth), uint32(b.passHeight)
	if b.state.Enabled[gpu.CapabilityScissorTest] {
		if sx, sy, sw, sh, ok = flipRect(b.state.Scissor, b.passWidth, b.passHeight); !ok {
			return nil
		}
	}

	pass := b.pass
	pass.SetPipeline(pl)
	if p.uniformGroup != nil {
		pass.SetBindGroup(0, p.uniformGroup, []uint32{offset})
	} else {
		pass.SetBindGroup(0, b.emptyGroup, nil)
	}
	if group != nil {
		pass.SetBindGroup(1, group, nil)
	}
	for i, s := range key.slots {
		if !s.used {
			continue
		}
		a := vao.attribs[i]
		bf := b.buffers[a.buf]
		if bf == nil || bf.buf == nil || uint64(a.offset) >= bf.size {
			return fmt.Errorf("attribute %d has no vertex data", i)
		}
		pass.SetVertexBuffer(uint32(i), bf.buf, uint64(a.offset), wgpu.WholeSize)
	}
	pass.SetViewport(float32(vx), float32(vy), float32(vw), float32(vh), 0, 1)
	pass.SetScissorRect(sx, sy, sw, sh)
	bc := b.state.BlendColor
	pass.SetBlendConstant(&wgpu.Color{R: float64(bc[0]), G: float64(bc[1]), B: float64(bc[2]), A: float64(bc[3])})
	encode(pass)
	return nil
}

func (b *Backend) DrawArrays(mode gpu.PrimitiveMode, first, count, instances int) {
	b.draw(mode, func(pass *wgpu.RenderPassEncoder) {
		pass.Draw(uint32(count), uint32(max(instances, 1)), uint32(first), 0)
	})
}

// DrawElements draws uint32 indices starting offset bytes into the element
// buffer of the bound vertex array.
func (b *Backend) DrawElements(mode gpu.PrimitiveMode, count, offset, instances int) {
	bf := b.buffers[b.currentVAO().elements]
	if bf == nil || bf.buf == nil {
		logger.Logger().Warn("wgpu draw skipped", "error", errors.New("no element buffer bound"))
		return
	}
	b.draw(mode, func(pass *wgpu.RenderPassEncoder) {
		pass.SetIndexBuffer(bf.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(uint32(count), uint32(max(instances, 1)), uint32(offset/4), 0, 0)
	})
}
