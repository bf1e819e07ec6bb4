package soft_backend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

type target struct {
	color *texture
	// extra holds the textures of draw buffers after the first.
	extra         []*texture
	depth         []float32
	width, height int
}

func (b *Backend) target() target {
	if b.boundFB == 0 {
		return target{color: b.defaultColor, depth: b.defaultDepth.depth, width: b.width, height: b.height}
	}
	f, ok := b.framebuffers[b.boundFB]
	if !ok {
		return target{}
	}
	var tg target
	att := gpu.AttachmentColor0
	if len(f.drawBuffers) > 0 {
		att = f.drawBuffers[0]
	}
	if att < gpu.MaxColorAttachments {
		if t, ok := b.textures[f.color[att]]; ok && t.width > 0 {
			tg.color = t
			tg.width, tg.height = t.width, t.height
		}
	}
	for i := 1; i < len(f.drawBuffers); i++ {
		var t *texture
		if a := f.drawBuffers[i]; a < gpu.MaxColorAttachments {
			if bt, ok := b.textures[f.color[a]]; ok && bt.width == tg.width && bt.height == tg.height {
				t = bt
			}
		}
		tg.extra = append(tg.extra, t)
	}
	if r, ok := b.renderbuffers[f.depth]; ok && r.width > 0 {
		tg.depth = r.depth
		if tg.color == nil {
			tg.width, tg.height = r.width, r.height
		}
	}
	return tg
}

// clipRect returns the writable pixel rectangle [x0, x1) x [y0, y1).
func (b *Backend) clipRect(tg target, useViewport bool) (x0, y0, x1, y1 int) {
	x0, y0, x1, y1 = 0, 0, tg.width, tg.height
	if useViewport {
		vp := b.state.Viewport
		x0, y0 = max(x0, int(vp[0])), max(y0, int(vp[1]))
		x1, y1 = min(x1, int(vp[0]+vp[2])), min(y1, int(vp[1]+vp[3]))
	}
	if b.state.Enabled[gpu.CapabilityScissorTest] {
		sc := b.state.Scissor
		x0, y0 = max(x0, int(sc[0])), max(y0, int(sc[1]))
		x1, y1 = min(x1, int(sc[0]+sc[2])), min(y1, int(sc[1]+sc[3]))
	}
	return
}

func quantize(v float32, typ gpu.TextureType) float32 {
	if typ != gpu.TypeUint8 {
		return v
	}
	return math32.Round(min(max(v, 0), 1)*255) / 255
}

func (b *Backend) writeColor(t *texture, idx int, c [4]float32) {
	px := t.texels[idx*4 : idx*4+4]
	mask := b.state.ColorMask
	if t.format == gpu.FormatAlpha {
		if mask[3] {
			px[3] = quantize(c[3], t.typ)
		}
		return
	}
	for k := 0; k < 4; k++ {
		if mask[k] {
			px[k] = quantize(c[k], t.typ)
		}
	}
}

func (b *Backend) Clear(mask gpu.ClearMask) {
	b.count("Clear")
	tg := b.target()
	x0, y0, x1, y1 := b.clipRect(tg, false)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			idx := y*tg.width + x
			if mask&gpu.ClearColor != 0 && tg.color != nil {
				b.writeColor(tg.color, idx, b.state.ClearColor)
				for _, t := range tg.extra {
					if t != nil {
						b.writeColor(t, idx, b.state.ClearColor)
					}
				}
			}
			if mask&gpu.ClearDepth != 0 && tg.depth != nil && b.state.DepthMask {
				tg.depth[idx] = 1
			}
		}
	}
}

func (b *Backend) DrawArrays(mode gpu.PrimitiveMode, first, count, instances int) {
	b.count("DrawArrays")
	ids := make([]int, count)
	for i := range ids {
		ids[i] = first + i
	}
	b.draw(mode, ids, instances)
}

func (b *Backend) DrawElements(mode gpu.PrimitiveMode, count, offset, instances int) {
	b.count("DrawElements")
	vao := b.currentVAO()
	eb, ok := b.buffers[vao.elements]
	if !ok {
		return
	}
	ids := make([]int, 0, count)
	for i := 0; i < count; i++ {
		at := offset + i*4
		if at+4 > len(eb.data) {
			break
		}
		ids = append(ids, int(binary.LittleEndian.Uint32(eb.data[at:])))
	}
	b.draw(mode, ids, instances)
}

func (b *Backend) fetch(vao *vertexArray, p *program, vertex, instance int) [][]float32 {
	out := make([][]float32, len(p.attributes))
	for loc := range out {
		if loc >= len(vao.attribs) || !vao.attribs[loc].set {
			continue
		}
		a := vao.attribs[loc]
		buf, ok := b.buffers[a.buf]
		if !ok {
			continue
		}
		stride := a.stride
		if stride == 0 {
			stride = a.components * 4
		}
		elem := vertex
		if a.divisor > 0 {
			elem = instance / a.divisor
		}
		at := a.offset + elem*stride
		if at+a.components*4 > len(buf.data) {
			continue
		}
		vals := make([]float32, a.components)
		for k := range vals {
			vals[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf.data[at+k*4:]))
		}
		out[loc] = vals
	}
	return out
}

type shadedVertex struct {
	win      mgl32.Vec3
	invW     float32
	varyings []float32
	clipped  bool
}

func (b *Backend) draw(mode gpu.PrimitiveMode, ids []int, instances int) {
	p, ok := b.programs[b.currentProgram]
	if !ok || len(ids) == 0 {
		return
	}
	tg := b.target()
	if tg.width == 0 {
		return
	}
	b.drawCount++
	vao := b.currentVAO()
	vp := b.state.Viewport
	for inst := 0; inst < max(instances, 1); inst++ {
		cache := make(map[int]shadedVertex, len(ids))
		shade := func(id int) shadedVertex {
			if v, ok := cache[id]; ok {
				return v
			}
			in := VertexInput{VertexID: id, InstanceID: inst, Attribs: b.fetch(vao, p, id, inst), Uniforms: p.uniforms}
			out := p.shader.Vertex(&in)
			var sv shadedVertex
			w := out.Position[3]
			if w <= 1e-6 {
				sv.clipped = true
			} else {
				ndc := out.Position.Vec3().Mul(1 / w)
				sv.win = mgl32.Vec3{
					(ndc[0]+1)/2*float32(vp[2]) + float32(vp[0]),
					(ndc[1]+1)/2*float32(vp[3]) + float32(vp[1]),
					(ndc[2] + 1) / 2,
				}
				sv.invW = 1 / w
				sv.varyings = out.Varyings
			}
			cache[id] = sv
			return sv
		}
		switch mode {
		case gpu.PrimitiveTriangles:
			for i := 0; i+2 < len(ids); i += 3 {
				b.rasterTriangle(tg, p, [3]shadedVertex{shade(ids[i]), shade(ids[i+1]), shade(ids[i+2])})
			}
		case gpu.PrimitiveTriangleStrip:
			for i := 0; i+2 < len(ids); i++ {
				if i%2 == 0 {
					b.rasterTriangle(tg, p, [3]shadedVertex{shade(ids[i]), shade(ids[i+1]), shade(ids[i+2])})
				} else {
					b.rasterTriangle(tg, p, [3]shadedVertex{shade(ids[i+1]), shade(ids[i]), shade(ids[i+2])})
				}
			}
		case gpu.PrimitiveLines:
			for i := 0; i+1 < len(ids); i += 2 {
				b.rasterLine(tg, p, shade(ids[i]), shade(ids[i+1]))
			}
		case gpu.PrimitivePoints:
			for _, id := range ids {
				v := shade(id)
				if !v.clipped {
					b.fragment(tg, p, int(v.win[0]), int(v.win[1]), v.win[2], true, v.varyings, v.invW)
				}
			}
		}
	}
}

func orient(a, c mgl32.Vec3, px, py float32) float32 {
	return (c[0]-a[0])*(py-a[1]) - (c[1]-a[1])*(px-a[0])
}

func (b *Backend) rasterTriangle(tg target, p *program, v [3]shadedVertex) {
	if v[0].clipped || v[1].clipped || v[2].clipped {
		return
	}
	area := orient(v[0].win, v[1].win, v[2].win[0], v[2].win[1])
	if area == 0 {
		return
	}
	front := (area > 0) == (b.state.FrontFace == gpu.WindingCCW)
	if b.state.Enabled[gpu.CapabilityCullFace] {
		switch b.state.CullFace {
		case gpu.FaceFrontAndBack:
			return
		case gpu.FaceBack:
			if !front {
				return
			}
		case gpu.FaceFront:
			if front {
				return
			}
		}
	}
	x0, y0, x1, y1 := b.clipRect(tg, true)
	minX := int(math32.Floor(min(v[0].win[0], v[1].win[0], v[2].win[0])))
	maxX := int(math32.Ceil(max(v[0].win[0], v[1].win[0], v[2].win[0])))
	minY := int(math32.Floor(min(v[0].win[1], v[1].win[1], v[2].win[1])))
	maxY := int(math32.Ceil(max(v[0].win[1], v[1].win[1], v[2].win[1])))
	x0, y0 = max(x0, minX), max(y0, minY)
	x1, y1 = min(x1, maxX+1), min(y1, maxY+1)

	nv := len(v[0].varyings)
	vary := make([]float32, nv)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			px, py := float32(x)+0.5, float32(y)+0.5
			w0 := orient(v[1].win, v[2].win, px, py) / area
			w1 := orient(v[2].win, v[0].win, px, py) / area
			w2 := orient(v[0].win, v[1].win, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			z := w0*v[0].win[2] + w1*v[1].win[2] + w2*v[2].win[2]
			invW := w0*v[0].invW + w1*v[1].invW + w2*v[2].invW
			for k := 0; k < nv; k++ {
				var a0, a1, a2 float32
				if k < len(v[0].varyings) {
					a0 = v[0].varyings[k]
				}
				if k < len(v[1].varyings) {
					a1 = v[1].varyings[k]
				}
				if k < len(v[2].varyings) {
					a2 = v[2].varyings[k]
				}
				vary[k] = (w0*a0*v[0].invW + w1*a1*v[1].invW + w2*a2*v[2].invW) / invW
			}
			b.fragment(tg, p, x, y, z, front, vary, invW)
		}
	}
}

func (b *Backend) rasterLine(tg target, p *program, a, c shadedVertex) {
	if a.clipped || c.clipped {
		return
	}
	dx, dy := c.win[0]-a.win[0], c.win[1]-a.win[1]
	steps := int(math32.Ceil(max(math32.Abs(dx), math32.Abs(dy))))
	if steps == 0 {
		steps = 1
	}
	vary := make([]float32, len(a.varyings))
	for s := 0; s <= steps; s++ {
		t := float32(s) / float32(steps)
		x := int(a.win[0] + dx*t)
		y := int(a.win[1] + dy*t)
		z := a.win[2] + (c.win[2]-a.win[2])*t
		for k := range vary {
			var cv float32
			if k < len(c.varyings) {
				cv = c.varyings[k]
			}
			vary[k] = a.varyings[k] + (cv-a.varyings[k])*t
		}
		b.fragment(tg, p, x, y, z, true, vary, a.invW+(c.invW-a.invW)*t)
	}
}

func (b *Backend) fragment(tg target, p *program, x, y int, z float32, front bool, varyings []float32, invW float32) {
	x0, y0, x1, y1 := b.clipRect(tg, true)
	if x < x0 || y < y0 || x >= x1 || y >= y1 {
		return
	}
	idx := y*tg.width + x
	depthTest := b.state.Enabled[gpu.CapabilityDepthTest] && tg.depth != nil
	if depthTest && !b.state.DepthFunc.Test(z, tg.depth[idx]) {
		return
	}
	in := FragmentInput{
		FragCoord:   mgl32.Vec4{float32(x) + 0.5, float32(y) + 0.5, z, invW},
		Varyings:    varyings,
		FrontFacing: front,
		Uniforms:    p.uniforms,
		sample:      b.sample,
	}
	var outputs [gpu.MaxColorAttachments][4]float32
	var keep bool
	if p.shader.Outputs != nil {
		outputs, keep = p.shader.Outputs(&in)
	} else {
		outputs[0], keep = p.shader.Fragment(&in)
	}
	if !keep {
		return
	}
	if tg.color != nil {
		b.output(tg.color, idx, outputs[0])
	}
	for i, t := range tg.extra {
		if t != nil && i+1 < len(outputs) {
			b.output(t, idx, outputs[i+1])
		}
	}
	if depthTest && b.state.DepthMask {
		tg.depth[idx] = z
	}
}

// output blends color into pixel idx of t when blending is enabled and
// writes the result.
func (b *Backend) output(t *texture, idx int, color [4]float32) {
	if b.state.Enabled[gpu.CapabilityBlend] {
		dst := [4]float32(t.texels[idx*4 : idx*4+4])
		if t.typ == gpu.TypeUint8 {
			for k := range color {
				color[k] = min(max(color[k], 0), 1)
			}
		}
		color = b.blend(color, dst)
	}
	b.writeColor(t, idx, color)
}

func (b *Backend) blend(src, dst [4]float32) [4]float32 {
	s := b.state
	var out [4]float32
	for i := 0; i < 4; i++ {
		sf, df, eq := s.BlendSrcRGB, s.BlendDstRGB, s.BlendEqRGB
		if i == 3 {
			sf, df, eq = s.BlendSrcAlpha, s.BlendDstAlpha, s.BlendEqAlpha
		}
		fs := blendFactor(sf, src, dst, s.BlendColor, i)
		fd := blendFactor(df, src, dst, s.BlendColor, i)
		switch eq {
		case gpu.BlendEquationSubtract:
			out[i] = src[i]*fs - dst[i]*fd
		case gpu.BlendEquationReverseSubtract:
			out[i] = dst[i]*fd - src[i]*fs
		case gpu.BlendEquationMin:
			out[i] = min(src[i], dst[i])
		case gpu.BlendEquationMax:
			out[i] = max(src[i], dst[i])
		default:
			out[i] = src[i]*fs + dst[i]*fd
		}
	}
	return out
}

func blendFactor(f gpu.BlendFactor, src, dst, constant [4]float32, i int) float32 {
	switch f {
	case gpu.BlendZero:
		return 0
	case gpu.BlendOne:
		return 1
	case gpu.BlendSrcColor:
		return src[i]
	case gpu.BlendOneMinusSrcColor:
		return 1 - src[i]
	case gpu.BlendDstColor:
		return dst[i]
	case gpu.BlendOneMinusDstColor:
		return 1 - dst[i]
	case gpu.BlendSrcAlpha:
		return src[3]
	case gpu.BlendOneMinusSrcAlpha:
		return 1 - src[3]
	case gpu.BlendDstAlpha:
		return dst[3]
	case gpu.BlendOneMinusDstAlpha:
		return 1 - dst[3]
	case gpu.BlendConstantColor:
		return constant[i]
	case gpu.BlendOneMinusConstantColor:
		return 1 - constant[i]
	case gpu.BlendConstantAlpha:
		return constant[3]
	case gpu.BlendOneMinusConstantAlpha:
		return 1 - constant[3]
	case gpu.BlendSrcAlphaSaturate:
		if i == 3 {
			return 1
		}
		return min(src[3], 1-dst[3])
	}
	return 1
}

func (b *Backend) sample(unit int, u, v float32) [4]float32 {
	if unit < 0 || unit >= len(b.units) {
		return [4]float32{}
	}
	t, ok := b.textures[b.units[unit]]
	if !ok || t.width == 0 {
		return [4]float32{}
	}
	texel := func(x, y int) [4]float32 {
		x = min(max(x, 0), t.width-1)
		y = min(max(y, 0), t.height-1)
		return [4]float32(t.texels[(y*t.width+x)*4 : (y*t.width+x)*4+4])
	}
	fx, fy := u*float32(t.width), v*float32(t.height)
	if t.filter == gpu.FilterNearest {
		return texel(int(math32.Floor(fx)), int(math32.Floor(fy)))
	}
	fx, fy = fx-0.5, fy-0.5
	x0, y0 := int(math32.Floor(fx)), int(math32.Floor(fy))
	tx, ty := fx-float32(x0), fy-float32(y0)
	a, c := texel(x0, y0), texel(x0+1, y0)
	d, e := texel(x0, y0+1), texel(x0+1, y0+1)
	var out [4]float32
	for k := range out {
		top := a[k] + (c[k]-a[k])*tx
		bottom := d[k] + (e[k]-d[k])*tx
		out[k] = top + (bottom-top)*ty
	}
	return out
}

func (b *Backend) ReadPixels(x, y, width, height int, dst []byte) error {
	b.count("ReadPixels")
	return b.readPixels(x, y, width, height, dst)
}

func (b *Backend) readPixels(x, y, width, height int, dst []byte) error {
	if b.lost {
		return gpu.ErrContextLost
	}
	if len(dst) < width*height*4 {
		return fmt.Errorf("read pixels: buffer of %d bytes for %dx%d", len(dst), width, height)
	}
	tg := b.target()
	if tg.color == nil {
		return fmt.Errorf("read pixels: framebuffer %d has no colour attachment", b.boundFB)
	}
	t := tg.color
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			o := (j*width + i) * 4
			px, py := x+i, y+j
			if px < 0 || py < 0 || px >= t.width || py >= t.height {
				dst[o], dst[o+1], dst[o+2], dst[o+3] = 0, 0, 0, 0
				continue
			}
			src := t.texels[(py*t.width+px)*4:]
			for k := 0; k < 4; k++ {
				dst[o+k] = byte(math32.Round(min(max(src[k], 0), 1) * 255))
			}
		}
	}
	return nil
}
