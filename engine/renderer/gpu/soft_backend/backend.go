// Package soft_backend is an in-process rasterizer implementing gpu.Backend.
// It runs headless, counts every entry point, detects double frees and can
// simulate context loss, which makes it the device used by the test suites.
package soft_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

type buffer struct {
	kind gpu.BufferKind
	data []byte
}

type texture struct {
	width, height int
	format        gpu.TextureFormat
	typ           gpu.TextureType
	filter        gpu.Filter
	// texels are RGBA floats regardless of format; uint8 textures are
	// quantized on write.
	texels []float32
}

type renderbuffer struct {
	width, height int
	depth         []float32
}

type framebuffer struct {
	color       [gpu.MaxColorAttachments]gpu.Handle
	depth       gpu.Handle
	drawBuffers []gpu.Attachment
}

type program struct {
	shader     *Shader
	attributes []string
	uniforms   Uniforms
}

type attribPointer struct {
	buf        gpu.Handle
	components int
	stride     int
	offset     int
	divisor    int
	set        bool
}

type vertexArray struct {
	attribs  []attribPointer
	elements gpu.Handle
}

type fence struct {
	remaining int
}

type query struct {
	start, end int
	done       bool
}

// Backend is the software device. It is not safe for concurrent use.
type Backend struct {
	info          gpu.DeviceInfo
	width, height int
	lost          bool
	fencePolls    int

	next        gpu.Handle
	calls       map[string]int
	doubleFrees int
	deleted     map[gpu.Handle]bool
	stale       map[gpu.Handle]bool

	state gpu.StateSnapshot

	buffers       map[gpu.Handle]*buffer
	textures      map[gpu.Handle]*texture
	renderbuffers map[gpu.Handle]*renderbuffer
	framebuffers  map[gpu.Handle]*framebuffer
	programs      map[gpu.Handle]*program
	vertexArrays  map[gpu.Handle]*vertexArray
	pixelBuffers  map[gpu.Handle][]byte
	fences        map[gpu.Handle]*fence
	queries       map[gpu.Handle]*query

	defaultColor *texture
	defaultDepth *renderbuffer
	defaultVAO   *vertexArray

	units          []gpu.Handle
	boundFB        gpu.Handle
	boundVAO       gpu.Handle
	currentProgram gpu.Handle
	drawCount      int
}

var _ gpu.Backend = &Backend{}

// New creates a software device whose default framebuffer is width x height.
//
// Parameters:
//   - width, height: size of the default framebuffer
//   - options: functional options to adjust limits, extensions and fence latency
//
// Returns:
//   - *Backend: the device
func New(width, height int, options ...BackendBuilderOption) *Backend {
	b := &Backend{
		width:  width,
		height: height,
		info: gpu.DeviceInfo{
			Vendor:   "oxy",
			Renderer: "software rasterizer",
			Version:  "1.0",
			Limits: gpu.Limits{
				MaxTextureSize:             4096,
				MaxRenderbufferSize:        4096,
				MaxDrawBuffers:             4,
				MaxVertexAttribs:           16,
				MaxTextureImageUnits:       16,
				MaxVertexTextureImageUnits: 16,
			},
			Extensions: []string{
				gpu.ExtColorBufferFloat, gpu.ExtColorBufferHalfFloat, gpu.ExtTextureFloat,
				gpu.ExtTextureHalfFloat, gpu.ExtTextureFloatLinear, gpu.ExtDepthTexture,
				gpu.ExtInstancedArrays, gpu.ExtVertexArrayObject, gpu.ExtDrawBuffers,
				gpu.ExtFragDepth, gpu.ExtTimerQuery, gpu.ExtFenceSync,
				gpu.ExtPixelBufferObject, gpu.ExtBlendMinMax, gpu.ExtLoseContext,
			},
		},
		fencePolls: 1,
		calls:      make(map[string]int),
		deleted:    make(map[gpu.Handle]bool),
		stale:      make(map[gpu.Handle]bool),
	}
	for _, option := range options {
		option(b)
	}
	b.initContext()
	return b
}

func (b *Backend) initContext() {
	b.state = gpu.DefaultState(int32(b.width), int32(b.height), b.info.Limits.MaxVertexAttribs)
	b.buffers = make(map[gpu.Handle]*buffer)
	b.textures = make(map[gpu.Handle]*texture)
	b.renderbuffers = make(map[gpu.Handle]*renderbuffer)
	b.framebuffers = make(map[gpu.Handle]*framebuffer)
	b.programs = make(map[gpu.Handle]*program)
	b.vertexArrays = make(map[gpu.Handle]*vertexArray)
	b.pixelBuffers = make(map[gpu.Handle][]byte)
	b.fences = make(map[gpu.Handle]*fence)
	b.queries = make(map[gpu.Handle]*query)
	b.defaultColor = &texture{width: b.width, height: b.height, texels: make([]float32, b.width*b.height*4)}
	b.defaultDepth = &renderbuffer{width: b.width, height: b.height, depth: make([]float32, b.width*b.height)}
	for i := range b.defaultDepth.depth {
		b.defaultDepth.depth[i] = 1
	}
	b.defaultVAO = &vertexArray{attribs: make([]attribPointer, b.info.Limits.MaxVertexAttribs)}
	b.units = make([]gpu.Handle, b.info.Limits.MaxTextureImageUnits)
	b.boundFB, b.boundVAO, b.currentProgram = 0, 0, 0
}

// Calls returns how many times the named entry point was invoked.
func (b *Backend) Calls(name string) int {
	return b.calls[name]
}

// ResetCalls zeroes every call counter.
func (b *Backend) ResetCalls() {
	clear(b.calls)
}

// DoubleFrees returns how many deletes targeted an already deleted handle.
func (b *Backend) DoubleFrees() int {
	return b.doubleFrees
}

// Live returns the number of live objects of every kind.
func (b *Backend) Live() int {
	return len(b.buffers) + len(b.textures) + len(b.renderbuffers) + len(b.framebuffers) +
		len(b.programs) + len(b.vertexArrays) + len(b.pixelBuffers) + len(b.fences) + len(b.queries)
}

// Resize changes the default framebuffer size, as a window resize would.
func (b *Backend) Resize(width, height int) {
	b.width, b.height = width, height
	b.defaultColor = &texture{width: width, height: height, texels: make([]float32, width*height*4)}
	b.defaultDepth = &renderbuffer{width: width, height: height, depth: make([]float32, width*height)}
	for i := range b.defaultDepth.depth {
		b.defaultDepth.depth[i] = 1
	}
}

// SimulateContextLoss invalidates every handle, as a platform context loss does.
func (b *Backend) SimulateContextLoss() {
	b.count("SimulateContextLoss")
	b.lost = true
	for h := gpu.Handle(1); h <= b.next; h++ {
		if !b.deleted[h] {
			b.stale[h] = true
		}
	}
	b.initContext()
}

// SimulateContextRestore brings the device back with default state and no objects.
func (b *Backend) SimulateContextRestore() {
	b.count("SimulateContextRestore")
	b.lost = false
}

func (b *Backend) count(name string) {
	b.calls[name]++
}

func (b *Backend) handle() gpu.Handle {
	b.next++
	return b.next
}

// release records a delete and reports whether the handle was live.
func (b *Backend) release(h gpu.Handle, live bool) bool {
	if h == 0 {
		return false
	}
	if b.stale[h] {
		delete(b.stale, h)
		b.deleted[h] = true
		return false
	}
	if b.deleted[h] || !live {
		b.doubleFrees++
		return false
	}
	b.deleted[h] = true
	return true
}

func (b *Backend) DeviceInfo() gpu.DeviceInfo {
	b.count("DeviceInfo")
	info := b.info
	info.Extensions = append([]string(nil), b.info.Extensions...)
	return info
}

func (b *Backend) IsContextLost() bool {
	return b.lost
}

func (b *Backend) Enable(c gpu.Capability) {
	b.count("Enable")
	b.state.Enabled[c] = true
}

func (b *Backend) Disable(c gpu.Capability) {
	b.count("Disable")
	b.state.Enabled[c] = false
}

func (b *Backend) FrontFace(w gpu.Winding) {
	b.count("FrontFace")
	b.state.FrontFace = w
}

func (b *Backend) CullFace(f gpu.Face) {
	b.count("CullFace")
	b.state.CullFace = f
}

func (b *Backend) DepthMask(write bool) {
	b.count("DepthMask")
	b.state.DepthMask = write
}

func (b *Backend) DepthFunc(f gpu.CompareFunc) {
	b.count("DepthFunc")
	b.state.DepthFunc = f
}

func (b *Backend) ColorMask(r, g, bl, a bool) {
	b.count("ColorMask")
	b.state.ColorMask = [4]bool{r, g, bl, a}
}

func (b *Backend) ClearColor(r, g, bl, a float32) {
	b.count("ClearColor")
	b.state.ClearColor = [4]float32{r, g, bl, a}
}

func (b *Backend) BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha gpu.BlendFactor) {
	b.count("BlendFuncSeparate")
	b.state.BlendSrcRGB, b.state.BlendDstRGB = srcRGB, dstRGB
	b.state.BlendSrcAlpha, b.state.BlendDstAlpha = srcAlpha, dstAlpha
}

func (b *Backend) BlendEquationSeparate(rgb, alpha gpu.BlendEquation) {
	b.count("BlendEquationSeparate")
	b.state.BlendEqRGB, b.state.BlendEqAlpha = rgb, alpha
}

func (b *Backend) BlendColor(r, g, bl, a float32) {
	b.count("BlendColor")
	b.state.BlendColor = [4]float32{r, g, bl, a}
}

func (b *Backend) stencilFaces(face gpu.Face) []*gpu.StencilFaceState {
	switch face {
	case gpu.FaceFront:
		return []*gpu.StencilFaceState{&b.state.StencilFront}
	case gpu.FaceBack:
		return []*gpu.StencilFaceState{&b.state.StencilBack}
	}
	return []*gpu.StencilFaceState{&b.state.StencilFront, &b.state.StencilBack}
}

func (b *Backend) StencilFuncSeparate(face gpu.Face, fn gpu.CompareFunc, ref int32, mask uint32) {
	b.count("StencilFuncSeparate")
	for _, s := range b.stencilFaces(face) {
		s.Func, s.Ref, s.ValueMask = fn, ref, mask
	}
}

func (b *Backend) StencilMaskSeparate(face gpu.Face, mask uint32) {
	b.count("StencilMaskSeparate")
	for _, s := range b.stencilFaces(face) {
		s.WriteMask = mask
	}
}

func (b *Backend) StencilOpSeparate(face gpu.Face, fail, zfail, zpass gpu.StencilOp) {
	b.count("StencilOpSeparate")
	for _, s := range b.stencilFaces(face) {
		s.Fail, s.ZFail, s.ZPass = fail, zfail, zpass
	}
}

func (b *Backend) Viewport(x, y, width, height int32) {
	b.count("Viewport")
	b.state.Viewport = [4]int32{x, y, width, height}
}

func (b *Backend) Scissor(x, y, width, height int32) {
	b.count("Scissor")
	b.state.Scissor = [4]int32{x, y, width, height}
}

func (b *Backend) EnableVertexAttribArray(index uint32) {
	b.count("EnableVertexAttribArray")
	if int(index) < len(b.state.VertexAttribs) {
		b.state.VertexAttribs[index] = true
	}
}

func (b *Backend) DisableVertexAttribArray(index uint32) {
	b.count("DisableVertexAttribArray")
	if int(index) < len(b.state.VertexAttribs) {
		b.state.VertexAttribs[index] = false
	}
}

func (b *Backend) QueryState() gpu.StateSnapshot {
	b.count("QueryState")
	s := b.state
	s.VertexAttribs = append([]bool(nil), b.state.VertexAttribs...)
	return s
}

func (b *Backend) CreateBuffer(kind gpu.BufferKind) (gpu.Handle, error) {
	b.count("CreateBuffer")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.buffers[h] = &buffer{kind: kind}
	return h, nil
}

func (b *Backend) BufferData(buf gpu.Handle, data []byte, _ gpu.BufferUsage) error {
	b.count("BufferData")
	bf, ok := b.buffers[buf]
	if !ok {
		return fmt.Errorf("buffer %d: %w", buf, gpu.ErrInvalidHandle)
	}
	bf.data = append(bf.data[:0], data...)
	return nil
}

func (b *Backend) BufferSubData(buf gpu.Handle, offset int, data []byte) error {
	b.count("BufferSubData")
	bf, ok := b.buffers[buf]
	if !ok {
		return fmt.Errorf("buffer %d: %w", buf, gpu.ErrInvalidHandle)
	}
	if offset < 0 || offset+len(data) > len(bf.data) {
		return fmt.Errorf("buffer %d: sub data [%d, %d) out of range %d", buf, offset, offset+len(data), len(bf.data))
	}
	copy(bf.data[offset:], data)
	return nil
}

func (b *Backend) DeleteBuffer(buf gpu.Handle) {
	b.count("DeleteBuffer")
	_, ok := b.buffers[buf]
	if b.release(buf, ok) {
		delete(b.buffers, buf)
	}
}

func (b *Backend) CreateTexture() (gpu.Handle, error) {
	b.count("CreateTexture")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.textures[h] = &texture{}
	return h, nil
}

func (b *Backend) TexImage2D(tex gpu.Handle, width, height int, format gpu.TextureFormat, typ gpu.TextureType, filter gpu.Filter, data []byte) error {
	b.count("TexImage2D")
	t, ok := b.textures[tex]
	if !ok {
		return fmt.Errorf("texture %d: %w", tex, gpu.ErrInvalidHandle)
	}
	if width > b.info.Limits.MaxTextureSize || height > b.info.Limits.MaxTextureSize {
		return fmt.Errorf("texture %d: %dx%d exceeds max texture size %d", tex, width, height, b.info.Limits.MaxTextureSize)
	}
	t.width, t.height, t.format, t.typ, t.filter = width, height, format, typ, filter
	t.texels = make([]float32, width*height*4)
	if data != nil {
		return b.TexSubImage2D(tex, 0, 0, width, height, data)
	}
	return nil
}

// TexSubImage2D accepts uint8 data laid out in the texture's format.
func (b *Backend) TexSubImage2D(tex gpu.Handle, x, y, width, height int, data []byte) error {
	b.count("TexSubImage2D")
	t, ok := b.textures[tex]
	if !ok {
		return fmt.Errorf("texture %d: %w", tex, gpu.ErrInvalidHandle)
	}
	ch := t.format.Channels()
	if len(data) < width*height*ch {
		return fmt.Errorf("texture %d: %d bytes for %dx%d %s", tex, len(data), width, height, t.format)
	}
	for j := 0; j < height; j++ {
		for i := 0; i < width; i++ {
			px, py := x+i, y+j
			if px < 0 || py < 0 || px >= t.width || py >= t.height {
				continue
			}
			src := data[(j*width+i)*ch:]
			dst := t.texels[(py*t.width+px)*4:]
			switch t.format {
			case gpu.FormatAlpha, gpu.FormatDepth:
				dst[0], dst[1], dst[2], dst[3] = 0, 0, 0, float32(src[0])/255
			case gpu.FormatRGB:
				dst[0], dst[1], dst[2], dst[3] = float32(src[0])/255, float32(src[1])/255, float32(src[2])/255, 1
			default:
				for k := 0; k < 4; k++ {
					dst[k] = float32(src[k]) / 255
				}
			}
		}
	}
	return nil
}

func (b *Backend) BindTexture(unit int, tex gpu.Handle) {
	b.count("BindTexture")
	if unit >= 0 && unit < len(b.units) {
		b.units[unit] = tex
	}
}

func (b *Backend) DeleteTexture(tex gpu.Handle) {
	b.count("DeleteTexture")
	_, ok := b.textures[tex]
	if b.release(tex, ok) {
		delete(b.textures, tex)
	}
}

func (b *Backend) CreateRenderbuffer() (gpu.Handle, error) {
	b.count("CreateRenderbuffer")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.renderbuffers[h] = &renderbuffer{}
	return h, nil
}

func (b *Backend) RenderbufferStorage(rb gpu.Handle, width, height int) error {
	b.count("RenderbufferStorage")
	r, ok := b.renderbuffers[rb]
	if !ok {
		return fmt.Errorf("renderbuffer %d: %w", rb, gpu.ErrInvalidHandle)
	}
	if width > b.info.Limits.MaxRenderbufferSize || height > b.info.Limits.MaxRenderbufferSize {
		return fmt.Errorf("renderbuffer %d: %dx%d exceeds max renderbuffer size", rb, width, height)
	}
	r.width, r.height = width, height
	r.depth = make([]float32, width*height)
	for i := range r.depth {
		r.depth[i] = 1
	}
	return nil
}

func (b *Backend) DeleteRenderbuffer(rb gpu.Handle) {
	b.count("DeleteRenderbuffer")
	_, ok := b.renderbuffers[rb]
	if b.release(rb, ok) {
		delete(b.renderbuffers, rb)
	}
}

func (b *Backend) CreateFramebuffer() (gpu.Handle, error) {
	b.count("CreateFramebuffer")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.framebuffers[h] = &framebuffer{drawBuffers: []gpu.Attachment{gpu.AttachmentColor0}}
	return h, nil
}

func (b *Backend) FramebufferTexture2D(fb gpu.Handle, att gpu.Attachment, tex gpu.Handle) error {
	b.count("FramebufferTexture2D")
	f, ok := b.framebuffers[fb]
	if !ok {
		return fmt.Errorf("framebuffer %d: %w", fb, gpu.ErrInvalidHandle)
	}
	if att == gpu.AttachmentDepth {
		return fmt.Errorf("framebuffer %d: depth textures attach as renderbuffers: %w", fb, gpu.ErrUnsupported)
	}
	f.color[att] = tex
	return nil
}

func (b *Backend) FramebufferRenderbuffer(fb gpu.Handle, att gpu.Attachment, rb gpu.Handle) error {
	b.count("FramebufferRenderbuffer")
	f, ok := b.framebuffers[fb]
	if !ok {
		return fmt.Errorf("framebuffer %d: %w", fb, gpu.ErrInvalidHandle)
	}
	if att != gpu.AttachmentDepth {
		return fmt.Errorf("framebuffer %d: renderbuffers attach as depth only: %w", fb, gpu.ErrUnsupported)
	}
	f.depth = rb
	return nil
}

func (b *Backend) DrawBuffers(fb gpu.Handle, atts []gpu.Attachment) error {
	b.count("DrawBuffers")
	f, ok := b.framebuffers[fb]
	if !ok {
		return fmt.Errorf("framebuffer %d: %w", fb, gpu.ErrInvalidHandle)
	}
	if len(atts) > b.info.Limits.MaxDrawBuffers {
		return fmt.Errorf("framebuffer %d: %d draw buffers exceeds %d: %w", fb, len(atts), b.info.Limits.MaxDrawBuffers, gpu.ErrUnsupported)
	}
	f.drawBuffers = append(f.drawBuffers[:0], atts...)
	return nil
}

func (b *Backend) CheckFramebufferStatus(fb gpu.Handle) gpu.FramebufferStatus {
	b.count("CheckFramebufferStatus")
	if fb == 0 {
		return gpu.FramebufferComplete
	}
	f, ok := b.framebuffers[fb]
	if !ok {
		return gpu.FramebufferUnsupported
	}
	w, h := -1, -1
	attached := 0
	for _, c := range f.color {
		if c == 0 {
			continue
		}
		t, ok := b.textures[c]
		if !ok || t.width == 0 {
			return gpu.FramebufferIncompleteAttachment
		}
		if w >= 0 && (t.width != w || t.height != h) {
			return gpu.FramebufferIncompleteDimensions
		}
		w, h = t.width, t.height
		attached++
	}
	if f.depth != 0 {
		r, ok := b.renderbuffers[f.depth]
		if !ok || r.width == 0 {
			return gpu.FramebufferIncompleteAttachment
		}
		if w >= 0 && (r.width != w || r.height != h) {
			return gpu.FramebufferIncompleteDimensions
		}
		attached++
	}
	if attached == 0 {
		return gpu.FramebufferMissingAttachment
	}
	return gpu.FramebufferComplete
}

func (b *Backend) BindFramebuffer(fb gpu.Handle) {
	b.count("BindFramebuffer")
	b.boundFB = fb
}

func (b *Backend) DeleteFramebuffer(fb gpu.Handle) {
	b.count("DeleteFramebuffer")
	_, ok := b.framebuffers[fb]
	if b.release(fb, ok) {
		delete(b.framebuffers, fb)
		if b.boundFB == fb {
			b.boundFB = 0
		}
	}
}

func (b *Backend) CreateProgram(src gpu.ProgramSource) (gpu.Handle, error) {
	b.count("CreateProgram")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	sh, ok := src.Native.(*Shader)
	if !ok || sh == nil || sh.Vertex == nil || (sh.Fragment == nil && sh.Outputs == nil) {
		return 0, fmt.Errorf("program %q: no software shader: %w", src.Key, gpu.ErrUnsupported)
	}
	h := b.handle()
	b.programs[h] = &program{shader: sh, attributes: src.Attributes, uniforms: make(Uniforms)}
	return h, nil
}

func (b *Backend) UseProgram(prog gpu.Handle) {
	b.count("UseProgram")
	b.currentProgram = prog
}

func (b *Backend) Uniform(prog gpu.Handle, name string, value any) error {
	b.count("Uniform")
	p, ok := b.programs[prog]
	if !ok {
		return fmt.Errorf("program %d: %w", prog, gpu.ErrInvalidHandle)
	}
	v, err := gpu.NormalizeUniform(value)
	if err != nil {
		return fmt.Errorf("program %d uniform %s: %w", prog, name, err)
	}
	p.uniforms[name] = v
	return nil
}

func (b *Backend) DeleteProgram(prog gpu.Handle) {
	b.count("DeleteProgram")
	_, ok := b.programs[prog]
	if b.release(prog, ok) {
		delete(b.programs, prog)
		if b.currentProgram == prog {
			b.currentProgram = 0
		}
	}
}

func (b *Backend) CreateVertexArray() (gpu.Handle, error) {
	b.count("CreateVertexArray")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.vertexArrays[h] = &vertexArray{attribs: make([]attribPointer, b.info.Limits.MaxVertexAttribs)}
	return h, nil
}

func (b *Backend) BindVertexArray(vao gpu.Handle) {
	b.count("BindVertexArray")
	b.boundVAO = vao
}

func (b *Backend) currentVAO() *vertexArray {
	if v, ok := b.vertexArrays[b.boundVAO]; ok {
		return v
	}
	return b.defaultVAO
}

func (b *Backend) VertexAttribPointer(location uint32, buf gpu.Handle, components, stride, offset int) {
	b.count("VertexAttribPointer")
	v := b.currentVAO()
	if int(location) >= len(v.attribs) {
		return
	}
	a := &v.attribs[location]
	a.buf, a.components, a.stride, a.offset, a.set = buf, components, stride, offset, true
}

func (b *Backend) VertexAttribDivisor(location uint32, divisor int) {
	b.count("VertexAttribDivisor")
	v := b.currentVAO()
	if int(location) < len(v.attribs) {
		v.attribs[location].divisor = divisor
	}
}

func (b *Backend) BindElementBuffer(buf gpu.Handle) {
	b.count("BindElementBuffer")
	b.currentVAO().elements = buf
}

func (b *Backend) DeleteVertexArray(vao gpu.Handle) {
	b.count("DeleteVertexArray")
	_, ok := b.vertexArrays[vao]
	if b.release(vao, ok) {
		delete(b.vertexArrays, vao)
		if b.boundVAO == vao {
			b.boundVAO = 0
		}
	}
}

func (b *Backend) CreatePixelBuffer(size int) (gpu.Handle, error) {
	b.count("CreatePixelBuffer")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.pixelBuffers[h] = make([]byte, size)
	return h, nil
}

func (b *Backend) ReadPixelsToBuffer(pb gpu.Handle, x, y, width, height int) error {
	b.count("ReadPixelsToBuffer")
	buf, ok := b.pixelBuffers[pb]
	if !ok {
		return fmt.Errorf("pixel buffer %d: %w", pb, gpu.ErrInvalidHandle)
	}
	if len(buf) < width*height*4 {
		buf = make([]byte, width*height*4)
		b.pixelBuffers[pb] = buf
	}
	return b.readPixels(x, y, width, height, buf)
}

func (b *Backend) GetPixelBufferData(pb gpu.Handle, dst []byte) error {
	b.count("GetPixelBufferData")
	buf, ok := b.pixelBuffers[pb]
	if !ok {
		return fmt.Errorf("pixel buffer %d: %w", pb, gpu.ErrInvalidHandle)
	}
	copy(dst, buf)
	return nil
}

func (b *Backend) DeletePixelBuffer(pb gpu.Handle) {
	b.count("DeletePixelBuffer")
	_, ok := b.pixelBuffers[pb]
	if b.release(pb, ok) {
		delete(b.pixelBuffers, pb)
	}
}

func (b *Backend) FenceSync() (gpu.Handle, error) {
	b.count("FenceSync")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.fences[h] = &fence{remaining: b.fencePolls}
	return h, nil
}

func (b *Backend) FenceStatus(f gpu.Handle) gpu.FenceStatus {
	b.count("FenceStatus")
	fc, ok := b.fences[f]
	if !ok {
		return gpu.FenceFailed
	}
	if fc.remaining <= 0 {
		return gpu.FenceSignaled
	}
	fc.remaining--
	return gpu.FencePending
}

func (b *Backend) DeleteFence(f gpu.Handle) {
	b.count("DeleteFence")
	_, ok := b.fences[f]
	if b.release(f, ok) {
		delete(b.fences, f)
	}
}

func (b *Backend) Flush() {
	b.count("Flush")
}

func (b *Backend) Finish() {
	b.count("Finish")
	for _, f := range b.fences {
		f.remaining = 0
	}
}

func (b *Backend) CreateTimerQuery() (gpu.Handle, error) {
	b.count("CreateTimerQuery")
	if b.lost {
		return 0, gpu.ErrContextLost
	}
	h := b.handle()
	b.queries[h] = &query{}
	return h, nil
}

func (b *Backend) BeginTimerQuery(q gpu.Handle) {
	b.count("BeginTimerQuery")
	if qu, ok := b.queries[q]; ok {
		qu.start, qu.done = b.drawCount, false
	}
}

func (b *Backend) EndTimerQuery(q gpu.Handle) {
	b.count("EndTimerQuery")
	if qu, ok := b.queries[q]; ok {
		qu.end, qu.done = b.drawCount, true
	}
}

// TimerQueryResult reports 1µs per draw call issued inside the query.
func (b *Backend) TimerQueryResult(q gpu.Handle) (uint64, bool) {
	b.count("TimerQueryResult")
	qu, ok := b.queries[q]
	if !ok || !qu.done {
		return 0, false
	}
	return uint64(qu.end-qu.start) * 1000, true
}

func (b *Backend) DeleteTimerQuery(q gpu.Handle) {
	b.count("DeleteTimerQuery")
	_, ok := b.queries[q]
	if b.release(q, ok) {
		delete(b.queries, q)
	}
}

func (b *Backend) UnbindAll() {
	b.count("UnbindAll")
	for i := range b.units {
		b.units[i] = 0
	}
	b.boundFB, b.boundVAO, b.currentProgram = 0, 0, 0
}

func (b *Backend) LoseContext() {
	b.count("LoseContext")
	b.SimulateContextLoss()
}
