// Package gl_backend implements gpu.Backend on OpenGL 3.3 core. Every call
// maps onto the matching GL entry point; handles are GL object names except
// for fences, which GL addresses by pointer.
package gl_backend

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/go-gl/gl/v3.3-core/gl"
)

type texture struct {
	format gpu.TextureFormat
	typ    gpu.TextureType
}

type program struct {
	locations map[string]int32
}

// Backend drives the OpenGL context current on the calling thread.
type Backend struct {
	info gpu.DeviceInfo

	textures     map[gpu.Handle]texture
	programs     map[gpu.Handle]*program
	pixelBuffers map[gpu.Handle]int
	fences       map[gpu.Handle]uintptr
	nextFence    gpu.Handle

	boundFB gpu.Handle
}

var _ gpu.Backend = &Backend{}

// New loads the GL entry points and reads the device description. The GL
// context must be current on the calling thread.
//
// Returns:
//   - *Backend: the backend
//   - error: error if GL could not be initialised
func New() (*Backend, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("gl init: %w", err)
	}
	b := &Backend{
		textures:     make(map[gpu.Handle]texture),
		programs:     make(map[gpu.Handle]*program),
		pixelBuffers: make(map[gpu.Handle]int),
		fences:       make(map[gpu.Handle]uintptr),
	}
	b.info = gpu.DeviceInfo{
		Vendor:   gl.GoStr(gl.GetString(gl.VENDOR)),
		Renderer: gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:  gl.GoStr(gl.GetString(gl.VERSION)),
		Limits: gpu.Limits{
			MaxTextureSize:             getInt(gl.MAX_TEXTURE_SIZE),
			MaxRenderbufferSize:        getInt(gl.MAX_RENDERBUFFER_SIZE),
			MaxDrawBuffers:             getInt(gl.MAX_DRAW_BUFFERS),
			MaxVertexAttribs:           getInt(gl.MAX_VERTEX_ATTRIBS),
			MaxTextureImageUnits:       getInt(gl.MAX_TEXTURE_IMAGE_UNITS),
			MaxVertexTextureImageUnits: getInt(gl.MAX_VERTEX_TEXTURE_IMAGE_UNITS),
		},
		// core 3.3 guarantees all of these
		Extensions: []string{
			gpu.ExtColorBufferFloat, gpu.ExtColorBufferHalfFloat, gpu.ExtTextureFloat,
			gpu.ExtTextureHalfFloat, gpu.ExtTextureFloatLinear, gpu.ExtDepthTexture,
			gpu.ExtInstancedArrays, gpu.ExtVertexArrayObject, gpu.ExtDrawBuffers,
			gpu.ExtFragDepth, gpu.ExtTimerQuery, gpu.ExtFenceSync,
			gpu.ExtPixelBufferObject, gpu.ExtBlendMinMax,
		},
	}
	logger.Logger().Info("gl backend", "vendor", b.info.Vendor, "renderer", b.info.Renderer, "version", b.info.Version)
	return b, nil
}

func getInt(pname uint32) int {
	var v int32
	gl.GetIntegerv(pname, &v)
	return int(v)
}

func (b *Backend) DeviceInfo() gpu.DeviceInfo { return b.info }

// IsContextLost is always false: desktop GL contexts are not lost without
// the robustness extension.
func (b *Backend) IsContextLost() bool { return false }

func (b *Backend) Enable(c gpu.Capability)  { gl.Enable(capabilities[c]) }
func (b *Backend) Disable(c gpu.Capability) { gl.Disable(capabilities[c]) }
func (b *Backend) FrontFace(w gpu.Winding)  { gl.FrontFace(windings[w]) }
func (b *Backend) CullFace(f gpu.Face)      { gl.CullFace(faces[f]) }
func (b *Backend) DepthMask(write bool)     { gl.DepthMask(write) }
func (b *Backend) DepthFunc(f gpu.CompareFunc) { gl.DepthFunc(compareFuncs[f]) }

func (b *Backend) ColorMask(r, g, bl, a bool)     { gl.ColorMask(r, g, bl, a) }
func (b *Backend) ClearColor(r, g, bl, a float32) { gl.ClearColor(r, g, bl, a) }
func (b *Backend) BlendColor(r, g, bl, a float32) { gl.BlendColor(r, g, bl, a) }

func (b *Backend) BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha gpu.BlendFactor) {
	gl.BlendFuncSeparate(blendFactors[srcRGB], blendFactors[dstRGB], blendFactors[srcAlpha], blendFactors[dstAlpha])
}

func (b *Backend) BlendEquationSeparate(rgb, alpha gpu.BlendEquation) {
	gl.BlendEquationSeparate(blendEquations[rgb], blendEquations[alpha])
}

func (b *Backend) StencilFuncSeparate(face gpu.Face, fn gpu.CompareFunc, ref int32, mask uint32) {
	gl.StencilFuncSeparate(faces[face], compareFuncs[fn], ref, mask)
}

func (b *Backend) StencilMaskSeparate(face gpu.Face, mask uint32) {
	gl.StencilMaskSeparate(faces[face], mask)
}

func (b *Backend) StencilOpSeparate(face gpu.Face, fail, zfail, zpass gpu.StencilOp) {
	gl.StencilOpSeparate(faces[face], stencilOps[fail], stencilOps[zfail], stencilOps[zpass])
}

func (b *Backend) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }
func (b *Backend) Scissor(x, y, width, height int32)  { gl.Scissor(x, y, width, height) }

func (b *Backend) EnableVertexAttribArray(index uint32)  { gl.EnableVertexAttribArray(index) }
func (b *Backend) DisableVertexAttribArray(index uint32) { gl.DisableVertexAttribArray(index) }

func (b *Backend) QueryState() gpu.StateSnapshot {
	var s gpu.StateSnapshot
	for c := range gpu.CapabilityCount {
		s.Enabled[c] = gl.IsEnabled(capabilities[c])
	}
	s.FrontFace = reverse(windings, int32(getInt(gl.FRONT_FACE)), gpu.WindingCCW)
	s.CullFace = reverse(faces, int32(getInt(gl.CULL_FACE_MODE)), gpu.FaceBack)
	gl.GetBooleanv(gl.DEPTH_WRITEMASK, &s.DepthMask)
	s.DepthFunc = reverse(compareFuncs, int32(getInt(gl.DEPTH_FUNC)), gpu.CompareLess)
	gl.GetBooleanv(gl.COLOR_WRITEMASK, &s.ColorMask[0])
	gl.GetFloatv(gl.COLOR_CLEAR_VALUE, &s.ClearColor[0])
	s.BlendSrcRGB = reverse(blendFactors, int32(getInt(gl.BLEND_SRC_RGB)), gpu.BlendOne)
	s.BlendDstRGB = reverse(blendFactors, int32(getInt(gl.BLEND_DST_RGB)), gpu.BlendZero)
	s.BlendSrcAlpha = reverse(blendFactors, int32(getInt(gl.BLEND_SRC_ALPHA)), gpu.BlendOne)
	s.BlendDstAlpha = reverse(blendFactors, int32(getInt(gl.BLEND_DST_ALPHA)), gpu.BlendZero)
	s.BlendEqRGB = reverse(blendEquations, int32(getInt(gl.BLEND_EQUATION_RGB)), gpu.BlendEquationAdd)
	s.BlendEqAlpha = reverse(blendEquations, int32(getInt(gl.BLEND_EQUATION_ALPHA)), gpu.BlendEquationAdd)
	gl.GetFloatv(gl.BLEND_COLOR, &s.BlendColor[0])
	s.StencilFront = stencilFace(gl.STENCIL_FUNC, gl.STENCIL_REF, gl.STENCIL_VALUE_MASK, gl.STENCIL_WRITEMASK,
		gl.STENCIL_FAIL, gl.STENCIL_PASS_DEPTH_FAIL, gl.STENCIL_PASS_DEPTH_PASS)
	s.StencilBack = stencilFace(gl.STENCIL_BACK_FUNC, gl.STENCIL_BACK_REF, gl.STENCIL_BACK_VALUE_MASK, gl.STENCIL_BACK_WRITEMASK,
		gl.STENCIL_BACK_FAIL, gl.STENCIL_BACK_PASS_DEPTH_FAIL, gl.STENCIL_BACK_PASS_DEPTH_PASS)
	gl.GetIntegerv(gl.VIEWPORT, &s.Viewport[0])
	gl.GetIntegerv(gl.SCISSOR_BOX, &s.Scissor[0])
	s.VertexAttribs = make([]bool, b.info.Limits.MaxVertexAttribs)
	for i := range s.VertexAttribs {
		var v int32
		gl.GetVertexAttribiv(uint32(i), gl.VERTEX_ATTRIB_ARRAY_ENABLED, &v)
		s.VertexAttribs[i] = v != 0
	}
	return s
}

func stencilFace(fn, ref, valueMask, writeMask, fail, zfail, zpass uint32) gpu.StencilFaceState {
	return gpu.StencilFaceState{
		Func:      reverse(compareFuncs, int32(getInt(fn)), gpu.CompareAlways),
		Ref:       int32(getInt(ref)),
		ValueMask: uint32(getInt(valueMask)),
		WriteMask: uint32(getInt(writeMask)),
		Fail:      reverse(stencilOps, int32(getInt(fail)), gpu.StencilKeep),
		ZFail:     reverse(stencilOps, int32(getInt(zfail)), gpu.StencilKeep),
		ZPass:     reverse(stencilOps, int32(getInt(zpass)), gpu.StencilKeep),
	}
}

func (b *Backend) CreateBuffer(kind gpu.BufferKind) (gpu.Handle, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create %s buffer failed", kind)
	}
	return gpu.Handle(id), nil
}

// Uploads go through COPY_WRITE_BUFFER so the element binding of the
// current vertex array is left alone.
func (b *Backend) BufferData(buf gpu.Handle, data []byte, usage gpu.BufferUsage) error {
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, uint32(buf))
	if len(data) == 0 {
		gl.BufferData(gl.COPY_WRITE_BUFFER, 0, nil, usages[usage])
	} else {
		gl.BufferData(gl.COPY_WRITE_BUFFER, len(data), gl.Ptr(data), usages[usage])
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return glError("buffer data")
}

func (b *Backend) BufferSubData(buf gpu.Handle, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, uint32(buf))
	gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(data))
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	return glError("buffer sub data")
}

func (b *Backend) DeleteBuffer(buf gpu.Handle) {
	id := uint32(buf)
	gl.DeleteBuffers(1, &id)
}

func (b *Backend) CreateTexture() (gpu.Handle, error) {
	var id uint32
	gl.GenTextures(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create texture failed")
	}
	return gpu.Handle(id), nil
}

func (b *Backend) TexImage2D(tex gpu.Handle, width, height int, format gpu.TextureFormat, typ gpu.TextureType, filter gpu.Filter, data []byte) error {
	f := textureFormat(format, typ)
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	var ptr any
	if len(data) > 0 {
		ptr = data
	}
	gl.TexImage2D(gl.TEXTURE_2D, 0, f.internal, int32(width), int32(height), 0, f.format, f.xtype, gl.Ptr(ptr))
	mode := int32(gl.NEAREST)
	if filter == gpu.FilterLinear {
		mode = gl.LINEAR
	}
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, mode)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, mode)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	if format == gpu.FormatAlpha {
		// single channel storage read back as alpha
		swizzle := [4]int32{gl.ZERO, gl.ZERO, gl.ZERO, gl.RED}
		gl.TexParameteriv(gl.TEXTURE_2D, gl.TEXTURE_SWIZZLE_RGBA, &swizzle[0])
	}
	gl.BindTexture(gl.TEXTURE_2D, 0)
	b.textures[tex] = texture{format: format, typ: typ}
	return glError("tex image 2d")
}

func (b *Backend) TexSubImage2D(tex gpu.Handle, x, y, width, height int, data []byte) error {
	t, ok := b.textures[tex]
	if !ok {
		return fmt.Errorf("texture %d has no storage: %w", tex, gpu.ErrInvalidHandle)
	}
	f := textureFormat(t.format, t.typ)
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, int32(x), int32(y), int32(width), int32(height), f.format, f.xtype, gl.Ptr(data))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return glError("tex sub image 2d")
}

func (b *Backend) BindTexture(unit int, tex gpu.Handle) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, uint32(tex))
}

func (b *Backend) DeleteTexture(tex gpu.Handle) {
	id := uint32(tex)
	gl.DeleteTextures(1, &id)
	delete(b.textures, tex)
}

func (b *Backend) CreateRenderbuffer() (gpu.Handle, error) {
	var id uint32
	gl.GenRenderbuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create renderbuffer failed")
	}
	return gpu.Handle(id), nil
}

func (b *Backend) RenderbufferStorage(rb gpu.Handle, width, height int) error {
	gl.BindRenderbuffer(gl.RENDERBUFFER, uint32(rb))
	gl.RenderbufferStorage(gl.RENDERBUFFER, gl.DEPTH_COMPONENT32F, int32(width), int32(height))
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
	return glError("renderbuffer storage")
}

func (b *Backend) DeleteRenderbuffer(rb gpu.Handle) {
	id := uint32(rb)
	gl.DeleteRenderbuffers(1, &id)
}

func (b *Backend) CreateFramebuffer() (gpu.Handle, error) {
	var id uint32
	gl.GenFramebuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create framebuffer failed")
	}
	return gpu.Handle(id), nil
}

// withFramebuffer runs fn with fb bound, restoring the tracked binding.
func (b *Backend) withFramebuffer(fb gpu.Handle, fn func()) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	fn()
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(b.boundFB))
}

func (b *Backend) FramebufferTexture2D(fb gpu.Handle, att gpu.Attachment, tex gpu.Handle) error {
	b.withFramebuffer(fb, func() {
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, attachments[att], gl.TEXTURE_2D, uint32(tex), 0)
	})
	return glError("framebuffer texture 2d")
}

func (b *Backend) FramebufferRenderbuffer(fb gpu.Handle, att gpu.Attachment, rb gpu.Handle) error {
	b.withFramebuffer(fb, func() {
		gl.FramebufferRenderbuffer(gl.FRAMEBUFFER, attachments[att], gl.RENDERBUFFER, uint32(rb))
	})
	return glError("framebuffer renderbuffer")
}

func (b *Backend) DrawBuffers(fb gpu.Handle, atts []gpu.Attachment) error {
	if len(atts) > b.info.Limits.MaxDrawBuffers {
		return fmt.Errorf("framebuffer %d: %d draw buffers exceeds %d: %w", fb, len(atts), b.info.Limits.MaxDrawBuffers, gpu.ErrUnsupported)
	}
	bufs := make([]uint32, len(atts))
	for i, a := range atts {
		bufs[i] = attachments[a]
	}
	b.withFramebuffer(fb, func() {
		if len(bufs) == 0 {
			gl.DrawBuffer(gl.NONE)
			return
		}
		gl.DrawBuffers(int32(len(bufs)), &bufs[0])
	})
	return glError("draw buffers")
}

func (b *Backend) CheckFramebufferStatus(fb gpu.Handle) gpu.FramebufferStatus {
	var s uint32
	b.withFramebuffer(fb, func() {
		s = gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	})
	return framebufferStatus(s)
}

func (b *Backend) BindFramebuffer(fb gpu.Handle) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(fb))
	b.boundFB = fb
}

func (b *Backend) DeleteFramebuffer(fb gpu.Handle) {
	id := uint32(fb)
	gl.DeleteFramebuffers(1, &id)
	if b.boundFB == fb {
		b.boundFB = 0
	}
}

func compileShader(kind uint32, src string) (uint32, error) {
	sh := gl.CreateShader(kind)
	csources, free := gl.Strs(src + "\x00")
	gl.ShaderSource(sh, 1, csources, nil)
	free()
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(sh, logLength, nil, gl.Str(msg))
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("compile shader: %s", strings.TrimRight(msg, "\x00"))
	}
	return sh, nil
}

func (b *Backend) CreateProgram(src gpu.ProgramSource) (gpu.Handle, error) {
	if src.GLSL.Vertex == "" || src.GLSL.Fragment == "" {
		return 0, fmt.Errorf("program %s has no GLSL source: %w", src.Key, gpu.ErrUnsupported)
	}
	vs, err := compileShader(gl.VERTEX_SHADER, src.GLSL.Vertex)
	if err != nil {
		return 0, fmt.Errorf("program %s vertex: %w", src.Key, err)
	}
	defer gl.DeleteShader(vs)
	fs, err := compileShader(gl.FRAGMENT_SHADER, src.GLSL.Fragment)
	if err != nil {
		return 0, fmt.Errorf("program %s fragment: %w", src.Key, err)
	}
	defer gl.DeleteShader(fs)

	p := gl.CreateProgram()
	gl.AttachShader(p, vs)
	gl.AttachShader(p, fs)
	for i, name := range src.Attributes {
		gl.BindAttribLocation(p, uint32(i), gl.Str(name+"\x00"))
	}
	gl.LinkProgram(p)

	var status int32
	gl.GetProgramiv(p, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(p, gl.INFO_LOG_LENGTH, &logLength)
		msg := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(p, logLength, nil, gl.Str(msg))
		gl.DeleteProgram(p)
		return 0, fmt.Errorf("program %s link: %s", src.Key, strings.TrimRight(msg, "\x00"))
	}
	h := gpu.Handle(p)
	b.programs[h] = &program{locations: make(map[string]int32)}
	return h, nil
}

func (b *Backend) UseProgram(prog gpu.Handle) { gl.UseProgram(uint32(prog)) }

func (b *Backend) location(prog gpu.Handle, name string) (int32, error) {
	p, ok := b.programs[prog]
	if !ok {
		return -1, fmt.Errorf("program %d: %w", prog, gpu.ErrInvalidHandle)
	}
	loc, ok := p.locations[name]
	if !ok {
		loc = gl.GetUniformLocation(uint32(prog), gl.Str(name+"\x00"))
		p.locations[name] = loc
	}
	return loc, nil
}

func (b *Backend) Uniform(prog gpu.Handle, name string, value any) error {
	loc, err := b.location(prog, name)
	if err != nil {
		return err
	}
	if loc < 0 {
		// optimised out or unused by this program
		return nil
	}
	v, err := gpu.NormalizeUniform(value)
	if err != nil {
		return fmt.Errorf("program %d uniform %s: %w", prog, name, err)
	}
	switch x := v.(type) {
	case float32:
		gl.Uniform1f(loc, x)
	case int32:
		gl.Uniform1i(loc, x)
	case [2]float32:
		gl.Uniform2f(loc, x[0], x[1])
	case [3]float32:
		gl.Uniform3f(loc, x[0], x[1], x[2])
	case [4]float32:
		gl.Uniform4f(loc, x[0], x[1], x[2], x[3])
	case [9]float32:
		gl.UniformMatrix3fv(loc, 1, false, &x[0])
	case [16]float32:
		gl.UniformMatrix4fv(loc, 1, false, &x[0])
	case []float32:
		if len(x) > 0 {
			gl.Uniform1fv(loc, int32(len(x)), &x[0])
		}
	}
	return nil
}

func (b *Backend) DeleteProgram(prog gpu.Handle) {
	gl.DeleteProgram(uint32(prog))
	delete(b.programs, prog)
}

func (b *Backend) CreateVertexArray() (gpu.Handle, error) {
	var id uint32
	gl.GenVertexArrays(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create vertex array failed")
	}
	return gpu.Handle(id), nil
}

func (b *Backend) BindVertexArray(vao gpu.Handle) { gl.BindVertexArray(uint32(vao)) }

func (b *Backend) VertexAttribPointer(location uint32, buf gpu.Handle, components, stride, offset int) {
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(buf))
	gl.VertexAttribPointerWithOffset(location, int32(components), gl.FLOAT, false, int32(stride), uintptr(offset))
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (b *Backend) VertexAttribDivisor(location uint32, divisor int) {
	gl.VertexAttribDivisor(location, uint32(divisor))
}

func (b *Backend) BindElementBuffer(buf gpu.Handle) {
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, uint32(buf))
}

func (b *Backend) DeleteVertexArray(vao gpu.Handle) {
	id := uint32(vao)
	gl.DeleteVertexArrays(1, &id)
}

func (b *Backend) Clear(mask gpu.ClearMask) {
	var bits uint32
	if mask&gpu.ClearColor != 0 {
		bits |= gl.COLOR_BUFFER_BIT
	}
	if mask&gpu.ClearDepth != 0 {
		bits |= gl.DEPTH_BUFFER_BIT
	}
	if mask&gpu.ClearStencil != 0 {
		bits |= gl.STENCIL_BUFFER_BIT
	}
	gl.Clear(bits)
}

func (b *Backend) DrawArrays(mode gpu.PrimitiveMode, first, count, instances int) {
	if instances > 1 {
		gl.DrawArraysInstanced(primitives[mode], int32(first), int32(count), int32(instances))
		return
	}
	gl.DrawArrays(primitives[mode], int32(first), int32(count))
}

func (b *Backend) DrawElements(mode gpu.PrimitiveMode, count, offset, instances int) {
	if instances > 1 {
		gl.DrawElementsInstanced(primitives[mode], int32(count), gl.UNSIGNED_INT, gl.PtrOffset(offset), int32(instances))
		return
	}
	gl.DrawElements(primitives[mode], int32(count), gl.UNSIGNED_INT, gl.PtrOffset(offset))
}

func (b *Backend) ReadPixels(x, y, width, height int, dst []byte) error {
	if len(dst) < width*height*4 {
		return fmt.Errorf("read pixels: buffer of %d bytes for %dx%d", len(dst), width, height)
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(int32(x), int32(y), int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(dst))
	return glError("read pixels")
}

func (b *Backend) CreatePixelBuffer(size int) (gpu.Handle, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create pixel buffer failed")
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, id)
	gl.BufferData(gl.PIXEL_PACK_BUFFER, size, nil, gl.STREAM_READ)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	b.pixelBuffers[gpu.Handle(id)] = size
	return gpu.Handle(id), nil
}

func (b *Backend) ReadPixelsToBuffer(pb gpu.Handle, x, y, width, height int) error {
	size, ok := b.pixelBuffers[pb]
	if !ok {
		return fmt.Errorf("pixel buffer %d: %w", pb, gpu.ErrInvalidHandle)
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, uint32(pb))
	if n := width * height * 4; n > size {
		gl.BufferData(gl.PIXEL_PACK_BUFFER, n, nil, gl.STREAM_READ)
		b.pixelBuffers[pb] = n
	}
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadPixels(int32(x), int32(y), int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.PtrOffset(0))
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	return glError("read pixels to buffer")
}

func (b *Backend) GetPixelBufferData(pb gpu.Handle, dst []byte) error {
	size, ok := b.pixelBuffers[pb]
	if !ok {
		return fmt.Errorf("pixel buffer %d: %w", pb, gpu.ErrInvalidHandle)
	}
	if len(dst) == 0 {
		return nil
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, uint32(pb))
	gl.GetBufferSubData(gl.PIXEL_PACK_BUFFER, 0, min(len(dst), size), gl.Ptr(dst))
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	return glError("get pixel buffer data")
}

func (b *Backend) DeletePixelBuffer(pb gpu.Handle) {
	if _, ok := b.pixelBuffers[pb]; !ok {
		return
	}
	id := uint32(pb)
	gl.DeleteBuffers(1, &id)
	delete(b.pixelBuffers, pb)
}

func (b *Backend) FenceSync() (gpu.Handle, error) {
	s := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	if s == 0 {
		return 0, fmt.Errorf("fence sync failed")
	}
	b.nextFence++
	b.fences[b.nextFence] = s
	return b.nextFence, nil
}

func (b *Backend) FenceStatus(f gpu.Handle) gpu.FenceStatus {
	s, ok := b.fences[f]
	if !ok {
		return gpu.FenceFailed
	}
	switch gl.ClientWaitSync(s, 0, 0) {
	case gl.ALREADY_SIGNALED, gl.CONDITION_SATISFIED:
		return gpu.FenceSignaled
	case gl.TIMEOUT_EXPIRED:
		return gpu.FencePending
	}
	return gpu.FenceFailed
}

func (b *Backend) DeleteFence(f gpu.Handle) {
	if s, ok := b.fences[f]; ok {
		gl.DeleteSync(s)
		delete(b.fences, f)
	}
}

func (b *Backend) Flush()  { gl.Flush() }
func (b *Backend) Finish() { gl.Finish() }

func (b *Backend) CreateTimerQuery() (gpu.Handle, error) {
	var id uint32
	gl.GenQueries(1, &id)
	if id == 0 {
		return 0, fmt.Errorf("create timer query failed")
	}
	return gpu.Handle(id), nil
}

func (b *Backend) BeginTimerQuery(q gpu.Handle) { gl.BeginQuery(gl.TIME_ELAPSED, uint32(q)) }
func (b *Backend) EndTimerQuery(q gpu.Handle)   { gl.EndQuery(gl.TIME_ELAPSED) }

func (b *Backend) TimerQueryResult(q gpu.Handle) (uint64, bool) {
	var available int32
	gl.GetQueryObjectiv(uint32(q), gl.QUERY_RESULT_AVAILABLE, &available)
	if available == 0 {
		return 0, false
	}
	var ns uint64
	gl.GetQueryObjectui64v(uint32(q), gl.QUERY_RESULT, &ns)
	return ns, true
}

func (b *Backend) DeleteTimerQuery(q gpu.Handle) {
	id := uint32(q)
	gl.DeleteQueries(1, &id)
}

func (b *Backend) UnbindAll() {
	for i := 0; i < b.info.Limits.MaxTextureImageUnits; i++ {
		gl.ActiveTexture(gl.TEXTURE0 + uint32(i))
		gl.BindTexture(gl.TEXTURE_2D, 0)
	}
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, 0)
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
	gl.BindRenderbuffer(gl.RENDERBUFFER, 0)
	b.BindFramebuffer(0)
	gl.UseProgram(0)
}

// LoseContext is unsupported on desktop GL and only logs.
func (b *Backend) LoseContext() {
	logger.Logger().Warn("gl backend cannot force a context loss")
}

func glError(op string) error {
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("%s: gl error 0x%x", op, code)
	}
	return nil
}
