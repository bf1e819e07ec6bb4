// Package gpu defines the contract every graphics backend satisfies. The
// surface is deliberately close to GL: state is set by individual calls and
// resources are addressed by opaque handles. The rendering core never talks
// to a graphics API directly, only through a Backend.
package gpu

import "errors"

var (
	// ErrContextLost is returned by calls made while the device is lost.
	ErrContextLost = errors.New("gpu: context lost")
	// ErrUnsupported is returned for a feature the backend cannot provide.
	ErrUnsupported = errors.New("gpu: unsupported")
	// ErrInvalidHandle is returned when a handle is unknown or already deleted.
	ErrInvalidHandle = errors.New("gpu: invalid handle")
)

// Handle identifies a backend object. Zero is never a valid object and
// denotes "none" (the default framebuffer, the default vertex array, unbind).
type Handle uint32

// Backend is the GPU handle owned by a Context.
//
// All methods must be called from the single thread that drives rendering.
// Backends do not deduplicate state changes; that is the job of the state cache.
type Backend interface {
	// DeviceInfo reports limits and extensions of the live device.
	DeviceInfo() DeviceInfo

	// IsContextLost reports whether the device connection is currently invalid.
	IsContextLost() bool

	Enable(c Capability)
	Disable(c Capability)
	FrontFace(w Winding)
	CullFace(f Face)
	DepthMask(write bool)
	DepthFunc(f CompareFunc)
	ColorMask(r, g, b, a bool)
	ClearColor(r, g, b, a float32)
	BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha BlendFactor)
	BlendEquationSeparate(rgb, alpha BlendEquation)
	BlendColor(r, g, b, a float32)
	StencilFuncSeparate(face Face, fn CompareFunc, ref int32, mask uint32)
	StencilMaskSeparate(face Face, mask uint32)
	StencilOpSeparate(face Face, fail, zfail, zpass StencilOp)
	Viewport(x, y, width, height int32)
	Scissor(x, y, width, height int32)
	EnableVertexAttribArray(index uint32)
	DisableVertexAttribArray(index uint32)

	// QueryState reads every tracked pipeline parameter back from the device.
	QueryState() StateSnapshot

	CreateBuffer(kind BufferKind) (Handle, error)
	BufferData(buf Handle, data []byte, usage BufferUsage) error
	BufferSubData(buf Handle, offset int, data []byte) error
	DeleteBuffer(buf Handle)

	CreateTexture() (Handle, error)
	// TexImage2D (re)allocates texture storage. data may be nil.
	TexImage2D(tex Handle, width, height int, format TextureFormat, typ TextureType, filter Filter, data []byte) error
	TexSubImage2D(tex Handle, x, y, width, height int, data []byte) error
	BindTexture(unit int, tex Handle)
	DeleteTexture(tex Handle)

	CreateRenderbuffer() (Handle, error)
	// RenderbufferStorage (re)allocates depth storage.
	RenderbufferStorage(rb Handle, width, height int) error
	DeleteRenderbuffer(rb Handle)

	CreateFramebuffer() (Handle, error)
	FramebufferTexture2D(fb Handle, att Attachment, tex Handle) error
	FramebufferRenderbuffer(fb Handle, att Attachment, rb Handle) error
	DrawBuffers(fb Handle, atts []Attachment) error
	CheckFramebufferStatus(fb Handle) FramebufferStatus
	BindFramebuffer(fb Handle)
	DeleteFramebuffer(fb Handle)

	// CreateProgram compiles and links a program from the source the backend
	// understands. Attribute locations follow src.Attributes order.
	CreateProgram(src ProgramSource) (Handle, error)
	UseProgram(prog Handle)
	// Uniform sets a uniform on the program currently in use. Supported value
	// types: float32, int32, [2]float32, [3]float32, [4]float32, [9]float32,
	// [16]float32 and []float32.
	Uniform(prog Handle, name string, value any) error
	DeleteProgram(prog Handle)

	CreateVertexArray() (Handle, error)
	BindVertexArray(vao Handle)
	// VertexAttribPointer binds buf to location on the current vertex array.
	VertexAttribPointer(location uint32, buf Handle, components, stride, offset int)
	VertexAttribDivisor(location uint32, divisor int)
	// BindElementBuffer binds an index buffer (uint32 indices) to the current vertex array.
	BindElementBuffer(buf Handle)
	DeleteVertexArray(vao Handle)

	Clear(mask ClearMask)
	DrawArrays(mode PrimitiveMode, first, count, instances int)
	DrawElements(mode PrimitiveMode, count, offset, instances int)

	// ReadPixels copies RGBA8 pixels of the bound framebuffer, bottom-left origin.
	ReadPixels(x, y, width, height int, dst []byte) error
	CreatePixelBuffer(size int) (Handle, error)
	ReadPixelsToBuffer(pb Handle, x, y, width, height int) error
	GetPixelBufferData(pb Handle, dst []byte) error
	DeletePixelBuffer(pb Handle)

	FenceSync() (Handle, error)
	FenceStatus(f Handle) FenceStatus
	DeleteFence(f Handle)
	Flush()
	Finish()

	CreateTimerQuery() (Handle, error)
	BeginTimerQuery(q Handle)
	EndTimerQuery(q Handle)
	// TimerQueryResult returns the elapsed nanoseconds once available.
	TimerQueryResult(q Handle) (uint64, bool)
	DeleteTimerQuery(q Handle)

	// UnbindAll clears every texture unit, buffer, vertex array and framebuffer binding.
	UnbindAll()
	// LoseContext forces a context loss where the platform supports it.
	LoseContext()
}
