// Package wgpu_backend implements gpu.Backend on WebGPU. The GL-shaped
// state calls are recorded and folded into a pipeline key at draw time;
// pipelines are created once per key and program. Draws are encoded into a
// render pass that is opened lazily for the bound framebuffer and submitted
// on Flush, readback, fences and Present.
package wgpu_backend

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

const (
	maxVertexAttribs = 8
	maxTextureUnits  = 8
	uniformAlign     = 256
	uniformRingSize  = 4 << 20
)

// Backend owns the WebGPU device, the presentation surface and every object
// created through the gpu.Backend calls.
type Backend struct {
	mu *sync.Mutex

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	forceFallback bool
	width, height int
	// offscreen replaces the surface texture when no surface exists.
	offscreen    *texture
	defaultDepth *texture
	frameTexture *wgpu.Texture
	frameView    *wgpu.TextureView

	info  gpu.DeviceInfo
	state gpu.StateSnapshot

	next          gpu.Handle
	buffers       map[gpu.Handle]*buffer
	textures      map[gpu.Handle]*texture
	renderbuffers map[gpu.Handle]*texture
	framebuffers  map[gpu.Handle]*framebuffer
	programs      map[gpu.Handle]*program
	vertexArrays  map[gpu.Handle]*vertexArray
	defaultVAO    *vertexArray
	pixelBuffers  map[gpu.Handle]*pixelBuffer
	fences        map[gpu.Handle]*fence

	boundFB        gpu.Handle
	boundVAO       gpu.Handle
	currentProgram gpu.Handle
	units          [maxTextureUnits]gpu.Handle

	sampler     *wgpu.Sampler
	emptyLayout *wgpu.BindGroupLayout
	emptyGroup  *wgpu.BindGroup
	uniformRing *wgpu.Buffer
	ringCursor  uint64

	encoder    *wgpu.CommandEncoder
	pass       *wgpu.RenderPassEncoder
	passTarget target
	passWidth  int
	passHeight int
	// encoded is set once the open encoder holds commands.
	encoded bool
}

var _ gpu.Backend = &Backend{}

// New creates the device and configures presentation. desc may be nil, in
// which case the default framebuffer is an offscreen RGBA8 texture that can
// be read back.
//
// Parameters:
//   - desc: the window surface descriptor, or nil for headless rendering
//   - width: initial drawing buffer width in pixels
//   - height: initial drawing buffer height in pixels
//   - options: optional BackendBuilderOption values
//
// Returns:
//   - *Backend: the backend
//   - error: error if no adapter or device could be acquired
func New(desc *wgpu.SurfaceDescriptor, width, height int, options ...BackendBuilderOption) (*Backend, error) {
	runtime.LockOSThread()
	b := &Backend{
		mu:            &sync.Mutex{},
		instance:      wgpu.CreateInstance(nil),
		presentMode:   wgpu.PresentModeFifo,
		buffers:       make(map[gpu.Handle]*buffer),
		textures:      make(map[gpu.Handle]*texture),
		renderbuffers: make(map[gpu.Handle]*texture),
		framebuffers:  make(map[gpu.Handle]*framebuffer),
		programs:      make(map[gpu.Handle]*program),
		vertexArrays:  make(map[gpu.Handle]*vertexArray),
		defaultVAO:    newVertexArray(),
		pixelBuffers:  make(map[gpu.Handle]*pixelBuffer),
		fences:        make(map[gpu.Handle]*fence),
	}
	b.state = gpu.DefaultState(int32(width), int32(height), maxVertexAttribs)
	for _, opt := range options {
		opt(b)
	}
	if desc != nil {
		b.surface = b.instance.CreateSurface(desc)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: b.forceFallback,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = a

	limits := wgpu.DefaultLimits()
	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "oxy-render device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: limits,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()

	adapterInfo := a.GetInfo()
	b.info = gpu.DeviceInfo{
		Vendor:   adapterInfo.VendorName,
		Renderer: adapterInfo.Name,
		Version:  "WebGPU " + adapterInfo.DriverDescription,
		Limits: gpu.Limits{
			MaxTextureSize:             int(limits.MaxTextureDimension2D),
			MaxRenderbufferSize:        int(limits.MaxTextureDimension2D),
			MaxDrawBuffers:             min(int(limits.MaxColorAttachments), gpu.MaxColorAttachments),
			MaxVertexAttribs:           min(int(limits.MaxVertexBuffers), maxVertexAttribs),
			MaxTextureImageUnits:       min(int(limits.MaxSampledTexturesPerShaderStage), maxTextureUnits),
			MaxVertexTextureImageUnits: min(int(limits.MaxSampledTexturesPerShaderStage), maxTextureUnits),
		},
		// no timer queries without timestamp features, and no forced loss
		Extensions: []string{
			gpu.ExtColorBufferFloat, gpu.ExtColorBufferHalfFloat, gpu.ExtTextureFloat,
			gpu.ExtTextureHalfFloat, gpu.ExtDepthTexture, gpu.ExtInstancedArrays,
			gpu.ExtVertexArrayObject, gpu.ExtDrawBuffers, gpu.ExtFragDepth,
			gpu.ExtFenceSync, gpu.ExtPixelBufferObject, gpu.ExtBlendMinMax,
		},
	}

	if err := b.createShared(); err != nil {
		return nil, err
	}
	if err := b.ConfigureSurface(width, height); err != nil {
		return nil, err
	}
	logger.Logger().Info("wgpu backend", "vendor", b.info.Vendor, "renderer", b.info.Renderer, "backend", adapterInfo.BackendType.String())
	return b, nil
}

// createShared builds the objects every program uses: the sampler, the
// empty bind group standing in for programs without uniforms and the
// uniform ring that per-draw uniform blocks are staged in.
func (b *Backend) createShared() error {
	var err error
	b.sampler, err = b.device.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         "oxy-render sampler",
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeNearest,
		MinFilter:     wgpu.FilterModeNearest,
		MipmapFilter:  wgpu.MipmapFilterModeNearest,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	})
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	b.emptyLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{Label: "empty"})
	if err != nil {
		return fmt.Errorf("create empty layout: %w", err)
	}
	b.emptyGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{Label: "empty", Layout: b.emptyLayout})
	if err != nil {
		return fmt.Errorf("create empty bind group: %w", err)
	}
	b.uniformRing, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "uniform ring",
		Size:  uniformRingSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform ring: %w", err)
	}
	return nil
}

// ConfigureSurface sizes the default framebuffer. It must be called when the
// window framebuffer is resized.
//
// Parameters:
//   - width: the new width in pixels
//   - height: the new height in pixels
//
// Returns:
//   - error: error if the depth or offscreen textures could not be created
func (b *Backend) ConfigureSurface(width, height int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()
	b.submit()
	b.releaseFrame()
	width, height = max(width, 1), max(height, 1)
	b.width, b.height = width, height

	if b.surface != nil {
		capabilities := b.surface.GetCapabilities(b.adapter)
		b.surfaceFormat = pickSurfaceFormat(capabilities.Formats)
		b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
			Usage:       wgpu.TextureUsageRenderAttachment,
			Format:      b.surfaceFormat,
			Width:       uint32(width),
			Height:      uint32(height),
			PresentMode: b.presentMode,
			AlphaMode:   capabilities.AlphaModes[0],
		})
	} else {
		b.surfaceFormat = wgpu.TextureFormatRGBA8Unorm
		b.offscreen.release()
		off, err := b.newTexture("default color", width, height, gpu.FormatRGBA, gpu.TypeUint8)
		if err != nil {
			return err
		}
		b.offscreen = off
	}

	b.defaultDepth.release()
	depth, err := b.newTexture("default depth", width, height, gpu.FormatDepth, gpu.TypeFloat32)
	if err != nil {
		return err
	}
	b.defaultDepth = depth
	return nil
}

// pickSurfaceFormat prefers a linear 8 bit format so output matches the GL
// default framebuffer.
func pickSurfaceFormat(formats []wgpu.TextureFormat) wgpu.TextureFormat {
	for _, f := range formats {
		if f == wgpu.TextureFormatBGRA8Unorm || f == wgpu.TextureFormatRGBA8Unorm {
			return f
		}
	}
	if len(formats) == 0 {
		return wgpu.TextureFormatBGRA8Unorm
	}
	return formats[0]
}

// Present submits pending work and shows the frame drawn into the default
// framebuffer. Frames that never touched the default framebuffer are not
// presented.
func (b *Backend) Present() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()
	b.submit()
	if b.surface != nil && b.frameTexture != nil {
		b.surface.Present()
	}
	b.releaseFrame()
}

func (b *Backend) releaseFrame() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameTexture != nil {
		b.frameTexture.Release()
		b.frameTexture = nil
	}
}

// frame returns the view of the default framebuffer colour, acquiring the
// swapchain texture on first use in a frame.
func (b *Backend) frame() (*wgpu.TextureView, error) {
	if b.surface == nil {
		return b.offscreen.view, nil
	}
	if b.frameView != nil {
		return b.frameView, nil
	}
	tex, err := b.surface.GetCurrentTexture()
	if err != nil {
		return nil, fmt.Errorf("acquire surface texture: %w", err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("create surface view: %w", err)
	}
	b.frameTexture, b.frameView = tex, view
	return view, nil
}

func (b *Backend) handle() gpu.Handle {
	b.next++
	return b.next
}

func (b *Backend) DeviceInfo() gpu.DeviceInfo { return b.info }

// IsContextLost is always false; device loss is not reported through this
// backend.
func (b *Backend) IsContextLost() bool { return false }

func (b *Backend) Enable(c gpu.Capability)     { b.state.Enabled[c] = true }
func (b *Backend) Disable(c gpu.Capability)    { b.state.Enabled[c] = false }
func (b *Backend) FrontFace(w gpu.Winding)     { b.state.FrontFace = w }
func (b *Backend) CullFace(f gpu.Face)         { b.state.CullFace = f }
func (b *Backend) DepthMask(write bool)        { b.state.DepthMask = write }
func (b *Backend) DepthFunc(f gpu.CompareFunc) { b.state.DepthFunc = f }

func (b *Backend) ColorMask(r, g, bl, a bool)     { b.state.ColorMask = [4]bool{r, g, bl, a} }
func (b *Backend) ClearColor(r, g, bl, a float32) { b.state.ClearColor = [4]float32{r, g, bl, a} }
func (b *Backend) BlendColor(r, g, bl, a float32) { b.state.BlendColor = [4]float32{r, g, bl, a} }

func (b *Backend) BlendFuncSeparate(srcRGB, dstRGB, srcAlpha, dstAlpha gpu.BlendFactor) {
	b.state.BlendSrcRGB, b.state.BlendDstRGB = srcRGB, dstRGB
	b.state.BlendSrcAlpha, b.state.BlendDstAlpha = srcAlpha, dstAlpha
}

func (b *Backend) BlendEquationSeparate(rgb, alpha gpu.BlendEquation) {
	b.state.BlendEqRGB, b.state.BlendEqAlpha = rgb, alpha
}

// The default framebuffer has no stencil aspect, so stencil state is tracked
// for QueryState only.

func (b *Backend) StencilFuncSeparate(face gpu.Face, fn gpu.CompareFunc, ref int32, mask uint32) {
	b.stencil(face, func(s *gpu.StencilFaceState) { s.Func, s.Ref, s.ValueMask = fn, ref, mask })
}

func (b *Backend) StencilMaskSeparate(face gpu.Face, mask uint32) {
	b.stencil(face, func(s *gpu.StencilFaceState) { s.WriteMask = mask })
}

func (b *Backend) StencilOpSeparate(face gpu.Face, fail, zfail, zpass gpu.StencilOp) {
	b.stencil(face, func(s *gpu.StencilFaceState) { s.Fail, s.ZFail, s.ZPass = fail, zfail, zpass })
}

func (b *Backend) stencil(face gpu.Face, fn func(*gpu.StencilFaceState)) {
	if face != gpu.FaceBack {
		fn(&b.state.StencilFront)
	}
	if face != gpu.FaceFront {
		fn(&b.state.StencilBack)
	}
}

func (b *Backend) Viewport(x, y, width, height int32) { b.state.Viewport = [4]int32{x, y, width, height} }
func (b *Backend) Scissor(x, y, width, height int32)  { b.state.Scissor = [4]int32{x, y, width, height} }

func (b *Backend) EnableVertexAttribArray(index uint32) {
	if v := b.currentVAO(); int(index) < len(v.attribs) {
		v.attribs[index].enabled = true
	}
}

func (b *Backend) DisableVertexAttribArray(index uint32) {
	if v := b.currentVAO(); int(index) < len(v.attribs) {
		v.attribs[index].enabled = false
	}
}

func (b *Backend) QueryState() gpu.StateSnapshot {
	s := b.state
	v := b.currentVAO()
	s.VertexAttribs = make([]bool, len(v.attribs))
	for i, a := range v.attribs {
		s.VertexAttribs[i] = a.enabled
	}
	return s
}

// Flush submits every encoded command.
func (b *Backend) Flush() {
	b.endPass()
	b.submit()
}

// Finish submits and blocks until the queue is idle.
func (b *Backend) Finish() {
	b.Flush()
	b.device.Poll(true, nil)
}

func (b *Backend) UnbindAll() {
	for i := range b.units {
		b.units[i] = 0
	}
	b.boundVAO = 0
	b.currentProgram = 0
	b.BindFramebuffer(0)
}

// LoseContext is not supported and only logs.
func (b *Backend) LoseContext() {
	logger.Logger().Warn("wgpu backend cannot force a device loss")
}

// Release destroys every object and the device.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.endPass()
	b.submit()
	b.releaseFrame()
	for h := range b.programs {
		b.DeleteProgram(h)
	}
	for h := range b.buffers {
		b.DeleteBuffer(h)
	}
	for h := range b.textures {
		b.DeleteTexture(h)
	}
	for h := range b.renderbuffers {
		b.DeleteRenderbuffer(h)
	}
	for h := range b.pixelBuffers {
		b.DeletePixelBuffer(h)
	}
	b.offscreen.release()
	b.defaultDepth.release()
	b.uniformRing.Release()
	b.emptyGroup.Release()
	b.emptyLayout.Release()
	b.sampler.Release()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	if b.surface != nil {
		b.surface.Release()
	}
	b.instance.Release()
}
