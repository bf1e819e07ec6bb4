// Package renderer owns the device context: capabilities, the state cache,
// the resource registry, render targets, asynchronous readback and context
// loss handling. Draw logic lives in the renderable and passes packages.
package renderer

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/state"
)

// LossState is the connection state of the device.
type LossState uint8

const (
	Live LossState = iota
	Lost
)

func (s LossState) String() string {
	if s == Lost {
		return "lost"
	}
	return "live"
}

// RestoredEvent is published once per completed context restoration.
type RestoredEvent struct {
	At time.Time
}

// Context is the single owner of a device and everything created on it.
// All methods must be called from the render thread.
type Context struct {
	backend gpu.Backend
	caps    Capabilities
	log     *slog.Logger
	clock   func() time.Time

	State     *state.Cache
	Resources *resource.Registry

	NamedRenderables  *Named[NamedRenderable]
	NamedFramebuffers *Named[*resource.Framebuffer]
	NamedTextures     *Named[*resource.Texture]

	debug        bool
	pixelRatio   float64
	bufferWidth  int
	bufferHeight int

	targets map[int]*RenderTarget
	timer   *GpuTimer

	pending       []*Future
	pendingRead   *Future
	pixelPack     gpu.Handle
	pixelPackSize int

	lossState LossState
	observers map[int]func(RestoredEvent)
	nextObs   int

	warnedFormats map[gpu.TextureType]bool
	destroyed     bool
}

// NewContext wraps a live backend.
//
// Parameters:
//   - backend: the device to own
//   - options: functional options to configure the context
//
// Returns:
//   - *Context: the context
//   - error: ErrMissingCapability when the device lacks a required capability
func NewContext(backend gpu.Backend, options ...ContextBuilderOption) (*Context, error) {
	c := &Context{
		backend:           backend,
		clock:             time.Now,
		pixelRatio:        1,
		NamedRenderables:  newNamed[NamedRenderable](),
		NamedFramebuffers: newNamed[*resource.Framebuffer](),
		NamedTextures:     newNamed[*resource.Texture](),
		targets:           make(map[int]*RenderTarget),
		observers:         make(map[int]func(RestoredEvent)),
		warnedFormats:     make(map[gpu.TextureType]bool),
	}
	for _, option := range options {
		option(c)
	}
	if c.log == nil {
		c.log = logger.Logger()
	}
	if err := c.detect(); err != nil {
		return nil, err
	}
	c.State = state.New(backend, c.caps.MaxVertexAttribs)
	c.Resources = resource.NewRegistry(backend)
	vp := c.State.CurrentViewport()
	c.bufferWidth, c.bufferHeight = int(vp[2]), int(vp[3])
	c.log.Info("context created", "vendor", c.caps.Vendor, "renderer", c.caps.Renderer,
		"width", c.bufferWidth, "height", c.bufferHeight)
	return c, nil
}

func (c *Context) detect() error {
	caps, err := DetectCapabilities(c.backend.DeviceInfo())
	if err != nil {
		return err
	}
	if missing := caps.Missing(); len(missing) > 0 {
		c.log.Info("optional capabilities missing", "missing", missing)
	}
	c.caps = caps
	if caps.TimerQuery {
		c.timer = newGpuTimer(c.backend)
	} else {
		c.timer = nil
	}
	return nil
}

// Backend returns the owned device.
func (c *Context) Backend() gpu.Backend { return c.backend }

// Capabilities returns the descriptor of the current device.
func (c *Context) Capabilities() Capabilities { return c.caps }

// Debug reports whether framebuffer completeness checks are enabled.
func (c *Context) Debug() bool { return c.debug }

// Timer returns the GPU timer, or nil when the device cannot time commands.
func (c *Context) Timer() *GpuTimer { return c.timer }

// Stats returns resource and draw statistics.
func (c *Context) Stats() resource.Stats { return c.Resources.Stats() }

func (c *Context) PixelRatio() float64 { return c.pixelRatio }

func (c *Context) SetPixelRatio(ratio float64) {
	if ratio > 0 {
		c.pixelRatio = ratio
	}
}

// DrawingBufferSize returns the size of the default framebuffer.
func (c *Context) DrawingBufferSize() (int, int) {
	return c.bufferWidth, c.bufferHeight
}

// SetDrawingBufferSize records a new default framebuffer size, e.g. after a
// window resize.
func (c *Context) SetDrawingBufferSize(width, height int) {
	c.bufferWidth, c.bufferHeight = width, height
}

// Now returns the context clock time.
func (c *Context) Now() time.Time { return c.clock() }

// UnbindFramebuffer binds the default framebuffer.
func (c *Context) UnbindFramebuffer() {
	c.backend.BindFramebuffer(0)
}

// Clear clears colour and depth of the whole default framebuffer.
func (c *Context) Clear(r, g, b, a float32) {
	c.UnbindFramebuffer()
	c.State.Enable(gpu.CapabilityScissorTest)
	c.State.DepthMask(true)
	c.State.ColorMask(true, true, true, true)
	c.State.ClearColor(r, g, b, a)
	c.State.Viewport(0, 0, int32(c.bufferWidth), int32(c.bufferHeight))
	c.State.Scissor(0, 0, int32(c.bufferWidth), int32(c.bufferHeight))
	c.backend.Clear(gpu.ClearColor | gpu.ClearDepth)
}

// CreateRenderTarget creates a tracked offscreen target.
//
// Parameters:
//   - width, height: size in pixels
//   - depth: whether to attach depth storage
//   - typ: colour component type; float types fall back to uint8 when the
//     device cannot render to them
//   - filter: sampling filter of the colour texture
//   - format: colour format; FormatAlpha needs multiple draw buffers
//
// Returns:
//   - *RenderTarget: the target
//   - error: ErrUnsupportedFormat, or a resource creation error
func (c *Context) CreateRenderTarget(width, height int, depth bool, typ gpu.TextureType, filter gpu.Filter, format gpu.TextureFormat) (*RenderTarget, error) {
	if format == gpu.FormatAlpha && !c.caps.DrawBuffers {
		return nil, fmt.Errorf("%w: %s target without multiple draw buffers", ErrUnsupportedFormat, format)
	}
	if !c.caps.SupportsFloatTarget(typ) {
		if !c.warnedFormats[typ] {
			c.log.Warn("render target type unsupported, using uint8", "type", typ.String())
			c.warnedFormats[typ] = true
		}
		typ = gpu.TypeUint8
	}
	rt := &RenderTarget{
		ctx: c, id: resource.NextID(),
		width: width, height: height, depth: depth,
		typ: typ, filter: filter, format: format,
	}
	var err error
	if rt.texture, err = c.Resources.CreateTexture(format, typ, filter); err != nil {
		return nil, err
	}
	if rt.fb, err = c.Resources.CreateFramebuffer(); err != nil {
		rt.texture.Destroy()
		return nil, err
	}
	if depth {
		if rt.depthRB, err = c.Resources.CreateRenderbuffer(width, height); err != nil {
			rt.texture.Destroy()
			rt.fb.Destroy()
			return nil, err
		}
	}
	if err := rt.init(); err != nil {
		rt.Destroy()
		return nil, fmt.Errorf("render target %dx%d: %w", width, height, err)
	}
	c.targets[rt.id] = rt
	return rt, nil
}

// RenderTargets returns the number of tracked render targets.
func (c *Context) RenderTargets() int {
	return len(c.targets)
}

// LossState reports whether the device is live or lost.
func (c *Context) LossState() LossState { return c.lossState }

// IsContextLost reports whether the device connection is invalid.
func (c *Context) IsContextLost() bool {
	return c.lossState == Lost || c.backend.IsContextLost()
}

// SetContextLost records a context loss. Pending asynchronous operations
// fail with gpu.ErrContextLost.
func (c *Context) SetContextLost() {
	if c.lossState == Lost {
		return
	}
	c.lossState = Lost
	c.failPending(gpu.ErrContextLost)
	c.pendingRead = nil
	c.pixelPack, c.pixelPackSize = 0, 0
	if c.timer != nil {
		c.timer.pending, c.timer.active = c.timer.pending[:0], nil
	}
	c.log.Warn("context lost")
}

// OnContextRestored subscribes fn to restoration events.
//
// Returns:
//   - func(): removes the subscription
func (c *Context) OnContextRestored(fn func(RestoredEvent)) func() {
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	return func() { delete(c.observers, id) }
}

// HandleContextRestored rebuilds everything on a freshly restored device:
// capabilities, state cache, every registered resource and every render
// target, then the extra hooks in order. Calling it while live is a no-op.
//
// Parameters:
//   - extraResets: additional reset hooks, run after the render targets
//
// Returns:
//   - error: capability detection failure, or every reset failure joined
func (c *Context) HandleContextRestored(extraResets ...func()) error {
	if c.lossState != Lost {
		return nil
	}
	if err := c.detect(); err != nil {
		return err
	}
	c.State.Reset()
	var errs []error
	if err := c.Resources.Reset(); err != nil {
		errs = append(errs, err)
	}
	for _, id := range slices.Sorted(maps.Keys(c.targets)) {
		if err := c.targets[id].Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, reset := range extraResets {
		reset()
	}
	c.lossState = Live
	ev := RestoredEvent{At: c.clock()}
	for _, id := range slices.Sorted(maps.Keys(c.observers)) {
		c.observers[id](ev)
	}
	c.log.Info("context restored", "targets", len(c.targets))
	return errors.Join(errs...)
}

type destroyConfig struct {
	doNotForceContextLoss bool
}

// DestroyOption configures Destroy.
type DestroyOption func(*destroyConfig)

// DoNotForceContextLoss keeps the device alive after Destroy.
func DoNotForceContextLoss() DestroyOption {
	return func(d *destroyConfig) {
		d.doNotForceContextLoss = true
	}
}

// Destroy releases every resource and, unless told otherwise, forces a
// context loss so the platform reclaims the device. Calling it twice is a
// no-op.
func (c *Context) Destroy(options ...DestroyOption) {
	if c.destroyed {
		return
	}
	var cfg destroyConfig
	for _, option := range options {
		option(&cfg)
	}
	c.failPending(gpu.ErrContextLost)
	if c.pixelPack != 0 {
		c.backend.DeletePixelBuffer(c.pixelPack)
		c.pixelPack = 0
	}
	if c.timer != nil {
		c.timer.Clear()
	}
	c.NamedRenderables.Range(func(_ string, r NamedRenderable) bool {
		r.Dispose()
		return true
	})
	c.NamedRenderables.clear()
	c.NamedFramebuffers.clear()
	c.NamedTextures.clear()
	for _, rt := range c.targets {
		rt.destroyed = true
	}
	clear(c.targets)
	c.Resources.Destroy()
	c.backend.UnbindAll()
	if !cfg.doNotForceContextLoss && c.caps.LoseContext {
		c.backend.LoseContext()
	}
	c.destroyed = true
	c.log.Info("context destroyed")
}
