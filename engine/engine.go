package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/config"
	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/profiler"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/gl_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/wgpu_backend"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/passes"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/Carmen-Shannon/oxy-render/engine/window"
	"github.com/go-gl/mathgl/mgl32"
)

// surfaceBackend is implemented by backends that present through a window
// surface instead of the window's own swap chain.
type surfaceBackend interface {
	ConfigureSurface(width, height int) error
	Present()
	Release()
}

// engine implements the Engine interface.
// Ticks run on their own goroutine; frames render on the window thread,
// which owns the GPU context.
type engine struct {
	mu *sync.Mutex

	cfg config.Config

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	closeOnce   sync.Once

	window  window.Window
	backend gpu.Backend
	ctx     *renderer.Context
	scene   scene.Scene
	passes  *passes.Passes
	camera  camera.Camera

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)
	pickCallback   func(pick *passes.PickData, hit bool)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	commitBudget     time.Duration
	drawProps        passes.DrawProps

	lastRender time.Time
	// frame needs drawing: scene, camera or size changed, or temporal
	// samples remain
	needsDraw bool

	dragButton window.MouseButton
	dragging   bool
	lastX      float64
	lastY      float64
}

// Engine is the main entry point for the viewer.
// It owns the window, the GPU context, the scene, its passes and the camera,
// and drives the tick and frame loops.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Context returns the GPU context.
	Context() *renderer.Context

	// Scene returns the scene drawn each frame.
	Scene() scene.Scene

	// Passes returns the draw, pick and multi-sample passes.
	Passes() *passes.Passes

	// Camera returns the viewing camera.
	Camera() camera.Camera

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for application updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// It runs on the tick goroutine while the frame loop is paused, so it
	// may add, remove and update scene objects.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetPickCallback registers the function called after a left click was
	// resolved against the pick buffers.
	//
	// Parameters:
	//   - callback: receives the pick, or nil and false on a miss
	SetPickCallback(callback func(pick *passes.PickData, hit bool))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetDrawProps sets the per-frame draw pass options.
	SetDrawProps(props passes.DrawProps)

	// Pick resolves a window position immediately.
	//
	// Parameters:
	//   - x, y: window coordinates, top-left origin
	//
	// Returns:
	//   - *passes.PickData: the pick, or nil
	//   - bool: true if something was hit
	Pick(x, y float64) (*passes.PickData, bool)

	// ResetCamera points the camera at the visible scene bounds.
	ResetCamera()

	// Redraw schedules a frame and a pick buffer refresh. Call it after
	// changing object values through Scene().Update.
	Redraw()

	// LoseContext marks the GPU context lost. Frames are skipped until
	// RestoreContext succeeds.
	LoseContext()

	// RestoreContext rebuilds every GPU resource after a loss.
	//
	// Returns:
	//   - error: the joined reset errors
	RestoreContext() error

	// Run starts the main engine loop (blocks until window closes).
	Run()

	// Quit signals all engine goroutines to stop and shuts down the engine.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates the window, GPU backend, context, scene, passes and
// camera described by the options. Panics if the window or the GPU context
// cannot be set up.
//
// Parameters:
//   - options: functional options for engine configuration (config, profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:              &sync.Mutex{},
		cfg:             config.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		wg:              sync.WaitGroup{},
		engineTickRate:  time.Second / 60,
		commitBudget:    config.Default().CommitBudget(),
		needsDraw:       true,
	}
	e.drawProps.ClearColor = e.cfg.Render.ClearColor

	for _, opt := range options {
		opt(e)
	}

	if err := e.setup(); err != nil {
		panic(fmt.Sprintf("failed to set up engine: %v", err))
	}
	return e
}

// setup builds everything the options did not supply.
func (e *engine) setup() error {
	api := window.APIOpenGL
	if e.cfg.Backend == config.BackendWGPU {
		api = window.APINone
	}
	if e.window == nil {
		e.window = window.NewWindow(
			window.WithTitle(e.cfg.Window.Title),
			window.WithSize(e.cfg.Window.Width, e.cfg.Window.Height),
			window.WithVSync(e.cfg.Window.VSync),
			window.WithAPI(api),
		)
	}
	width, height := e.window.Width(), e.window.Height()

	if e.backend == nil {
		var err error
		switch e.cfg.Backend {
		case config.BackendWGPU:
			e.backend, err = wgpu_backend.New(e.window.SurfaceDescriptor(), width, height, wgpu_backend.WithVSync(e.cfg.Window.VSync))
		default:
			e.window.MakeContextCurrent()
			e.backend, err = gl_backend.New()
		}
		if err != nil {
			return fmt.Errorf("create %s backend: %w", e.cfg.Backend, err)
		}
	}

	ctx, err := renderer.NewContext(e.backend,
		renderer.WithPixelRatio(e.window.PixelRatio()),
		renderer.WithDebug(e.cfg.Debug),
	)
	if err != nil {
		return err
	}
	e.ctx = ctx
	e.ctx.SetDrawingBufferSize(width, height)

	sceneOptions := []scene.SceneBuilderOption{}
	if e.cfg.Engine.ComputeWorkers > 0 {
		sceneOptions = append(sceneOptions, scene.WithComputeWorkers(e.cfg.Engine.ComputeWorkers))
	}
	e.scene = scene.NewScene(e.ctx, sceneOptions...)

	if e.passes, err = passes.NewPasses(e.ctx, e.scene, e.cfg.PassesOptions()...); err != nil {
		return fmt.Errorf("create passes: %w", err)
	}

	if e.camera == nil {
		e.camera = camera.NewCamera(camera.WithController(camera.NewOrbitController()))
	}
	e.camera.SetViewport(common.Viewport{Width: width, Height: height})
	e.camera.Update()

	e.profiler = profiler.NewProfiler(
		profiler.WithInterval(e.cfg.ProfilerInterval()),
		profiler.WithContext(e.ctx),
	)
	e.profilingEnabled = e.profilingEnabled || e.cfg.Profiler.Enabled

	e.bindWindow()
	return nil
}

// bindWindow routes window events into the engine.
func (e *engine) bindWindow() {
	e.window.SetUpdateCallback(e.frame)
	e.window.SetResizeCallback(e.resize)
	e.window.SetScrollCallback(func(delta float32) {
		e.withCamera(func(c camera.Controller) { c.Zoom(delta) })
	})
	e.window.SetKeyDownCallback(e.keyDown)
	e.window.SetMouseDownCallback(func(button window.MouseButton, x, y float64) {
		e.dragging, e.dragButton = true, button
		e.lastX, e.lastY = x, y
		if button == window.MouseLeft {
			pick, hit := e.Pick(x, y)
			if e.pickCallback != nil {
				e.pickCallback(pick, hit)
			}
		}
	})
	e.window.SetMouseUpCallback(func(button window.MouseButton, x, y float64) {
		if button == e.dragButton {
			e.dragging = false
		}
	})
	e.window.SetMouseMoveCallback(func(x, y float64) {
		dx, dy := float32(x-e.lastX), float32(y-e.lastY)
		e.lastX, e.lastY = x, y
		if !e.dragging {
			return
		}
		switch e.dragButton {
		case window.MouseMiddle:
			e.withCamera(func(c camera.Controller) { c.Orbit(-dx, dy) })
		case window.MouseRight:
			e.withCamera(func(c camera.Controller) { c.Pan(-dx, dy) })
		}
	})
}

// withCamera applies fn to the camera controller and schedules a redraw.
func (e *engine) withCamera(fn func(c camera.Controller)) {
	ctrl := e.camera.Controller()
	if ctrl == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(ctrl)
	e.camera.Update()
	e.invalidate()
}

// invalidate schedules a redraw and a pick buffer refresh.
// Caller must hold the mutex.
func (e *engine) invalidate() {
	e.needsDraw = true
	e.passes.PickHelper.MarkDirty()
	e.passes.MultiSample.Reset()
}

func (e *engine) keyDown(keyCode uint32) {
	switch keyCode {
	case common.KeyEsc:
		e.Quit()
	case common.KeyR:
		e.ResetCamera()
	case common.KeyP:
		e.mu.Lock()
		ms := e.passes.MultiSample
		if ms.Mode() == passes.MultiSampleOff {
			ms.SetMode(passes.MultiSampleTemporal)
		} else {
			ms.SetMode(passes.MultiSampleOff)
		}
		e.invalidate()
		e.mu.Unlock()
		logger.Logger().Info("multi-sample", "mode", ms.Mode())
	case common.KeyT:
		e.mu.Lock()
		next := (e.passes.Draw.Transparency() + 1) % (passes.Dpoit + 1)
		if err := e.passes.Draw.SetTransparency(next); err != nil {
			logger.Logger().Warn("transparency mode", "mode", next, "error", err)
		}
		e.invalidate()
		e.mu.Unlock()
		logger.Logger().Info("transparency", "mode", e.passes.Draw.Transparency())
	case common.KeyL:
		e.LoseContext()
	case common.KeyK:
		if err := e.RestoreContext(); err != nil {
			logger.Logger().Error("restore context", "error", err)
		}
	}
}

func (e *engine) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if sb, ok := e.backend.(surfaceBackend); ok {
		if err := sb.ConfigureSurface(width, height); err != nil {
			logger.Logger().Error("configure surface", "error", err)
		}
	}
	e.ctx.SetPixelRatio(e.window.PixelRatio())
	e.ctx.SetDrawingBufferSize(width, height)
	if err := e.passes.SetSize(width, height); err != nil {
		logger.Logger().Error("resize passes", "width", width, "height", height, "error", err)
	}
	e.camera.SetViewport(common.Viewport{Width: width, Height: height})
	e.camera.Update()
	e.invalidate()
}

func (e *engine) Window() window.Window      { return e.window }
func (e *engine) Context() *renderer.Context { return e.ctx }
func (e *engine) Scene() scene.Scene         { return e.scene }
func (e *engine) Passes() *passes.Passes     { return e.passes }
func (e *engine) Camera() camera.Camera      { return e.camera }

func (e *engine) Run() {
	e.running = true
	e.lastRender = time.Now()
	e.handle()
	e.window.ProcessMessages()
	e.signalQuit()
	e.wg.Wait()
	e.closeOnce.Do(e.shutdown)
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// shutdown releases GPU objects in dependency order while the context is
// still current, then closes the window.
func (e *engine) shutdown() {
	e.passes.Dispose()
	e.scene.Dispose()
	e.ctx.Destroy(renderer.DoNotForceContextLoss())
	if sb, ok := e.backend.(surfaceBackend); ok {
		sb.Release()
	}
	if err := e.window.Close(); err != nil {
		logger.Logger().Warn("close window", "error", err)
	}
}

// handle launches the engine and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.mu.Lock()
				e.tickCallback(dt)
				e.mu.Unlock()
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// frame runs once per window loop iteration on the thread owning the GPU
// context: commit pending scene changes within the budget, redraw if
// anything changed, present, and tick the profiler.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) frame() {
	defer func() {
		if r := recover(); r != nil {
			logger.Logger().Error("render loop recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()
	select {
	case <-e.quitChannel:
		e.closeOnce.Do(e.shutdown)
		return
	default:
	}

	now := time.Now()
	if e.renderFrameLimit > 0 && now.Sub(e.lastRender) < e.renderFrameLimit {
		time.Sleep(e.renderFrameLimit - now.Sub(e.lastRender))
		now = time.Now()
	}
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	e.mu.Lock()
	drawn := e.render()
	e.mu.Unlock()

	if drawn {
		if sb, ok := e.backend.(surfaceBackend); ok {
			sb.Present()
		} else {
			e.window.SwapBuffers()
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}

	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick()
	}
}

// render draws one frame and reports whether anything reached the default
// framebuffer. Caller must hold the mutex.
func (e *engine) render() bool {
	if e.ctx.IsContextLost() {
		return false
	}
	if e.scene.NeedsCommit() {
		e.scene.Commit(e.commitBudget)
		e.invalidate()
	}
	if e.scene.SyncVisibility() {
		e.invalidate()
	}
	if !e.needsDraw {
		return false
	}

	more, err := e.passes.MultiSample.Render(e.scene, e.camera, e.drawProps)
	if err != nil {
		logger.Logger().Warn("draw frame", "error", err)
	}
	if err := e.passes.Present(); err != nil {
		logger.Logger().Warn("present frame", "error", err)
	}
	e.needsDraw = more
	return true
}

func (e *engine) Pick(x, y float64) (*passes.PickData, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passes.PickHelper.Identify(x, y, e.camera)
}

func (e *engine) ResetCamera() {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.scene.BoundingSphereVisible()
	if s.IsEmpty() {
		s = common.Sphere{Radius: 100}
	}
	radius := max(s.Radius*2.5, 1)
	ctrl := camera.NewOrbitController(
		camera.WithOrbitTarget(s.Center),
		camera.WithRadius(radius),
		camera.WithRadiusLimits(s.Radius*0.1, radius*20),
	)
	e.camera.SetController(ctrl)
	e.camera.SetUp(mgl32.Vec3{0, 1, 0})
	e.camera.SetPerspective(e.camera.Fov(), radius*0.01, radius*10)
	e.camera.Update()
	e.invalidate()
}

func (e *engine) Redraw() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidate()
}

func (e *engine) LoseContext() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx.SetContextLost()
}

func (e *engine) RestoreContext() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ctx.IsContextLost() {
		return nil
	}
	err := e.ctx.HandleContextRestored(e.resetScene, e.passes.Reset)
	e.invalidate()
	return err
}

// resetScene re-uploads scene values once the registry recreated their
// resources.
func (e *engine) resetScene() {
	if err := e.scene.Reset(); err != nil {
		logger.Logger().Warn("scene reset after context restore", "error", err)
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetPickCallback(callback func(pick *passes.PickData, hit bool)) {
	e.pickCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetDrawProps(props passes.DrawProps) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drawProps = props
	e.invalidate()
}
