package passes

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/camera"
	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/scene"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultPickPadding is the search radius around the picked pixel, in
// drawing-buffer pixels.
const DefaultPickPadding = 3

// PickingID identifies what was drawn at a pixel.
type PickingID struct {
	ObjectID   int
	InstanceID int
	GroupID    int
}

// PickData is a resolved pick.
type PickData struct {
	ID       PickingID
	Position mgl32.Vec3
}

// PickHelper resolves screen positions to pick data. The pick buffers are
// rendered lazily and reused until the helper is marked dirty.
type PickHelper struct {
	ctx   *renderer.Context
	scene scene.Scene
	pick  *PickPass

	viewport    common.Viewport
	pickPadding int
	spiral      [][2]int
	dirty       bool

	// pick region in pick target pixels
	pickX, pickY          int
	pickWidth, pickHeight int

	object   []byte
	instance []byte
	group    []byte
	depth    []byte
}

// NewPickHelper creates a helper reading from pick.
//
// Parameters:
//   - ctx: the owning context
//   - s: the scene rendered into the pick buffers
//   - pick: the pick pass
//   - viewport: the region of the drawing buffer that can be picked
//
// Returns:
//   - *PickHelper: the helper, initially dirty
func NewPickHelper(ctx *renderer.Context, s scene.Scene, pick *PickPass, viewport common.Viewport) *PickHelper {
	h := &PickHelper{ctx: ctx, scene: s, pick: pick, pickPadding: DefaultPickPadding}
	h.SetViewport(viewport.X, viewport.Y, viewport.Width, viewport.Height)
	return h
}

func (h *PickHelper) pickScale() float64 {
	return h.pick.PickRatio()
}

// SetViewport sets the pickable region and marks the buffers dirty.
func (h *PickHelper) SetViewport(x, y, width, height int) {
	h.viewport.Set(x, y, width, height)
	h.update()
}

// SetPickPadding sets the spiral search radius in drawing-buffer pixels.
func (h *PickHelper) SetPickPadding(padding int) {
	h.pickPadding = max(padding, 0)
	h.update()
}

// update recomputes the pick region and spiral after a viewport, padding or
// pick scale change.
func (h *PickHelper) update() {
	s := h.pickScale()
	h.pickX = int(math.Ceil(float64(h.viewport.X) * s))
	h.pickY = int(math.Ceil(float64(h.viewport.Y) * s))
	h.pickWidth = int(math.Ceil(float64(h.viewport.Width) * s))
	h.pickHeight = int(math.Ceil(float64(h.viewport.Height) * s))
	n := h.pickWidth * h.pickHeight * 4
	if len(h.object) != n {
		h.object = make([]byte, n)
		h.instance = make([]byte, n)
		h.group = make([]byte, n)
		h.depth = make([]byte, n)
	}
	h.spiral = Spiral2D(int(math.Round(s * float64(h.pickPadding))))
	h.dirty = true
}

// Dirty reports whether the pick buffers must be rendered before the next
// Identify.
func (h *PickHelper) Dirty() bool { return h.dirty }

// MarkDirty invalidates the pick buffers, e.g. after a scene or camera
// change. A pick scale change is picked up here as well.
func (h *PickHelper) MarkDirty() {
	h.update()
}

func (h *PickHelper) render(cam camera.Camera) error {
	if err := h.pick.Render(h.scene, cam); err != nil {
		return err
	}
	reads := []struct {
		bind func() error
		dst  []byte
	}{
		{h.pick.BindObject, h.object},
		{h.pick.BindInstance, h.instance},
		{h.pick.BindGroup, h.group},
		{h.pick.BindDepth, h.depth},
	}
	for _, r := range reads {
		if err := r.bind(); err != nil {
			return err
		}
		if err := h.ctx.ReadPixels(h.pickX, h.pickY, h.pickWidth, h.pickHeight, r.dst); err != nil {
			return fmt.Errorf("read pick buffer: %w", err)
		}
	}
	h.dirty = false
	return nil
}

// identifyAt resolves pick pixel (xp, yp), relative to the pick region.
func (h *PickHelper) identifyAt(xp, yp int, cam camera.Camera) (*PickData, bool) {
	if xp < 0 || yp < 0 || xp >= h.pickWidth || yp >= h.pickHeight {
		return nil, false
	}
	idx := (yp*h.pickWidth + xp) * 4
	depth := UnpackDepth(h.depth[idx : idx+4])
	if depth >= emptyDepth {
		return nil, false
	}
	objectID := UnpackRGBToInt(h.object[idx], h.object[idx+1], h.object[idx+2])
	if objectID == NullID {
		return nil, false
	}
	id := PickingID{
		ObjectID:   objectID,
		InstanceID: UnpackRGBToInt(h.instance[idx], h.instance[idx+1], h.instance[idx+2]),
		GroupID:    UnpackRGBToInt(h.group[idx], h.group[idx+1], h.group[idx+2]),
	}
	s := h.pickScale()
	win := mgl32.Vec3{
		float32(float64(h.viewport.X) + (float64(xp)+0.5)/s),
		float32(float64(h.viewport.Y) + (float64(yp)+0.5)/s),
		depth,
	}
	pos, err := cam.Unproject(win)
	if err != nil {
		logger.Logger().Warn("pick unproject failed", "err", err)
		return nil, false
	}
	return &PickData{ID: id, Position: pos}, true
}

// Identify resolves the window position (x, y), top-left origin in window
// coordinates, to what was drawn there. When the exact pixel is empty the
// pixels around it are searched in spiral order up to the pick padding.
//
// Parameters:
//   - x, y: window position
//   - cam: the camera the scene is seen through
//
// Returns:
//   - *PickData: the pick, or nil
//   - bool: true if something was hit
func (h *PickHelper) Identify(x, y float64, cam camera.Camera) (*PickData, bool) {
	if h.ctx.IsContextLost() {
		return nil, false
	}
	ratio := h.ctx.PixelRatio()
	x *= ratio
	y = float64(h.pick.draw.ColorTarget().Height()) - y*ratio

	xv, yv := x-float64(h.viewport.X), y-float64(h.viewport.Y)
	if xv < 0 || yv < 0 || xv >= float64(h.viewport.Width) || yv >= float64(h.viewport.Height) {
		return nil, false
	}
	if h.dirty {
		if err := h.render(cam); err != nil {
			logger.Logger().Warn("pick render failed", "err", err)
			return nil, false
		}
	}
	s := h.pickScale()
	xp, yp := int(math.Floor(xv*s)), int(math.Floor(yv*s))
	for _, d := range h.spiral {
		if pd, ok := h.identifyAt(xp+d[0], yp+d[1], cam); ok {
			return pd, true
		}
	}
	return nil, false
}
