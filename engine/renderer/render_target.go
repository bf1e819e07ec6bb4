package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
)

// RenderTarget is an offscreen colour texture with optional depth storage,
// attached to one framebuffer.
type RenderTarget struct {
	ctx       *Context
	id        int
	width     int
	height    int
	depth     bool
	typ       gpu.TextureType
	filter    gpu.Filter
	format    gpu.TextureFormat
	texture   *resource.Texture
	depthRB   *resource.Renderbuffer
	fb        *resource.Framebuffer
	destroyed bool
}

func (rt *RenderTarget) init() error {
	if err := rt.texture.Define(rt.width, rt.height, nil); err != nil {
		return err
	}
	if err := rt.fb.AttachTexture(gpu.AttachmentColor0, rt.texture); err != nil {
		return err
	}
	if rt.depthRB != nil {
		if err := rt.depthRB.SetSize(rt.width, rt.height); err != nil {
			return err
		}
		if err := rt.fb.AttachDepth(rt.depthRB); err != nil {
			return err
		}
	}
	return nil
}

func (rt *RenderTarget) ID() int     { return rt.id }
func (rt *RenderTarget) Width() int  { return rt.width }
func (rt *RenderTarget) Height() int { return rt.height }

// Texture returns the colour attachment.
func (rt *RenderTarget) Texture() *resource.Texture { return rt.texture }

// Framebuffer returns the framebuffer the target renders into.
func (rt *RenderTarget) Framebuffer() *resource.Framebuffer { return rt.fb }

// Type returns the colour component type, after any capability fallback.
func (rt *RenderTarget) Type() gpu.TextureType { return rt.typ }

// DepthBuffer returns the depth storage, or nil. Passes that must depth
// test against this target's contents attach it to their own framebuffers.
func (rt *RenderTarget) DepthBuffer() *resource.Renderbuffer { return rt.depthRB }

// HasDepth reports whether the target carries depth storage.
func (rt *RenderTarget) HasDepth() bool { return rt.depth }

// Bind makes the target current and sets the viewport to its full size.
// In debug mode an incomplete framebuffer returns a *FramebufferError.
func (rt *RenderTarget) Bind() error {
	rt.fb.Bind()
	if rt.ctx.debug {
		if status := rt.fb.Status(); status != gpu.FramebufferComplete {
			return &FramebufferError{Framebuffer: rt.fb.ID(), Status: status}
		}
	}
	rt.ctx.State.Viewport(0, 0, int32(rt.width), int32(rt.height))
	return nil
}

// SetSize reallocates colour and depth storage. Unchanged sizes are a no-op.
// On failure colour and depth both keep the old size.
//
// Parameters:
//   - width, height: the new size in pixels
//
// Returns:
//   - error: ErrTargetDestroyed after Destroy, or the allocation failure
func (rt *RenderTarget) SetSize(width, height int) error {
	if rt.destroyed {
		return ErrTargetDestroyed
	}
	if rt.width == width && rt.height == height {
		return nil
	}
	if rt.depthRB != nil {
		if err := rt.depthRB.SetSize(width, height); err != nil {
			return err
		}
	}
	if err := rt.texture.Define(width, height, nil); err != nil {
		if rt.depthRB != nil {
			if rerr := rt.depthRB.SetSize(rt.width, rt.height); rerr != nil {
				return errors.Join(err, rerr)
			}
		}
		return err
	}
	rt.width, rt.height = width, height
	return nil
}

// Reset re-defines storage and re-attaches after the underlying resources
// were recreated.
func (rt *RenderTarget) Reset() error {
	if rt.destroyed {
		return nil
	}
	return rt.init()
}

// Destroy releases the target. Calling it twice is a no-op.
func (rt *RenderTarget) Destroy() {
	if rt.destroyed {
		return
	}
	rt.fb.Destroy()
	rt.texture.Destroy()
	if rt.depthRB != nil {
		rt.depthRB.Destroy()
	}
	delete(rt.ctx.targets, rt.id)
	rt.destroyed = true
}
