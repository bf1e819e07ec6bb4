package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Framebuffer groups colour textures and an optional depth renderbuffer.
type Framebuffer struct {
	r           *Registry
	id          int
	handle      gpu.Handle
	color       [gpu.MaxColorAttachments]*Texture
	depth       *Renderbuffer
	drawBuffers []gpu.Attachment
	destroyed   bool
}

var _ Resource = &Framebuffer{}

// CreateFramebuffer creates an empty framebuffer.
func (r *Registry) CreateFramebuffer() (*Framebuffer, error) {
	f := &Framebuffer{r: r, id: NextID()}
	if err := f.create(); err != nil {
		return nil, err
	}
	r.track(f)
	return f, nil
}

func (f *Framebuffer) create() error {
	h, err := f.r.b.CreateFramebuffer()
	if err != nil {
		return fmt.Errorf("create framebuffer: %w", err)
	}
	f.handle = h
	return nil
}

func (f *Framebuffer) ID() int { return f.id }
func (f *Framebuffer) Kind() Kind { return KindFramebuffer }
func (f *Framebuffer) Handle() gpu.Handle { return f.handle }

// AttachTexture attaches t as colour attachment att.
func (f *Framebuffer) AttachTexture(att gpu.Attachment, t *Texture) error {
	if att >= gpu.MaxColorAttachments {
		return fmt.Errorf("framebuffer %d: %s is not a colour attachment", f.id, att)
	}
	if err := f.r.b.FramebufferTexture2D(f.handle, att, t.handle); err != nil {
		return fmt.Errorf("framebuffer %d attach %s: %w", f.id, att, err)
	}
	f.color[att] = t
	return nil
}

// AttachDepth attaches rb as depth storage.
func (f *Framebuffer) AttachDepth(rb *Renderbuffer) error {
	if err := f.r.b.FramebufferRenderbuffer(f.handle, gpu.AttachmentDepth, rb.handle); err != nil {
		return fmt.Errorf("framebuffer %d attach depth: %w", f.id, err)
	}
	f.depth = rb
	return nil
}

// SetDrawBuffers selects the colour attachments written by draws.
func (f *Framebuffer) SetDrawBuffers(atts ...gpu.Attachment) error {
	if err := f.r.b.DrawBuffers(f.handle, atts); err != nil {
		return fmt.Errorf("framebuffer %d draw buffers: %w", f.id, err)
	}
	f.drawBuffers = append(f.drawBuffers[:0], atts...)
	return nil
}

// Bind makes this the draw and read framebuffer.
func (f *Framebuffer) Bind() {
	f.r.b.BindFramebuffer(f.handle)
}

// Status returns the completeness status reported by the backend.
func (f *Framebuffer) Status() gpu.FramebufferStatus {
	return f.r.b.CheckFramebufferStatus(f.handle)
}

// Reset recreates the framebuffer and re-attaches its attachments. The
// attachments must have been reset first.
func (f *Framebuffer) Reset() error {
	if f.destroyed {
		return nil
	}
	if err := f.create(); err != nil {
		return err
	}
	for i, t := range f.color {
		if t == nil {
			continue
		}
		if err := f.r.b.FramebufferTexture2D(f.handle, gpu.Attachment(i), t.handle); err != nil {
			return fmt.Errorf("reset framebuffer %d: %w", f.id, err)
		}
	}
	if f.depth != nil {
		if err := f.r.b.FramebufferRenderbuffer(f.handle, gpu.AttachmentDepth, f.depth.handle); err != nil {
			return fmt.Errorf("reset framebuffer %d: %w", f.id, err)
		}
	}
	if len(f.drawBuffers) > 0 {
		return f.r.b.DrawBuffers(f.handle, f.drawBuffers)
	}
	return nil
}

func (f *Framebuffer) Destroy() {
	if f.destroyed {
		return
	}
	f.r.b.DeleteFramebuffer(f.handle)
	f.r.untrack(f)
	f.destroyed = true
}
