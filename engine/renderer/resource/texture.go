package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Texture is a 2D texture with fixed format, type and filter.
type Texture struct {
	r         *Registry
	id        int
	handle    gpu.Handle
	format    gpu.TextureFormat
	typ       gpu.TextureType
	filter    gpu.Filter
	width     int
	height    int
	data      []byte
	destroyed bool
}

var _ Resource = &Texture{}

// CreateTexture creates a texture without storage; call Define to allocate.
//
// Parameters:
//   - format: channel layout
//   - typ: component type
//   - filter: sampling filter
//
// Returns:
//   - *Texture: the texture
//   - error: error if the backend could not create it
func (r *Registry) CreateTexture(format gpu.TextureFormat, typ gpu.TextureType, filter gpu.Filter) (*Texture, error) {
	t := &Texture{r: r, id: NextID(), format: format, typ: typ, filter: filter}
	if err := t.create(); err != nil {
		return nil, err
	}
	r.track(t)
	return t, nil
}

func (t *Texture) create() error {
	h, err := t.r.b.CreateTexture()
	if err != nil {
		return fmt.Errorf("create texture: %w", err)
	}
	t.handle = h
	return nil
}

func (t *Texture) ID() int { return t.id }
func (t *Texture) Kind() Kind { return KindTexture }
func (t *Texture) Handle() gpu.Handle { return t.handle }

func (t *Texture) Width() int { return t.width }
func (t *Texture) Height() int { return t.height }
func (t *Texture) Format() gpu.TextureFormat { return t.format }
func (t *Texture) Type() gpu.TextureType { return t.typ }
func (t *Texture) Filter() gpu.Filter { return t.filter }

func (t *Texture) byteSize() int {
	return t.width * t.height * t.format.Channels() * t.typ.BytesPerComponent()
}

// Define (re)allocates storage of the given size, optionally filled with
// uint8 data in the texture's format.
func (t *Texture) Define(width, height int, data []byte) error {
	before := t.byteSize()
	if err := t.r.b.TexImage2D(t.handle, width, height, t.format, t.typ, t.filter, data); err != nil {
		return fmt.Errorf("define texture %d (%dx%d %s %s): %w", t.id, width, height, t.format, t.typ, err)
	}
	t.width, t.height = width, height
	t.data = append(t.data[:0], data...)
	t.r.addBytes(KindTexture, t.byteSize()-before)
	return nil
}

// Load replaces the contents without reallocating.
func (t *Texture) Load(data []byte) error {
	if err := t.r.b.TexSubImage2D(t.handle, 0, 0, t.width, t.height, data); err != nil {
		return fmt.Errorf("load texture %d: %w", t.id, err)
	}
	t.data = append(t.data[:0], data...)
	return nil
}

// Bind binds the texture to a texture unit.
func (t *Texture) Bind(unit int) {
	t.r.b.BindTexture(unit, t.handle)
}

func (t *Texture) Reset() error {
	if t.destroyed {
		return nil
	}
	if err := t.create(); err != nil {
		return err
	}
	if t.width == 0 {
		return nil
	}
	var data []byte
	if len(t.data) > 0 {
		data = t.data
	}
	if err := t.r.b.TexImage2D(t.handle, t.width, t.height, t.format, t.typ, t.filter, data); err != nil {
		return fmt.Errorf("reset texture %d: %w", t.id, err)
	}
	return nil
}

func (t *Texture) Destroy() {
	if t.destroyed {
		return
	}
	t.r.b.DeleteTexture(t.handle)
	t.r.addBytes(KindTexture, -t.byteSize())
	t.r.untrack(t)
	t.destroyed = true
}

// Renderbuffer is depth storage for a framebuffer.
type Renderbuffer struct {
	r         *Registry
	id        int
	handle    gpu.Handle
	width     int
	height    int
	destroyed bool
}

var _ Resource = &Renderbuffer{}

// CreateRenderbuffer allocates depth storage of the given size.
func (r *Registry) CreateRenderbuffer(width, height int) (*Renderbuffer, error) {
	rb := &Renderbuffer{r: r, id: NextID()}
	if err := rb.create(); err != nil {
		return nil, err
	}
	if err := rb.SetSize(width, height); err != nil {
		r.b.DeleteRenderbuffer(rb.handle)
		return nil, err
	}
	r.track(rb)
	return rb, nil
}

func (rb *Renderbuffer) create() error {
	h, err := rb.r.b.CreateRenderbuffer()
	if err != nil {
		return fmt.Errorf("create renderbuffer: %w", err)
	}
	rb.handle = h
	return nil
}

func (rb *Renderbuffer) ID() int { return rb.id }
func (rb *Renderbuffer) Kind() Kind { return KindRenderbuffer }
func (rb *Renderbuffer) Handle() gpu.Handle { return rb.handle }
func (rb *Renderbuffer) Width() int { return rb.width }
func (rb *Renderbuffer) Height() int { return rb.height }

// SetSize reallocates the storage.
func (rb *Renderbuffer) SetSize(width, height int) error {
	if err := rb.r.b.RenderbufferStorage(rb.handle, width, height); err != nil {
		return fmt.Errorf("renderbuffer %d storage %dx%d: %w", rb.id, width, height, err)
	}
	rb.r.addBytes(KindRenderbuffer, (width*height-rb.width*rb.height)*4)
	rb.width, rb.height = width, height
	return nil
}

func (rb *Renderbuffer) Reset() error {
	if rb.destroyed {
		return nil
	}
	if err := rb.create(); err != nil {
		return err
	}
	return rb.r.b.RenderbufferStorage(rb.handle, rb.width, rb.height)
}

func (rb *Renderbuffer) Destroy() {
	if rb.destroyed {
		return
	}
	rb.r.b.DeleteRenderbuffer(rb.handle)
	rb.r.addBytes(KindRenderbuffer, -rb.width*rb.height*4)
	rb.r.untrack(rb)
	rb.destroyed = true
}
