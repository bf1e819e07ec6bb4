package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Buffer is an attribute, element or uniform buffer.
type Buffer struct {
	r         *Registry
	id        int
	handle    gpu.Handle
	kind      gpu.BufferKind
	usage     gpu.BufferUsage
	data      []byte
	destroyed bool
}

var _ Resource = &Buffer{}

// CreateBuffer allocates a buffer and uploads data.
//
// Parameters:
//   - kind: attribute, element or uniform
//   - usage: the upload frequency hint
//   - data: the initial contents, may be nil
//
// Returns:
//   - *Buffer: the buffer
//   - error: error if the backend could not create or fill it
func (r *Registry) CreateBuffer(kind gpu.BufferKind, usage gpu.BufferUsage, data []byte) (*Buffer, error) {
	b := &Buffer{r: r, id: NextID(), kind: kind, usage: usage}
	if err := b.create(data); err != nil {
		return nil, err
	}
	r.track(b)
	return b, nil
}

func (b *Buffer) create(data []byte) error {
	h, err := b.r.b.CreateBuffer(b.kind)
	if err != nil {
		return fmt.Errorf("create %s buffer: %w", b.kind, err)
	}
	b.handle = h
	return b.upload(data)
}

func (b *Buffer) upload(data []byte) error {
	if err := b.r.b.BufferData(b.handle, data, b.usage); err != nil {
		return fmt.Errorf("upload %s buffer %d: %w", b.kind, b.id, err)
	}
	b.r.addBytes(KindBuffer, len(data)-len(b.data))
	b.data = append(b.data[:0], data...)
	return nil
}

func (b *Buffer) ID() int { return b.id }
func (b *Buffer) Kind() Kind { return KindBuffer }
func (b *Buffer) Handle() gpu.Handle { return b.handle }

// BufferKind returns whether this is an attribute, element or uniform buffer.
func (b *Buffer) BufferKind() gpu.BufferKind { return b.kind }

// Size returns the current size in bytes.
func (b *Buffer) Size() int { return len(b.data) }

// Update replaces the contents. Same-size updates reuse the storage.
func (b *Buffer) Update(data []byte) error {
	if len(data) != len(b.data) {
		return b.upload(data)
	}
	return b.UpdateRange(0, data)
}

// UpdateRange overwrites part of the contents.
func (b *Buffer) UpdateRange(offset int, data []byte) error {
	if err := b.r.b.BufferSubData(b.handle, offset, data); err != nil {
		return fmt.Errorf("update %s buffer %d: %w", b.kind, b.id, err)
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) Reset() error {
	if b.destroyed {
		return nil
	}
	data := b.data
	b.r.addBytes(KindBuffer, -len(data))
	b.data = nil
	return b.create(data)
}

func (b *Buffer) Destroy() {
	if b.destroyed {
		return
	}
	b.r.b.DeleteBuffer(b.handle)
	b.r.addBytes(KindBuffer, -len(b.data))
	b.r.untrack(b)
	b.destroyed = true
}
