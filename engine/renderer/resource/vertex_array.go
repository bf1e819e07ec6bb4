package resource

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// AttributeBinding feeds one attribute location from a buffer of float32s.
type AttributeBinding struct {
	Location   uint32
	Buffer     *Buffer
	Components int
	Stride     int
	Offset     int
	// Divisor is 0 for per-vertex data and n to advance every n instances.
	Divisor int
}

// VertexArray records attribute bindings and an optional element buffer.
type VertexArray struct {
	r         *Registry
	id        int
	handle    gpu.Handle
	bindings  []AttributeBinding
	elements  *Buffer
	destroyed bool
}

var _ Resource = &VertexArray{}

// CreateVertexArray creates a vertex array with the given bindings.
//
// Parameters:
//   - bindings: attribute bindings to record
//   - elements: index buffer, may be nil
//
// Returns:
//   - *VertexArray: the vertex array
//   - error: error if the backend could not create it
func (r *Registry) CreateVertexArray(bindings []AttributeBinding, elements *Buffer) (*VertexArray, error) {
	v := &VertexArray{r: r, id: NextID(), bindings: bindings, elements: elements}
	if err := v.create(); err != nil {
		return nil, err
	}
	r.track(v)
	return v, nil
}

func (v *VertexArray) create() error {
	h, err := v.r.b.CreateVertexArray()
	if err != nil {
		return fmt.Errorf("create vertex array: %w", err)
	}
	v.handle = h
	v.record()
	return nil
}

func (v *VertexArray) record() {
	b := v.r.b
	b.BindVertexArray(v.handle)
	for _, a := range v.bindings {
		b.VertexAttribPointer(a.Location, a.Buffer.handle, a.Components, a.Stride, a.Offset)
		b.EnableVertexAttribArray(a.Location)
		b.VertexAttribDivisor(a.Location, a.Divisor)
	}
	if v.elements != nil {
		b.BindElementBuffer(v.elements.handle)
	}
	b.BindVertexArray(0)
}

func (v *VertexArray) ID() int { return v.id }
func (v *VertexArray) Kind() Kind { return KindVertexArray }
func (v *VertexArray) Handle() gpu.Handle { return v.handle }

// Bindings returns the recorded attribute bindings.
func (v *VertexArray) Bindings() []AttributeBinding { return v.bindings }

// Elements returns the index buffer, or nil.
func (v *VertexArray) Elements() *Buffer { return v.elements }

// Bind makes the vertex array current.
func (v *VertexArray) Bind() {
	v.r.b.BindVertexArray(v.handle)
}

// Rebind re-records the bindings, e.g. after a buffer was reallocated.
func (v *VertexArray) Rebind() {
	v.record()
}

func (v *VertexArray) Reset() error {
	if v.destroyed {
		return nil
	}
	return v.create()
}

func (v *VertexArray) Destroy() {
	if v.destroyed {
		return
	}
	v.r.b.DeleteVertexArray(v.handle)
	v.r.untrack(v)
	v.destroyed = true
}
