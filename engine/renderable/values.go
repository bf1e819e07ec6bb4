package renderable

import (
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Well known value names.
const (
	ValueAlpha                   = "alpha"
	ValueMarkerAverage           = "markerAverage"
	ValueTransparencyAverage     = "transparencyAverage"
	ValueBoundingSphere          = "boundingSphere"
	ValueInvariantBoundingSphere = "invariantBoundingSphere"
	ValueInstanceCount           = "instanceCount"
	ValueDrawCount               = "drawCount"
	ValueXrayShaded              = "xrayShaded"

	AttributePosition  = "aPosition"
	AttributeTransform = "aTransform"
	AttributeInstance  = "aInstance"
	AttributeGroup     = "aGroup"

	UniformAlpha    = "uAlpha"
	UniformObjectID = "uObjectId"
	UniformPickType = "uPickType"
)

// ValueKind tells the render item how a value reaches the GPU.
type ValueKind uint8

const (
	// KindValue is CPU-side only.
	KindValue ValueKind = iota
	KindAttribute
	KindElements
	KindUniform
	KindMaterialUniform
	KindTexture
)

// Cell is a value with a version bumped on every change.
type Cell struct {
	kind    ValueKind
	value   any
	version int
}

func (c *Cell) Kind() ValueKind { return c.kind }
func (c *Cell) Value() any      { return c.value }
func (c *Cell) Version() int    { return c.version }

// Attribute is per-vertex or per-instance float data.
type Attribute struct {
	Data       []float32
	Components int
	// Divisor is 0 for per-vertex data and n to advance every n instances.
	Divisor int
}

// Count returns the number of elements in the attribute.
func (a Attribute) Count() int {
	if a.Components == 0 {
		return 0
	}
	return len(a.Data) / a.Components
}

// TextureValue is texture content owned by a renderable.
type TextureValue struct {
	Width  int
	Height int
	Format gpu.TextureFormat
	Type   gpu.TextureType
	Filter gpu.Filter
	Data   []byte
}

// Values is the named, versioned data of one renderable.
type Values struct {
	cells map[string]*Cell
}

// NewValues creates an empty value set.
func NewValues() *Values {
	return &Values{cells: make(map[string]*Cell)}
}

// Set stores value under name with the given kind, bumping the version.
func (v *Values) Set(name string, kind ValueKind, value any) {
	c, ok := v.cells[name]
	if !ok {
		v.cells[name] = &Cell{kind: kind, value: value}
		return
	}
	c.kind, c.value = kind, value
	c.version++
}

// SetValue stores a CPU-side value.
func (v *Values) SetValue(name string, value any) { v.Set(name, KindValue, value) }

// SetAttribute stores vertex or instance data.
func (v *Values) SetAttribute(name string, a Attribute) { v.Set(name, KindAttribute, a) }

// SetElements stores the index list.
func (v *Values) SetElements(indices []uint32) { v.Set("elements", KindElements, indices) }

// SetUniform stores a per-item uniform.
func (v *Values) SetUniform(name string, value any) { v.Set(name, KindUniform, value) }

// SetMaterialUniform stores a uniform shared by every item of a material.
func (v *Values) SetMaterialUniform(name string, value any) { v.Set(name, KindMaterialUniform, value) }

// SetTexture stores texture content.
func (v *Values) SetTexture(name string, t TextureValue) { v.Set(name, KindTexture, t) }

// UpdateIfChanged stores value only when it differs from the current one.
// Values of non-comparable types always count as changed.
//
// Returns:
//   - bool: true if the value was stored
func (v *Values) UpdateIfChanged(name string, value any) bool {
	c, ok := v.cells[name]
	if !ok {
		return false
	}
	if equalValues(c.value, value) {
		return false
	}
	c.value = value
	c.version++
	return true
}

func equalValues(a, b any) bool {
	switch x := a.(type) {
	case float32, float64, int, int32, uint32, bool, string, common.Sphere, [4]float32, [3]float32:
		return a == b
	case []float32:
		y, ok := b.([]float32)
		return ok && slices.Equal(x, y)
	}
	return false
}

// Cell returns the cell stored under name, or nil.
func (v *Values) Cell(name string) *Cell {
	return v.cells[name]
}

// Has reports whether name is defined.
func (v *Values) Has(name string) bool {
	_, ok := v.cells[name]
	return ok
}

// Names returns the names of the given kind, sorted.
func (v *Values) Names(kind ValueKind) []string {
	var out []string
	for _, name := range slices.Sorted(maps.Keys(v.cells)) {
		if v.cells[name].kind == kind {
			out = append(out, name)
		}
	}
	return out
}

// Get returns the value stored under name if it has type T.
func Get[T any](v *Values, name string) (T, bool) {
	var zero T
	c, ok := v.cells[name]
	if !ok {
		return zero, false
	}
	t, ok := c.value.(T)
	return t, ok
}

// GetOr returns the value stored under name, or def when missing or of a
// different type.
func GetOr[T any](v *Values, name string, def T) T {
	if t, ok := Get[T](v, name); ok {
		return t
	}
	return def
}
