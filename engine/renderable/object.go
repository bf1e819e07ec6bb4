// Package renderable turns content objects into drawable GPU items. An Object
// is what the content layer hands over; a Renderable is its live, GPU-backed
// counterpart owned by a scene.
package renderable

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Variant selects which program of a renderable a pass draws with.
type Variant uint8

const (
	VariantColor Variant = iota
	VariantColorBlended
	VariantColorWboit
	VariantColorDpoit
	VariantPick
	VariantDepth
	VariantMarking
)

func (v Variant) String() string {
	switch v {
	case VariantColor:
		return "color"
	case VariantColorBlended:
		return "colorBlended"
	case VariantColorWboit:
		return "colorWboit"
	case VariantColorDpoit:
		return "colorDpoit"
	case VariantPick:
		return "pick"
	case VariantDepth:
		return "depth"
	case VariantMarking:
		return "marking"
	}
	return "unknown"
}

// Kind separates surface primitives from volumes. Scene aggregates only
// consider primitives.
type Kind uint8

const (
	KindPrimitive Kind = iota
	KindVolume
)

// PickType is the value of the uPickType uniform in the pick variant.
type PickType int32

const (
	PickObject   PickType = 1
	PickInstance PickType = 2
	PickGroup    PickType = 3
)

// State is the mutable render state of a renderable.
type State struct {
	Disposed    bool
	Visible     bool
	AlphaFactor float32
	Pickable    bool
	ColorOnly   bool
	Opaque      bool
	WriteDepth  bool
}

// DefaultState is a visible, opaque, pickable state.
func DefaultState() State {
	return State{Visible: true, AlphaFactor: 1, Pickable: true, Opaque: true, WriteDepth: true}
}

// Object is the content handoff: fully built values plus per-variant
// program sources. Objects compare by pointer.
type Object struct {
	ID         int
	Kind       Kind
	MaterialID int
	Values     *Values
	State      State
	Programs   map[Variant]gpu.ProgramSource
	DrawMode   gpu.PrimitiveMode
}
