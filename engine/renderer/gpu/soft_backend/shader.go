package soft_backend

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/go-gl/mathgl/mgl32"
)

// Shader is the program payload understood by the software backend. It is
// passed through gpu.ProgramSource.Native.
type Shader struct {
	Vertex   func(in *VertexInput) VertexOutput
	Fragment func(in *FragmentInput) (color [4]float32, keep bool)
	// Outputs replaces Fragment for framebuffers with several draw buffers.
	// Output i goes to draw buffer i.
	Outputs func(in *FragmentInput) (colors [gpu.MaxColorAttachments][4]float32, keep bool)
}

// VertexInput is the per-vertex input of a vertex function.
type VertexInput struct {
	VertexID   int
	InstanceID int
	// Attribs holds the components of each attribute location.
	Attribs  [][]float32
	Uniforms Uniforms
}

// Attrib returns attribute location i, or nil if it is not bound.
func (in *VertexInput) Attrib(i int) []float32 {
	if i < 0 || i >= len(in.Attribs) {
		return nil
	}
	return in.Attribs[i]
}

// VertexOutput is the clip-space position plus varyings to interpolate.
type VertexOutput struct {
	Position mgl32.Vec4
	Varyings []float32
}

// FragmentInput is the per-fragment input of a fragment function.
type FragmentInput struct {
	// FragCoord is window x, y (pixel centre), depth in [0, 1] and 1/w.
	FragCoord   mgl32.Vec4
	Varyings    []float32
	FrontFacing bool
	Uniforms    Uniforms
	sample      func(unit int, u, v float32) [4]float32
}

// Sample reads the texture bound to unit at normalized coordinates (u, v).
func (in *FragmentInput) Sample(unit int, u, v float32) [4]float32 {
	if in.sample == nil {
		return [4]float32{}
	}
	return in.sample(unit, u, v)
}

// Uniforms is the uniform storage of one program.
type Uniforms map[string]any

// Float returns a float32 uniform, or 0.
func (u Uniforms) Float(name string) float32 {
	switch v := u[name].(type) {
	case float32:
		return v
	case int32:
		return float32(v)
	}
	return 0
}

// Int returns an int32 uniform, or 0.
func (u Uniforms) Int(name string) int32 {
	switch v := u[name].(type) {
	case int32:
		return v
	case float32:
		return int32(v)
	}
	return 0
}

// Vec4 returns a [4]float32 uniform, or zero.
func (u Uniforms) Vec4(name string) mgl32.Vec4 {
	if v, ok := u[name].([4]float32); ok {
		return v
	}
	return mgl32.Vec4{}
}

// Vec3 returns a [3]float32 uniform, or zero.
func (u Uniforms) Vec3(name string) mgl32.Vec3 {
	if v, ok := u[name].([3]float32); ok {
		return v
	}
	return mgl32.Vec3{}
}

// Mat4 returns a [16]float32 uniform, or identity.
func (u Uniforms) Mat4(name string) mgl32.Mat4 {
	if v, ok := u[name].([16]float32); ok {
		return v
	}
	return mgl32.Ident4()
}
