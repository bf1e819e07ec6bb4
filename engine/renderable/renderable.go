package renderable

import (
	"github.com/Carmen-Shannon/oxy-render/common"
	"github.com/Carmen-Shannon/oxy-render/engine/logger"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
	"github.com/go-gl/mathgl/mgl32"
)

// Renderable is the live, GPU-backed form of an Object.
type Renderable interface {
	// ID is the object id, also written to the object pick target.
	ID() int
	MaterialID() int
	Kind() Kind
	Object() *Object
	Values() *Values
	State() *State

	// Render draws with the program of variant v. It is a no-op once disposed.
	//
	// Parameters:
	//   - v: the variant to draw
	//   - globals: per-pass uniforms set when the program becomes current
	//   - shared: pass-owned textures bound before the renderable's own
	//
	// Returns:
	//   - error: an error if a uniform could not be set
	Render(v Variant, globals map[string]any, shared []NamedTexture) error

	// Program returns the program of variant v, or nil.
	Program(v Variant) *resource.Program

	// Update uploads changed values. It is a no-op once disposed.
	Update() error

	// Reset re-uploads every value after context restoration.
	Reset() error

	// Dispose releases the GPU resources and marks the state disposed.
	Dispose()
}

type graphicsRenderable struct {
	obj  *Object
	item *RenderItem
}

var _ Renderable = &graphicsRenderable{}

// New builds the render item of obj. Program compilation happens here.
//
// Parameters:
//   - ctx: the owning context
//   - obj: the content object
//
// Returns:
//   - Renderable: the renderable
//   - error: error if building the render item failed
func New(ctx *renderer.Context, obj *Object) (Renderable, error) {
	if obj.Values == nil {
		obj.Values = NewValues()
	}
	v := obj.Values
	if !v.Has(ValueAlpha) {
		v.SetValue(ValueAlpha, float32(1))
	}
	if !v.Has(UniformObjectID) {
		v.SetUniform(UniformObjectID, int32(obj.ID))
	}
	if !v.Has(UniformAlpha) {
		v.SetUniform(UniformAlpha, alphaOf(v, &obj.State))
	}
	item, err := NewRenderItem(ctx, v, obj.Programs, obj.DrawMode, obj.MaterialID)
	if err != nil {
		return nil, err
	}
	return &graphicsRenderable{obj: obj, item: item}, nil
}

func alphaOf(v *Values, s *State) float32 {
	return common.Clamp(GetOr(v, ValueAlpha, float32(1))*s.AlphaFactor, 0, 1)
}

// Opacity combines alpha, alpha factor, transparency average and x-ray
// shading into one value in [0, 1].
func Opacity(v *Values, s *State) float32 {
	a := alphaOf(v, s) * (1 - GetOr(v, ValueTransparencyAverage, float32(0)))
	if GetOr(v, ValueXrayShaded, false) {
		a *= 0.5
	}
	return a
}

// IsOpaque reports whether r is drawn in the opaque pass.
func IsOpaque(r Renderable) bool {
	return r.State().Opaque && Opacity(r.Values(), r.State()) >= 1
}

func (r *graphicsRenderable) ID() int         { return r.obj.ID }
func (r *graphicsRenderable) MaterialID() int { return r.obj.MaterialID }
func (r *graphicsRenderable) Kind() Kind      { return r.obj.Kind }
func (r *graphicsRenderable) Object() *Object { return r.obj }
func (r *graphicsRenderable) Values() *Values { return r.obj.Values }
func (r *graphicsRenderable) State() *State   { return &r.obj.State }

func (r *graphicsRenderable) Render(v Variant, globals map[string]any, shared []NamedTexture) error {
	if r.obj.State.Disposed {
		return nil
	}
	r.obj.Values.UpdateIfChanged(UniformAlpha, alphaOf(r.obj.Values, &r.obj.State))
	return r.item.Render(v, globals, shared)
}

func (r *graphicsRenderable) Program(v Variant) *resource.Program {
	return r.item.Program(v)
}

func (r *graphicsRenderable) Update() error {
	if r.obj.State.Disposed {
		return nil
	}
	return r.item.Update()
}

func (r *graphicsRenderable) Reset() error {
	if r.obj.State.Disposed {
		return nil
	}
	return r.item.Reset()
}

func (r *graphicsRenderable) Dispose() {
	r.obj.State.Disposed = true
	r.item.Destroy()
}

// ComputeRenderable draws a single program over the full viewport. It has
// no render state and is used for copy, compose and accumulate steps.
type ComputeRenderable struct {
	values   *Values
	item     *RenderItem
	disposed bool
}

var _ renderer.NamedRenderable = &ComputeRenderable{}

var fullScreenQuad = []float32{-1, -1, 1, -1, -1, 1, 1, 1}

// NewCompute builds a full-screen renderable. An aPosition attribute is added
// when values lacks one.
//
// Parameters:
//   - ctx: the owning context
//   - src: the program source
//   - values: uniforms and textures of the program
//
// Returns:
//   - *ComputeRenderable: the renderable
//   - error: error if building the render item failed
func NewCompute(ctx *renderer.Context, src gpu.ProgramSource, values *Values) (*ComputeRenderable, error) {
	if values == nil {
		values = NewValues()
	}
	if !values.Has(AttributePosition) {
		values.SetAttribute(AttributePosition, Attribute{Data: fullScreenQuad, Components: 2})
	}
	item, err := NewRenderItem(ctx, values, map[Variant]gpu.ProgramSource{VariantColor: src}, gpu.PrimitiveTriangleStrip, -1)
	if err != nil {
		return nil, err
	}
	return &ComputeRenderable{values: values, item: item}, nil
}

// Values returns the uniforms and textures of the renderable.
func (c *ComputeRenderable) Values() *Values { return c.values }

// Render draws the quad.
func (c *ComputeRenderable) Render() error {
	if c.disposed {
		return nil
	}
	return c.item.Render(VariantColor, nil, nil)
}

// RenderWith draws the quad with extra pass textures bound first.
func (c *ComputeRenderable) RenderWith(shared []NamedTexture) error {
	if c.disposed {
		return nil
	}
	return c.item.Render(VariantColor, nil, shared)
}

// Update uploads changed values. Failures are logged.
func (c *ComputeRenderable) Update() {
	if c.disposed {
		return
	}
	if err := c.item.Update(); err != nil {
		logger.Logger().Warn("compute renderable update failed", "err", err)
	}
}

func (c *ComputeRenderable) Dispose() {
	if c.disposed {
		return
	}
	c.item.Destroy()
	c.disposed = true
}

// SphereOf returns the bounding sphere value of v, or an empty sphere.
func SphereOf(v *Values, name string) common.Sphere {
	return GetOr(v, name, common.EmptySphere())
}

// TransformOf returns the aTransform instance matrices of v.
func TransformOf(v *Values) []mgl32.Mat4 {
	a, ok := Get[Attribute](v, AttributeTransform)
	if !ok || a.Components != 16 {
		return nil
	}
	out := make([]mgl32.Mat4, len(a.Data)/16)
	for i := range out {
		copy(out[i][:], a.Data[i*16:i*16+16])
	}
	return out
}
