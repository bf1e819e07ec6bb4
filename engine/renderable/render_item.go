package renderable

import (
	"encoding/binary"
	"fmt"
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/resource"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/state"
	"golang.org/x/mobile/exp/f32"
)

const elementsName = "elements"

// NamedTexture is a texture bound under a sampler uniform name.
type NamedTexture struct {
	Name    string
	Texture *resource.Texture
}

// RenderItem holds the GPU resources of one renderable: a program and a
// vertex array per variant plus the buffers and textures built from values.
type RenderItem struct {
	ctx        *renderer.Context
	id         int
	materialID int
	mode       gpu.PrimitiveMode
	values     *Values

	programs   map[Variant]*resource.Program
	vaos       map[Variant]*resource.VertexArray
	attributes map[string]*resource.Buffer
	elements   *resource.Buffer
	textures   map[string]*resource.Texture
	versions   map[string]int
	destroyed  bool
}

func attributeBytes(a Attribute) []byte {
	return f32.Bytes(binary.LittleEndian, a.Data...)
}

func elementBytes(indices []uint32) []byte {
	out := make([]byte, len(indices)*4)
	for i, v := range indices {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}

// NewRenderItem compiles (or reuses) the programs and uploads every
// attribute, element and texture value.
//
// Parameters:
//   - ctx: the owning context
//   - values: the item's values
//   - programs: program source per variant
//   - mode: primitive mode of the draw
//   - materialID: items sharing a material share material uniforms; -1 for none
//
// Returns:
//   - *RenderItem: the item
//   - error: error if a program failed to compile or an upload failed
func NewRenderItem(ctx *renderer.Context, values *Values, programs map[Variant]gpu.ProgramSource, mode gpu.PrimitiveMode, materialID int) (*RenderItem, error) {
	it := &RenderItem{
		ctx:        ctx,
		id:         resource.NextID(),
		materialID: materialID,
		mode:       mode,
		values:     values,
		programs:   make(map[Variant]*resource.Program),
		vaos:       make(map[Variant]*resource.VertexArray),
		attributes: make(map[string]*resource.Buffer),
		textures:   make(map[string]*resource.Texture),
		versions:   make(map[string]int),
	}
	if err := it.build(programs); err != nil {
		it.Destroy()
		return nil, err
	}
	return it, nil
}

func (it *RenderItem) build(sources map[Variant]gpu.ProgramSource) error {
	res := it.ctx.Resources
	for _, v := range slices.Sorted(maps.Keys(sources)) {
		p, err := res.Program(sources[v])
		if err != nil {
			return fmt.Errorf("%s variant: %w", v, err)
		}
		it.programs[v] = p
	}
	for _, name := range it.values.Names(KindAttribute) {
		cell := it.values.Cell(name)
		buf, err := res.CreateBuffer(gpu.BufferAttribute, gpu.UsageStatic, attributeBytes(cell.value.(Attribute)))
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		it.attributes[name] = buf
		it.versions[name] = cell.version
	}
	if cell := it.values.Cell(elementsName); cell != nil {
		buf, err := res.CreateBuffer(gpu.BufferElements, gpu.UsageStatic, elementBytes(cell.value.([]uint32)))
		if err != nil {
			return fmt.Errorf("elements: %w", err)
		}
		it.elements = buf
		it.versions[elementsName] = cell.version
	}
	for _, name := range it.values.Names(KindTexture) {
		cell := it.values.Cell(name)
		tv := cell.value.(TextureValue)
		tex, err := res.CreateTexture(tv.Format, tv.Type, tv.Filter)
		if err != nil {
			return fmt.Errorf("texture %s: %w", name, err)
		}
		it.textures[name] = tex
		if err := tex.Define(tv.Width, tv.Height, tv.Data); err != nil {
			return fmt.Errorf("texture %s: %w", name, err)
		}
		it.versions[name] = cell.version
	}
	for v, p := range it.programs {
		vao, err := res.CreateVertexArray(it.bindings(p), it.elements)
		if err != nil {
			return fmt.Errorf("%s vertex array: %w", v, err)
		}
		it.vaos[v] = vao
	}
	// Recording vertex arrays unbinds the current one.
	it.ctx.State.CurrentRenderItemID = state.InvalidID
	return nil
}

func (it *RenderItem) bindings(p *resource.Program) []resource.AttributeBinding {
	var out []resource.AttributeBinding
	for _, name := range slices.Sorted(maps.Keys(it.attributes)) {
		loc := p.AttributeLocation(name)
		if loc < 0 {
			continue
		}
		a := it.values.Cell(name).value.(Attribute)
		out = append(out, resource.AttributeBinding{
			Location:   uint32(loc),
			Buffer:     it.attributes[name],
			Components: a.Components,
			Divisor:    a.Divisor,
		})
	}
	return out
}

// ID is unique among render items and used for bind skipping.
func (it *RenderItem) ID() int { return it.id }

// Program returns the program of variant v, or nil.
func (it *RenderItem) Program(v Variant) *resource.Program { return it.programs[v] }

func (it *RenderItem) setUniforms(p *resource.Program, kind ValueKind) error {
	for _, name := range it.values.Names(kind) {
		if err := p.SetUniform(name, it.values.Cell(name).value); err != nil {
			return err
		}
	}
	return nil
}

func (it *RenderItem) bindTextures(p *resource.Program, shared []NamedTexture) error {
	unit := 0
	for _, t := range shared {
		t.Texture.Bind(unit)
		if err := p.SetUniform(t.Name, int32(unit)); err != nil {
			return err
		}
		unit++
	}
	for _, name := range slices.Sorted(maps.Keys(it.textures)) {
		it.textures[name].Bind(unit)
		if err := p.SetUniform(name, int32(unit)); err != nil {
			return err
		}
		unit++
	}
	return nil
}

func (it *RenderItem) vertexCount() int {
	for _, name := range it.values.Names(KindAttribute) {
		if a := it.values.Cell(name).value.(Attribute); a.Divisor == 0 {
			return a.Count()
		}
	}
	return 0
}

// Render draws the item with the program of variant v. globals are set when
// the program becomes current; shared textures are bound before the item's
// own textures. Variants without a program draw nothing.
func (it *RenderItem) Render(v Variant, globals map[string]any, shared []NamedTexture) error {
	if it.destroyed {
		return nil
	}
	p, ok := it.programs[v]
	if !ok {
		return nil
	}
	st := it.ctx.State
	if p.ID() == st.CurrentProgramID && st.CurrentRenderItemID == it.id {
		if err := it.setUniforms(p, KindUniform); err != nil {
			return err
		}
		if err := it.bindTextures(p, shared); err != nil {
			return err
		}
	} else {
		if p.ID() != st.CurrentProgramID || it.materialID == state.InvalidID || it.materialID != st.CurrentMaterialID {
			if p.ID() != st.CurrentProgramID {
				p.Use()
				for _, name := range slices.Sorted(maps.Keys(globals)) {
					if err := p.SetUniform(name, globals[name]); err != nil {
						return err
					}
				}
				st.CurrentProgramID = p.ID()
			}
			if err := it.setUniforms(p, KindMaterialUniform); err != nil {
				return err
			}
			st.CurrentMaterialID = it.materialID
		}
		if err := it.setUniforms(p, KindUniform); err != nil {
			return err
		}
		if err := it.bindTextures(p, shared); err != nil {
			return err
		}
		vao := it.vaos[v]
		vao.Bind()
		st.ClearVertexAttribsState()
		for _, b := range vao.Bindings() {
			st.EnableVertexAttrib(int(b.Location))
		}
		st.DisableUnusedVertexAttribs()
		st.CurrentRenderItemID = it.id
	}

	b := it.ctx.Backend()
	instances := GetOr(it.values, ValueInstanceCount, 1)
	if it.elements != nil {
		count := GetOr(it.values, ValueDrawCount, it.elements.Size()/4)
		b.DrawElements(it.mode, count, 0, instances)
	} else {
		count := GetOr(it.values, ValueDrawCount, it.vertexCount())
		b.DrawArrays(it.mode, 0, count, instances)
	}
	it.ctx.Resources.RecordDraw(instances)
	return nil
}

// Update re-uploads attribute, element and texture values whose version
// changed since the last upload.
func (it *RenderItem) Update() error {
	if it.destroyed {
		return nil
	}
	for name, buf := range it.attributes {
		cell := it.values.Cell(name)
		if cell == nil || cell.version == it.versions[name] {
			continue
		}
		if err := buf.Update(attributeBytes(cell.value.(Attribute))); err != nil {
			return err
		}
		it.versions[name] = cell.version
	}
	if it.elements != nil {
		if cell := it.values.Cell(elementsName); cell != nil && cell.version != it.versions[elementsName] {
			if err := it.elements.Update(elementBytes(cell.value.([]uint32))); err != nil {
				return err
			}
			it.versions[elementsName] = cell.version
		}
	}
	for name, tex := range it.textures {
		cell := it.values.Cell(name)
		if cell == nil || cell.version == it.versions[name] {
			continue
		}
		tv := cell.value.(TextureValue)
		var err error
		if tv.Width != tex.Width() || tv.Height != tex.Height() || tv.Data == nil {
			err = tex.Define(tv.Width, tv.Height, tv.Data)
		} else {
			err = tex.Load(tv.Data)
		}
		if err != nil {
			return err
		}
		it.versions[name] = cell.version
	}
	return nil
}

// Reset re-uploads values after the registry recreated the resources.
func (it *RenderItem) Reset() error {
	for name := range it.versions {
		it.versions[name] = -1
	}
	return it.Update()
}

// Destroy releases the item's resources. Shared programs are released, not
// destroyed. Calling it twice is a no-op.
func (it *RenderItem) Destroy() {
	if it.destroyed {
		return
	}
	for _, vao := range it.vaos {
		vao.Destroy()
	}
	for _, buf := range it.attributes {
		buf.Destroy()
	}
	if it.elements != nil {
		it.elements.Destroy()
	}
	for _, tex := range it.textures {
		tex.Destroy()
	}
	for _, p := range it.programs {
		it.ctx.Resources.ReleaseProgram(p)
	}
	it.destroyed = true
}
