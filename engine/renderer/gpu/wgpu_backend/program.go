package wgpu_backend

import (
	"encoding/binary"
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/shader"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
)

type textureRef struct {
	h   gpu.Handle
	gen uint32
}

type textureKey [maxTextureUnits]textureRef

type program struct {
	src    gpu.WGSLSource
	module *wgpu.ShaderModule

	uniformLayout *wgpu.BindGroupLayout
	textureLayout *wgpu.BindGroupLayout
	layout        *wgpu.PipelineLayout
	uniformGroup  *wgpu.BindGroup

	fields   map[string]gpu.UniformField
	uniforms []byte
	// units maps sampler names to the texture unit they read.
	units map[string]int
	// locations holds the first shader location of each attribute.
	locations []uint32

	pipelines map[pipelineKey]*wgpu.RenderPipeline
	groups    map[textureKey]*wgpu.BindGroup
}

// shaderLocations assigns WGSL locations to attributes. Attributes wider
// than four components occupy one location per four.
func shaderLocations(attributes int, sizes []int) []uint32 {
	out := make([]uint32, attributes)
	next := uint32(0)
	for i := range attributes {
		out[i] = next
		size := 4
		if i < len(sizes) && sizes[i] > 0 {
			size = sizes[i]
		}
		next += uint32((size + 3) / 4)
	}
	return out
}

// CreateProgram compiles the WGSL module and builds the bind group layouts:
// the uniform block at group 0 with a dynamic offset into the uniform ring,
// and texture/sampler pairs at group 1.
func (b *Backend) CreateProgram(src gpu.ProgramSource) (gpu.Handle, error) {
	if src.WGSL.Code == "" {
		return 0, fmt.Errorf("program %s has no WGSL source: %w", src.Key, gpu.ErrUnsupported)
	}
	w, err := shader.Reflect(src.WGSL)
	if err != nil {
		return 0, fmt.Errorf("program %s: %w", src.Key, err)
	}
	if len(w.Textures) > maxTextureUnits {
		return 0, fmt.Errorf("program %s: %d textures, at most %d", src.Key, len(w.Textures), maxTextureUnits)
	}
	if len(src.Attributes) > maxVertexAttribs {
		return 0, fmt.Errorf("program %s: %d attributes, at most %d", src.Key, len(src.Attributes), maxVertexAttribs)
	}

	module, err := b.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: src.Key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: w.Code,
		},
	})
	if err != nil {
		return 0, fmt.Errorf("compile %s: %w", src.Key, err)
	}
	p := &program{
		src:       w,
		module:    module,
		fields:    make(map[string]gpu.UniformField, len(w.Uniforms)),
		uniforms:  make([]byte, w.UniformSize),
		units:     make(map[string]int, len(w.Textures)),
		locations: shaderLocations(len(src.Attributes), w.AttributeSizes),
		pipelines: make(map[pipelineKey]*wgpu.RenderPipeline),
		groups:    make(map[textureKey]*wgpu.BindGroup),
	}
	for _, f := range w.Uniforms {
		p.fields[f.Name] = f
	}
	for i, name := range w.Textures {
		p.units[name] = i
	}

	groupLayouts := []*wgpu.BindGroupLayout{b.emptyLayout}
	if w.UniformSize > 0 {
		p.uniformLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label: src.Key + " uniforms",
			Entries: []wgpu.BindGroupLayoutEntry{{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer: wgpu.BufferBindingLayout{
					Type:             wgpu.BufferBindingTypeUniform,
					HasDynamicOffset: true,
					MinBindingSize:   uint64(w.UniformSize),
				},
			}},
		})
		if err != nil {
			p.release()
			return 0, fmt.Errorf("uniform layout %s: %w", src.Key, err)
		}
		p.uniformGroup, err = b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  src.Key + " uniforms",
			Layout: p.uniformLayout,
			Entries: []wgpu.BindGroupEntry{{
				Binding: 0,
				Buffer:  b.uniformRing,
				Offset:  0,
				Size:    uint64(w.UniformSize),
			}},
		})
		if err != nil {
			p.release()
			return 0, fmt.Errorf("uniform bind group %s: %w", src.Key, err)
		}
		groupLayouts[0] = p.uniformLayout
	}
	if len(w.Textures) > 0 {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, 2*len(w.Textures))
		for i := range w.Textures {
			entries = append(entries,
				wgpu.BindGroupLayoutEntry{
					Binding:    uint32(2 * i),
					Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
					Texture: wgpu.TextureBindingLayout{
						SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
						ViewDimension: wgpu.TextureViewDimension2D,
					},
				},
				wgpu.BindGroupLayoutEntry{
					Binding:    uint32(2*i + 1),
					Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
					Sampler:    wgpu.SamplerBindingLayout{Type: wgpu.SamplerBindingTypeNonFiltering},
				},
			)
		}
		p.textureLayout, err = b.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   src.Key + " textures",
			Entries: entries,
		})
		if err != nil {
			p.release()
			return 0, fmt.Errorf("texture layout %s: %w", src.Key, err)
		}
		groupLayouts = append(groupLayouts, p.textureLayout)
	}
	p.layout, err = b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            src.Key,
		BindGroupLayouts: groupLayouts,
	})
	if err != nil {
		p.release()
		return 0, fmt.Errorf("pipeline layout %s: %w", src.Key, err)
	}

	h := b.handle()
	b.programs[h] = p
	return h, nil
}

func (b *Backend) UseProgram(prog gpu.Handle) { b.currentProgram = prog }

// Uniform writes value into the program's uniform block, or selects the
// texture unit when name is one of its samplers. Unknown names are ignored.
func (b *Backend) Uniform(prog gpu.Handle, name string, value any) error {
	p, ok := b.programs[prog]
	if !ok {
		return gpu.ErrInvalidHandle
	}
	_, sampler := p.units[name]
	f, field := p.fields[name]
	if !sampler && !field {
		return nil
	}
	v, err := gpu.NormalizeUniform(value)
	if err != nil {
		return fmt.Errorf("program %d uniform %s: %w", prog, name, err)
	}
	if sampler {
		unit, ok := v.(int32)
		if !ok {
			return fmt.Errorf("sampler %s takes a unit, got %T", name, value)
		}
		p.units[name] = int(unit)
		return nil
	}
	return packUniform(p.uniforms, f, v)
}

func putFloats(dst []byte, vs []float32) {
	for i, v := range vs {
		if (i+1)*4 > len(dst) {
			return
		}
		binary.LittleEndian.PutUint32(dst[i*4:], math32.Float32bits(v))
	}
}

// putStrided writes vs in groups of n with each group starting on a 16 byte
// boundary, the uniform layout of mat3x3 and array<f32>.
func putStrided(dst []byte, vs []float32, n int) {
	for g := 0; g*n < len(vs); g++ {
		if g*16 >= len(dst) {
			return
		}
		putFloats(dst[g*16:], vs[g*n:min((g+1)*n, len(vs))])
	}
}

// packUniform stores value at f in the uniform block. Matrices and arrays
// whose field is large enough for 16 byte strides are laid out strided.
func packUniform(block []byte, f gpu.UniformField, value any) error {
	if f.Offset < 0 || f.Offset+f.Size > len(block) {
		return fmt.Errorf("uniform %s outside the uniform block", f.Name)
	}
	dst := block[f.Offset : f.Offset+f.Size]
	switch v := value.(type) {
	case float32:
		putFloats(dst, []float32{v})
	case int32:
		if len(dst) >= 4 {
			binary.LittleEndian.PutUint32(dst, uint32(v))
		}
	case [2]float32:
		putFloats(dst, v[:])
	case [3]float32:
		putFloats(dst, v[:])
	case [4]float32:
		putFloats(dst, v[:])
	case [9]float32:
		if f.Size >= 48 {
			putStrided(dst, v[:], 3)
		} else {
			putFloats(dst, v[:])
		}
	case [16]float32:
		putFloats(dst, v[:])
	case []float32:
		if f.Size >= len(v)*16 {
			putStrided(dst, v, 1)
		} else {
			putFloats(dst, v)
		}
	default:
		return fmt.Errorf("unsupported uniform type %T for %s", value, f.Name)
	}
	return nil
}

// textureGroup returns the bind group for the textures currently bound to
// the units the program samples, creating it on first use.
func (b *Backend) textureGroup(p *program) (*wgpu.BindGroup, error) {
	if len(p.src.Textures) == 0 {
		return nil, nil
	}
	var key textureKey
	for i, name := range p.src.Textures {
		unit := p.units[name]
		if unit < 0 || unit >= len(b.units) {
			return nil, fmt.Errorf("sampler %s reads unit %d", name, unit)
		}
		h := b.units[unit]
		t := b.textures[h]
		if t == nil || t.tex == nil {
			return nil, fmt.Errorf("sampler %s: no texture on unit %d", name, unit)
		}
		key[i] = textureRef{h: h, gen: t.gen}
	}
	if g, ok := p.groups[key]; ok {
		return g, nil
	}
	entries := make([]wgpu.BindGroupEntry, 0, 2*len(p.src.Textures))
	for i := range p.src.Textures {
		entries = append(entries,
			wgpu.BindGroupEntry{Binding: uint32(2 * i), TextureView: b.textures[key[i].h].view},
			wgpu.BindGroupEntry{Binding: uint32(2*i + 1), Sampler: b.sampler},
		)
	}
	g, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  p.textureLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("texture bind group: %w", err)
	}
	p.groups[key] = g
	return g, nil
}

// dropTextureGroups forgets every cached bind group that references tex.
func (b *Backend) dropTextureGroups(tex gpu.Handle) {
	for _, p := range b.programs {
		for key, g := range p.groups {
			for _, ref := range key {
				if ref.h == tex {
					g.Release()
					delete(p.groups, key)
					break
				}
			}
		}
	}
}

func (p *program) release() {
	for _, pl := range p.pipelines {
		pl.Release()
	}
	for _, g := range p.groups {
		g.Release()
	}
	if p.uniformGroup != nil {
		p.uniformGroup.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.uniformLayout != nil {
		p.uniformLayout.Release()
	}
	if p.textureLayout != nil {
		p.textureLayout.Release()
	}
	p.module.Release()
}

func (b *Backend) DeleteProgram(prog gpu.Handle) {
	if p, ok := b.programs[prog]; ok {
		b.endPass()
		p.release()
		delete(b.programs, prog)
	}
}
