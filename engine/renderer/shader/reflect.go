// Package shader reads WGSL programs: it derives the uniform block layout,
// texture order and entry points a WebGPU backend needs from the source.
package shader

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Binding slots of the WGSL program convention.
const (
	UniformGroup   = 0
	UniformBinding = 0
	TextureGroup   = 1
)

var (
	// ErrNoEntryPoint is returned when a stage entry point is neither given
	// nor declared.
	ErrNoEntryPoint = errors.New("shader: missing entry point")
	// ErrLayout is returned for uniform blocks and texture bindings outside
	// the convention.
	ErrLayout = errors.New("shader: unsupported binding layout")
)

// Reflect completes src from its code. Empty entry points are taken from the
// first @vertex and @fragment functions. When src declares no uniforms, the
// struct bound at @group(0) @binding(0) becomes the uniform block, one field
// per member. When src declares no textures, the texture_2d bindings of
// group 1 become the texture list; texture i must sit at binding 2i with its
// sampler at 2i+1.
//
// Parameters:
//   - src: the source to complete, fields already set are kept
//
// Returns:
//   - gpu.WGSLSource: the completed source
//   - error: ErrNoEntryPoint, ErrLayout, or an unresolvable member type
func Reflect(src gpu.WGSLSource) (gpu.WGSLSource, error) {
	code := stripComments(src.Code)
	if src.VertexEntry == "" {
		src.VertexEntry = entryPoint(code, vertexEntryRegex)
	}
	if src.FragmentEntry == "" {
		src.FragmentEntry = entryPoint(code, fragmentEntryRegex)
	}
	if src.VertexEntry == "" || src.FragmentEntry == "" {
		return src, ErrNoEntryPoint
	}

	bindings := parseBindings(code)
	if len(src.Uniforms) == 0 {
		fields, size, err := uniformBlock(code, bindings)
		if err != nil {
			return src, err
		}
		src.Uniforms, src.UniformSize = fields, size
	}
	if len(src.Textures) == 0 {
		textures, err := textureList(bindings)
		if err != nil {
			return src, err
		}
		src.Textures = textures
	}
	return src, nil
}

func uniformBlock(code string, bindings []binding) ([]gpu.UniformField, int, error) {
	var block *binding
	for i := range bindings {
		b := &bindings[i]
		if b.group != UniformGroup {
			continue
		}
		if b.binding != UniformBinding || b.addressSpace != "uniform" {
			return nil, 0, fmt.Errorf("%s at @group(%d) @binding(%d): %w", b.name, b.group, b.binding, ErrLayout)
		}
		block = b
	}
	if block == nil {
		return nil, 0, nil
	}

	structs := parseStructs(code)
	known := structLayouts(structs)
	i := slices.IndexFunc(structs, func(ps parsedStruct) bool { return ps.name == block.typeName })
	if i < 0 {
		return nil, 0, fmt.Errorf("uniform %s: %s is not a struct: %w", block.name, block.typeName, ErrLayout)
	}
	offsets, l, ok := structLayout(structs[i], known)
	if !ok {
		return nil, 0, fmt.Errorf("uniform struct %s has a member of unknown size", block.typeName)
	}
	fields := make([]gpu.UniformField, len(offsets))
	for j, f := range structs[i].fields {
		size, _ := resolveLayout(f.typeName, known)
		fields[j] = gpu.UniformField{Name: f.name, Offset: offsets[j], Size: size.size}
	}
	// bound buffer ranges are whole vec4s
	return fields, roundUp(16, l.size), nil
}

func textureList(bindings []binding) ([]string, error) {
	var textures []binding
	samplers := make(map[int]bool)
	for _, b := range bindings {
		if b.group != TextureGroup {
			continue
		}
		switch {
		case strings.HasPrefix(b.typeName, "texture_2d"):
			textures = append(textures, b)
		case b.typeName == "sampler":
			samplers[b.binding] = true
		default:
			return nil, fmt.Errorf("%s: %s: %w", b.name, b.typeName, ErrLayout)
		}
	}
	slices.SortFunc(textures, func(a, b binding) int { return a.binding - b.binding })
	names := make([]string, len(textures))
	for i, t := range textures {
		if t.binding != 2*i || !samplers[2*i+1] {
			return nil, fmt.Errorf("texture %s at binding %d needs binding %d and a sampler at %d: %w",
				t.name, t.binding, 2*i, 2*i+1, ErrLayout)
		}
		names[i] = t.name
	}
	return names, nil
}
