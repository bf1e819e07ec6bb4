package shader

import (
	"strconv"
	"strings"
)

// typeLayout is the byte size and alignment of a WGSL type in the uniform
// address space.
type typeLayout struct {
	size  int
	align int
}

// primitiveLayouts maps WGSL scalar, vector and matrix type names to their
// size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var primitiveLayouts = map[string]typeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	// matCxR: C columns of vecR, each column on its vector alignment
	"mat2x2<f32>": {16, 8},
	"mat2x2f":     {16, 8},
	"mat3x3<f32>": {48, 16},
	"mat3x3f":     {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
	"mat2x4<f32>": {32, 16},
	"mat3x4<f32>": {48, 16},
	"mat4x3<f32>": {64, 16},
}

func roundUp(align, v int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) / align * align
}

// resolveLayout resolves primitives, known structs and fixed-size arrays.
// Array elements in the uniform address space are strided to 16 bytes.
func resolveLayout(typeName string, known map[string]typeLayout) (typeLayout, bool) {
	if l, ok := primitiveLayouts[typeName]; ok {
		return l, true
	}
	if l, ok := known[typeName]; ok {
		// struct members of a uniform block start on 16 bytes
		return typeLayout{size: l.size, align: roundUp(16, l.align)}, true
	}
	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return typeLayout{}, false
	}
	parts := splitTopLevel(typeName[len("array<"):len(typeName)-1], ',')
	if len(parts) != 2 {
		// runtime-sized arrays cannot live in a uniform block
		return typeLayout{}, false
	}
	elem, ok := resolveLayout(strings.TrimSpace(parts[0]), known)
	if !ok {
		return typeLayout{}, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || count <= 0 {
		return typeLayout{}, false
	}
	align := roundUp(16, elem.align)
	stride := roundUp(align, elem.size)
	return typeLayout{size: count * stride, align: align}, true
}

// structLayout places every field of ps at its aligned offset. It returns
// the offsets in field order and the struct layout, or false if a field type
// is unknown.
func structLayout(ps parsedStruct, known map[string]typeLayout) ([]int, typeLayout, bool) {
	offsets := make([]int, len(ps.fields))
	offset, maxAlign := 0, 1
	for i, f := range ps.fields {
		l, ok := resolveLayout(f.typeName, known)
		if !ok {
			return nil, typeLayout{}, false
		}
		offset = roundUp(l.align, offset)
		offsets[i] = offset
		offset += l.size
		maxAlign = max(maxAlign, l.align)
	}
	return offsets, typeLayout{size: roundUp(maxAlign, offset), align: maxAlign}, true
}

// structLayouts resolves every struct, repeating until nested struct
// dependencies settle.
func structLayouts(structs []parsedStruct) map[string]typeLayout {
	known := make(map[string]typeLayout, len(structs))
	remaining := append([]parsedStruct(nil), structs...)
	for len(remaining) > 0 {
		next := remaining[:0]
		for _, ps := range remaining {
			if _, l, ok := structLayout(ps, known); ok {
				known[ps.name] = l
			} else {
				next = append(next, ps)
			}
		}
		if len(next) == len(remaining) {
			break
		}
		remaining = next
	}
	return known
}
