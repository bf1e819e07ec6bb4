package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadCode = `
struct Light {
	direction: vec3<f32>,
	intensity: f32,
};

struct Uniforms {
	uProjectionView: mat4x4<f32>,
	uNormal: mat3x3<f32>,
	uColor: vec3<f32>,
	uAlpha: f32,
	uOffset: vec2<f32>,
	uLight: Light,
	uWeights: array<vec4<f32>, 2>,
	uObjectId: i32,
};
@group(0) @binding(0) var<uniform> u: Uniforms;
/* block comment with @group(1) @binding(0) var ignored: texture_2d<f32>; */
@group(1) @binding(2) var tDepth: texture_2d<f32>;
@group(1) @binding(0) var tColor: texture_2d<f32>;
@group(1) @binding(1) var tColorSampler: sampler;
@group(1) @binding(3) var tDepthSampler: sampler;

struct VertexOut {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@vertex
fn vertex_main(@location(0) aPosition: vec2<f32>) -> VertexOut {
	var out: VertexOut;
	return out; // @fragment fn not_this()
}

@fragment
fn fragment_main(in: VertexOut) -> @location(0) vec4<f32> {
	return vec4<f32>(1.0);
}
`

func TestReflectUniformLayout(t *testing.T) {
	src, err := Reflect(gpu.WGSLSource{Code: quadCode})
	require.NoError(t, err)
	assert.Equal(t, "vertex_main", src.VertexEntry)
	assert.Equal(t, "fragment_main", src.FragmentEntry)
	assert.Equal(t, []gpu.UniformField{
		{Name: "uProjectionView", Offset: 0, Size: 64},
		{Name: "uNormal", Offset: 64, Size: 48},
		{Name: "uColor", Offset: 112, Size: 12},
		// packs into the tail of the vec3
		{Name: "uAlpha", Offset: 124, Size: 4},
		{Name: "uOffset", Offset: 128, Size: 8},
		// struct members start on 16 bytes
		{Name: "uLight", Offset: 144, Size: 16},
		{Name: "uWeights", Offset: 160, Size: 32},
		{Name: "uObjectId", Offset: 192, Size: 4},
	}, src.Uniforms)
	assert.Equal(t, 208, src.UniformSize)
	assert.Equal(t, []string{"tColor", "tDepth"}, src.Textures)
}

func TestReflectKeepsGivenFields(t *testing.T) {
	given := []gpu.UniformField{{Name: "uAlpha", Offset: 0, Size: 4}}
	src, err := Reflect(gpu.WGSLSource{
		Code:          quadCode,
		VertexEntry:   "custom_vs",
		FragmentEntry: "custom_fs",
		Uniforms:      given,
		UniformSize:   16,
		Textures:      []string{"tColor"},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom_vs", src.VertexEntry)
	assert.Equal(t, given, src.Uniforms)
	assert.Equal(t, 16, src.UniformSize)
	assert.Equal(t, []string{"tColor"}, src.Textures)
}

func TestReflectWithoutBindings(t *testing.T) {
	src, err := Reflect(gpu.WGSLSource{Code: `
@vertex fn vs(@location(0) p: vec2<f32>) -> @builtin(position) vec4<f32> { return vec4<f32>(p, 0.0, 1.0); }
@fragment fn fs() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`})
	require.NoError(t, err)
	assert.Empty(t, src.Uniforms)
	assert.Zero(t, src.UniformSize)
	assert.Empty(t, src.Textures)
}

func TestReflectErrors(t *testing.T) {
	_, err := Reflect(gpu.WGSLSource{Code: `@fragment fn fs() {}`})
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	entries := "@vertex fn vs() {}\n@fragment fn fs() {}\n"
	_, err = Reflect(gpu.WGSLSource{Code: entries + `@group(0) @binding(1) var<uniform> u: U;`})
	assert.ErrorIs(t, err, ErrLayout)

	_, err = Reflect(gpu.WGSLSource{Code: entries + `@group(0) @binding(0) var<uniform> u: vec4<f32>;`})
	assert.ErrorIs(t, err, ErrLayout)

	// texture without its sampler
	_, err = Reflect(gpu.WGSLSource{Code: entries + `@group(1) @binding(0) var tColor: texture_2d<f32>;`})
	assert.ErrorIs(t, err, ErrLayout)

	_, err = Reflect(gpu.WGSLSource{Code: entries + `
struct U { data: array<f32> };
@group(0) @binding(0) var<uniform> u: U;`})
	assert.Error(t, err)
}

func TestStripComments(t *testing.T) {
	assert.Equal(t, "a \nb  c", stripComments("a // x\nb /* y /* z */ */ c"))
}

func TestSplitTopLevel(t *testing.T) {
	assert.Equal(t, []string{"a: f32", " b: array<f32, 4>", ""}, splitTopLevel("a: f32, b: array<f32, 4>,", ','))
}
