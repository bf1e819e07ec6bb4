package passes

import (
	"github.com/Carmen-Shannon/oxy-render/engine/renderable"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu/soft_backend"
	"github.com/go-gl/mathgl/mgl32"
)

// Sampler and uniform names of the full-screen programs.
const (
	TextureColor           = "tColor"
	TextureWboitA          = "tWboitA"
	TextureWboitB          = "tWboitB"
	TextureDpoitDepth      = "tDpoitDepth"
	TextureDpoitFrontColor = "tDpoitFrontColor"
	TextureDpoitBackColor  = "tDpoitBackColor"
	TextureDpoitBlendBack  = "tDpoitBlendBackColor"
	UniformWeight          = "uWeight"
	UniformDpoitPass       = "uDpoitPass"
	UniformPixelRatio      = "uPixelRatio"
	UniformViewport        = "uViewport"
)

const quadVertexGLSL = `#version 330 core
in vec2 aPosition;
out vec2 vUv;
void main() {
	vUv = aPosition * 0.5 + 0.5;
	gl_Position = vec4(aPosition, 0.0, 1.0);
}
`

const quadVertexWGSL = `
struct VertexOut {
	@builtin(position) position: vec4<f32>,
	@location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) aPosition: vec2<f32>) -> VertexOut {
	var out: VertexOut;
	out.position = vec4<f32>(aPosition, 0.0, 1.0);
	out.uv = vec2<f32>(aPosition.x * 0.5 + 0.5, 0.5 - aPosition.y * 0.5);
	return out;
}
`

// quadVertex is the software vertex stage shared by every full-screen program.
func quadVertex(in *soft_backend.VertexInput) soft_backend.VertexOutput {
	p := in.Attrib(0)
	return soft_backend.VertexOutput{
		Position: mgl32.Vec4{p[0], p[1], 0, 1},
		Varyings: []float32{p[0]*0.5 + 0.5, p[1]*0.5 + 0.5},
	}
}

// fullScreenSource builds a full-screen program. WGSL uniform layout and
// texture order are reflected by the WebGPU backend from the code.
func fullScreenSource(key, fragmentGLSL, fragmentWGSL string, textures []string, native *soft_backend.Shader) gpu.ProgramSource {
	native.Vertex = quadVertex
	return gpu.ProgramSource{
		Key:        key,
		Attributes: []string{renderable.AttributePosition},
		GLSL:       gpu.GLSLSource{Vertex: quadVertexGLSL, Fragment: fragmentGLSL},
		WGSL: gpu.WGSLSource{
			Code:           quadVertexWGSL + fragmentWGSL,
			VertexEntry:    "vs_main",
			FragmentEntry:  "fs_main",
			Textures:       textures,
			AttributeSizes: []int{2},
		},
		Native: native,
	}
}

func copySource() gpu.ProgramSource {
	return fullScreenSource("passes-copy", `#version 330 core
uniform sampler2D tColor;
in vec2 vUv;
out vec4 fragColor;
void main() {
	fragColor = texture(tColor, vUv);
}
`, `
@group(1) @binding(0) var tColor: texture_2d<f32>;
@group(1) @binding(1) var tColorSampler: sampler;

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	return textureSample(tColor, tColorSampler, in.uv);
}
`, []string{TextureColor}, &soft_backend.Shader{
		Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
			return in.Sample(0, in.Varyings[0], in.Varyings[1]), true
		},
	})
}

func composeSource() gpu.ProgramSource {
	return fullScreenSource("passes-compose", `#version 330 core
uniform sampler2D tColor;
uniform float uWeight;
in vec2 vUv;
out vec4 fragColor;
void main() {
	fragColor = texture(tColor, vUv) * uWeight;
}
`, `
struct Uniforms {
	uWeight: f32,
};
@group(0) @binding(0) var<uniform> u: Uniforms;
@group(1) @binding(0) var tColor: texture_2d<f32>;
@group(1) @binding(1) var tColorSampler: sampler;

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	return textureSample(tColor, tColorSampler, in.uv) * u.uWeight;
}
`, []string{TextureColor}, &soft_backend.Shader{
		Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
			c := in.Sample(0, in.Varyings[0], in.Varyings[1])
			w := in.Uniforms.Float(UniformWeight)
			return [4]float32{c[0] * w, c[1] * w, c[2] * w, c[3] * w}, true
		},
	})
}

func wboitEvaluateSource() gpu.ProgramSource {
	return fullScreenSource("passes-wboit-evaluate", `#version 330 core
uniform sampler2D tWboitA;
uniform sampler2D tWboitB;
in vec2 vUv;
out vec4 fragColor;
void main() {
	vec4 accum = texture(tWboitA, vUv);
	float r = 1.0 - accum.a;
	accum.a = texture(tWboitB, vUv).r;
	fragColor = vec4(accum.rgb / clamp(accum.a, 0.0001, 50000.0), r);
}
`, `
@group(1) @binding(0) var tWboitA: texture_2d<f32>;
@group(1) @binding(1) var tWboitASampler: sampler;
@group(1) @binding(2) var tWboitB: texture_2d<f32>;
@group(1) @binding(3) var tWboitBSampler: sampler;

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	let accum = textureSample(tWboitA, tWboitASampler, in.uv);
	let weight = textureSample(tWboitB, tWboitBSampler, in.uv).r;
	return vec4<f32>(accum.rgb / clamp(weight, 0.0001, 50000.0), 1.0 - accum.a);
}
`, []string{TextureWboitA, TextureWboitB}, &soft_backend.Shader{
		Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
			a := in.Sample(0, in.Varyings[0], in.Varyings[1])
			w := min(max(in.Sample(1, in.Varyings[0], in.Varyings[1])[0], 0.0001), 50000)
			return [4]float32{a[0] / w, a[1] / w, a[2] / w, 1 - a[3]}, true
		},
	})
}

func dpoitBlendBackSource() gpu.ProgramSource {
	return fullScreenSource("passes-dpoit-blend-back", `#version 330 core
uniform sampler2D tDpoitBackColor;
in vec2 vUv;
out vec4 fragColor;
void main() {
	fragColor = texture(tDpoitBackColor, vUv);
	if (fragColor.a == 0.0) discard;
}
`, `
@group(1) @binding(0) var tDpoitBackColor: texture_2d<f32>;
@group(1) @binding(1) var tDpoitBackColorSampler: sampler;

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	let c = textureSample(tDpoitBackColor, tDpoitBackColorSampler, in.uv);
	if (c.a == 0.0) {
		discard;
	}
	return c;
}
`, []string{TextureDpoitBackColor}, &soft_backend.Shader{
		Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
			c := in.Sample(0, in.Varyings[0], in.Varyings[1])
			return c, c[3] != 0
		},
	})
}

func dpoitEvaluateSource() gpu.ProgramSource {
	return fullScreenSource("passes-dpoit-evaluate", `#version 330 core
uniform sampler2D tDpoitFrontColor;
uniform sampler2D tDpoitBlendBackColor;
in vec2 vUv;
out vec4 fragColor;
void main() {
	vec4 front = texture(tDpoitFrontColor, vUv);
	vec4 back = texture(tDpoitBlendBackColor, vUv);
	float m = 1.0 - front.a;
	fragColor = vec4(front.rgb + m * back.rgb, front.a + m * back.a);
}
`, `
@group(1) @binding(0) var tDpoitFrontColor: texture_2d<f32>;
@group(1) @binding(1) var tDpoitFrontColorSampler: sampler;
@group(1) @binding(2) var tDpoitBlendBackColor: texture_2d<f32>;
@group(1) @binding(3) var tDpoitBlendBackColorSampler: sampler;

@fragment
fn fs_main(in: VertexOut) -> @location(0) vec4<f32> {
	let front = textureSample(tDpoitFrontColor, tDpoitFrontColorSampler, in.uv);
	let back = textureSample(tDpoitBlendBackColor, tDpoitBlendBackColorSampler, in.uv);
	let m = 1.0 - front.a;
	return vec4<f32>(front.rgb + m * back.rgb, front.a + m * back.a);
}
`, []string{TextureDpoitFrontColor, TextureDpoitBlendBack}, &soft_backend.Shader{
		Fragment: func(in *soft_backend.FragmentInput) ([4]float32, bool) {
			f := in.Sample(0, in.Varyings[0], in.Varyings[1])
			b := in.Sample(1, in.Varyings[0], in.Varyings[1])
			m := 1 - f[3]
			return [4]float32{f[0] + m*b[0], f[1] + m*b[1], f[2] + m*b[2], f[3] + m*b[3]}, true
		},
	})
}
