package gpu

// GLSLSource is the program text for GL backends.
type GLSLSource struct {
	Vertex   string
	Fragment string
}

// UniformField places a named uniform inside the WGSL uniform block.
type UniformField struct {
	Name   string
	Offset int
	Size   int
}

// WGSLSource is the program text for the WebGPU backend. Uniforms live in one
// block at @group(0) @binding(0); texture i is bound at @group(1)
// @binding(2*i) with its sampler at @binding(2*i+1). Entry points, Uniforms
// and Textures left empty are read from Code when the program is created.
type WGSLSource struct {
	Code           string
	VertexEntry    string
	FragmentEntry  string
	Uniforms       []UniformField
	UniformSize    int
	Textures       []string
	AttributeSizes []int
}

// ProgramSource carries program code for every backend that may compile it.
// Key identifies the program for caching; two sources with the same Key must
// be interchangeable.
type ProgramSource struct {
	Key        string
	Attributes []string
	GLSL       GLSLSource
	WGSL       WGSLSource
	// Native is an opaque payload for in-process backends.
	Native any
}
