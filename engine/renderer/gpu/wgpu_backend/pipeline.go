package wgpu_backend

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// target describes the attachments of a render pass, the part of the
// framebuffer a pipeline must agree with.
type target struct {
	colors [gpu.MaxColorAttachments]wgpu.TextureFormat
	count  int
	depth  bool
}

type vertexSlot struct {
	used       bool
	components int32
	stride     int32
	instanced  bool
}

// pipelineKey folds every piece of GL state that WebGPU bakes into a
// pipeline. Two draws with equal keys share a pipeline.
type pipelineKey struct {
	topology   gpu.PrimitiveMode
	blend      bool
	srcRGB     gpu.BlendFactor
	dstRGB     gpu.BlendFactor
	srcAlpha   gpu.BlendFactor
	dstAlpha   gpu.BlendFactor
	eqRGB      gpu.BlendEquation
	eqAlpha    gpu.BlendEquation
	colorMask  [4]bool
	depthTest  bool
	depthWrite bool
	depthFunc  gpu.CompareFunc
	cull       bool
	cullFace   gpu.Face
	frontFace  gpu.Winding
	target     target
	slots      [maxVertexAttribs]vertexSlot
}

func makeKey(s *gpu.StateSnapshot, mode gpu.PrimitiveMode, t target, v *vertexArray, attributes int) pipelineKey {
	k := pipelineKey{
		topology:  mode,
		blend:     s.Enabled[gpu.CapabilityBlend],
		colorMask: s.ColorMask,
		depthTest: s.Enabled[gpu.CapabilityDepthTest],
		cull:      s.Enabled[gpu.CapabilityCullFace],
		frontFace: s.FrontFace,
		target:    t,
	}
	if k.blend {
		k.srcRGB, k.dstRGB, k.srcAlpha, k.dstAlpha = s.BlendSrcRGB, s.BlendDstRGB, s.BlendSrcAlpha, s.BlendDstAlpha
		k.eqRGB, k.eqAlpha = s.BlendEqRGB, s.BlendEqAlpha
	}
	// GL skips depth writes when the depth test is off
	if k.depthTest && t.depth {
		k.depthWrite = s.DepthMask
		k.depthFunc = s.DepthFunc
	} else {
		k.depthTest = false
	}
	if k.cull {
		k.cullFace = s.CullFace
	}
	for i := range min(attributes, len(v.attribs)) {
		a := v.attribs[i]
		if !a.enabled || a.buf == 0 {
			continue
		}
		stride := a.stride
		if stride == 0 {
			stride = a.components * 4
		}
		k.slots[i] = vertexSlot{used: true, components: int32(a.components), stride: int32(stride), instanced: a.divisor > 0}
	}
	return k
}

// vertexAttributes splits an attribute into float vectors of at most four
// components on consecutive locations.
func vertexAttributes(location uint32, components int) []wgpu.VertexAttribute {
	var out []wgpu.VertexAttribute
	for c := 0; c < components; c += 4 {
		out = append(out, wgpu.VertexAttribute{
			Format:         vertexFormats[min(components-c, 4)],
			Offset:         uint64(c * 4),
			ShaderLocation: location + uint32(c/4),
		})
	}
	return out
}

func vertexLayouts(k *pipelineKey, locations []uint32) []wgpu.VertexBufferLayout {
	last := -1
	for i := range locations {
		if k.slots[i].used {
			last = i
		}
	}
	out := make([]wgpu.VertexBufferLayout, last+1)
	for i := range out {
		s := k.slots[i]
		if !s.used {
			continue
		}
		step := wgpu.VertexStepModeVertex
		if s.instanced {
			step = wgpu.VertexStepModeInstance
		}
		out[i] = wgpu.VertexBufferLayout{
			ArrayStride: uint64(s.stride),
			StepMode:    step,
			Attributes:  vertexAttributes(locations[i], int(s.components)),
		}
	}
	return out
}

func blendState(k *pipelineKey) *wgpu.BlendState {
	if !k.blend {
		return nil
	}
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			Operation: blendOperations[k.eqRGB],
			SrcFactor: blendFactors[k.srcRGB],
			DstFactor: blendFactors[k.dstRGB],
		},
		Alpha: wgpu.BlendComponent{
			Operation: blendOperations[k.eqAlpha],
			SrcFactor: blendFactors[k.srcAlpha],
			DstFactor: blendFactors[k.dstAlpha],
		},
	}
}

// renderPipeline returns the cached pipeline for k, creating it on a miss.
func (b *Backend) renderPipeline(p *program, k pipelineKey) (*wgpu.RenderPipeline, error) {
	if pl, ok := p.pipelines[k]; ok {
		return pl, nil
	}

	targets := make([]wgpu.ColorTargetState, k.target.count)
	for i := range targets {
		targets[i] = wgpu.ColorTargetState{
			Format:    k.target.colors[i],
			Blend:     blendState(&k),
			WriteMask: colorWriteMask(k.colorMask),
		}
	}
	primitive := wgpu.PrimitiveState{
		Topology:  topologies[k.topology],
		FrontFace: frontFace(k.frontFace),
		CullMode:  cullMode(k.cull, k.cullFace),
	}
	if k.topology == gpu.PrimitiveTriangleStrip {
		primitive.StripIndexFormat = wgpu.IndexFormatUint32
	}
	var depthStencil *wgpu.DepthStencilState
	if k.target.depth {
		compare := wgpu.CompareFunctionAlways
		if k.depthTest {
			compare = compareFuncs[k.depthFunc]
		}
		depthStencil = &wgpu.DepthStencilState{
			Format:            wgpu.TextureFormatDepth32Float,
			DepthWriteEnabled: k.depthWrite,
			DepthCompare:      compare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}

	created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "oxy-render pipeline",
		Layout: p.layout,
		Vertex: wgpu.VertexState{
			Module:     p.module,
			EntryPoint: p.src.VertexEntry,
			Buffers:    vertexLayouts(&k, p.locations),
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.module,
			EntryPoint: p.src.FragmentEntry,
			Targets:    targets,
		},
		Primitive: primitive,
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
		DepthStencil: depthStencil,
	})
	if err != nil {
		return nil, fmt.Errorf("create render pipeline: %w", err)
	}
	p.pipelines[k] = created
	return created, nil
}
