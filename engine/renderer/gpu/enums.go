package gpu

import "fmt"

// Capability is a toggleable pipeline feature.
type Capability uint8

const (
	CapabilityBlend Capability = iota
	CapabilityCullFace
	CapabilityDepthTest
	CapabilityStencilTest
	CapabilityScissorTest
	CapabilityPolygonOffsetFill
	CapabilitySampleAlphaToCoverage
	CapabilityCount
)

func (c Capability) String() string {
	switch c {
	case CapabilityBlend:
		return "blend"
	case CapabilityCullFace:
		return "cull-face"
	case CapabilityDepthTest:
		return "depth-test"
	case CapabilityStencilTest:
		return "stencil-test"
	case CapabilityScissorTest:
		return "scissor-test"
	case CapabilityPolygonOffsetFill:
		return "polygon-offset-fill"
	case CapabilitySampleAlphaToCoverage:
		return "sample-alpha-to-coverage"
	}
	return fmt.Sprintf("capability(%d)", uint8(c))
}

// Face selects the polygon face(s) a cull or stencil setting applies to.
type Face uint8

const (
	FaceBack Face = iota
	FaceFront
	FaceFrontAndBack
)

func (f Face) String() string {
	switch f {
	case FaceBack:
		return "back"
	case FaceFront:
		return "front"
	case FaceFrontAndBack:
		return "front-and-back"
	}
	return fmt.Sprintf("face(%d)", uint8(f))
}

// Winding is the vertex order that defines a front face.
type Winding uint8

const (
	WindingCCW Winding = iota
	WindingCW
)

func (w Winding) String() string {
	if w == WindingCW {
		return "cw"
	}
	return "ccw"
}

// CompareFunc is used for depth and stencil tests.
type CompareFunc uint8

const (
	CompareNever CompareFunc = iota
	CompareLess
	CompareEqual
	CompareLessEqual
	CompareGreater
	CompareNotEqual
	CompareGreaterEqual
	CompareAlways
)

func (c CompareFunc) String() string {
	names := [...]string{"never", "less", "equal", "lequal", "greater", "notequal", "gequal", "always"}
	if int(c) < len(names) {
		return names[c]
	}
	return fmt.Sprintf("compare(%d)", uint8(c))
}

// Test reports whether incoming value a passes against stored value b.
func (c CompareFunc) Test(a, b float32) bool {
	switch c {
	case CompareNever:
		return false
	case CompareLess:
		return a < b
	case CompareEqual:
		return a == b
	case CompareLessEqual:
		return a <= b
	case CompareGreater:
		return a > b
	case CompareNotEqual:
		return a != b
	case CompareGreaterEqual:
		return a >= b
	}
	return true
}

// BlendFactor scales a source or destination colour before blending.
type BlendFactor uint8

const (
	BlendZero BlendFactor = iota
	BlendOne
	BlendSrcColor
	BlendOneMinusSrcColor
	BlendDstColor
	BlendOneMinusDstColor
	BlendSrcAlpha
	BlendOneMinusSrcAlpha
	BlendDstAlpha
	BlendOneMinusDstAlpha
	BlendConstantColor
	BlendOneMinusConstantColor
	BlendConstantAlpha
	BlendOneMinusConstantAlpha
	BlendSrcAlphaSaturate
)

func (b BlendFactor) String() string {
	names := [...]string{
		"zero", "one", "src-color", "one-minus-src-color", "dst-color", "one-minus-dst-color",
		"src-alpha", "one-minus-src-alpha", "dst-alpha", "one-minus-dst-alpha",
		"constant-color", "one-minus-constant-color", "constant-alpha", "one-minus-constant-alpha",
		"src-alpha-saturate",
	}
	if int(b) < len(names) {
		return names[b]
	}
	return fmt.Sprintf("blend-factor(%d)", uint8(b))
}

// BlendEquation combines the scaled source and destination colours.
type BlendEquation uint8

const (
	BlendEquationAdd BlendEquation = iota
	BlendEquationSubtract
	BlendEquationReverseSubtract
	BlendEquationMin
	BlendEquationMax
)

func (b BlendEquation) String() string {
	names := [...]string{"add", "subtract", "reverse-subtract", "min", "max"}
	if int(b) < len(names) {
		return names[b]
	}
	return fmt.Sprintf("blend-equation(%d)", uint8(b))
}

// StencilOp is the action taken on the stencil buffer after a test.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncr
	StencilIncrWrap
	StencilDecr
	StencilDecrWrap
	StencilInvert
)

func (s StencilOp) String() string {
	names := [...]string{"keep", "zero", "replace", "incr", "incr-wrap", "decr", "decr-wrap", "invert"}
	if int(s) < len(names) {
		return names[s]
	}
	return fmt.Sprintf("stencil-op(%d)", uint8(s))
}

// TextureFormat is the channel layout of a texture.
type TextureFormat uint8

const (
	FormatRGBA TextureFormat = iota
	FormatRGB
	FormatAlpha
	FormatDepth
)

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA:
		return "rgba"
	case FormatRGB:
		return "rgb"
	case FormatAlpha:
		return "alpha"
	case FormatDepth:
		return "depth"
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Channels returns the number of components per texel.
func (f TextureFormat) Channels() int {
	switch f {
	case FormatRGB:
		return 3
	case FormatAlpha, FormatDepth:
		return 1
	}
	return 4
}

// TextureType is the per-component storage type of a texture.
type TextureType uint8

const (
	TypeUint8 TextureType = iota
	TypeFp16
	TypeFloat32
)

func (t TextureType) String() string {
	switch t {
	case TypeUint8:
		return "uint8"
	case TypeFp16:
		return "fp16"
	case TypeFloat32:
		return "float32"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// BytesPerComponent returns the storage size of one component.
func (t TextureType) BytesPerComponent() int {
	switch t {
	case TypeFp16:
		return 2
	case TypeFloat32:
		return 4
	}
	return 1
}

// ParseTextureType converts a configuration string to a TextureType.
func ParseTextureType(s string) (TextureType, error) {
	switch s {
	case "", "uint8":
		return TypeUint8, nil
	case "fp16":
		return TypeFp16, nil
	case "float32":
		return TypeFloat32, nil
	}
	return TypeUint8, fmt.Errorf("unknown texture type %q", s)
}

// Filter is the texture sampling filter.
type Filter uint8

const (
	FilterNearest Filter = iota
	FilterLinear
)

func (f Filter) String() string {
	if f == FilterLinear {
		return "linear"
	}
	return "nearest"
}

// ParseFilter converts a configuration string to a Filter.
func ParseFilter(s string) (Filter, error) {
	switch s {
	case "", "nearest":
		return FilterNearest, nil
	case "linear":
		return FilterLinear, nil
	}
	return FilterNearest, fmt.Errorf("unknown filter %q", s)
}

// BufferKind is the binding target of a buffer.
type BufferKind uint8

const (
	BufferAttribute BufferKind = iota
	BufferElements
	BufferUniform
)

func (k BufferKind) String() string {
	switch k {
	case BufferAttribute:
		return "attribute"
	case BufferElements:
		return "elements"
	case BufferUniform:
		return "uniform"
	}
	return fmt.Sprintf("buffer-kind(%d)", uint8(k))
}

// BufferUsage is the expected update frequency of a buffer.
type BufferUsage uint8

const (
	UsageStatic BufferUsage = iota
	UsageDynamic
	UsageStream
)

// Attachment is a framebuffer attachment point.
type Attachment uint8

const (
	AttachmentColor0 Attachment = iota
	AttachmentColor1
	AttachmentColor2
	AttachmentColor3
	AttachmentDepth
)

// MaxColorAttachments is the number of colour attachment points.
const MaxColorAttachments = 4

func (a Attachment) String() string {
	if a == AttachmentDepth {
		return "depth"
	}
	return fmt.Sprintf("color%d", uint8(a))
}

// PrimitiveMode is the topology of a draw call.
type PrimitiveMode uint8

const (
	PrimitiveTriangles PrimitiveMode = iota
	PrimitiveTriangleStrip
	PrimitiveLines
	PrimitivePoints
)

// ClearMask selects the buffers affected by Clear.
type ClearMask uint8

const (
	ClearColor ClearMask = 1 << iota
	ClearDepth
	ClearStencil
)

// FramebufferStatus is the completeness of a framebuffer.
type FramebufferStatus uint8

const (
	FramebufferComplete FramebufferStatus = iota
	FramebufferIncompleteAttachment
	FramebufferMissingAttachment
	FramebufferIncompleteDimensions
	FramebufferUnsupported
)

func (s FramebufferStatus) String() string {
	switch s {
	case FramebufferComplete:
		return "complete"
	case FramebufferIncompleteAttachment:
		return "incomplete attachment"
	case FramebufferMissingAttachment:
		return "missing attachment"
	case FramebufferIncompleteDimensions:
		return "incomplete dimensions"
	case FramebufferUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("framebuffer-status(%d)", uint8(s))
}

// FenceStatus is the result of polling a fence.
type FenceStatus uint8

const (
	FencePending FenceStatus = iota
	FenceSignaled
	FenceFailed
)
