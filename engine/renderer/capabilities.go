package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
)

// Capabilities is the immutable feature descriptor of a device, built once
// per context creation or restoration.
type Capabilities struct {
	Vendor   string
	Renderer string

	MaxTextureSize             int
	MaxRenderbufferSize        int
	MaxDrawBuffers             int
	MaxVertexAttribs           int
	MaxTextureImageUnits       int
	MaxVertexTextureImageUnits int

	DrawBuffers          bool
	ColorBufferFloat     bool
	ColorBufferHalfFloat bool
	TextureFloat         bool
	TextureHalfFloat     bool
	TextureFloatLinear   bool
	DepthTexture         bool
	InstancedArrays      bool
	VertexArrayObject    bool
	FragDepth            bool
	TimerQuery           bool
	FenceSync            bool
	PixelBufferObject    bool
	BlendMinMax          bool
	LoseContext          bool
}

// Required minimums.
const (
	MinVertexTextureImageUnits = 4
	MinVertexAttribs           = 8
	MinDrawBuffers             = 1
)

// DetectCapabilities derives the descriptor from device info.
//
// Parameters:
//   - info: the device info reported by the backend
//
// Returns:
//   - Capabilities: the descriptor
//   - error: ErrMissingCapability if a required limit is not met
func DetectCapabilities(info gpu.DeviceInfo) (Capabilities, error) {
	l := info.Limits
	if l.MaxVertexTextureImageUnits < MinVertexTextureImageUnits {
		return Capabilities{}, fmt.Errorf("%w: %d vertex texture image units, need %d", ErrMissingCapability, l.MaxVertexTextureImageUnits, MinVertexTextureImageUnits)
	}
	if l.MaxVertexAttribs < MinVertexAttribs {
		return Capabilities{}, fmt.Errorf("%w: %d vertex attribs, need %d", ErrMissingCapability, l.MaxVertexAttribs, MinVertexAttribs)
	}
	if l.MaxDrawBuffers < MinDrawBuffers {
		return Capabilities{}, fmt.Errorf("%w: %d draw buffers, need %d", ErrMissingCapability, l.MaxDrawBuffers, MinDrawBuffers)
	}
	return Capabilities{
		Vendor:                     info.Vendor,
		Renderer:                   info.Renderer,
		MaxTextureSize:             l.MaxTextureSize,
		MaxRenderbufferSize:        l.MaxRenderbufferSize,
		MaxDrawBuffers:             l.MaxDrawBuffers,
		MaxVertexAttribs:           l.MaxVertexAttribs,
		MaxTextureImageUnits:       l.MaxTextureImageUnits,
		MaxVertexTextureImageUnits: l.MaxVertexTextureImageUnits,
		DrawBuffers:                info.Has(gpu.ExtDrawBuffers) && l.MaxDrawBuffers > 1,
		ColorBufferFloat:           info.Has(gpu.ExtColorBufferFloat),
		ColorBufferHalfFloat:       info.Has(gpu.ExtColorBufferHalfFloat),
		TextureFloat:               info.Has(gpu.ExtTextureFloat),
		TextureHalfFloat:           info.Has(gpu.ExtTextureHalfFloat),
		TextureFloatLinear:         info.Has(gpu.ExtTextureFloatLinear),
		DepthTexture:               info.Has(gpu.ExtDepthTexture),
		InstancedArrays:            info.Has(gpu.ExtInstancedArrays),
		VertexArrayObject:          info.Has(gpu.ExtVertexArrayObject),
		FragDepth:                  info.Has(gpu.ExtFragDepth),
		TimerQuery:                 info.Has(gpu.ExtTimerQuery),
		FenceSync:                  info.Has(gpu.ExtFenceSync),
		PixelBufferObject:          info.Has(gpu.ExtPixelBufferObject),
		BlendMinMax:                info.Has(gpu.ExtBlendMinMax),
		LoseContext:                info.Has(gpu.ExtLoseContext),
	}, nil
}

// Missing lists the optional features the device does not provide.
func (c Capabilities) Missing() []string {
	var out []string
	check := func(ok bool, name string) {
		if !ok {
			out = append(out, name)
		}
	}
	check(c.DrawBuffers, gpu.ExtDrawBuffers)
	check(c.ColorBufferFloat, gpu.ExtColorBufferFloat)
	check(c.ColorBufferHalfFloat, gpu.ExtColorBufferHalfFloat)
	check(c.TextureFloat, gpu.ExtTextureFloat)
	check(c.TextureHalfFloat, gpu.ExtTextureHalfFloat)
	check(c.TextureFloatLinear, gpu.ExtTextureFloatLinear)
	check(c.DepthTexture, gpu.ExtDepthTexture)
	check(c.InstancedArrays, gpu.ExtInstancedArrays)
	check(c.VertexArrayObject, gpu.ExtVertexArrayObject)
	check(c.FragDepth, gpu.ExtFragDepth)
	check(c.TimerQuery, gpu.ExtTimerQuery)
	check(c.FenceSync, gpu.ExtFenceSync)
	check(c.PixelBufferObject, gpu.ExtPixelBufferObject)
	check(c.BlendMinMax, gpu.ExtBlendMinMax)
	check(c.LoseContext, gpu.ExtLoseContext)
	return out
}

// SupportsFloatTarget reports whether typ can be rendered to.
func (c Capabilities) SupportsFloatTarget(typ gpu.TextureType) bool {
	switch typ {
	case gpu.TypeFloat32:
		return c.TextureFloat && c.ColorBufferFloat
	case gpu.TypeFp16:
		return c.TextureHalfFloat && (c.ColorBufferHalfFloat || c.ColorBufferFloat)
	}
	return true
}

// SupportsWboit reports whether weighted blended order independent
// transparency can run.
func (c Capabilities) SupportsWboit() bool {
	return c.DrawBuffers && c.SupportsFloatTarget(gpu.TypeFloat32)
}

// SupportsDpoit reports whether dual depth peeling can run.
func (c Capabilities) SupportsDpoit() bool {
	return c.DrawBuffers && c.BlendMinMax && c.SupportsFloatTarget(gpu.TypeFloat32)
}
