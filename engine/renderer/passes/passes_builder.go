package passes

import "github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"

type passesConfig struct {
	colorType     gpu.TextureType
	colorFilter   gpu.Filter
	transparency  TransparencyMode
	dpoitPasses   int
	pickBaseScale float64
	pickPadding   int
	msMode        MultiSampleMode
	sampleLevel   int
}

// PassesBuilderOption is a functional option applied by NewPasses.
type PassesBuilderOption func(*passesConfig)

// WithColorType sets the component type of the draw pass colour target.
//
// Parameters:
//   - typ: uint8, fp16 or float32
//
// Returns:
//   - PassesBuilderOption: option function to apply
func WithColorType(typ gpu.TextureType) PassesBuilderOption {
	return func(c *passesConfig) {
		c.colorType = typ
	}
}

// WithColorFilter sets the sampling filter of the draw pass colour target.
func WithColorFilter(filter gpu.Filter) PassesBuilderOption {
	return func(c *passesConfig) {
		c.colorFilter = filter
	}
}

// WithTransparency selects the transparency mode of the draw pass.
func WithTransparency(mode TransparencyMode) PassesBuilderOption {
	return func(c *passesConfig) {
		c.transparency = mode
	}
}

// WithDpoitPasses sets the number of dual depth peeling iterations.
func WithDpoitPasses(n int) PassesBuilderOption {
	return func(c *passesConfig) {
		c.dpoitPasses = n
	}
}

// WithPickBaseScale sets the pick target resolution fraction.
//
// Parameters:
//   - scale: fraction of the draw resolution, in (0, 1]
//
// Returns:
//   - PassesBuilderOption: option function to apply
func WithPickBaseScale(scale float64) PassesBuilderOption {
	return func(c *passesConfig) {
		c.pickBaseScale = scale
	}
}

// WithPickPadding sets the pick search radius in drawing-buffer pixels.
func WithPickPadding(padding int) PassesBuilderOption {
	return func(c *passesConfig) {
		c.pickPadding = padding
	}
}

// WithMultiSample sets the multi-sample mode and jitter level.
//
// Parameters:
//   - mode: off, on or temporal
//   - sampleLevel: jitter table index, 0 to MaxSampleLevel
//
// Returns:
//   - PassesBuilderOption: option function to apply
func WithMultiSample(mode MultiSampleMode, sampleLevel int) PassesBuilderOption {
	return func(c *passesConfig) {
		c.msMode, c.sampleLevel = mode, sampleLevel
	}
}
