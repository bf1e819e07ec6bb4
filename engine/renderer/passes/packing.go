package passes

import "github.com/chewxy/math32"

// NullID is the id read back from a pick target pixel nothing was drawn to.
// Pick targets are cleared to white, so valid ids are 0 through NullID-1.
const NullID = 0xFFFFFF

// emptyDepth is the packed depth threshold from which a pick pixel counts as
// background.
const emptyDepth = 0.999999

const (
	packUpscale     = 256.0 / 255.0
	unpackDownscale = 255.0 / 256.0
)

var unpackFactors = [4]float32{1.0 / (256 * 256 * 256), 1.0 / (256 * 256), 1.0 / 256, 1}

// PackID splits id into three normalized colour channels, most significant
// byte first.
func PackID(id int) [3]float32 {
	return [3]float32{
		float32((id>>16)&0xFF) / 255,
		float32((id>>8)&0xFF) / 255,
		float32(id&0xFF) / 255,
	}
}

// UnpackRGBToInt is the inverse of PackID on read-back bytes.
func UnpackRGBToInt(r, g, b byte) int {
	return int(r)<<16 | int(g)<<8 | int(b)
}

func fract(v float32) float32 {
	return v - math32.Floor(v)
}

// PackDepth encodes a depth value in [0, 1] into four normalized channels so
// it survives an RGBA8 target. The last channel is the most significant.
func PackDepth(v float32) [4]float32 {
	r := [4]float32{fract(v * 256 * 256 * 256), fract(v * 256 * 256), fract(v * 256), v}
	x, y, z := r[0], r[1], r[2]
	r[1] -= x / 256
	r[2] -= y / 256
	r[3] -= z / 256
	for i := range r {
		r[i] *= packUpscale
	}
	return r
}

// UnpackDepth decodes four read-back bytes written by PackDepth.
func UnpackDepth(b []byte) float32 {
	var d float32
	for i := range 4 {
		d += float32(b[i]) / 255 * unpackFactors[i]
	}
	return d * unpackDownscale
}
