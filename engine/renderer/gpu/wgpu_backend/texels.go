package wgpu_backend

import (
	"encoding/binary"

	"github.com/Carmen-Shannon/oxy-render/engine/renderer/gpu"
	"github.com/chewxy/math32"
	"github.com/cogentcore/webgpu/wgpu"
)

// halfBits converts f to an IEEE 754 binary16 bit pattern, rounding half up.
func halfBits(f float32) uint16 {
	b := math32.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff
	switch {
	case b&0x7fffffff > 0x7f800000:
		return sign | 0x7e00
	case exp >= 31:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		h := uint16(mant >> shift)
		if mant>>(shift-1)&1 != 0 {
			h++
		}
		return sign | h
	}
	h := sign | uint16(exp)<<10 | uint16(mant>>13)
	// a carry out of the mantissa correctly bumps the exponent
	if mant&0x1000 != 0 {
		h++
	}
	return h
}

func halfFloat(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch exp {
	case 0:
		f := float32(mant) / (1 << 24)
		if sign != 0 {
			return -f
		}
		return f
	case 31:
		return math32.Float32frombits(sign | 0x7f800000 | mant<<13)
	}
	return math32.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
}

// uploadTexels converts bottom-up GL pixel data into the storage layout of
// t: float32 components become halves and RGB gains an opaque alpha.
func uploadTexels(t *texture, data []byte) []byte {
	src := data
	component := t.typ.BytesPerComponent()
	if t.typ == gpu.TypeFloat32 {
		src = make([]byte, len(data)/2)
		for i := 0; i+4 <= len(data); i += 4 {
			f := math32.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
			binary.LittleEndian.PutUint16(src[i/2:], halfBits(f))
		}
		component = 2
	}
	if t.format == gpu.FormatRGB {
		src = widenRGB(src, component)
	}
	return src
}

// widenRGB inserts an opaque alpha component after every RGB texel.
func widenRGB(data []byte, component int) []byte {
	texels := len(data) / (3 * component)
	out := make([]byte, texels*4*component)
	one := []byte{0xff}
	if component == 2 {
		one = []byte{0x00, 0x3c}
	}
	for i := range texels {
		copy(out[i*4*component:], data[i*3*component:(i+1)*3*component])
		copy(out[(i*4+3)*component:], one)
	}
	return out
}

func flipRows(data []byte, row, rows int) []byte {
	out := make([]byte, len(data))
	for r := range rows {
		copy(out[r*row:(r+1)*row], data[(rows-1-r)*row:(rows-r)*row])
	}
	return out
}

func unorm8(f float32) byte {
	return byte(math32.Round(min(max(f, 0), 1) * 255))
}

// toRGBA8 converts one stored row of n texels to RGBA8. It reports false
// for formats that cannot be read as colour.
func toRGBA8(format wgpu.TextureFormat, src []byte, n int, dst []byte) bool {
	switch format {
	case wgpu.TextureFormatRGBA8Unorm:
		copy(dst, src[:n*4])
	case wgpu.TextureFormatBGRA8Unorm:
		for i := range n {
			dst[i*4], dst[i*4+1], dst[i*4+2], dst[i*4+3] = src[i*4+2], src[i*4+1], src[i*4], src[i*4+3]
		}
	case wgpu.TextureFormatRGBA16Float:
		for i := range n * 4 {
			dst[i] = unorm8(halfFloat(binary.LittleEndian.Uint16(src[i*2:])))
		}
	case wgpu.TextureFormatR8Unorm:
		for i := range n {
			dst[i*4], dst[i*4+1], dst[i*4+2], dst[i*4+3] = src[i], 0, 0, 0xff
		}
	case wgpu.TextureFormatR16Float:
		for i := range n {
			dst[i*4], dst[i*4+1], dst[i*4+2], dst[i*4+3] = unorm8(halfFloat(binary.LittleEndian.Uint16(src[i*2:]))), 0, 0, 0xff
		}
	default:
		return false
	}
	return true
}
