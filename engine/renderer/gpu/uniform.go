package gpu

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// NormalizeUniform converts a uniform value to one of the canonical types
// accepted by Backend.Uniform.
func NormalizeUniform(v any) (any, error) {
	switch x := v.(type) {
	case float32, int32, [2]float32, [3]float32, [4]float32, [9]float32, [16]float32, []float32:
		return x, nil
	case float64:
		return float32(x), nil
	case int:
		return int32(x), nil
	case uint32:
		return int32(x), nil
	case bool:
		if x {
			return int32(1), nil
		}
		return int32(0), nil
	case mgl32.Vec2:
		return [2]float32(x), nil
	case mgl32.Vec3:
		return [3]float32(x), nil
	case mgl32.Vec4:
		return [4]float32(x), nil
	case mgl32.Mat3:
		return [9]float32(x), nil
	case mgl32.Mat4:
		return [16]float32(x), nil
	}
	return nil, fmt.Errorf("unsupported uniform type %T", v)
}
