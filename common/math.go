package common

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Number is any numeric type Clamp operates on.
type Number interface {
	~int | ~int32 | ~int64 | ~uint8 | ~uint32 | ~float32 | ~float64
}

// Clamp limits v to [lo, hi].
func Clamp[T Number](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MergeSpheres returns the smallest sphere enclosing a and b.
func MergeSpheres(a, b Sphere) Sphere {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	d := b.Center.Sub(a.Center)
	dist := d.Len()
	if dist+b.Radius <= a.Radius {
		return a
	}
	if dist+a.Radius <= b.Radius {
		return b
	}
	radius := (dist + a.Radius + b.Radius) / 2
	center := a.Center
	if dist > 0 {
		center = a.Center.Add(d.Mul((radius - a.Radius) / dist))
	}
	return Sphere{Center: center, Radius: radius}
}

// TransformSphere moves s by the affine transform m. The radius is scaled by
// the largest axis scale of m so the result always encloses the transformed
// geometry.
func TransformSphere(s Sphere, m mgl32.Mat4) Sphere {
	if s.IsEmpty() {
		return s
	}
	c := m.Mul4x1(s.Center.Vec4(1)).Vec3()
	sx := m.Col(0).Vec3().Len()
	sy := m.Col(1).Vec3().Len()
	sz := m.Col(2).Vec3().Len()
	return Sphere{Center: c, Radius: s.Radius * math32.Max(sx, math32.Max(sy, sz))}
}

// SphereContains reports whether p lies inside s, with a small tolerance.
func SphereContains(s Sphere, p mgl32.Vec3) bool {
	if s.IsEmpty() {
		return false
	}
	return p.Sub(s.Center).Len() <= s.Radius*(1+1e-4)+1e-4
}

// SphereFromPoints returns a sphere enclosing every xyz triple in positions.
// The centre is the midpoint of the axis-aligned bounds.
func SphereFromPoints(positions []float32) Sphere {
	if len(positions) < 3 {
		return EmptySphere()
	}
	lo := mgl32.Vec3{positions[0], positions[1], positions[2]}
	hi := lo
	for i := 3; i+2 < len(positions); i += 3 {
		for k := 0; k < 3; k++ {
			lo[k] = math32.Min(lo[k], positions[i+k])
			hi[k] = math32.Max(hi[k], positions[i+k])
		}
	}
	center := lo.Add(hi).Mul(0.5)
	var r2 float32
	for i := 0; i+2 < len(positions); i += 3 {
		d := mgl32.Vec3{positions[i], positions[i+1], positions[i+2]}.Sub(center)
		r2 = math32.Max(r2, d.Dot(d))
	}
	return Sphere{Center: center, Radius: math32.Sqrt(r2)}
}
