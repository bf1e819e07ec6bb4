// Package common holds plain value types shared across the engine. They are
// not interface-wrapped; they express data only.
package common

import "github.com/go-gl/mathgl/mgl32"

// Viewport is a rectangle in drawing-buffer pixels with a bottom-left origin.
type Viewport struct {
	X, Y          int
	Width, Height int
}

// Set overwrites all four components.
func (v *Viewport) Set(x, y, width, height int) {
	v.X, v.Y, v.Width, v.Height = x, y, width, height
}

// Empty reports whether the viewport covers no pixels.
func (v Viewport) Empty() bool {
	return v.Width <= 0 || v.Height <= 0
}

// Contains reports whether the pixel (x, y) lies inside the viewport.
func (v Viewport) Contains(x, y int) bool {
	return x >= v.X && y >= v.Y && x < v.X+v.Width && y < v.Y+v.Height
}

// Sphere is a bounding sphere. A negative radius marks an empty sphere.
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
}

// EmptySphere returns the sphere that contains nothing.
func EmptySphere() Sphere {
	return Sphere{Radius: -1}
}

// IsEmpty reports whether the sphere contains nothing.
func (s Sphere) IsEmpty() bool {
	return s.Radius < 0
}
