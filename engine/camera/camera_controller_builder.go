package camera

import "github.com/go-gl/mathgl/mgl32"

// ControllerOption is a functional option for configuring a Controller.
type ControllerOption func(*orbitController)

// WithOrbitTarget sets the pivot point.
//
// Parameters:
//   - t: world-space pivot
//
// Returns:
//   - ControllerOption: functional option to set the target
func WithOrbitTarget(t mgl32.Vec3) ControllerOption {
	return func(cc *orbitController) {
		cc.target = t
	}
}

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - ControllerOption: functional option to set the radius
func WithRadius(radius float32) ControllerOption {
	return func(cc *orbitController) {
		cc.radius = radius
	}
}

// WithRadiusLimits bounds the orbit radius.
func WithRadiusLimits(minRadius, maxRadius float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minRadius, cc.maxRadius = minRadius, maxRadius
	}
}

// WithAngles sets the initial azimuth and elevation in radians.
func WithAngles(azimuth, elevation float32) ControllerOption {
	return func(cc *orbitController) {
		cc.azimuth, cc.elevation = azimuth, elevation
	}
}

// WithElevationLimits bounds the elevation angle, in radians.
func WithElevationLimits(minElevation, maxElevation float32) ControllerOption {
	return func(cc *orbitController) {
		cc.minElevation, cc.maxElevation = minElevation, maxElevation
	}
}

// WithSpeeds sets the orbit step in radians and the zoom and pan multipliers.
//
// Parameters:
//   - orbit: radians per orbit step
//   - zoom: multiplier for zoom input
//   - pan: multiplier for pan input
//
// Returns:
//   - ControllerOption: functional option to set the speeds
func WithSpeeds(orbit, zoom, pan float32) ControllerOption {
	return func(cc *orbitController) {
		cc.orbitSpeed, cc.zoomSpeed, cc.panSpeed = orbit, zoom, pan
	}
}
