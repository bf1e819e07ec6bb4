package passes

// Spiral2D returns the offsets of a square spiral around the origin, starting
// at (0, 0) and walking outward counter-clockwise until every cell within
// radius has been visited once.
//
// Parameters:
//   - radius: the half size of the square, 0 yields only the origin
//
// Returns:
//   - [][2]int: the offsets in visiting order
func Spiral2D(radius int) [][2]int {
	if radius < 0 {
		radius = 0
	}
	x, y := 0, 0
	dx, dy := 0, -1
	size := radius*2 + 1
	half := float64(size) / 2
	out := make([][2]int, 0, size*size)
	for range size * size {
		if -half < float64(x) && float64(x) <= half && -half < float64(y) && float64(y) <= half {
			out = append(out, [2]int{x, y})
		}
		if x == y || (x < 0 && x == -y) || (x > 0 && x == 1-y) {
			dx, dy = -dy, dx
		}
		x, y = x+dx, y+dy
	}
	return out
}
