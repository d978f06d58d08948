// Package grid maps between linear cell offsets and (x, y) coordinates
// on the display surface.
package grid

// Coords converts a linear row-major offset into (x, y) coordinates for
// a surface that is cols cells wide.
func Coords(index, cols int) (x, y int) {
	return index % cols, index / cols
}

// Index converts (x, y) coordinates into a linear row-major offset for a
// surface that is cols cells wide.
func Index(x, y, cols int) int {
	return y*cols + x
}

// InBounds reports whether (x, y) lies on a surface of the given width
// and height.
func InBounds(x, y, width, height int) bool {
	return x >= 0 && x < width && y >= 0 && y < height
}
