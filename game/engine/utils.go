package engine

// Distance returns the Euclidean distance between two points.
func Distance(from, to Vec) float64 {
	return to.Sub(from).Len()
}

// Within reports whether two points are at most radius apart.
func Within(from, to Vec, radius float64) bool {
	d := to.Sub(from)
	return d.X*d.X+d.Y*d.Y <= radius*radius
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
