package util

// Clamp limits x to the closed interval [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Lerp maps fraction f of the way between a and b; f is clamped to [0, 1].
func Lerp(a, b, f float64) float64 {
	return a + (b-a)*Clamp(f, 0, 1)
}
