package util

// HashString returns a deterministic 32-bit hash of s.
// Used to derive stable pseudo-random picks from caller-provided seeds.
func HashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = 31*h + uint32(s[i])
	}
	return h
}

// Clamp constrains n to the inclusive range [min, max].
func Clamp[T int | int64 | float64](n, min, max T) T {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
