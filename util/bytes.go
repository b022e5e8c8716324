package util

// ExtendSlice returns xs resliced to length need, growing it if its capacity
// is too small. The contents past the previous length are unspecified.
func ExtendSlice[T any](xs []T, need int) []T {
	xs = xs[:cap(xs)]
	if n := need - cap(xs); n > 0 {
		xs = append(xs, make([]T, n)...)
	}
	return xs[:need]
}
