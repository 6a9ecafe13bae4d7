package vrm

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Boundary is the treatment of window cells outside the tile.
type Boundary int

const (
	// BoundaryZero lets outside cells contribute zero while the denominator
	// stays n*n. Ruggedness is biased upward near edges.
	BoundaryZero Boundary = iota

	// BoundaryReflect mirrors the tile at its edges (d c b a | a b c d).
	BoundaryReflect

	// BoundaryExclude ignores outside cells and normalizes by the number of
	// cells inside the tile.
	BoundaryExclude
)

func (b Boundary) String() string {
	switch b {
	case BoundaryReflect:
		return "reflect"
	case BoundaryExclude:
		return "exclude"
	}
	return "zero"
}

// ParseBoundary parses "zero", "reflect" or "exclude".
func ParseBoundary(s string) (Boundary, error) {
	switch s {
	case "", "zero":
		return BoundaryZero, nil
	case "reflect":
		return BoundaryReflect, nil
	case "exclude":
		return BoundaryExclude, nil
	}
	return BoundaryZero, fmt.Errorf("unsupported boundary [%s]", s)
}

// windowStart is the offset of the first window cell relative to the
// center; even sizes extend one cell further after the center.
func windowStart(size int) int {
	return -(size - 1) / 2
}

// reflectIndex maps k into [0, n) by half-sample symmetric reflection.
func reflectIndex(k, n int) int {
	period := 2 * n
	k %= period
	if k < 0 {
		k += period
	}
	if k >= n {
		k = period - 1 - k
	}
	return k
}

/*
focalSum sums src over a size x size window around every cell. The all-ones
kernel is separable, so rows are summed first and columns second.
*/
func focalSum(src *mat.Dense, size int, boundary Boundary) *mat.Dense {
	rows, cols := src.Dims()
	tmp := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			tmp.Set(i, j, sum1D(func(k int) float64 { return src.At(i, k) }, j, cols, size, boundary))
		}
	}

	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			out.Set(i, j, sum1D(func(k int) float64 { return tmp.At(k, j) }, i, rows, size, boundary))
		}
	}
	return out
}

func sum1D(at func(int) float64, center, n, size int, boundary Boundary) float64 {
	var sum float64
	start := center + windowStart(size)
	for k := start; k < start+size; k++ {
		switch {
		case k >= 0 && k < n:
			sum += at(k)
		case boundary == BoundaryReflect:
			sum += at(reflectIndex(k, n))
		}
	}
	return sum
}

// insideCount is the number of window cells of center that lie in [0, n).
func insideCount(center, n, size int) int {
	start := center + windowStart(size)
	lo := max(start, 0)
	hi := min(start+size, n)
	if hi < lo {
		return 0
	}
	return hi - lo
}
