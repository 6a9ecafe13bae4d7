package vrm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// grid returns the 3 x 4 matrix 1..12.
func grid() *mat.Dense {
	values := make([]float64, 12)
	for i := range values {
		values[i] = float64(i + 1)
	}
	return mat.NewDense(3, 4, values)
}

func TestFocalSum(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		boundary Boundary
		want     []float64
	}{
		{
			name: "3 zero", size: 3, boundary: BoundaryZero,
			want: []float64{14, 24, 30, 22, 33, 54, 63, 45, 30, 48, 54, 38},
		},
		{
			name: "3 exclude", size: 3, boundary: BoundaryExclude,
			want: []float64{14, 24, 30, 22, 33, 54, 63, 45, 30, 48, 54, 38},
		},
		{
			name: "3 reflect", size: 3, boundary: BoundaryReflect,
			want: []float64{24, 30, 39, 45, 48, 54, 63, 69, 72, 78, 87, 93},
		},
		{
			name: "2 zero", size: 2, boundary: BoundaryZero,
			want: []float64{14, 18, 22, 12, 30, 34, 38, 20, 19, 21, 23, 12},
		},
		{
			name: "4 reflect", size: 4, boundary: BoundaryReflect,
			want: []float64{76, 88, 100, 104, 108, 120, 132, 136, 124, 136, 148, 152},
		},
		{
			name: "5 reflect", size: 5, boundary: BoundaryReflect,
			want: []float64{125, 135, 150, 160, 145, 155, 170, 180, 165, 175, 190, 200},
		},
		{
			name: "1", size: 1, boundary: BoundaryZero,
			want: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := focalSum(grid(), tt.size, tt.boundary)
			assert.Equal(t, tt.want, got.RawMatrix().Data)
		})
	}
}

func TestReflectIndex(t *testing.T) {
	// d c b a | a b c d | d c b a
	n := 4
	want := map[int]int{-5: 3, -4: 3, -3: 2, -2: 1, -1: 0, 0: 0, 3: 3, 4: 3, 5: 2, 7: 0, 8: 0}
	for k, w := range want {
		assert.Equal(t, w, reflectIndex(k, n), "k=%d", k)
	}
	assert.Equal(t, 0, reflectIndex(-3, 1))
}

func TestInsideCount(t *testing.T) {
	assert.Equal(t, 2, insideCount(0, 10, 3))
	assert.Equal(t, 3, insideCount(5, 10, 3))
	assert.Equal(t, 2, insideCount(9, 10, 3))
	assert.Equal(t, 2, insideCount(0, 10, 2))
	assert.Equal(t, 1, insideCount(9, 10, 2))
	assert.Equal(t, 1, insideCount(0, 1, 7))
}

func TestParseBoundary(t *testing.T) {
	for _, b := range []Boundary{BoundaryZero, BoundaryReflect, BoundaryExclude} {
		got, err := ParseBoundary(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, got)
	}
	got, err := ParseBoundary("")
	require.NoError(t, err)
	assert.Equal(t, BoundaryZero, got)

	_, err = ParseBoundary("wrap")
	assert.Error(t, err)
}
