package rasterfn

import (
	"encoding/json"
	"fmt"
	"math"
)

// PixelType is the numeric type of raster cells.
type PixelType string

// supported pixel types
const (
	U1 PixelType = "u1"
	U2 PixelType = "u2"
	U4 PixelType = "u4"
	I1 PixelType = "i1"
	I2 PixelType = "i2"
	I4 PixelType = "i4"
	F4 PixelType = "f4"
	F8 PixelType = "f8"
)

// Valid reports whether the pixel type is known.
func (pt PixelType) Valid() bool {
	switch pt {
	case U1, U2, U4, I1, I2, I4, F4, F8:
		return true
	}
	return false
}

// OrDefault returns pt, or def when pt is empty.
func (pt PixelType) OrDefault(def PixelType) PixelType {
	if pt == "" {
		return def
	}
	return pt
}

/*
Convert rounds v to the value range and precision of the pixel type.
Integer types truncate toward zero and saturate, NaN becomes 0.
*/
func (pt PixelType) Convert(v float64) float64 {
	switch pt {
	case F4:
		return float64(float32(v))
	case F8, "":
		return v
	}

	if math.IsNaN(v) {
		return 0
	}
	lo, hi := pt.bounds()
	v = math.Trunc(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (pt PixelType) bounds() (float64, float64) {
	switch pt {
	case U1:
		return 0, math.MaxUint8
	case U2:
		return 0, math.MaxUint16
	case U4:
		return 0, math.MaxUint32
	case I1:
		return math.MinInt8, math.MaxInt8
	case I2:
		return math.MinInt16, math.MaxInt16
	default:
		return math.MinInt32, math.MaxInt32
	}
}

// Shape is the extent of a pixel block in bands, rows and columns.
type Shape struct {
	Bands int
	Rows  int
	Cols  int
}

/*
ShapeOf builds a shape from (rows, cols) or (bands, rows, cols).
*/
func ShapeOf(dims ...int) (Shape, error) {
	var s Shape
	switch len(dims) {
	case 2:
		s = Shape{Bands: 1, Rows: dims[0], Cols: dims[1]}
	case 3:
		s = Shape{Bands: dims[0], Rows: dims[1], Cols: dims[2]}
	default:
		return s, fmt.Errorf("shape must have 2 or 3 dimensions, got %d", len(dims))
	}
	return s, s.Validate()
}

// MaxCells is the largest cell count of any shape.
const MaxCells = math.MaxInt32

// Validate fails for shapes with empty dimensions or more than MaxCells cells.
func (s Shape) Validate() error {
	if s.Bands < 1 || s.Rows < 1 || s.Cols < 1 {
		return fmt.Errorf("shape %v has empty dimensions", s)
	}
	// division keeps the check free of overflow
	if s.Rows > MaxCells/s.Cols || s.Bands > MaxCells/(s.Rows*s.Cols) {
		return fmt.Errorf("shape %v exceeds %d cells", s, MaxCells)
	}
	return nil
}

// Len is the number of cells.
func (s Shape) Len() int {
	return s.Bands * s.Rows * s.Cols
}

// Plane is the shape without its band dimension.
func (s Shape) Plane() Shape {
	return Shape{Bands: 1, Rows: s.Rows, Cols: s.Cols}
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Bands, s.Rows, s.Cols)
}

// MarshalJSON writes the shape as [bands, rows, cols].
func (s Shape) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{s.Bands, s.Rows, s.Cols})
}

// UnmarshalJSON reads [rows, cols] or [bands, rows, cols].
func (s *Shape) UnmarshalJSON(data []byte) error {
	var dims []int
	if err := json.Unmarshal(data, &dims); err != nil {
		return err
	}
	shape, err := ShapeOf(dims...)
	if err != nil {
		return err
	}
	*s = shape
	return nil
}

// Block is a banded, row-major pixel array.
type Block struct {
	Shape     Shape
	PixelType PixelType
	Values    []float64
	Mask      []bool `json:"-"` // cells set to no-data by the producer, nil if none
}

// NewBlock allocates a zeroed block.
func NewBlock(shape Shape, pt PixelType) *Block {
	return &Block{Shape: shape, PixelType: pt, Values: make([]float64, shape.Len())}
}

// Validate checks that the values fill the shape.
func (b *Block) Validate() error {
	if b == nil {
		return fmt.Errorf("pixel block is nil")
	}
	if b.Shape.Len() != len(b.Values) {
		return fmt.Errorf("pixel block of shape %v holds %d values", b.Shape, len(b.Values))
	}
	return nil
}

// Band returns the values of one band; the slice aliases the block.
func (b *Block) Band(band int) []float64 {
	n := b.Shape.Rows * b.Shape.Cols
	return b.Values[band*n : (band+1)*n]
}

// At returns one cell.
func (b *Block) At(band, row, col int) float64 {
	return b.Values[(band*b.Shape.Rows+row)*b.Shape.Cols+col]
}

// Set stores one cell.
func (b *Block) Set(band, row, col int, v float64) {
	b.Values[(band*b.Shape.Rows+row)*b.Shape.Cols+col] = v
}

// SetNoData stores v in one cell and marks the cell as no-data.
func (b *Block) SetNoData(band, row, col int, v float64) {
	if b.Mask == nil {
		b.Mask = make([]bool, len(b.Values))
	}
	i := (band*b.Shape.Rows+row)*b.Shape.Cols + col
	b.Values[i] = v
	b.Mask[i] = true
}

// Masked reports whether the cell at value index i was marked as no-data.
func (b *Block) Masked(i int) bool {
	return b.Mask != nil && b.Mask[i]
}

// Clone returns a deep copy.
func (b *Block) Clone() *Block {
	c := &Block{Shape: b.Shape, PixelType: b.PixelType, Values: make([]float64, len(b.Values))}
	copy(c.Values, b.Values)
	if b.Mask != nil {
		c.Mask = append([]bool(nil), b.Mask...)
	}
	return c
}

// Cast converts all values in place to pt and returns the block.
func (b *Block) Cast(pt PixelType) *Block {
	for i, v := range b.Values {
		b.Values[i] = pt.Convert(v)
	}
	b.PixelType = pt
	return b
}

// CheckShape fails with a ShapeMismatchError if b does not have shape want.
func CheckShape(name string, want Shape, b *Block) error {
	if b.Shape != want {
		return &ShapeMismatchError{Name: name, Want: want, Got: b.Shape}
	}
	return nil
}

// Blocks are the pixel blocks of one request, keyed "<input>_pixels".
type Blocks map[string]*Block

// Input returns the validated block of the named raster input.
func (bs Blocks) Input(name string) (*Block, error) {
	block, found := bs[name+PixelsSuffix]
	if !found || block == nil {
		return nil, &ConfigurationError{Param: name, Reason: "pixel block missing"}
	}
	if err := block.Validate(); err != nil {
		return nil, &ShapeMismatchError{Name: name, Want: block.Shape, Got: block.Shape, Detail: err.Error()}
	}
	return block, nil
}
