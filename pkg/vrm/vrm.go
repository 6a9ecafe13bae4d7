/*
Package vrm implements the Vector Ruggedness Measure.

Terrain ruggedness is measured as the dispersion of the unit normal vectors
of the surface in a square neighborhood (Sappington, Longshore and Thomson,
2007, Journal of Wildlife Management 71(5): 1419-1426):

	x = sin(aspect) * sin(slope)
	y = cos(aspect) * sin(slope)
	z = cos(slope)
	ruggedness = 1 - |sum(x, y, z)| / n²

0 means all normals point the same way (smooth), values approaching 1 mean
the normals are dispersed (rugged). Aspect -1 marks flat cells without
aspect; their horizontal components are zero.
*/
package vrm

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Name is the registered function name.
const Name = "vrm"

// neighborhood parameter
const (
	SizeParam      = "size"
	DefaultSize    = 3
	DefaultMaxSize = 255
)

// FlatAspect is the aspect value of cells without aspect.
const FlatAspect = -1.0

// DefaultNoData is the output no-data value if the input defines none.
const DefaultNoData = -9999.0

const dr = math.Pi / 180.0

// NoDataPolicy is the treatment of no-data input cells.
type NoDataPolicy int

const (
	// NoDataIgnore uses no-data cells like any other value.
	NoDataIgnore NoDataPolicy = iota

	// NoDataPropagate yields no-data for every window containing a no-data
	// (or NaN) slope or aspect cell.
	NoDataPropagate
)

func (p NoDataPolicy) String() string {
	if p == NoDataPropagate {
		return "propagate"
	}
	return "ignore"
}

// ParseNoDataPolicy parses "ignore" or "propagate".
func ParseNoDataPolicy(s string) (NoDataPolicy, error) {
	switch s {
	case "", "ignore":
		return NoDataIgnore, nil
	case "propagate":
		return NoDataPropagate, nil
	}
	return NoDataIgnore, fmt.Errorf("unsupported no-data policy [%s]", s)
}

// Transform is the vector ruggedness raster function.
type Transform struct {
	boundary Boundary
	noData   NoDataPolicy
	maxSize  int
}

// Option configures a Transform.
type Option func(*Transform)

// WithBoundary selects the edge treatment.
func WithBoundary(b Boundary) Option {
	return func(t *Transform) { t.boundary = b }
}

// WithNoData selects the no-data treatment.
func WithNoData(p NoDataPolicy) Option {
	return func(t *Transform) { t.noData = p }
}

// WithMaxSize limits the neighborhood size; values below 1 keep the default.
func WithMaxSize(n int) Option {
	return func(t *Transform) {
		if n >= 1 {
			t.maxSize = n
		}
	}
}

// New returns a VRM transform; the defaults are zero padding, ignored no-data
// and a neighborhood size of at most DefaultMaxSize.
func New(opts ...Option) *Transform {
	t := &Transform{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transform) Name() string { return Name }

func (t *Transform) Description() string {
	return "Calculates the ruggedness of the terrain by measuring the amount of dispersal " +
		"of the normal vectors of the terrain in the neighborhood of a location"
}

func (t *Transform) Parameters() []rasterfn.Parameter {
	return []rasterfn.Parameter{
		{
			Name:        "slope",
			DataType:    rasterfn.DataTypeRaster,
			Required:    true,
			DisplayName: "Slope raster",
			Description: "A raster of slope values for the terrain, in degrees with 0 = flat and 90 = vertical",
		},
		{
			Name:        "aspect",
			DataType:    rasterfn.DataTypeRaster,
			Required:    true,
			DisplayName: "Aspect raster",
			Description: "A raster of aspect value for the terrain, in degrees with north = 0, increasing clockwise",
		},
		{
			Name:        SizeParam,
			DataType:    rasterfn.DataTypeNumeric,
			Value:       DefaultSize,
			Required:    false,
			DisplayName: "Neighborhood Size",
			Description: "A square of size x size is considered to determine the ruggedness at the center of the square.",
		},
	}
}

func (t *Transform) Configuration(rasterfn.Scalars) rasterfn.Configuration {
	return rasterfn.DerivedConfiguration()
}

// Negotiate fixes the neighborhood size and the no-data value.
func (t *Transform) Negotiate(_ context.Context, in rasterfn.RasterInfoInput) (rasterfn.RasterInfo, rasterfn.Producer, error) {
	size, err := in.Scalars.Int(SizeParam, DefaultSize)
	if err != nil {
		return rasterfn.RasterInfo{}, nil, fmt.Errorf("vrm: %w", err)
	}
	// the focal cost grows with size squared per cell
	if size > t.maxSize {
		return rasterfn.RasterInfo{}, nil, fmt.Errorf("vrm: %w", &rasterfn.ConfigurationError{
			Param:  SizeParam,
			Reason: fmt.Sprintf("size %d exceeds maximum %d", size, t.maxSize),
		})
	}

	noData := DefaultNoData
	if in.Input.NoData != nil {
		noData = *in.Input.NoData
	}

	slog.Debug("vrm: raster info", "size", size, "boundary", t.boundary.String(), "no-data policy", t.noData.String(), "no-data", noData)

	info := rasterfn.RasterInfo{
		BandCount:  1,
		PixelType:  rasterfn.F4,
		Statistics: []rasterfn.Statistics{{Minimum: 0.0, Maximum: 1.0}},
		Histogram:  []rasterfn.Histogram{},
	}
	p := &producer{
		size:       size,
		boundary:   t.boundary,
		policy:     t.noData,
		noData:     noData,
		hasNoData:  in.Input.NoData != nil,
		kernelSize: float64(size * size),
	}
	return info, p, nil
}

func (t *Transform) KeyMetadata(_ []string, bandIndex int, md rasterfn.KeyMetadata) rasterfn.KeyMetadata {
	return rasterfn.AnnotateDerived(bandIndex, md)
}

// producer is the configuration fixed at negotiation.
type producer struct {
	size       int
	boundary   Boundary
	policy     NoDataPolicy
	noData     float64
	hasNoData  bool
	kernelSize float64
}

// Size returns the negotiated neighborhood size.
func (p *producer) Size() int {
	return p.size
}

/*
UpdatePixels computes the ruggedness of band 0 of the slope and aspect
blocks. The output is a single band.
*/
func (p *producer) UpdatePixels(_ context.Context, tile rasterfn.TileRequest, inputs rasterfn.Blocks) (*rasterfn.Block, error) {
	slope, err := inputs.Input("slope")
	if err != nil {
		return nil, err
	}
	aspect, err := inputs.Input("aspect")
	if err != nil {
		return nil, err
	}
	plane := slope.Shape.Plane()
	if aspect.Shape.Plane() != plane {
		return nil, &rasterfn.ShapeMismatchError{Name: "aspect", Want: slope.Shape, Got: aspect.Shape}
	}
	if tile.Shape.Rows != plane.Rows || tile.Shape.Cols != plane.Cols {
		return nil, &rasterfn.ShapeMismatchError{Name: "slope", Want: tile.Shape, Got: slope.Shape}
	}

	rows, cols := plane.Rows, plane.Cols
	slopeBand := slope.Band(0)
	aspectBand := aspect.Band(0)

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, cols, nil)
	z := mat.NewDense(rows, cols, nil)
	var mask *mat.Dense
	if p.policy == NoDataPropagate {
		mask = mat.NewDense(rows, cols, nil)
	}

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			s := slopeBand[i*cols+j]
			a := aspectBand[i*cols+j]
			if mask != nil && (p.isNoData(s) || p.isNoData(a)) {
				mask.Set(i, j, 1)
			}
			xy := math.Sin(s * dr)
			z.Set(i, j, math.Cos(s*dr))
			if a != FlatAspect {
				x.Set(i, j, math.Sin(a*dr)*xy)
				y.Set(i, j, math.Cos(a*dr)*xy)
			}
		}
	}

	xSum := focalSum(x, p.size, p.boundary)
	ySum := focalSum(y, p.size, p.boundary)
	zSum := focalSum(z, p.size, p.boundary)
	var maskSum *mat.Dense
	if mask != nil {
		maskSum = focalSum(mask, p.size, p.boundary)
	}

	pt := tile.Props.PixelType.OrDefault(rasterfn.F4)
	out := rasterfn.NewBlock(plane, pt)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if maskSum != nil && maskSum.At(i, j) > 0 {
				out.SetNoData(0, i, j, pt.Convert(p.noData))
				continue
			}
			xs, ys, zs := xSum.At(i, j), ySum.At(i, j), zSum.At(i, j)
			total := math.Sqrt(xs*xs + ys*ys + zs*zs)
			out.Set(0, i, j, pt.Convert(1.0-total/p.denominator(i, j, rows, cols)))
		}
	}
	return out, nil
}

func (p *producer) denominator(i, j, rows, cols int) float64 {
	if p.boundary != BoundaryExclude {
		return p.kernelSize
	}
	return float64(insideCount(i, rows, p.size) * insideCount(j, cols, p.size))
}

func (p *producer) isNoData(v float64) bool {
	return math.IsNaN(v) || (p.hasNoData && v == p.noData)
}
