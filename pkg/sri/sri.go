/*
Package sri implements the simple Solar Radiation Index

	cos(l) * cos(s) + sin(l) * sin(s) * cos(180° - a)

with s = slope (degrees; 0 = flat, 90 = vertical), a = aspect (degrees,
north = 0, clockwise) and l = latitude (degrees north).

The index is proportional to the extraterrestrial solar radiation striking
a surface during the hour around solar noon on the equinox (Keating et al.,
https://pubs.er.usgs.gov/publication/70160322).
*/
package sri

import (
	"context"
	"math"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Name is the registered function name.
const Name = "sri"

// degree to radian
const dr = math.Pi / 180.0

// Transform is the solar radiation index raster function. It is stateless.
type Transform struct{}

// New returns the solar radiation index transform.
func New() *Transform {
	return &Transform{}
}

func (t *Transform) Name() string { return Name }

func (t *Transform) Description() string {
	return "Calculates a Simple Solar Radiation Index based on slope, aspect and latitude"
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
			Name:        "latitude",
			DataType:    rasterfn.DataTypeRaster,
			Required:    true,
			DisplayName: "Latitude raster",
			Description: "A raster of latitude values for each cell, in degrees north 0 = equator and 90 = north pole",
		},
	}
}

func (t *Transform) Configuration(rasterfn.Scalars) rasterfn.Configuration {
	return rasterfn.DerivedConfiguration()
}

// Negotiate declares the range [0, 1] that realistic slopes (0-90°) yield.
func (t *Transform) Negotiate(_ context.Context, _ rasterfn.RasterInfoInput) (rasterfn.RasterInfo, rasterfn.Producer, error) {
	info := rasterfn.RasterInfo{
		BandCount:  1,
		PixelType:  rasterfn.F4,
		Statistics: []rasterfn.Statistics{{Minimum: 0.0, Maximum: 1.0}},
		Histogram:  []rasterfn.Histogram{},
	}
	return info, t, nil
}

func (t *Transform) KeyMetadata(_ []string, bandIndex int, md rasterfn.KeyMetadata) rasterfn.KeyMetadata {
	return rasterfn.AnnotateDerived(bandIndex, md)
}

/*
UpdatePixels computes the index cell by cell. Values are not clamped: slopes
outside 0-90° may leave the declared [0, 1] range.
*/
func (t *Transform) UpdatePixels(_ context.Context, tile rasterfn.TileRequest, inputs rasterfn.Blocks) (*rasterfn.Block, error) {
	slope, err := inputs.Input("slope")
	if err != nil {
		return nil, err
	}
	aspect, err := inputs.Input("aspect")
	if err != nil {
		return nil, err
	}
	latitude, err := inputs.Input("latitude")
	if err != nil {
		return nil, err
	}

	shape := slope.Shape
	if err := rasterfn.CheckShape("aspect", shape, aspect); err != nil {
		return nil, err
	}
	if err := rasterfn.CheckShape("latitude", shape, latitude); err != nil {
		return nil, err
	}
	if tile.Shape.Rows != shape.Rows || tile.Shape.Cols != shape.Cols {
		return nil, &rasterfn.ShapeMismatchError{Name: "slope", Want: tile.Shape, Got: shape}
	}

	pt := tile.Props.PixelType.OrDefault(rasterfn.F4)
	out := rasterfn.NewBlock(shape, pt)
	for i := range out.Values {
		out.Values[i] = pt.Convert(Index(slope.Values[i], aspect.Values[i], latitude.Values[i]))
	}
	return out, nil
}

// Index is the solar radiation index of one cell; all angles in degrees.
func Index(slope, aspect, latitude float64) float64 {
	latRad := latitude * dr
	slopeRad := slope * dr
	t1 := math.Cos(latRad) * math.Cos(slopeRad)
	t2 := math.Sin(latRad) * math.Sin(slopeRad)
	t3 := math.Cos((180.0 - aspect) * dr)
	return t1 + t2*t3
}
