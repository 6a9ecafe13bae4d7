// Package latitude implements a source raster function that yields the
// geographic latitude (degrees) of every cell.
package latitude

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Name is the registered function name.
const Name = "latitude"

// Strategy selects how projected tiles are filled.
type Strategy int

const (
	// AnchorExtrapolation reprojects the top-left corner of a tile and
	// steps down the rows by the native cell height. Output compatible with
	// the established latitude rasters; the error grows with tile size.
	AnchorExtrapolation Strategy = iota

	// PerRow reprojects the left edge of every tile row.
	PerRow
)

func (s Strategy) String() string {
	if s == PerRow {
		return "per-row"
	}
	return "anchor"
}

// ParseStrategy parses "anchor" or "per-row".
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "anchor":
		return AnchorExtrapolation, nil
	case "per-row":
		return PerRow, nil
	}
	return AnchorExtrapolation, fmt.Errorf("unsupported latitude strategy [%s]", s)
}

// Transform is the latitude raster function.
type Transform struct {
	resolver coords.Resolver
	strategy Strategy
}

// Option configures a Transform.
type Option func(*Transform)

// WithStrategy selects the fill strategy for projected rasters.
func WithStrategy(s Strategy) Option {
	return func(t *Transform) { t.strategy = s }
}

// New returns a latitude transform using resolver for spatial references.
func New(resolver coords.Resolver, opts ...Option) *Transform {
	t := &Transform{resolver: resolver}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transform) Name() string { return Name }

func (t *Transform) Description() string {
	return "Provides a raster of the latitude of each cell in the input"
}

func (t *Transform) Parameters() []rasterfn.Parameter {
	return []rasterfn.Parameter{
		{
			Name:        "input",
			DataType:    rasterfn.DataTypeRaster,
			Required:    true,
			DisplayName: "Input raster",
			Description: "Any georeferenced raster.",
		},
	}
}

func (t *Transform) Configuration(rasterfn.Scalars) rasterfn.Configuration {
	return rasterfn.DerivedConfiguration()
}

/*
Negotiate resolves the spatial reference pair of the input and declares the
latitude range of its extent. For projected rasters the bottom-left and
top-right corners are reprojected.
*/
func (t *Transform) Negotiate(ctx context.Context, in rasterfn.RasterInfoInput) (rasterfn.RasterInfo, rasterfn.Producer, error) {
	proj, err := t.resolver.Resolve(in.Input.SpatialReference)
	if err != nil {
		return rasterfn.RasterInfo{}, nil, fmt.Errorf("latitude: error [%w] resolving spatial reference", err)
	}

	extent := in.Input.Extent
	yMin, yMax := extent.YMin, extent.YMax
	if proj.Projected() {
		bottomLeft, err := proj.ToGeographic(ctx, extent.XMin, extent.YMin)
		if err == nil {
			var topRight coords.Point
			topRight, err = proj.ToGeographic(ctx, extent.XMax, extent.YMax)
			yMin, yMax = bottomLeft.Y, topRight.Y
		}
		if err != nil {
			_ = closeProjection(proj)
			return rasterfn.RasterInfo{}, nil, fmt.Errorf("latitude: error [%w] reprojecting extent", err)
		}
		if yMin > yMax {
			yMin, yMax = yMax, yMin
		}
	}

	slog.Debug("latitude: raster info", "spatial reference", in.Input.SpatialReference.String(), "projected", proj.Projected(),
		"strategy", t.strategy.String(), "min", yMin, "max", yMax)

	info := rasterfn.RasterInfo{
		BandCount:  1,
		PixelType:  rasterfn.F4,
		Statistics: []rasterfn.Statistics{{Minimum: yMin, Maximum: yMax}},
		Histogram:  []rasterfn.Histogram{},
	}
	return info, &producer{proj: proj, strategy: t.strategy}, nil
}

func (t *Transform) KeyMetadata(_ []string, bandIndex int, md rasterfn.KeyMetadata) rasterfn.KeyMetadata {
	return rasterfn.AnnotateDerived(bandIndex, md)
}

// producer holds the projection fixed at negotiation.
type producer struct {
	proj     coords.Projection
	strategy Strategy
}

/*
UpdatePixels fills row i of the tile with yMax - i*cellHeight, where yMax is
the top edge of the tile. Latitude only varies by row; all columns of a row
share the value. The output is a single band.
*/
func (p *producer) UpdatePixels(ctx context.Context, tile rasterfn.TileRequest, _ rasterfn.Blocks) (*rasterfn.Block, error) {
	if err := tile.Shape.Validate(); err != nil {
		return nil, &rasterfn.ShapeMismatchError{Name: rasterfn.OutputPixels, Detail: err.Error()}
	}
	mapper, err := coords.NewMapper(tile.Props.Extent, tile.Props.Width, tile.Props.Height)
	if err != nil {
		return nil, err
	}

	rows := make([]float64, tile.Shape.Rows)
	dY := mapper.CellHeight()
	yMax := mapper.Y(tile.Row)

	switch {
	case !p.proj.Projected():
		for i := range rows {
			rows[i] = yMax - float64(i)*dY
		}

	case p.strategy == PerRow:
		x := mapper.X(tile.Col)
		for i := range rows {
			geo, err := p.proj.ToGeographic(ctx, x, mapper.Y(tile.Row+i))
			if err != nil {
				return nil, fmt.Errorf("latitude: error [%w] reprojecting row %d", err, tile.Row+i)
			}
			rows[i] = geo.Y
		}

	default:
		anchor, err := p.proj.ToGeographic(ctx, mapper.X(tile.Col), yMax)
		if err != nil {
			return nil, fmt.Errorf("latitude: error [%w] reprojecting tile anchor (%d, %d)", err, tile.Row, tile.Col)
		}
		// native cell height, not degrees
		for i := range rows {
			rows[i] = anchor.Y - float64(i)*dY
		}
	}

	// one band, whatever the requested band count
	pt := tile.Props.PixelType.OrDefault(rasterfn.F4)
	plane := tile.Shape.Plane()
	out := rasterfn.NewBlock(plane, pt)
	for i, lat := range rows {
		v := pt.Convert(lat)
		row := out.Values[i*plane.Cols : (i+1)*plane.Cols]
		for j := range row {
			row[j] = v
		}
	}
	return out, nil
}

func (p *producer) Close() error {
	return closeProjection(p.proj)
}

func closeProjection(proj coords.Projection) error {
	if closer, ok := proj.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
