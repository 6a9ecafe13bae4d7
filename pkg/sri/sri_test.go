package sri

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

func filled(shape rasterfn.Shape, v float64) *rasterfn.Block {
	b := rasterfn.NewBlock(shape, rasterfn.F4)
	for i := range b.Values {
		b.Values[i] = v
	}
	return b
}

func tile(shape rasterfn.Shape) rasterfn.TileRequest {
	return rasterfn.TileRequest{
		Shape: shape,
		Props: rasterfn.TileProps{
			Extent:    rasterfn.Extent{XMin: 0, YMin: 0, XMax: float64(shape.Cols), YMax: float64(shape.Rows)},
			Width:     shape.Cols,
			Height:    shape.Rows,
			PixelType: rasterfn.F4,
		},
	}
}

func TestIndex(t *testing.T) {
	tests := []struct {
		name                    string
		slope, aspect, latitude float64
		want                    float64
	}{
		{name: "flat at equator", slope: 0, aspect: 0, latitude: 0, want: 1},
		{name: "flat at 60°", slope: 0, aspect: 90, latitude: 60, want: 0.5},
		{name: "south facing", slope: 30, aspect: 180, latitude: 50, want: math.Cos(20 * dr)},
		{name: "south facing at equal angles", slope: 45, aspect: 180, latitude: 45, want: 1},
		{name: "north facing", slope: 30, aspect: 0, latitude: 50, want: math.Cos(80 * dr)},
		{name: "east facing", slope: 30, aspect: 90, latitude: 50, want: math.Cos(50*dr) * math.Cos(30*dr)},
		{name: "overhang", slope: 120, aspect: 0, latitude: 0, want: -0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Index(tt.slope, tt.aspect, tt.latitude), 1e-12)
		})
	}
}

func TestUpdatePixels(t *testing.T) {
	shape := rasterfn.Shape{Bands: 1, Rows: 2, Cols: 2}
	slope := rasterfn.NewBlock(shape, rasterfn.F4)
	slope.Values = []float64{0, 30, 30, 120}
	aspect := rasterfn.NewBlock(shape, rasterfn.F4)
	aspect.Values = []float64{-1, 180, 0, 0}
	latitude := filled(shape, 50)

	out, err := New().UpdatePixels(context.Background(), tile(shape), rasterfn.Blocks{
		"slope_pixels":    slope,
		"aspect_pixels":   aspect,
		"latitude_pixels": latitude,
	})
	require.NoError(t, err)
	assert.Equal(t, shape, out.Shape)
	assert.Equal(t, rasterfn.F4, out.PixelType)

	want := []float64{
		math.Cos(50 * dr),
		math.Cos(20 * dr),
		math.Cos(80 * dr),
		math.Cos(50*dr)*math.Cos(120*dr) + math.Sin(50*dr)*math.Sin(120*dr)*math.Cos(180*dr),
	}
	for i, w := range want {
		assert.InDelta(t, w, out.Values[i], 1e-6, "cell %d", i)
	}
	// not clamped to the declared range
	assert.Less(t, out.Values[3], 0.0)
}

func TestUpdatePixelsMultiBand(t *testing.T) {
	shape := rasterfn.Shape{Bands: 2, Rows: 1, Cols: 2}
	slope := filled(shape, 0)
	latitude := filled(shape, 0)
	latitude.Values = []float64{0, 60, 60, 0}

	out, err := New().UpdatePixels(context.Background(), tile(shape), rasterfn.Blocks{
		"slope_pixels":    slope,
		"aspect_pixels":   filled(shape, 0),
		"latitude_pixels": latitude,
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0.5, 1}, out.Values, 1e-6)
}

func TestUpdatePixelsErrors(t *testing.T) {
	shape := rasterfn.Shape{Bands: 1, Rows: 2, Cols: 2}
	other := rasterfn.Shape{Bands: 1, Rows: 2, Cols: 3}

	tests := []struct {
		name    string
		tile    rasterfn.TileRequest
		blocks  rasterfn.Blocks
		wantCfg bool
	}{
		{
			name: "missing latitude",
			tile: tile(shape),
			blocks: rasterfn.Blocks{
				"slope_pixels":  filled(shape, 0),
				"aspect_pixels": filled(shape, 0),
			},
			wantCfg: true,
		},
		{
			name: "aspect shape",
			tile: tile(shape),
			blocks: rasterfn.Blocks{
				"slope_pixels":    filled(shape, 0),
				"aspect_pixels":   filled(other, 0),
				"latitude_pixels": filled(shape, 0),
			},
		},
		{
			name: "latitude shape",
			tile: tile(shape),
			blocks: rasterfn.Blocks{
				"slope_pixels":    filled(shape, 0),
				"aspect_pixels":   filled(shape, 0),
				"latitude_pixels": filled(other, 0),
			},
		},
		{
			name: "request shape",
			tile: tile(other),
			blocks: rasterfn.Blocks{
				"slope_pixels":    filled(shape, 0),
				"aspect_pixels":   filled(shape, 0),
				"latitude_pixels": filled(shape, 0),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().UpdatePixels(context.Background(), tt.tile, tt.blocks)
			if tt.wantCfg {
				var cfgErr *rasterfn.ConfigurationError
				require.ErrorAs(t, err, &cfgErr)
				return
			}
			var shapeErr *rasterfn.ShapeMismatchError
			require.ErrorAs(t, err, &shapeErr)
		})
	}
}

func TestNegotiate(t *testing.T) {
	info, p, err := New().Negotiate(context.Background(), rasterfn.RasterInfoInput{})
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Equal(t, 1, info.BandCount)
	assert.Equal(t, rasterfn.F4, info.PixelType)
	assert.Equal(t, []rasterfn.Statistics{{Minimum: 0, Maximum: 1}}, info.Statistics)
}

func TestDescribe(t *testing.T) {
	tr := New()
	assert.Equal(t, "sri", tr.Name())
	var names []string
	for _, p := range tr.Parameters() {
		names = append(names, p.Name)
		assert.True(t, p.Required)
		assert.Equal(t, rasterfn.DataTypeRaster, p.DataType)
	}
	assert.Equal(t, []string{"slope", "aspect", "latitude"}, names)

	md := tr.KeyMetadata(nil, rasterfn.RasterIndex, nil)
	assert.Equal(t, rasterfn.DataTypeProcessed, md[rasterfn.KeyDataType])
}
