package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

func newTestService(t *testing.T, config Config) *Service {
	t.Helper()
	s, err := New(config, coords.Builtin{})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func block(t *testing.T, rows, cols int, values ...float64) *rasterfn.Block {
	t.Helper()
	shape, err := rasterfn.ShapeOf(rows, cols)
	require.NoError(t, err)
	require.Len(t, values, shape.Len())
	return &rasterfn.Block{Shape: shape, PixelType: rasterfn.F4, Values: values}
}

func sriRequest(t *testing.T) TileRequest {
	var request TileRequest
	request.Type = TypeTileRequest
	request.ID = "sri-1"
	request.Attributes.Raster = geographicRaster()
	request.Attributes.KeyMetadata = rasterfn.KeyMetadata{"datatype": "Generic", "wavelengthmin": 400.0}
	request.Attributes.Tiles = []TileInput{{
		Row:   0,
		Col:   0,
		Shape: rasterfn.Shape{Bands: 1, Rows: 1, Cols: 2},
		Pixels: rasterfn.Blocks{
			"slope_pixels":    block(t, 1, 2, 0, 30),
			"aspect_pixels":   block(t, 1, 2, 180, 180),
			"latitude_pixels": block(t, 1, 2, 50, 50),
		},
	}}
	return request
}

func TestNewInvalidConfig(t *testing.T) {
	config := testConfig()
	config.MaxParallelTiles = 0
	_, err := New(config, coords.Builtin{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxParallelTiles")
}

func TestProcessSRI(t *testing.T) {
	s := newTestService(t, testConfig())

	response, err := s.Process(context.Background(), "sri", sriRequest(t))
	require.NoError(t, err)

	attributes := response.Attributes
	assert.Equal(t, "sri-1", response.ID)
	assert.Equal(t, TypeTileResponse, response.Type)
	assert.Equal(t, "sri", attributes.Function)
	assert.Equal(t, rasterfn.DerivedConfiguration(), attributes.Configuration)
	assert.Equal(t, 1, attributes.RasterInfo.BandCount)
	assert.Equal(t, rasterfn.F4, attributes.RasterInfo.PixelType)
	assert.Equal(t, NoDataValue, attributes.NoData)
	assert.Equal(t, "Processed", attributes.RasterKeyMetadata["datatype"])
	assert.Nil(t, attributes.BandKeyMetadata["wavelengthmin"])

	require.Len(t, attributes.Tiles, 1)
	tile := attributes.Tiles[0]
	require.Len(t, tile.Pixels.Values, 2)
	// flat: cos(latitude), south facing: cos(latitude - slope)
	assert.InDelta(t, math.Cos(50*math.Pi/180), tile.Pixels.Values[0], 1e-6)
	assert.InDelta(t, math.Cos(20*math.Pi/180), tile.Pixels.Values[1], 1e-6)
	assert.Equal(t, 2, tile.Statistics.ValidCells)
	assert.InDelta(t, tile.Pixels.Values[0], tile.Statistics.Minimum, 1e-12)
	assert.InDelta(t, tile.Pixels.Values[1], tile.Statistics.Maximum, 1e-12)
}

func TestProcessLatitude(t *testing.T) {
	s := newTestService(t, testConfig())

	var request TileRequest
	request.Type = TypeTileRequest
	request.Attributes.Raster = geographicRaster()
	request.Attributes.Tiles = []TileInput{
		{Row: 0, Col: 0, Shape: rasterfn.Shape{Bands: 1, Rows: 2, Cols: 2}},
		{Row: 2, Col: 2, Shape: rasterfn.Shape{Bands: 1, Rows: 2, Cols: 2}},
	}

	response, err := s.Process(context.Background(), "latitude", request)
	require.NoError(t, err)

	_, err = uuid.Parse(response.ID)
	assert.NoError(t, err, "generated request ID")
	assert.Equal(t, []rasterfn.Statistics{{Minimum: 50, Maximum: 51}}, response.Attributes.RasterInfo.Statistics)

	require.Len(t, response.Attributes.Tiles, 2)
	assert.Equal(t, []float64{51, 51, 50.75, 50.75}, response.Attributes.Tiles[0].Pixels.Values)
	assert.Equal(t, 2, response.Attributes.Tiles[1].Row)
	assert.Equal(t, []float64{50.5, 50.5, 50.25, 50.25}, response.Attributes.Tiles[1].Pixels.Values)
}

func TestProcessTileOrder(t *testing.T) {
	config := testConfig()
	config.MaxParallelTiles = 1
	s := newTestService(t, config)

	var request TileRequest
	request.Type = TypeTileRequest
	request.Attributes.Raster = geographicRaster()
	for row := 0; row < 4; row++ {
		request.Attributes.Tiles = append(request.Attributes.Tiles,
			TileInput{Row: row, Col: 0, Shape: rasterfn.Shape{Bands: 1, Rows: 1, Cols: 4}})
	}

	response, err := s.Process(context.Background(), "latitude", request)
	require.NoError(t, err)
	require.Len(t, response.Attributes.Tiles, 4)
	for row, tile := range response.Attributes.Tiles {
		assert.Equal(t, row, tile.Row)
		assert.Equal(t, 51-0.25*float64(row), tile.Pixels.Values[0])
	}
}

func TestProcessSessionReuse(t *testing.T) {
	s := newTestService(t, testConfig())

	for i := 0; i < 3; i++ {
		_, err := s.Process(context.Background(), "sri", sriRequest(t))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.sessions.Len())

	request := sriRequest(t)
	request.Attributes.Raster.Width = 8
	_, err := s.Process(context.Background(), "sri", request)
	require.NoError(t, err)
	assert.Equal(t, 2, s.sessions.Len())
}

func TestProcessErrors(t *testing.T) {
	s := newTestService(t, testConfig())
	ctx := context.Background()

	t.Run("unknown function", func(t *testing.T) {
		_, err := s.Process(ctx, "contours", sriRequest(t))
		var configurationErr *rasterfn.ConfigurationError
		require.True(t, errors.As(err, &configurationErr), "got %v", err)
	})

	t.Run("missing input", func(t *testing.T) {
		request := sriRequest(t)
		delete(request.Attributes.Tiles[0].Pixels, "aspect_pixels")
		_, err := s.Process(ctx, "sri", request)
		var configurationErr *rasterfn.ConfigurationError
		require.True(t, errors.As(err, &configurationErr), "got %v", err)
		assert.Equal(t, "aspect", configurationErr.Param)
		assert.Contains(t, err.Error(), "tile (0, 0)")
	})

	t.Run("shape mismatch", func(t *testing.T) {
		request := sriRequest(t)
		request.Attributes.Tiles[0].Pixels["latitude_pixels"] = block(t, 2, 1, 50, 50)
		_, err := s.Process(ctx, "sri", request)
		var shapeErr *rasterfn.ShapeMismatchError
		require.True(t, errors.As(err, &shapeErr), "got %v", err)
		assert.Equal(t, "latitude", shapeErr.Name)
	})

	t.Run("invalid scalar", func(t *testing.T) {
		request := sriRequest(t)
		request.Attributes.Scalars = rasterfn.Scalars{"size": 2.5}
		_, err := s.Process(ctx, "vrm", request)
		var configurationErr *rasterfn.ConfigurationError
		require.True(t, errors.As(err, &configurationErr), "got %v", err)
		assert.Equal(t, "size", configurationErr.Param)
	})

	t.Run("tile outside raster", func(t *testing.T) {
		request := sriRequest(t)
		request.Attributes.Tiles[0].Col = 3
		_, err := s.Process(ctx, "sri", request)
		var configurationErr *rasterfn.ConfigurationError
		require.True(t, errors.As(err, &configurationErr), "got %v", err)
		assert.Equal(t, "tiles", configurationErr.Param)
		assert.Contains(t, err.Error(), "outside the raster")
	})

	t.Run("tile over cell limit", func(t *testing.T) {
		config := testConfig()
		config.MaxTileCells = 1
		limited := newTestService(t, config)
		_, err := limited.Process(ctx, "sri", sriRequest(t))
		var configurationErr *rasterfn.ConfigurationError
		require.True(t, errors.As(err, &configurationErr), "got %v", err)
		assert.Contains(t, err.Error(), "limit is 1")
	})

	t.Run("cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Process(cancelled, "sri", sriRequest(t))
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSanitizeBlock(t *testing.T) {
	masked := block(t, 1, 3, 2, -9999, 4)
	masked.SetNoData(0, 0, 1, -9999)

	tests := []struct {
		name       string
		block      *rasterfn.Block
		noData     float64
		wantValues []float64
		want       TileStatistics
	}{
		{
			name:       "non-finite",
			block:      block(t, 1, 4, 1, math.NaN(), math.Inf(1), 3),
			noData:     -9999,
			wantValues: []float64{1, -9999, -9999, 3},
			want:       TileStatistics{Minimum: 1, Maximum: 3, Mean: 2, StdDev: math.Sqrt2, ValidCells: 2, NoDataCells: 2},
		},
		{
			name:       "valid value equal to no-data",
			block:      block(t, 1, 5, 1, math.NaN(), math.Inf(-1), 0, 3),
			noData:     0,
			wantValues: []float64{1, 0, 0, 0, 3},
			want:       TileStatistics{Minimum: 0, Maximum: 3, Mean: 4.0 / 3.0, StdDev: math.Sqrt(7.0 / 3.0), ValidCells: 3, NoDataCells: 2},
		},
		{
			name:       "masked by producer",
			block:      masked,
			noData:     -9999,
			wantValues: []float64{2, -9999, 4},
			want:       TileStatistics{Minimum: 2, Maximum: 4, Mean: 3, StdDev: math.Sqrt2, ValidCells: 2, NoDataCells: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statistics := sanitizeBlock(tt.block, tt.noData)
			assert.Equal(t, tt.wantValues, tt.block.Values)
			assert.Equal(t, tt.want.ValidCells, statistics.ValidCells)
			assert.Equal(t, tt.want.NoDataCells, statistics.NoDataCells)
			assert.Equal(t, tt.want.Minimum, statistics.Minimum)
			assert.Equal(t, tt.want.Maximum, statistics.Maximum)
			assert.InDelta(t, tt.want.Mean, statistics.Mean, 1e-12)
			assert.InDelta(t, tt.want.StdDev, statistics.StdDev, 1e-12)
		})
	}
}

func TestProcessNoDataStatistics(t *testing.T) {
	t.Run("latitude zero with no-data zero", func(t *testing.T) {
		s := newTestService(t, testConfig())
		noData := 0.0
		var request TileRequest
		request.Type = TypeTileRequest
		request.Attributes.Raster = geographicRaster()
		request.Attributes.Raster.NoData = &noData
		request.Attributes.Raster.Extent = rasterfn.Extent{XMin: 8, YMin: -1, XMax: 9, YMax: 1}
		request.Attributes.Raster.Height = 2
		request.Attributes.Raster.Width = 2
		request.Attributes.Tiles = []TileInput{{Shape: rasterfn.Shape{Bands: 1, Rows: 2, Cols: 2}}}

		response, err := s.Process(context.Background(), "latitude", request)
		require.NoError(t, err)
		require.Len(t, response.Attributes.Tiles, 1)
		tile := response.Attributes.Tiles[0]
		assert.Equal(t, []float64{1, 1, 0, 0}, tile.Pixels.Values)
		assert.Equal(t, 4, tile.Statistics.ValidCells)
		assert.Equal(t, 0, tile.Statistics.NoDataCells)
		assert.Equal(t, 0.0, tile.Statistics.Minimum)
	})

	t.Run("vrm propagated no-data", func(t *testing.T) {
		config := testConfig()
		config.VRMNoData = "propagate"
		s := newTestService(t, config)
		noData := -5.0
		var request TileRequest
		request.Type = TypeTileRequest
		request.Attributes.Raster = geographicRaster()
		request.Attributes.Raster.NoData = &noData
		request.Attributes.Tiles = []TileInput{{
			Shape: rasterfn.Shape{Bands: 1, Rows: 1, Cols: 3},
			Pixels: rasterfn.Blocks{
				"slope_pixels":  block(t, 1, 3, -5, 0, 0),
				"aspect_pixels": block(t, 1, 3, -1, -1, -1),
			},
		}}

		response, err := s.Process(context.Background(), "vrm", request)
		require.NoError(t, err)
		require.Len(t, response.Attributes.Tiles, 1)
		tile := response.Attributes.Tiles[0]
		assert.Equal(t, -5.0, tile.Pixels.Values[0])
		assert.Equal(t, -5.0, tile.Pixels.Values[1])
		assert.InDelta(t, 1-2.0/9.0, tile.Pixels.Values[2], 1e-6)
		assert.Equal(t, 1, tile.Statistics.ValidCells)
		assert.Equal(t, 2, tile.Statistics.NoDataCells)
	})
}

func TestSanitizeBlockSingleAndEmpty(t *testing.T) {
	single := sanitizeBlock(block(t, 1, 2, 7, math.NaN()), NoDataValue)
	assert.Equal(t, TileStatistics{Minimum: 7, Maximum: 7, Mean: 7, ValidCells: 1, NoDataCells: 1}, single)

	empty := sanitizeBlock(block(t, 1, 2, math.Inf(-1), math.NaN()), NoDataValue)
	assert.Equal(t, TileStatistics{NoDataCells: 2}, empty)
}

func TestNoDataValue(t *testing.T) {
	raster := geographicRaster()
	assert.Equal(t, NoDataValue, noDataValue(raster))

	noData := -32768.0
	raster.NoData = &noData
	assert.Equal(t, -32768.0, noDataValue(raster))
}
