// Package service hosts the raster functions behind a JSON tile API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Service processes tile requests against the function catalog.
type Service struct {
	config   Config
	catalog  *Catalog
	sessions *Sessions
}

/*
New creates the service for config. Spatial references are resolved with
resolver, wrapped with the configured reprojection cache.
*/
func New(config Config, resolver coords.Resolver) (*Service, error) {
	err := config.Verify()
	if err != nil {
		return nil, err
	}

	cachingResolver := coords.CachingResolver{
		Resolver: resolver,
		Size:     config.ReprojectionCacheSize,
		TTL:      config.ReprojectionLifetime(),
	}
	catalog, err := NewCatalog(config, cachingResolver)
	if err != nil {
		return nil, fmt.Errorf("error [%w] at NewCatalog()", err)
	}

	return &Service{
		config:   config,
		catalog:  catalog,
		sessions: NewSessions(config.SessionCacheSize, config.SessionLifetime()),
	}, nil
}

// Catalog returns the hosted functions.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Close releases all sessions.
func (s *Service) Close() {
	s.sessions.Close()
}

/*
Process runs a tile request for the named function: it negotiates (or
reuses) the session of the request raster, annotates the key metadata and
produces all tiles concurrently. Errors are the typed rasterfn errors.
*/
func (s *Service) Process(ctx context.Context, name string, request TileRequest) (TileResponse, error) {
	var response = TileResponse{Type: TypeTileResponse, ID: request.ID}
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	response.Attributes.Function = name

	transform, err := s.catalog.Lookup(name)
	if err != nil {
		return response, err
	}

	attributes := request.Attributes
	for i, tile := range attributes.Tiles {
		err = verifyTile(attributes.Raster, tile, s.config.MaxTileCells)
		if err != nil {
			return response, &rasterfn.ConfigurationError{Param: "tiles", Reason: fmt.Sprintf("tile %d invalid", i), Err: err}
		}
	}
	tiles, function, err := s.produce(ctx, transform, request)
	var stateErr *rasterfn.StateError
	if errors.As(err, &stateErr) && stateErr.State == rasterfn.Closed {
		// session evicted while in use
		slog.Debug("raster function session closed during request, retrying", "function", name, "ID", response.ID)
		tiles, function, err = s.produce(ctx, transform, request)
	}
	if err != nil {
		return response, err
	}

	info, err := function.RasterInfo()
	if err != nil {
		return response, err
	}
	rasterKeyMetadata, err := function.UpdateKeyMetadata(nil, rasterfn.RasterIndex, attributes.KeyMetadata)
	if err != nil {
		return response, err
	}
	bandKeyMetadata, err := function.UpdateKeyMetadata(nil, 0, attributes.KeyMetadata)
	if err != nil {
		return response, err
	}

	response.Attributes.Configuration = transform.Configuration(attributes.Scalars)
	response.Attributes.RasterInfo = info
	response.Attributes.NoData = noDataValue(attributes.Raster)
	response.Attributes.RasterKeyMetadata = rasterKeyMetadata
	response.Attributes.BandKeyMetadata = bandKeyMetadata
	response.Attributes.Tiles = tiles
	return response, nil
}

/*
produce acquires the session and computes all tiles of the request, at most
MaxParallelTiles at a time. The first failing tile cancels the others.
*/
func (s *Service) produce(ctx context.Context, transform rasterfn.Transform, request TileRequest) ([]TileOutput, *rasterfn.Function, error) {
	attributes := request.Attributes
	function, err := s.sessions.Acquire(ctx, transform, attributes.Raster, attributes.Scalars)
	if err != nil {
		return nil, nil, err
	}
	info, err := function.RasterInfo()
	if err != nil {
		return nil, nil, err
	}

	noData := noDataValue(attributes.Raster)
	outputs := make([]TileOutput, len(attributes.Tiles))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.MaxParallelTiles)
	for i, tile := range attributes.Tiles {
		i, tile := i, tile
		group.Go(func() error {
			tileRequest := rasterfn.TileRequest{
				Row:   tile.Row,
				Col:   tile.Col,
				Shape: tile.Shape,
				Props: tileProps(attributes.Raster, info, tile.Props),
			}

			start := time.Now()
			block, err := function.UpdatePixels(groupCtx, tileRequest, tile.Pixels)
			observeTile(transform.Name(), start, err)
			if err != nil {
				return fmt.Errorf("tile (%d, %d): %w", tile.Row, tile.Col, err)
			}
			atomic.AddUint64(&Tiles, 1)

			statistics := sanitizeBlock(block, noData)
			outputs[i] = TileOutput{Row: tile.Row, Col: tile.Col, Pixels: block, Statistics: statistics}
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return nil, function, err
	}
	return outputs, function, nil
}

// tileProps returns props, or the output raster snapshot derived from the
// primary input and the negotiated raster info.
func tileProps(raster rasterfn.RasterDescriptor, info rasterfn.RasterInfo, props *rasterfn.TileProps) rasterfn.TileProps {
	if props != nil {
		return *props
	}
	return rasterfn.TileProps{
		Extent:    raster.Extent,
		Width:     raster.Width,
		Height:    raster.Height,
		PixelType: info.PixelType,
	}
}

func noDataValue(raster rasterfn.RasterDescriptor) float64 {
	if raster.NoData != nil {
		return *raster.NoData
	}
	return NoDataValue
}

/*
sanitizeBlock replaces non-finite values (not representable in JSON) by
noData and returns the statistics of the valid cells. Cells count as no-data
only if they were non-finite or marked by the producer; a valid result equal
to noData stays valid.
*/
func sanitizeBlock(block *rasterfn.Block, noData float64) TileStatistics {
	var statistics TileStatistics
	valid := make([]float64, 0, len(block.Values))
	for i, v := range block.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			block.Values[i] = noData
			statistics.NoDataCells++
			continue
		}
		if block.Masked(i) {
			statistics.NoDataCells++
			continue
		}
		valid = append(valid, v)
	}
	statistics.ValidCells = len(valid)
	if len(valid) == 0 {
		return statistics
	}
	statistics.Minimum = floats.Min(valid)
	statistics.Maximum = floats.Max(valid)
	if len(valid) == 1 {
		statistics.Mean = valid[0]
		return statistics
	}
	statistics.Mean, statistics.StdDev = stat.MeanStdDev(valid, nil)
	return statistics
}
