package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

/*
tileRequest returns the handler for 'tile requests' of the named function.
*/
func (s *Service) tileRequest(name string) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		var tileResponse = TileResponse{Type: TypeTileResponse, ID: "unknown"}
		tileResponse.Attributes.Function = name
		tileResponse.Attributes.IsError = true

		// statistics
		atomic.AddUint64(&TileRequests, 1)

		// limit overall request body size
		request.Body = http.MaxBytesReader(writer, request.Body, MaxTileRequestBodySize)

		// read request
		bodyData, err := io.ReadAll(request.Body)
		if err != nil {
			atomic.AddUint64(&FailedTileRequests, 1)
			// check specifically for the error returned by MaxBytesReader
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				slog.Warn("tile request: request body too large", "function", name, "limit", maxBytesErr.Limit, "ID", "unknown")
				tileResponse.Attributes.Error.Code = "7000"
				tileResponse.Attributes.Error.Title = "request body too large"
				tileResponse.Attributes.Error.Detail = fmt.Sprintf("request body exceeds limit of %d bytes", maxBytesErr.Limit)
				buildResponse(writer, http.StatusRequestEntityTooLarge, tileResponse)
			} else {
				// handle other read errors
				slog.Warn("tile request: error reading request body", "function", name, "error", err, "ID", "unknown")
				tileResponse.Attributes.Error.Code = "7020"
				tileResponse.Attributes.Error.Title = "error reading request body"
				tileResponse.Attributes.Error.Detail = err.Error()
				buildResponse(writer, http.StatusBadRequest, tileResponse)
			}
			return
		}

		// unmarshal request
		tileRequest := TileRequest{}
		err = json.Unmarshal(bodyData, &tileRequest)
		if err != nil {
			atomic.AddUint64(&FailedTileRequests, 1)
			slog.Warn("tile request: error unmarshaling request body", "function", name, "error", err, "ID", "unknown")
			tileResponse.Attributes.Error.Code = "7040"
			tileResponse.Attributes.Error.Title = "error unmarshaling request body"
			tileResponse.Attributes.Error.Detail = err.Error()
			buildResponse(writer, http.StatusBadRequest, tileResponse)
			return
		}

		// verify request data
		err = verifyTileRequestData(request, tileRequest, s.config.MaxTilesPerRequest, s.config.MaxTileCells)
		if err != nil {
			atomic.AddUint64(&FailedTileRequests, 1)
			slog.Warn("tile request: error verifying request data", "function", name, "error", err, "ID", tileRequest.ID)
			tileResponse.Attributes.Error.Code = "7060"
			tileResponse.Attributes.Error.Title = "error verifying request data"
			tileResponse.Attributes.Error.Detail = err.Error()
			buildResponse(writer, http.StatusBadRequest, tileResponse)
			return
		}

		// process tiles
		response, err := s.Process(request.Context(), name, tileRequest)
		if err != nil {
			atomic.AddUint64(&FailedTileRequests, 1)
			httpStatus, code, title := classifyError(err)
			slog.Warn("tile request: error processing tiles", "function", name, "error", err, "ID", response.ID)
			tileResponse.ID = response.ID
			tileResponse.Attributes.Error.Code = code
			tileResponse.Attributes.Error.Title = title
			tileResponse.Attributes.Error.Detail = err.Error()
			buildResponse(writer, httpStatus, tileResponse)
			return
		}

		// success response
		response.Attributes.IsError = false
		slog.Debug("tile request processed", "function", name, "ID", response.ID, "tiles", len(response.Attributes.Tiles))
		buildResponse(writer, http.StatusOK, response)
	}
}

/*
classifyError maps processing errors to HTTP status, error code and title.
*/
func classifyError(err error) (int, string, string) {
	var configurationErr *rasterfn.ConfigurationError
	var shapeErr *rasterfn.ShapeMismatchError
	var reprojectionErr *rasterfn.ReprojectionError
	var stateErr *rasterfn.StateError

	switch {
	case errors.As(err, &reprojectionErr):
		return http.StatusBadGateway, "7100", "error reprojecting coordinates"
	case errors.As(err, &configurationErr):
		return http.StatusBadRequest, "7080", "invalid raster function configuration"
	case errors.As(err, &shapeErr):
		return http.StatusBadRequest, "7082", "pixel block shape mismatch"
	case errors.As(err, &stateErr):
		return http.StatusBadRequest, "7084", "raster function not ready"
	}
	return http.StatusInternalServerError, "7120", "error processing tiles"
}

/*
verifyTileRequestData verifies 'tile' request data.
It performs several checks on the request data to ensure its validity.
*/
func verifyTileRequestData(request *http.Request, tileRequest TileRequest, maxTiles, maxCells int) error {
	// verify HTTP header
	contentType := request.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "application/json") {
		return fmt.Errorf("unexpected or missing HTTP header field Content-Type, value = [%s], expected 'application/json'", contentType)
	}

	// verify HTTP header
	accept := request.Header.Get("Accept")
	if !strings.HasPrefix(strings.ToLower(accept), "application/json") {
		return fmt.Errorf("unexpected or missing HTTP header field Accept, value = [%s], expected 'application/json'", accept)
	}

	// verify Type
	if tileRequest.Type != TypeTileRequest {
		return fmt.Errorf("unexpected request Type [%v]", tileRequest.Type)
	}

	// verify ID
	if len(tileRequest.ID) > 1024 {
		return errors.New("ID must be 0-1024 characters long")
	}

	// verify raster
	raster := tileRequest.Attributes.Raster
	if raster.Width < 1 || raster.Height < 1 {
		return fmt.Errorf("invalid raster size %d x %d", raster.Width, raster.Height)
	}
	if raster.PixelType != "" && !raster.PixelType.Valid() {
		return fmt.Errorf("unsupported raster pixel type [%s]", raster.PixelType)
	}

	// verify tiles
	tiles := tileRequest.Attributes.Tiles
	if len(tiles) < 1 || len(tiles) > maxTiles {
		return fmt.Errorf("number of tiles must be 1-%d, got %d", maxTiles, len(tiles))
	}
	for i, tile := range tiles {
		err := verifyTile(raster, tile, maxCells)
		if err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		if tile.Props != nil && tile.Props.PixelType != "" && !tile.Props.PixelType.Valid() {
			return fmt.Errorf("tile %d: unsupported pixel type [%s]", i, tile.Props.PixelType)
		}
	}

	return nil
}

/*
verifyTile checks the shape and placement of one tile: at most maxCells
cells, entirely inside the output raster (the tile props size, or the
raster size if the tile has no props).
*/
func verifyTile(raster rasterfn.RasterDescriptor, tile TileInput, maxCells int) error {
	err := tile.Shape.Validate()
	if err != nil {
		return err
	}
	if tile.Shape.Len() > maxCells {
		return fmt.Errorf("shape %v has %d cells, limit is %d", tile.Shape, tile.Shape.Len(), maxCells)
	}

	width, height := raster.Width, raster.Height
	if tile.Props != nil {
		width, height = tile.Props.Width, tile.Props.Height
	}
	if tile.Row < 0 || tile.Col < 0 {
		return fmt.Errorf("negative offset (%d, %d)", tile.Row, tile.Col)
	}
	if tile.Row > height-tile.Shape.Rows || tile.Col > width-tile.Shape.Cols {
		return fmt.Errorf("offset (%d, %d) with shape %v reaches outside the raster of %d x %d cells",
			tile.Row, tile.Col, tile.Shape, width, height)
	}
	return nil
}
