package service

import (
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// --------------------------------------------------------------------------------
// Constants.
// --------------------------------------------------------------------------------

// HTTP Accept headers
const (
	JSONAPIMediaType   = "application/json; charset=utf-8"
	TextPlainMediaType = "text/html; charset=utf-8"
)

// JSON API types
const (
	TypeTileRequest       = "TileRequest"
	TypeTileResponse      = "TileResponse"
	TypeFunctionsResponse = "FunctionsResponse"
)

// request body limits (in bytes, for security reasons)
const (
	MaxTileRequestBodySize = 64 * 1024 * 1024
)

// NoDataValue marks cells without valid output if the raster defines no no-data value.
const NoDataValue = -9999.0

// ErrorObject represents error details.
type ErrorObject struct {
	Code   string
	Title  string
	Detail string
}

// --------------------------------------------------------------------------------
// Request  : Client -> TileRequest  -> Service
// Response : Client <- TileResponse <- Service
// --------------------------------------------------------------------------------

// TileInput represents one tile to produce and its input pixel blocks.
type TileInput struct {
	Row    int                 // top-left cell row within the output raster
	Col    int                 // top-left cell column within the output raster
	Shape  rasterfn.Shape      // [bands, rows, cols] or [rows, cols]
	Props  *rasterfn.TileProps // defaults to the raster extent and size
	Pixels rasterfn.Blocks     // e.g. "slope_pixels", "aspect_pixels"
}

// TileRequest represents the raster, the scalar parameters and the tiles for a tile request.
type TileRequest struct {
	Type       string
	ID         string
	Attributes struct {
		Raster      rasterfn.RasterDescriptor
		Scalars     rasterfn.Scalars
		KeyMetadata rasterfn.KeyMetadata
		Tiles       []TileInput
	}
}

// TileStatistics represents statistics of the valid cells of an output tile.
type TileStatistics struct {
	Minimum     float64
	Maximum     float64
	Mean        float64
	StdDev      float64
	ValidCells  int
	NoDataCells int
}

// TileOutput represents one produced tile.
type TileOutput struct {
	Row        int
	Col        int
	Pixels     *rasterfn.Block // "output_pixels"
	Statistics TileStatistics
}

// TileResponse represents the negotiated raster and the produced tiles for a tile response.
type TileResponse struct {
	Type       string
	ID         string
	Attributes struct {
		Function          string
		Configuration     rasterfn.Configuration
		RasterInfo        rasterfn.RasterInfo
		NoData            float64
		RasterKeyMetadata rasterfn.KeyMetadata
		BandKeyMetadata   rasterfn.KeyMetadata
		Tiles             []TileOutput
		IsError           bool
		Error             ErrorObject
	}
}

// --------------------------------------------------------------------------------
// Request  : Client -> GET /v1/functions -> Service
// Response : Client <- FunctionsResponse <- Service
// --------------------------------------------------------------------------------

// FunctionDescription describes one hosted raster function.
type FunctionDescription struct {
	Name          string
	Description   string
	Parameters    []rasterfn.Parameter
	Configuration rasterfn.Configuration
}

// FunctionsResponse represents the function catalog.
type FunctionsResponse struct {
	Type       string
	ID         string
	Attributes struct {
		Functions []FunctionDescription
		IsError   bool
		Error     ErrorObject
	}
}
