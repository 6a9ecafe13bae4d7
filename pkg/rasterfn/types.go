// Package rasterfn defines the contract between a tiled raster processing
// engine and the raster functions it hosts.
package rasterfn

import (
	"fmt"
	"math"
	"strconv"
)

// input and output pixel block keys
const (
	PixelsSuffix = "_pixels"
	OutputPixels = "output_pixels"
)

// SpatialReference identifies a coordinate system by EPSG code or WKT.
type SpatialReference struct {
	EPSG int    `json:"EPSG,omitempty" yaml:"EPSG,omitempty"`
	WKT  string `json:"WKT,omitempty" yaml:"WKT,omitempty"`
}

// String returns a short form for logging.
func (sr SpatialReference) String() string {
	if sr.EPSG != 0 {
		return "EPSG:" + strconv.Itoa(sr.EPSG)
	}
	if sr.WKT != "" {
		return "WKT"
	}
	return "undefined"
}

// Extent is a map rectangle in the units of its spatial reference.
type Extent struct {
	XMin float64
	YMin float64
	XMax float64
	YMax float64
}

// CellSize is the map size of one cell.
type CellSize struct {
	DX float64
	DY float64
}

// RasterDescriptor describes the primary input raster. It is fixed once the
// output raster is opened.
type RasterDescriptor struct {
	SpatialReference SpatialReference
	Extent           Extent
	CellSize         CellSize
	Width            int
	Height           int
	BandCount        int
	PixelType        PixelType
	NoData           *float64 `json:",omitempty"`
}

// TileProps are the output raster properties handed to every pixel request.
type TileProps struct {
	Extent    Extent
	Width     int
	Height    int
	PixelType PixelType
}

// TileRequest is one pixel production call: top-left cell offset within the
// output raster, block shape and output raster snapshot.
type TileRequest struct {
	Row   int
	Col   int
	Shape Shape
	Props TileProps
}

// DataType is the capability kind of a parameter.
type DataType string

// parameter kinds
const (
	DataTypeRaster  DataType = "raster"
	DataTypeNumeric DataType = "numeric"
)

// Parameter describes one input of a raster function.
type Parameter struct {
	Name        string
	DataType    DataType
	Value       any
	Required    bool
	DisplayName string
	Description string
}

// Inherit selects the properties of the primary input passed on unchanged.
type Inherit int

// inheritable properties
const (
	InheritPixelType  Inherit = 1
	InheritNoData     Inherit = 2
	InheritDimensions Inherit = 4
	InheritResampling Inherit = 8
)

// Invalidate selects the derived properties recomputed for dependent outputs.
type Invalidate int

// invalidated properties
const (
	InvalidateTransform   Invalidate = 1
	InvalidateStatistics  Invalidate = 2
	InvalidateHistogram   Invalidate = 4
	InvalidateKeyMetadata Invalidate = 8
)

// Configuration tells the engine how to prepare inputs and the output raster.
type Configuration struct {
	InheritProperties    Inherit
	InvalidateProperties Invalidate
	Resampling           bool
}

// DerivedConfiguration is shared by all terrain functions: keep no-data,
// dimensions and resampling, derive the pixel type, reset everything else
// and process at request resolution.
func DerivedConfiguration() Configuration {
	return Configuration{
		InheritProperties:    InheritNoData | InheritDimensions | InheritResampling,
		InvalidateProperties: InvalidateTransform | InvalidateStatistics | InvalidateHistogram | InvalidateKeyMetadata,
		Resampling:           true,
	}
}

// Statistics is the declared value range of one output band.
type Statistics struct {
	Minimum float64
	Maximum float64
}

// Histogram is a declared band histogram.
type Histogram struct {
	Minimum float64
	Maximum float64
	Counts  []int64
}

// RasterInfoInput is handed to a transform at raster open.
type RasterInfoInput struct {
	Input   RasterDescriptor
	Scalars Scalars
}

// RasterInfo is the negotiated output raster description.
type RasterInfo struct {
	BandCount  int
	PixelType  PixelType
	Statistics []Statistics
	Histogram  []Histogram
}

// Scalars are the non-raster parameter values of a function.
type Scalars map[string]any

/*
Int returns the scalar as a positive integer, or def if it is not set.
Fractional, non-numeric or non-positive values are configuration errors.
*/
func (s Scalars) Int(name string, def int) (int, error) {
	raw, found := s[name]
	if !found || raw == nil {
		return def, nil
	}

	var value float64
	switch v := raw.(type) {
	case int:
		value = float64(v)
	case int32:
		value = float64(v)
	case int64:
		value = float64(v)
	case float32:
		value = float64(v)
	case float64:
		value = v
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, &ConfigurationError{Param: name, Reason: fmt.Sprintf("value [%s] is not numeric", v)}
		}
		value = parsed
	default:
		return 0, &ConfigurationError{Param: name, Reason: fmt.Sprintf("unsupported value type %T", raw)}
	}

	if math.IsNaN(value) || value != math.Trunc(value) {
		return 0, &ConfigurationError{Param: name, Reason: fmt.Sprintf("value [%v] is not an integer", raw)}
	}
	if value < 1 || value > math.MaxInt32 {
		return 0, &ConfigurationError{Param: name, Reason: fmt.Sprintf("value [%v] is out of range", raw)}
	}
	return int(value), nil
}
