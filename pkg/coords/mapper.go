// Package coords maps tile cell offsets to map coordinates and map
// coordinates to geographic coordinates.
package coords

import (
	"fmt"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Point is a map coordinate; for geographic results X is the longitude and Y
// the latitude in degrees.
type Point struct {
	X float64
	Y float64
}

// Mapper converts cell offsets of a north-up raster to map coordinates.
type Mapper struct {
	extent rasterfn.Extent
	dx     float64
	dy     float64
}

/*
NewMapper builds a mapper for a raster of width x height cells covering
extent. Cell sizes derive from the extent, not from the nominal cell size,
because the engine may request the raster at another resolution.
*/
func NewMapper(extent rasterfn.Extent, width, height int) (Mapper, error) {
	if width < 1 || height < 1 {
		return Mapper{}, &rasterfn.ConfigurationError{Param: "props", Reason: fmt.Sprintf("invalid raster size %d x %d", width, height)}
	}
	if extent.XMax <= extent.XMin || extent.YMax <= extent.YMin {
		return Mapper{}, &rasterfn.ConfigurationError{Param: "props", Reason: fmt.Sprintf("invalid extent %+v", extent)}
	}
	return Mapper{
		extent: extent,
		dx:     (extent.XMax - extent.XMin) / float64(width),
		dy:     (extent.YMax - extent.YMin) / float64(height),
	}, nil
}

// CellWidth is the map width of one cell.
func (m Mapper) CellWidth() float64 { return m.dx }

// CellHeight is the map height of one cell.
func (m Mapper) CellHeight() float64 { return m.dy }

// X returns the left edge of column col.
func (m Mapper) X(col int) float64 {
	return m.extent.XMin + float64(col)*m.dx
}

// Y returns the top edge of row row.
func (m Mapper) Y(row int) float64 {
	return m.extent.YMax - float64(row)*m.dy
}

// TopLeft returns the top-left corner of cell (row, col).
func (m Mapper) TopLeft(row, col int) Point {
	return Point{X: m.X(col), Y: m.Y(row)}
}
