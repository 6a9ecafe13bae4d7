// Package gdalsrs resolves spatial references with GDAL/OGR (via godal).
package gdalsrs

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// fallback geographic base (WGS84)
const defaultGeographicEPSG = 4326

/*
Resolver builds projections from EPSG codes or WKT with the OGR
projection engine. godal.RegisterAll must have been called once.
*/
type Resolver struct{}

/*
Resolve creates the native spatial reference and its geographic base.
The base is taken from the GEOGCS authority of the native system (e.g.
EPSG:4258 for EPSG:25832); systems without one fall back to WGS84.
*/
func (Resolver) Resolve(sr rasterfn.SpatialReference) (coords.Projection, error) {
	native, err := newSpatialRef(sr)
	if err != nil {
		return nil, &rasterfn.ConfigurationError{Param: "spatialReference", Reason: "unsupported spatial reference " + sr.String(), Err: err}
	}

	geogEPSG := defaultGeographicEPSG
	code := native.AuthorityCode("GEOGCS")
	if code != "" {
		geogEPSG, err = strconv.Atoi(code)
		if err != nil {
			native.Close()
			return nil, &rasterfn.ConfigurationError{Param: "spatialReference", Reason: fmt.Sprintf("invalid GEOGCS authority code [%s]", code)}
		}
	}

	geographic, err := godal.NewSpatialRefFromEPSG(geogEPSG)
	if err != nil {
		native.Close()
		return nil, &rasterfn.ConfigurationError{Param: "spatialReference", Reason: fmt.Sprintf("error creating geographic SRS (EPSG:%d)", geogEPSG), Err: err}
	}

	proj := &Projection{native: native, geographic: geographic}
	if native.Geographic() && native.IsSame(geographic) {
		slog.Debug("gdal resolver: raster is unprojected", "spatial reference", sr.String(), "geographic", geogEPSG)
		return proj, nil
	}

	proj.transform, err = godal.NewTransform(native, geographic)
	if err != nil {
		proj.Close()
		return nil, &rasterfn.ConfigurationError{Param: "spatialReference",
			Reason: fmt.Sprintf("error creating coordinate transformation from %s to EPSG:%d", sr.String(), geogEPSG), Err: err}
	}
	slog.Debug("gdal resolver: raster is projected", "spatial reference", sr.String(), "geographic", geogEPSG)
	return proj, nil
}

func newSpatialRef(sr rasterfn.SpatialReference) (*godal.SpatialRef, error) {
	switch {
	case sr.EPSG != 0:
		return godal.NewSpatialRefFromEPSG(sr.EPSG)
	case sr.WKT != "":
		return godal.NewSpatialRefFromWKT(sr.WKT)
	}
	return nil, fmt.Errorf("neither EPSG code nor WKT given")
}

/*
Projection is a GDAL spatial reference pair. OGR coordinate transformations
are not safe for concurrent use, so calls are serialized.
*/
type Projection struct {
	mu         sync.Mutex
	native     *godal.SpatialRef
	geographic *godal.SpatialRef
	transform  *godal.Transform
}

// Projected implements coords.Projection.
func (p *Projection) Projected() bool {
	return p.transform != nil
}

// ToGeographic implements coords.Projection.
func (p *Projection) ToGeographic(_ context.Context, x, y float64) (coords.Point, error) {
	if p.transform == nil {
		return coords.Point{X: x, Y: y}, nil
	}

	xCoords := []float64{x}
	yCoords := []float64{y}
	successFlags := make([]bool, 1)

	p.mu.Lock()
	err := p.transform.TransformEx(xCoords, yCoords, nil, successFlags)
	p.mu.Unlock()
	if err != nil {
		return coords.Point{}, &rasterfn.ReprojectionError{X: x, Y: y, Err: fmt.Errorf("error [%w] at transform.TransformEx()", err)}
	}
	if !successFlags[0] {
		return coords.Point{}, &rasterfn.ReprojectionError{X: x, Y: y, Err: fmt.Errorf("point could not be transformed")}
	}

	return coords.Point{X: xCoords[0], Y: yCoords[0]}, nil
}

// Close releases the OGR handles.
func (p *Projection) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transform != nil {
		p.transform.Close()
		p.transform = nil
	}
	if p.geographic != nil {
		p.geographic.Close()
		p.geographic = nil
	}
	if p.native != nil {
		p.native.Close()
		p.native = nil
	}
	return nil
}
