package coords

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// Projection is the spatial reference pair of a raster: its native system
// and the geographic system it is based on.
type Projection interface {
	// Projected reports whether the native system differs from its
	// geographic base, i.e. whether reprojection is needed at all.
	Projected() bool

	// ToGeographic reprojects a native map point to lon/lat degrees.
	ToGeographic(ctx context.Context, x, y float64) (Point, error)
}

// Resolver builds the projection of a spatial reference.
type Resolver interface {
	Resolve(sr rasterfn.SpatialReference) (Projection, error)
}

// ToGeographic reprojects p; unprojected systems return p unchanged.
func ToGeographic(ctx context.Context, proj Projection, p Point) (Point, error) {
	if !proj.Projected() {
		return p, nil
	}
	return proj.ToGeographic(ctx, p.X, p.Y)
}

// ellipsoids
const (
	semiMajorAxis    = 6378137.0
	flatteningWGS84  = 1 / 298.257223563
	flatteningGRS80  = 1 / 298.257222101
	utmScaleFactor   = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
	webMercatorShift = math.Pi * semiMajorAxis
)

// geographic systems handled by the builtin resolver
var builtinGeographic = map[int]string{
	4326: "WGS 84",
	4258: "ETRS89",
	4269: "NAD83",
	4230: "ED50",
}

/*
Builtin resolves a fixed set of EPSG codes without an external projection
engine: geographic systems, web mercator, and UTM zones on WGS 84 and
ETRS89. WKT-only references are not supported.
*/
type Builtin struct{}

// Resolve implements Resolver.
func (Builtin) Resolve(sr rasterfn.SpatialReference) (Projection, error) {
	code := sr.EPSG
	if code == 0 {
		return nil, &rasterfn.ConfigurationError{Param: "spatialReference", Reason: "builtin resolver requires an EPSG code"}
	}

	if name, found := builtinGeographic[code]; found {
		slog.Debug("builtin resolver: geographic system", "epsg", code, "name", name)
		return geographic{}, nil
	}

	switch {
	case code == 3857 || code == 900913 || code == 3785:
		return webMercator{}, nil
	case code >= 32601 && code <= 32660:
		return newUTM(code-32600, false, flatteningWGS84), nil
	case code >= 32701 && code <= 32760:
		return newUTM(code-32700, true, flatteningWGS84), nil
	case code >= 25828 && code <= 25838:
		return newUTM(code-25800, false, flatteningGRS80), nil
	}

	return nil, &rasterfn.ConfigurationError{Param: "spatialReference", Reason: fmt.Sprintf("unsupported spatial reference EPSG:%d", code)}
}

type geographic struct{}

func (geographic) Projected() bool { return false }

func (geographic) ToGeographic(_ context.Context, x, y float64) (Point, error) {
	return Point{X: x, Y: y}, nil
}

// webMercator is the inverse of EPSG:3857 on the sphere.
type webMercator struct{}

func (webMercator) Projected() bool { return true }

func (webMercator) ToGeographic(_ context.Context, x, y float64) (Point, error) {
	if math.Abs(y) > webMercatorShift*2 || math.IsNaN(x) || math.IsNaN(y) {
		return Point{}, &rasterfn.ReprojectionError{X: x, Y: y, Err: fmt.Errorf("outside web mercator domain")}
	}
	lon := x / webMercatorShift * 180.0
	lat := 180.0 / math.Pi * (2.0*math.Atan(math.Exp(y/semiMajorAxis)) - math.Pi/2.0)
	return Point{X: lon, Y: lat}, nil
}

// utm is the inverse transverse mercator projection of one UTM zone.
type utm struct {
	zone          int
	south         bool
	centralLon    float64
	e2            float64
	ep2           float64
	e1            float64
	meridianScale float64
}

func newUTM(zone int, south bool, flattening float64) utm {
	e2 := flattening * (2 - flattening)
	e4 := e2 * e2
	e6 := e4 * e2
	return utm{
		zone:          zone,
		south:         south,
		centralLon:    float64(zone-1)*6 - 180 + 3,
		e2:            e2,
		ep2:           e2 / (1 - e2),
		e1:            (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2)),
		meridianScale: semiMajorAxis * (1 - e2/4 - 3*e4/64 - 5*e6/256),
	}
}

func (u utm) Projected() bool { return true }

func (u utm) ToGeographic(_ context.Context, easting, northing float64) (Point, error) {
	if math.IsNaN(easting) || math.IsNaN(northing) || math.Abs(easting-utmFalseEasting) > 1000000 {
		return Point{}, &rasterfn.ReprojectionError{X: easting, Y: northing, Err: fmt.Errorf("outside UTM zone %d domain", u.zone)}
	}

	x := easting - utmFalseEasting
	y := northing
	if u.south {
		y -= utmFalseNorthing
	}

	// footpoint latitude
	mu := y / utmScaleFactor / u.meridianScale
	e1 := u.e1
	phi1 := mu +
		(3*e1/2-27*math.Pow(e1, 3)/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*math.Pow(e1, 4)/32)*math.Sin(4*mu) +
		(151*math.Pow(e1, 3)/96)*math.Sin(6*mu) +
		(1097*math.Pow(e1, 4)/512)*math.Sin(8*mu)

	sinPhi := math.Sin(phi1)
	cosPhi := math.Cos(phi1)
	tanPhi := math.Tan(phi1)
	c1 := u.ep2 * cosPhi * cosPhi
	t1 := tanPhi * tanPhi
	w := 1 - u.e2*sinPhi*sinPhi
	n1 := semiMajorAxis / math.Sqrt(w)
	r1 := semiMajorAxis * (1 - u.e2) / math.Pow(w, 1.5)
	d := x / (n1 * utmScaleFactor)
	d2 := d * d

	lat := phi1 - (n1*tanPhi/r1)*(d2/2-
		(5+3*t1+10*c1-4*c1*c1-9*u.ep2)*d2*d2/24+
		(61+90*t1+298*c1+45*t1*t1-252*u.ep2-3*c1*c1)*d2*d2*d2/720)
	lon := (d -
		(1+2*t1+c1)*d2*d/6 +
		(5-2*c1+28*t1-3*c1*c1+8*u.ep2+24*t1*t1)*d2*d2*d/120) / cosPhi

	return Point{X: u.centralLon + lon*180/math.Pi, Y: lat * 180 / math.Pi}, nil
}
