package coords

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

// CachedProjection memoizes reprojected points keyed by the map point.
// Concurrent misses for the same point share one reprojection.
type CachedProjection struct {
	inner    Projection
	ttl      time.Duration
	points   *ccache.Cache[Point]
	inflight singleflight.Group
}

/*
Cached wraps proj with an LRU cache of at most size points. A size below 1
returns proj unchanged, as does an unprojected system (nothing to cache).
*/
func Cached(proj Projection, size int64, ttl time.Duration) Projection {
	if size < 1 || !proj.Projected() {
		return proj
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedProjection{
		inner:  proj,
		ttl:    ttl,
		points: ccache.New(ccache.Configure[Point]().MaxSize(size)),
	}
}

// Projected implements Projection.
func (c *CachedProjection) Projected() bool {
	return c.inner.Projected()
}

// ToGeographic implements Projection.
func (c *CachedProjection) ToGeographic(ctx context.Context, x, y float64) (Point, error) {
	key := strconv.FormatFloat(x, 'g', -1, 64) + "," + strconv.FormatFloat(y, 'g', -1, 64)

	item := c.points.Get(key)
	if item != nil && !item.Expired() {
		return item.Value(), nil
	}

	// shared by all waiting callers, not bound to the first one
	shared := context.WithoutCancel(ctx)
	v, err, _ := c.inflight.Do(key, func() (interface{}, error) {
		p, err := c.inner.ToGeographic(shared, x, y)
		if err != nil {
			return nil, err
		}
		c.points.Set(key, p, c.ttl)
		return p, nil
	})
	if err != nil {
		return Point{}, err
	}
	return v.(Point), nil
}

// Len returns the number of cached points.
func (c *CachedProjection) Len() int {
	return c.points.ItemCount()
}

// Close stops the cache and closes the wrapped projection if it holds resources.
func (c *CachedProjection) Close() error {
	c.points.Stop()
	if closer, ok := c.inner.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// CachingResolver wraps every projection of Resolver with a point cache.
type CachingResolver struct {
	Resolver Resolver
	Size     int64
	TTL      time.Duration
}

// Resolve implements Resolver.
func (r CachingResolver) Resolve(sr rasterfn.SpatialReference) (Projection, error) {
	proj, err := r.Resolver.Resolve(sr)
	if err != nil {
		return nil, err
	}
	return Cached(proj, r.Size, r.TTL), nil
}
