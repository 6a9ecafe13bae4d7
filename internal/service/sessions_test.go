package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klaus/elevation/dtm-raster-functions/pkg/coords"
	"klaus/elevation/dtm-raster-functions/pkg/latitude"
	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
	"klaus/elevation/dtm-raster-functions/pkg/sri"
	"klaus/elevation/dtm-raster-functions/pkg/vrm"
)

func geographicRaster() rasterfn.RasterDescriptor {
	return rasterfn.RasterDescriptor{
		SpatialReference: rasterfn.SpatialReference{EPSG: 4326},
		Extent:           rasterfn.Extent{XMin: 8, YMin: 50, XMax: 9, YMax: 51},
		CellSize:         rasterfn.CellSize{DX: 0.25, DY: 0.25},
		Width:            4,
		Height:           4,
		BandCount:        1,
		PixelType:        rasterfn.F4,
	}
}

func TestSessionsReuse(t *testing.T) {
	sessions := NewSessions(8, time.Hour)
	defer sessions.Close()

	ctx := context.Background()
	first, err := sessions.Acquire(ctx, sri.New(), geographicRaster(), nil)
	require.NoError(t, err)
	assert.Equal(t, rasterfn.Active, first.State())

	second, err := sessions.Acquire(ctx, sri.New(), geographicRaster(), nil)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, sessions.Len())

	// other scalars, other session
	third, err := sessions.Acquire(ctx, vrm.New(), geographicRaster(), rasterfn.Scalars{"size": 5})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, sessions.Len())
}

func TestSessionsReplaceClosed(t *testing.T) {
	sessions := NewSessions(8, time.Hour)
	defer sessions.Close()

	ctx := context.Background()
	first, err := sessions.Acquire(ctx, sri.New(), geographicRaster(), nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := sessions.Acquire(ctx, sri.New(), geographicRaster(), nil)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, rasterfn.Active, second.State())
}

func TestSessionsNegotiationError(t *testing.T) {
	sessions := NewSessions(8, time.Hour)
	defer sessions.Close()

	_, err := sessions.Acquire(context.Background(), vrm.New(), geographicRaster(), rasterfn.Scalars{"size": "large"})
	require.Error(t, err)
	assert.Equal(t, 0, sessions.Len())

	raster := geographicRaster()
	raster.SpatialReference = rasterfn.SpatialReference{EPSG: 2056}
	_, err = sessions.Acquire(context.Background(), latitude.New(coords.Builtin{}), raster, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPSG:2056")
}

func TestSessionsConcurrentAcquire(t *testing.T) {
	sessions := NewSessions(8, time.Hour)
	defer sessions.Close()

	transform := latitude.New(coords.Builtin{})
	functions := make([]*rasterfn.Function, 16)
	var wg sync.WaitGroup
	for i := range functions {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			function, err := sessions.Acquire(context.Background(), transform, geographicRaster(), nil)
			assert.NoError(t, err)
			functions[i] = function
		}()
	}
	wg.Wait()

	for _, function := range functions {
		require.NotNil(t, function)
		assert.Equal(t, rasterfn.Active, function.State())
	}
	assert.Equal(t, 1, sessions.Len())
}

// cancelAwareTransform fails negotiation if its context is done.
type cancelAwareTransform struct {
	rasterfn.Transform
}

func (c cancelAwareTransform) Negotiate(ctx context.Context, in rasterfn.RasterInfoInput) (rasterfn.RasterInfo, rasterfn.Producer, error) {
	if err := ctx.Err(); err != nil {
		return rasterfn.RasterInfo{}, nil, err
	}
	return c.Transform.Negotiate(ctx, in)
}

func TestSessionsNegotiationDetachedFromCallerCancel(t *testing.T) {
	sessions := NewSessions(8, time.Hour)
	defer sessions.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	function, err := sessions.Acquire(cancelled, cancelAwareTransform{sri.New()}, geographicRaster(), nil)
	require.NoError(t, err)
	assert.Equal(t, rasterfn.Active, function.State())

	// later callers reuse the negotiated session
	again, err := sessions.Acquire(context.Background(), cancelAwareTransform{sri.New()}, geographicRaster(), nil)
	require.NoError(t, err)
	assert.Same(t, function, again)
}

func TestSessionsClose(t *testing.T) {
	sessions := NewSessions(8, time.Hour)

	function, err := sessions.Acquire(context.Background(), sri.New(), geographicRaster(), nil)
	require.NoError(t, err)

	sessions.Close()
	assert.Equal(t, rasterfn.Closed, function.State())
}

func TestSessionKey(t *testing.T) {
	a, err := sessionKey("vrm", geographicRaster(), rasterfn.Scalars{"size": 3, "a": 1})
	require.NoError(t, err)
	b, err := sessionKey("vrm", geographicRaster(), rasterfn.Scalars{"a": 1, "size": 3})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := sessionKey("sri", geographicRaster(), rasterfn.Scalars{"a": 1, "size": 3})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	_, err = sessionKey("vrm", geographicRaster(), rasterfn.Scalars{"size": make(chan int)})
	require.Error(t, err)
}
