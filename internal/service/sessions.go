package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/sync/singleflight"

	"klaus/elevation/dtm-raster-functions/pkg/rasterfn"
)

/*
Sessions caches negotiated raster functions. A session is the active
Function of one transform for one raster descriptor and scalar set, so
raster info is negotiated once per opened raster, not once per request.
Evicted sessions are closed.
*/
type Sessions struct {
	ttl      time.Duration
	cache    *ccache.Cache[*rasterfn.Function]
	inflight singleflight.Group
}

// NewSessions creates a session cache holding at most size sessions.
func NewSessions(size int64, ttl time.Duration) *Sessions {
	configuration := ccache.Configure[*rasterfn.Function]().
		MaxSize(size).
		OnDelete(func(item *ccache.Item[*rasterfn.Function]) {
			closeSession(item.Key(), item.Value())
		})
	return &Sessions{
		ttl:   ttl,
		cache: ccache.New(configuration),
	}
}

func closeSession(key string, function *rasterfn.Function) {
	err := function.Close()
	if err != nil {
		slog.Warn("error closing raster function session", "function", function.Name(), "error", err)
		return
	}
	slog.Debug("raster function session closed", "function", function.Name(), "key length", len(key))
}

/*
Acquire returns the active session for t, raster and scalars. A missing or
expired session is configured and negotiated; concurrent callers for the
same session share one negotiation.
*/
func (s *Sessions) Acquire(ctx context.Context, t rasterfn.Transform, raster rasterfn.RasterDescriptor, scalars rasterfn.Scalars) (*rasterfn.Function, error) {
	key, err := sessionKey(t.Name(), raster, scalars)
	if err != nil {
		return nil, err
	}

	item := s.cache.Get(key)
	if item != nil && !item.Expired() && item.Value().State() == rasterfn.Active {
		return item.Value(), nil
	}

	// shared by all waiting callers, not bound to the first one
	shared := context.WithoutCancel(ctx)
	v, err, _ := s.inflight.Do(key, func() (interface{}, error) {
		// created by a negotiation that finished meanwhile
		item := s.cache.Get(key)
		if item != nil && !item.Expired() && item.Value().State() == rasterfn.Active {
			return item.Value(), nil
		}

		function := rasterfn.New(t)
		_, err := function.Configure(scalars)
		if err != nil {
			return nil, err
		}
		_, err = function.UpdateRasterInfo(shared, raster)
		if err != nil {
			_ = function.Close()
			return nil, err
		}
		s.cache.Set(key, function, s.ttl)
		slog.Debug("raster function session created", "function", t.Name(), "spatial reference", raster.SpatialReference.String())
		return function, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*rasterfn.Function), nil
}

// Len returns the number of cached sessions.
func (s *Sessions) Len() int {
	return s.cache.ItemCount()
}

/*
Close closes all cached sessions and stops the cache.
*/
func (s *Sessions) Close() {
	var functions []*rasterfn.Function
	s.cache.ForEachFunc(func(_ string, item *ccache.Item[*rasterfn.Function]) bool {
		functions = append(functions, item.Value())
		return true
	})
	s.cache.Stop()
	for _, function := range functions {
		closeSession("", function)
	}
}

func sessionKey(name string, raster rasterfn.RasterDescriptor, scalars rasterfn.Scalars) (string, error) {
	// map keys are sorted by encoding/json
	rasterJSON, err := json.Marshal(raster)
	if err != nil {
		return "", &rasterfn.ConfigurationError{Param: "raster", Reason: "raster descriptor not encodable", Err: err}
	}
	scalarsJSON, err := json.Marshal(scalars)
	if err != nil {
		return "", &rasterfn.ConfigurationError{Param: "scalars", Reason: "scalars not encodable", Err: err}
	}
	return fmt.Sprintf("%s|%s|%s", name, rasterJSON, scalarsJSON), nil
}
