package service

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// statistics
var (
	FunctionsRequests   uint64
	TileRequests        uint64
	FailedTileRequests  uint64
	Tiles               uint64
	UnsupportedRequests uint64
)

// metrics
var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "http_response_time_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Number of HTTP requests.",
	}, []string{"path"})
	tileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "raster_function_tile_seconds",
		Help:    "Duration of tile production.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"function"})
	tilesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "raster_function_tiles_total",
		Help: "Number of produced tiles.",
	}, []string{"function", "result"})
)

/*
PrometheusMiddleware records duration and count of HTTP requests per route.
*/
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)

		// route pattern (e.g. /v1/vrm), not the raw path
		path := "unsupported"
		if routeContext := chi.RouteContext(r.Context()); routeContext != nil && routeContext.RoutePattern() != "" {
			path = routeContext.RoutePattern()
		}
		httpDuration.WithLabelValues(path).Observe(duration.Seconds())
		httpRequests.WithLabelValues(path).Inc()
	})
}

func observeTile(function string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	tileDuration.WithLabelValues(function).Observe(time.Since(start).Seconds())
	tilesProduced.WithLabelValues(function, result).Inc()
}

/*
LogStatistics logs and resets the request statistics.
*/
func LogStatistics() {
	// read and reset statistics
	currentFunctionsRequests := atomic.SwapUint64(&FunctionsRequests, 0)
	currentTileRequests := atomic.SwapUint64(&TileRequests, 0)
	currentFailedTileRequests := atomic.SwapUint64(&FailedTileRequests, 0)
	currentTiles := atomic.SwapUint64(&Tiles, 0)
	currentUnsupportedRequests := atomic.SwapUint64(&UnsupportedRequests, 0)

	// log statistics
	slog.Info("load statistics",
		"FunctionsRequests", currentFunctionsRequests,
		"TileRequests", currentTileRequests,
		"FailedTileRequests", currentFailedTileRequests,
		"Tiles", currentTiles,
		"UnsupportedRequests", currentUnsupportedRequests,
	)
}
