package service

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/*
NewRouter defines the routes of the service: the function listing, one tile
route per hosted function and the metrics endpoint. Everything else is
answered as unsupported request.
*/
func NewRouter(s *Service) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(PrometheusMiddleware)

	router.Get("/v1/functions", s.functionsRequest)
	router.Options("/v1/functions", corsOptionsHandler)

	for _, name := range s.catalog.Names() {
		router.Post("/v1/"+name, s.tileRequest(name))
		router.Options("/v1/"+name, corsOptionsHandler)
	}

	router.Handle("/metrics", promhttp.Handler())

	// handle unsupported routes or methods
	router.NotFound(unsupportedRequest)
	router.MethodNotAllowed(unsupportedRequest)

	return router
}
