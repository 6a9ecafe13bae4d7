package service

import (
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
)

/*
functionsRequest handles 'functions request' from client. It returns the
description of all hosted raster functions.
*/
func (s *Service) functionsRequest(writer http.ResponseWriter, _ *http.Request) {
	var functionsResponse = FunctionsResponse{Type: TypeFunctionsResponse, ID: uuid.NewString()}

	// statistics
	atomic.AddUint64(&FunctionsRequests, 1)

	functionsResponse.Attributes.Functions = s.catalog.Describe()

	// success response
	buildResponse(writer, http.StatusOK, functionsResponse)
}
