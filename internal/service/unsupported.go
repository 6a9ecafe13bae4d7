package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
)

/*
unsupportedRequest handles requests for unknown routes, unknown functions or
unexpected methods with "400 Bad Request".
*/
func unsupportedRequest(writer http.ResponseWriter, request *http.Request) {
	atomic.AddUint64(&UnsupportedRequests, 1)

	writer.Header().Set("Content-Type", TextPlainMediaType)
	writer.WriteHeader(http.StatusBadRequest)
	errorMessage := "unsupported http request (e.g. route, function or method)"
	slog.Warn(errorMessage, "method", request.Method, "path", request.URL.Path)
	fmt.Fprint(writer, errorMessage)
}
