package service

import "net/http"

/*
corsOptionsHandler handles CORS preflight (OPTIONS) requests for the
function routes.
*/
func corsOptionsHandler(writer http.ResponseWriter, _ *http.Request) {
	// set CORS headers for the preflight request
	writer.Header().Set("Access-Control-Allow-Origin", "*")

	// allowed methods for the actual request
	writer.Header().Set("Access-Control-Allow-Methods", "GET, POST")

	// allowed headers for the actual request
	writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")

	// caching time for results of preflight request in seconds (86400 seconds = 24 hours)
	writer.Header().Set("Access-Control-Max-Age", "86400")

	writer.WriteHeader(http.StatusOK)
}
