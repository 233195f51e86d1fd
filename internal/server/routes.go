package server

import (
	"net/http"

	"dropzone/internal/handler"
	"dropzone/internal/logging"
)

// wrap applies recovery + security headers + CORS + request logging to a handler.
func wrap(logger logging.Logger, h http.HandlerFunc) http.HandlerFunc {
	return handler.Recover(logger, handler.SecureHeaders(handler.Cors(handler.RequestLogger(logger, h))))
}

// Routes returns the full HTTP stack around the request dispatcher.
func Routes(h http.Handler, logger logging.Logger) http.Handler {
	return wrap(logger, h.ServeHTTP)
}
