/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// WrapResponseWriter is a proxy around http.ResponseWriter that allows hooking into the response process
// (status code and the number of written bytes).
type WrapResponseWriter = chimw.WrapResponseWriter

// NewWrapResponseWriter wraps the http.ResponseWriter keeping its optional interfaces (http.Flusher, http.Hijacker).
func NewWrapResponseWriter(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

// responseStatus returns the status code sent by the handler.
// A handler that writes nothing responds with 200 (net/http behavior).
func responseStatus(wrw WrapResponseWriter) int {
	if status := wrw.Status(); status != 0 {
		return status
	}
	return http.StatusOK
}
