/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
)

// RoutePatternGetterFunc is a function for getting route pattern from the request.
// It keeps the cardinality of metric labels bounded. For chi router it may look like:
//
//	func getChiRoutePattern(r *http.Request) string {
//		if chiCtx := chi.RouteContext(r.Context()); chiCtx != nil {
//			return chiCtx.RoutePattern()
//		}
//		return ""
//	}
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter (if it is not already wrapped), returning a proxy that allows you to
// hook into various parts of the response process.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return NewWrapResponseWriter(rw, protoMajor)
}
