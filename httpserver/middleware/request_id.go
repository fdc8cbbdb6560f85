/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

// Request id headers.
const (
	HeaderRequestID         = "X-Request-ID"
	HeaderInternalRequestID = "X-Int-Request-ID"
)

// RequestIDOpts represents an options for RequestID middleware.
type RequestIDOpts struct {
	GenerateID         func() string
	GenerateInternalID func() string
}

type requestIDHandler struct {
	next http.Handler
	opts RequestIDOpts
}

func newID() string {
	return xid.New().String()
}

// RequestID is a middleware that reads value of X-Request-ID request's HTTP header and generates new one if it's empty.
// The generated id is also set into the request headers, so it reaches the upstream service.
// Besides, the middleware generates an internal request id that identifies the request inside the gateway only.
// Both ids are put into request's context and returned in X-Request-ID and X-Int-Request-ID response headers.
// Ids are generated with xid (based on Mongo Object ID algorithm).
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is a more configurable version of RequestID middleware.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	if opts.GenerateID == nil {
		opts.GenerateID = newID
	}
	if opts.GenerateInternalID == nil {
		opts.GenerateInternalID = newID
	}
	return func(next http.Handler) http.Handler {
		return &requestIDHandler{next: next, opts: opts}
	}
}

func (h *requestIDHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = h.opts.GenerateID()
		r.Header.Set(HeaderRequestID, requestID)
	}
	ctx = NewContextWithRequestID(ctx, requestID)
	rw.Header().Set(HeaderRequestID, requestID)

	internalRequestID := h.opts.GenerateInternalID()
	ctx = NewContextWithInternalRequestID(ctx, internalRequestID)
	rw.Header().Set(HeaderInternalRequestID, internalRequestID)

	h.next.ServeHTTP(rw, r.WithContext(ctx))
}
