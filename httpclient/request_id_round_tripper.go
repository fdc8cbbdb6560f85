/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"net/http"

	"github.com/acronis/go-throttlegate/httpserver/middleware"
)

// RequestIDRoundTripper propagates the id of the inbound request (see middleware.RequestID)
// to the upstream in the X-Request-ID header.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper
}

// NewRequestIDRoundTripper creates a new RequestIDRoundTripper.
func NewRequestIDRoundTripper(delegate http.RoundTripper) http.RoundTripper {
	return &RequestIDRoundTripper{Delegate: delegate}
}

// RoundTrip sets the X-Request-ID header if it's missing and the request context has an id.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	if requestID == "" || r.Header.Get(middleware.HeaderRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = r.Clone(r.Context()) // Per RoundTripper contract.
	r.Header.Set(middleware.HeaderRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
