/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import "net/http"

// UserAgentRoundTripper sets the User-Agent header in the outgoing requests.
type UserAgentRoundTripper struct {
	Delegate       http.RoundTripper
	UserAgent      string
	UpdateStrategy UserAgentUpdateStrategy
}

// UserAgentUpdateStrategy represents a strategy for updating User-Agent HTTP header.
type UserAgentUpdateStrategy int

// User-Agent update strategies.
const (
	UserAgentUpdateStrategySetIfEmpty UserAgentUpdateStrategy = iota
	UserAgentUpdateStrategyAppend
)

// NewUserAgentRoundTripper creates a new UserAgentRoundTripper that sets User-Agent only if it's empty.
func NewUserAgentRoundTripper(delegate http.RoundTripper, userAgent string) *UserAgentRoundTripper {
	return NewUserAgentRoundTripperWithStrategy(delegate, userAgent, UserAgentUpdateStrategySetIfEmpty)
}

// NewUserAgentRoundTripperWithStrategy creates a new UserAgentRoundTripper with the given update strategy.
func NewUserAgentRoundTripperWithStrategy(
	delegate http.RoundTripper, userAgent string, strategy UserAgentUpdateStrategy,
) *UserAgentRoundTripper {
	return &UserAgentRoundTripper{Delegate: delegate, UserAgent: userAgent, UpdateStrategy: strategy}
}

// RoundTrip updates User-Agent according to the strategy and sends the request.
func (rt *UserAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	userAgent := req.Header.Get("User-Agent")
	switch {
	case userAgent == "":
		userAgent = rt.UserAgent
	case rt.UpdateStrategy == UserAgentUpdateStrategyAppend:
		userAgent += " " + rt.UserAgent
	default:
		return rt.Delegate.RoundTrip(req)
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("User-Agent", userAgent)
	return rt.Delegate.RoundTrip(req)
}
