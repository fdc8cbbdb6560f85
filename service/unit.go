/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a part of the service with its own lifecycle (HTTP server, eviction worker, etc.).
type Unit interface {
	// Start runs the unit. It may return immediately or block for the whole unit's lifetime.
	// A failure is reported by sending an error to fatalErr, and nothing is sent on success.
	// The channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit, gracefully if requested.
	// It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is an interface for objects that can register its own metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
