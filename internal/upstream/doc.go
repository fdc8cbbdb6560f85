/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package upstream provides the handler that serves requests admitted by the throttler.
// It is either a reverse proxy to the configured upstream service or a built-in echo handler.
package upstream
