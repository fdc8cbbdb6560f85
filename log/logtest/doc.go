/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest contains log.FieldLogger implementations for tests:
// NewLogger writes JSON lines, Recorder keeps entries in memory for assertions.
package logtest
