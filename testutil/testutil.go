/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package testutil contains helpers shared by the tests of the gateway packages.
package testutil

type tHelper interface {
	Helper()
}
