//go:build e2e

// Package e2e holds the browser specs for the bridge page.
//
// These specs are isolated from the standard test suite via build tags.
// They require a Chrome browser (auto-downloaded by Rod if not present)
// and are intended for CI pipelines or explicit local testing.
//
// Running the browser specs:
//
//	go test -tags=e2e ./e2e/...
//
// Running all tests except the browser specs:
//
//	go test ./...
//
// Test isolation:
// Each spec starts its own bridge fixture on a random port and opens its
// own browser tab, so specs can run in parallel and never share session
// state.
package e2e
