//go:build e2e

package e2e

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/kembridge/bridgecheck/harness"
	"github.com/kembridge/bridgecheck/stubapp"
)

// startFixture runs a bridge fixture on a random port and returns its
// base URL.
func startFixture(t *testing.T) string {
	t.Helper()

	srv := stubapp.New(stubapp.Config{StatusInterval: 200 * time.Millisecond})
	addr, err := srv.Start()
	if err != nil {
		t.Fatalf("start fixture: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("fixture shutdown: %v", err)
		}
	})
	return "http://" + addr
}

// newHarness builds a harness pointed at the fixture, with artifacts in
// a per-test temp directory, and starts its browser.
func newHarness(t *testing.T, baseURL string) *harness.Harness {
	t.Helper()

	dir := t.TempDir()
	cfg := harness.DefaultConfig()
	cfg.Target.BaseURL = baseURL
	cfg.Browser.Headless = true
	cfg.Artifacts.DBPath = filepath.Join(dir, "artifacts.db")
	cfg.Artifacts.DumpDir = filepath.Join(dir, "dumps")

	h, err := harness.New(cfg, nil)
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Close(ctx); err != nil {
			t.Errorf("harness close: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("start browser: %v", err)
	}
	return h
}

// dropConnections asks the fixture to sever every live WebSocket, which
// the page should answer with a reconnect.
func dropConnections(t *testing.T, baseURL string) {
	t.Helper()

	resp, err := http.Post(baseURL+"/api/v1/test/ws-drop", "application/json", nil)
	if err != nil {
		t.Fatalf("ws-drop: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ws-drop: status %d", resp.StatusCode)
	}
}

func specContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	return ctx
}
