package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kembridge/bridgecheck/conlog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndReadConsole(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	records := []conlog.Record{
		{Kind: "log", Text: "🔌 WebSocket connected", Time: time.Now().Add(-2 * time.Second)},
		{Kind: "log", Text: "📡 Subscribed: transaction_status", Time: time.Now().Add(-time.Second)},
		{Kind: "error", Text: "boom", Time: time.Now()},
	}
	if err := s.SaveConsole(ctx, "run-1", "auth", records); err != nil {
		t.Fatalf("save console: %v", err)
	}

	got, err := s.ConsoleRecords(ctx, "run-1", "auth")
	if err != nil {
		t.Fatalf("read console: %v", err)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}
	for i := range got {
		if got[i].Kind != records[i].Kind || got[i].Text != records[i].Text {
			t.Errorf("record %d: got %s %q, want %s %q",
				i, got[i].Kind, got[i].Text, records[i].Kind, records[i].Text)
		}
	}

	other, err := s.ConsoleRecords(ctx, "run-1", "other-spec")
	if err != nil {
		t.Fatalf("read other spec: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("other spec has %d records, want 0", len(other))
	}
}

func TestSaveConsoleEmptyIsNoop(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveConsole(context.Background(), "run-1", "auth", nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
}

func TestOutcomesRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-time.Minute)
	outcomes := []Outcome{
		{RunID: "run-1", Spec: "auth", OK: true, StartedAt: started, FinishedAt: time.Now()},
		{RunID: "run-1", Spec: "swap", OK: false, SoftFailures: 2, Detail: "quote never ready",
			StartedAt: started, FinishedAt: time.Now()},
		{RunID: "run-2", Spec: "auth", OK: true, StartedAt: started, FinishedAt: time.Now()},
	}
	for _, o := range outcomes {
		if err := s.SaveOutcome(ctx, o); err != nil {
			t.Fatalf("save outcome %s/%s: %v", o.RunID, o.Spec, err)
		}
	}

	got, err := s.Outcomes(ctx, "run-1")
	if err != nil {
		t.Fatalf("read outcomes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("run-1 has %d outcomes, want 2", len(got))
	}
	if !got[0].OK || got[0].Spec != "auth" {
		t.Errorf("first outcome: got %+v", got[0])
	}
	if got[1].OK || got[1].SoftFailures != 2 || got[1].Detail != "quote never ready" {
		t.Errorf("second outcome: got %+v", got[1])
	}
}

func TestCleanupRemovesOldArtifacts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	s.SaveOutcome(ctx, Outcome{RunID: "old", Spec: "auth", OK: true, StartedAt: old, FinishedAt: old})
	s.SaveOutcome(ctx, Outcome{RunID: "new", Spec: "auth", OK: true, StartedAt: recent, FinishedAt: recent})
	s.SaveConsole(ctx, "old", "auth", []conlog.Record{{Kind: "log", Text: "stale", Time: old}})
	s.SaveConsole(ctx, "new", "auth", []conlog.Record{{Kind: "log", Text: "fresh", Time: recent}})

	deleted, err := s.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted %d outcomes, want 1", deleted)
	}

	if got, _ := s.Outcomes(ctx, "old"); len(got) != 0 {
		t.Errorf("old run still has %d outcomes", len(got))
	}
	if got, _ := s.Outcomes(ctx, "new"); len(got) != 1 {
		t.Errorf("new run has %d outcomes, want 1", len(got))
	}
	if got, _ := s.ConsoleRecords(ctx, "old", "auth"); len(got) != 0 {
		t.Errorf("old console records survived cleanup")
	}
}

const samplePage = `<!doctype html>
<html>
<head><title>KEMBridge</title><script>var hidden = "should not appear";</script></head>
<body>
  <h1>Bridge</h1>
  <span data-testid="ws-status" data-status="connected">connected</span>
  <div data-testid="quote-display" data-state="ready">&#8776; 912.37 NEAR (min 907.81)</div>
  <p>Swap <b>ETH</b> to NEAR.</p>
</body>
</html>`

func TestDumpPage(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDumper(dir)
	if err != nil {
		t.Fatalf("new dumper: %v", err)
	}

	path, err := d.DumpPage("swap-failure", samplePage)
	if err != nil {
		t.Fatalf("dump page: %v", err)
	}
	if filepath.Base(path) != "swap-failure.md" {
		t.Errorf("dump path: got %s", path)
	}

	rawBytes, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}
	raw := string(rawBytes)
	if !strings.Contains(raw, "Bridge") {
		t.Errorf("dump missing heading text: %q", raw)
	}
	if strings.Contains(raw, "should not appear") {
		t.Errorf("dump contains script content: %q", raw)
	}
	if strings.Contains(raw, "<script") {
		t.Errorf("dump contains raw script tag")
	}
}

func TestPageSummary(t *testing.T) {
	summary, err := PageSummary(samplePage)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, want := range []string{
		"title: KEMBridge",
		"ws-status: connected",
		"quote-display:",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "should not appear") {
		t.Errorf("summary leaked script content:\n%s", summary)
	}
}
