package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/scrypster/blackbox/internal/notify"
)

func TestLoadCandidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.yaml")
	content := `candidates:
  - output: [mumbai, dubai, london]
    label: 0.9
  - output: [paris]
    label: 0.4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cands, err := loadCandidates(path)
	if err != nil {
		t.Fatalf("loadCandidates failed: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].Label != 0.9 {
		t.Errorf("first label = %v, want 0.9", cands[0].Label)
	}
	list, ok := cands[0].Output.([]any)
	if !ok || len(list) != 3 {
		t.Errorf("first output = %#v, want 3-element list", cands[0].Output)
	}
}

func TestFormatEvent(t *testing.T) {
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	line := formatEvent(notify.Event{
		Type:         notify.EventExampleCaptured,
		FunctionName: "recommend_cities",
		Subject:      "ex-123",
		Time:         at.UnixNano(),
	})
	for _, want := range []string{"2026-08-30T12:00:00Z", "example_captured", "recommend_cities", "ex-123"} {
		if !strings.Contains(line, want) {
			t.Errorf("formatted line %q missing %q", line, want)
		}
	}

	// Events without a function name omit the empty column.
	line = formatEvent(notify.Event{
		Type:    notify.EventEvalComplete,
		Subject: "done",
		Time:    at.UnixNano(),
	})
	if !strings.Contains(line, "evaluation_complete") || !strings.HasSuffix(line, "done") {
		t.Errorf("formatted line %q, want type column followed by subject", line)
	}
}

func TestLoadCandidatesMissingPath(t *testing.T) {
	if _, err := loadCandidates(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := loadCandidates("/nonexistent/candidates.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
