package notify

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEventWriterCreatesFile(t *testing.T) {
	dir := t.TempDir()
	w := NewEventWriter(dir)

	if err := w.Notify(EventExampleCaptured, "recommend_cities", "ex-abc123"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 event file, got %d", len(entries))
	}
	if filepath.Ext(entries[0].Name()) != ".event" {
		t.Errorf("expected .event extension, got %s", entries[0].Name())
	}
}

func TestEventWatcherReceivesEvent(t *testing.T) {
	dir := t.TempDir()

	received := make(chan Event, 1)
	watcher := NewEventWatcher(dir, func(event Event) {
		received <- event
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	// Give fsnotify a moment to register
	time.Sleep(50 * time.Millisecond)

	writer := NewEventWriter(dir)
	if err := writer.Notify(EventExampleLabeled, "recommend_cities", "ex-test123"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Type != EventExampleLabeled {
			t.Errorf("expected event type %s, got %s", EventExampleLabeled, msg.Type)
		}
		if msg.FunctionName != "recommend_cities" {
			t.Errorf("expected function recommend_cities, got %s", msg.FunctionName)
		}
		if msg.Subject != "ex-test123" {
			t.Errorf("expected ex-test123, got %s", msg.Subject)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventWatcherDrainsExisting(t *testing.T) {
	dir := t.TempDir()

	// Write events BEFORE starting watcher
	writer := NewEventWriter(dir)
	_ = writer.Notify(EventExampleCaptured, "recommend_cities", "ex-drain1")
	_ = writer.Notify(EventVersionCreated, "recommend_cities", "2")

	received := make(chan string, 10)
	watcher := NewEventWatcher(dir, func(event Event) {
		received <- event.Subject
	})
	if err := watcher.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer watcher.Stop()

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-received:
			seen[id] = true
		case <-time.After(3 * time.Second):
			t.Fatalf("timeout, drained %d of 2 events", i)
		}
	}
	if !seen["ex-drain1"] || !seen["2"] {
		t.Errorf("missing drained events, saw %v", seen)
	}
}
