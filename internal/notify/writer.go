// Package notify provides cross-process event notification between the
// capture side and review tooling using filesystem events. A capture
// process drops small event files; a watcher in the labeling workflow
// picks them up without the two sharing anything but a data directory.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Event types emitted by the capture and evaluation layers.
const (
	EventExampleCaptured = "example_captured"
	EventExampleLabeled  = "example_labeled"
	EventVersionCreated  = "version_created"
	EventEvalComplete    = "evaluation_complete"
)

// Event is the payload written to an event file.
type Event struct {
	Type         string `json:"type"`
	FunctionName string `json:"function_name"`
	Subject      string `json:"subject"` // example ID, or version number as text
	Time         int64  `json:"time"`
}

// EventWriter writes notification event files to a shared directory.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Notify writes an event file for the given type and subject.
// Safe to call concurrently. Errors are returned but not fatal.
func (w *EventWriter) Notify(eventType, functionName, subject string) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	evt := Event{
		Type:         eventType,
		FunctionName: functionName,
		Subject:      subject,
		Time:         time.Now().UnixNano(),
	}
	data, _ := json.Marshal(evt)
	filename := fmt.Sprintf("%d-%s.event", evt.Time, sanitize(subject))
	path := filepath.Join(w.dir, filename)
	return os.WriteFile(path, data, 0o600)
}

// sanitize replaces characters unsafe for filenames.
func sanitize(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':', '\\':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}
