// Package capture is the boundary through which instrumented code feeds
// the system: it resolves an observed call against the signature
// tracker, validates the captured values structurally, and stores the
// example. Nothing else writes examples.
package capture

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/internal/tracker"
	"github.com/scrypster/blackbox/pkg/types"
)

// EventSink receives notifications about captured and labeled examples.
// Satisfied by *notify.EventWriter.
type EventSink interface {
	Notify(eventType, functionName, subject string) error
}

// Request is one observed function call to be captured.
type Request struct {
	// FunctionName identifies the instrumented function. Required.
	FunctionName string

	// Input holds the observed parameter values keyed by parameter name.
	// Required, may be empty for zero-argument functions.
	Input map[string]any

	// Output is the observed return value.
	Output any

	// Source tags where this call was observed; empty defaults to
	// SourceCaptured.
	Source types.SourceTag

	// InputDescriptor and ReturnDescriptor, when set, declare the shape
	// directly and take precedence over inference from the observed
	// values. Callers with ambiguous values, such as an empty list whose
	// element type the values cannot reveal, use these to pin the shape.
	InputDescriptor  *types.TypeDescriptor
	ReturnDescriptor *types.TypeDescriptor

	// Description and ListPolicy flow into the signature on first
	// resolution of a shape; they never modify an existing version.
	Description string
	ListPolicy  types.ListPolicy

	// Optional trace correlation identifiers, stored verbatim.
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// Service captures examples and attaches quality labels.
type Service struct {
	tracker *tracker.Tracker
	store   storage.ExampleStore
	events  EventSink
}

// NewService creates a capture service. events may be nil.
func NewService(tr *tracker.Tracker, store storage.ExampleStore, events EventSink) *Service {
	return &Service{tracker: tr, store: store, events: events}
}

// Capture resolves the observed call's shape to a signature version,
// validates the values against it, and stores an immutable example.
//
// Descriptors are inferred from the observed values once, here at the
// boundary, unless the request declares them explicitly; downstream
// code never inspects value shapes again. An
// output that does not conform to the resolved descriptor is rejected
// with ErrStructuralMismatch, never coerced.
func (s *Service) Capture(ctx context.Context, req Request) (*types.Example, error) {
	if req.FunctionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	if req.Source == "" {
		req.Source = types.SourceCaptured
	}

	input := types.DescriptorOf(req.Input)
	if req.InputDescriptor != nil {
		input = *req.InputDescriptor
	}
	ret := types.DescriptorOf(req.Output)
	if req.ReturnDescriptor != nil {
		ret = *req.ReturnDescriptor
	}

	sig, err := s.tracker.Resolve(ctx, req.FunctionName, tracker.Observed{
		Input:       input,
		Return:      ret,
		Description: req.Description,
		ListPolicy:  req.ListPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("resolving signature for %s: %w", req.FunctionName, err)
	}

	if !sig.Input.Conforms(req.Input) {
		return nil, fmt.Errorf("%w: input of %s v%d", storage.ErrStructuralMismatch, req.FunctionName, sig.Version)
	}
	if !sig.Return.Conforms(req.Output) {
		return nil, fmt.Errorf("%w: output of %s v%d", storage.ErrStructuralMismatch, req.FunctionName, sig.Version)
	}

	example := &types.Example{
		ID:           uuid.NewString(),
		FunctionName: req.FunctionName,
		Version:      sig.Version,
		Input:        req.Input,
		Output:       req.Output,
		Source:       req.Source,
		TraceID:      req.TraceID,
		SpanID:       req.SpanID,
		ParentSpanID: req.ParentSpanID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.PutExample(ctx, example); err != nil {
		return nil, fmt.Errorf("storing example for %s v%d: %w", req.FunctionName, sig.Version, err)
	}

	s.notify("example_captured", example.FunctionName, example.ID)
	return example, nil
}

// Label attaches or replaces the quality label on a stored example. The
// captured input, output, and version are never modified.
func (s *Service) Label(ctx context.Context, exampleID string, label float64) (*types.Example, error) {
	if !types.ValidLabel(label) {
		return nil, fmt.Errorf("%w: label %v outside [0,1]", storage.ErrInvalidInput, label)
	}
	example, err := s.store.LabelExample(ctx, exampleID, label)
	if err != nil {
		return nil, err
	}
	s.notify("example_labeled", example.FunctionName, example.ID)
	return example, nil
}

func (s *Service) notify(eventType, functionName, subject string) {
	if s.events == nil {
		return
	}
	if err := s.events.Notify(eventType, functionName, subject); err != nil {
		log.Printf("capture: %s event for %s not delivered: %v", eventType, subject, err)
	}
}
