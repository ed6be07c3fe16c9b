// Package types defines the core data structures for the Blackbox
// evaluation system: type descriptors, versioned function signatures,
// captured examples, quality labels, and correlation results.
package types

import "time"

// SourceTag records where an example came from.
type SourceTag string

const (
	// SourceCaptured indicates the example was captured during development
	// or test runs via the instrumentation boundary.
	SourceCaptured SourceTag = "captured"

	// SourceProduction indicates the example was sampled from live traffic.
	SourceProduction SourceTag = "production"
)

// ListPolicy selects how list-valued outputs are compared.
type ListPolicy string

const (
	// ListUnordered compares lists by optimal one-to-one matching,
	// ignoring element order. This is the default policy.
	ListUnordered ListPolicy = "unordered"

	// ListRanked compares lists position by position with rank-decayed
	// weights. Selected per function via signature metadata.
	ListRanked ListPolicy = "ranked"
)

// FunctionSignature is an immutable, numbered snapshot of a function's
// input/output shape. Versions for a given function name are totally
// ordered, starting at 1, and are never mutated or deleted once created.
type FunctionSignature struct {
	// FunctionName is the stable identity of the function.
	FunctionName string

	// Version is the monotonically increasing signature version.
	Version int

	// DescriptorHash is the SHA-256 content hash of the canonical
	// input/return descriptors (see SignatureHash).
	DescriptorHash string

	// Input describes the function's parameters as an object descriptor
	// keyed by parameter name.
	Input TypeDescriptor

	// Return describes the function's output shape.
	Return TypeDescriptor

	// Description is optional free text (typically the function's
	// docstring) supplied by the instrumentation layer.
	Description string

	// ListPolicy selects the list comparison policy for this function.
	// Empty means ListUnordered.
	ListPolicy ListPolicy

	// CreatedAt is when this version was first resolved.
	CreatedAt time.Time
}

// Example is a single captured input/output pair tied to a specific
// signature version. Examples are immutable once stored: labeling
// produces a logically replacing record, never an in-place edit of the
// captured values.
type Example struct {
	// ID is the generated unique identifier.
	ID string

	// FunctionName and Version reference the signature this example
	// conforms to.
	FunctionName string
	Version      int

	// Input holds the captured parameter values keyed by parameter name.
	Input map[string]any

	// Output holds the captured return value. It structurally matches the
	// signature version's return descriptor.
	Output any

	// Label is the optional quality label in [0,1]. Nil means unlabeled.
	Label *float64

	// Source records how the example was obtained.
	Source SourceTag

	// TraceID, SpanID, and ParentSpanID carry optional trace correlation
	// identifiers from the instrumentation layer. Stored verbatim.
	TraceID      string
	SpanID       string
	ParentSpanID string

	// CreatedAt is the capture timestamp.
	CreatedAt time.Time
}

// Labeled reports whether the example carries a quality label.
func (e *Example) Labeled() bool {
	return e.Label != nil
}

// Quality label bands. The engine treats labels as continuous values in
// [0,1]; these thresholds are informational only.
const (
	// QualityHighThreshold marks labels considered high quality.
	QualityHighThreshold = 0.8

	// QualityPoorThreshold marks labels considered poor quality.
	QualityPoorThreshold = 0.3
)

// QualityBand returns the informational band for a label value:
// "high" (>= 0.8), "poor" (<= 0.3), or "average" otherwise.
func QualityBand(label float64) string {
	switch {
	case label >= QualityHighThreshold:
		return "high"
	case label <= QualityPoorThreshold:
		return "poor"
	default:
		return "average"
	}
}

// ValidLabel reports whether a quality label is in the allowed [0,1] range.
func ValidLabel(label float64) bool {
	return label >= 0 && label <= 1
}

// MinLabeledForConfidence is the recommended minimum number of labeled
// examples for a usable correlation coefficient. Results computed from
// fewer examples carry a low-sample warning.
const MinLabeledForConfidence = 5

// CorrelationResult reports how well similarity-to-labeled-examples
// predicts quality for one signature version.
type CorrelationResult struct {
	// FunctionName and Version identify the evaluated signature.
	FunctionName string
	Version      int

	// SampleSize is the number of labeled examples used.
	SampleSize int

	// Coefficient is the Pearson correlation coefficient in [-1,1]
	// between predicted and observed quality across the candidate set.
	Coefficient float64

	// LowSampleWarning is set when SampleSize < MinLabeledForConfidence.
	LowSampleWarning bool
}
