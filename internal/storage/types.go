package storage

import (
	"errors"

	"github.com/scrypster/blackbox/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStructuralMismatch indicates that a captured output does not
	// conform to its signature version's return descriptor. The capture
	// is rejected, never coerced.
	ErrStructuralMismatch = errors.New("output does not match signature descriptor")

	// ErrSignatureConflict indicates that a signature insert lost a
	// compare-and-swap race: a row with the same (function_name, hash) or
	// (function_name, version) already exists. The tracker handles this by
	// re-reading the winner's row; it is never surfaced to callers.
	ErrSignatureConflict = errors.New("signature version already exists")
)

// ListOptions filters example listings. Results are always returned in
// insertion order; callers must not assume further significance.
type ListOptions struct {
	// Version restricts results to one signature version (0 = no filter).
	// Mutually exclusive with MinVersion/MaxVersion.
	Version int

	// MinVersion and MaxVersion bound the version range, inclusive.
	// Zero means unbounded on that side.
	MinVersion int
	MaxVersion int

	// LabeledOnly restricts results to examples carrying a quality label.
	LabeledOnly bool

	// Source restricts results to one source tag. Empty means no filter.
	Source types.SourceTag

	// Limit caps the number of results (default 100, max 1000).
	Limit int
}

// Normalize applies defaults and clamps limits.
func (o *ListOptions) Normalize() {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Version != 0 {
		o.MinVersion = o.Version
		o.MaxVersion = o.Version
	}
}
