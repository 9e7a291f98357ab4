package core

import (
	"errors"
	"fmt"
)

// Base errors for the core package.
var (
	// ErrUnknownResource is returned when a handle does not resolve to a
	// live resource.
	ErrUnknownResource = errors.New("core: unknown resource handle")

	// ErrNotMaterialised is returned when a backing reference is needed
	// but the resource has no backing this frame.
	ErrNotMaterialised = errors.New("core: resource not materialised")

	// ErrDrawableUnavailable is returned when the presentation layer has
	// no drawable; the owning draw pass is skipped.
	ErrDrawableUnavailable = errors.New("core: drawable unavailable")
)

// InvariantError reports a violation of a frame graph invariant: writing an
// immutable resource, disposing an unknown handle, merging two clears, or
// depositing to the wrong allocator. Invariant violations are fatal — the
// frame driver aborts the frame.
type InvariantError struct {
	Op       string   // Operation that detected the violation
	Resource Resource // Offending resource, if any
	Message  string   // Detailed description
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	if e.Resource.IsZero() {
		return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("invariant violation in %s: %v: %s", e.Op, e.Resource, e.Message)
}

// IsInvariantViolation returns true if the error is an InvariantError.
func IsInvariantViolation(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
