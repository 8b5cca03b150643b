/*
errors.go - Centralized error types for the reporting engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Missing entity - unknown farm/flock/party
  2. Validation - malformed periods or records
  3. Storage - collaborator query failures (typed, never cached)

DEGENERATE INPUT:
  Empty histories and zero divisors are NOT errors. Formulas resolve them
  to documented defaults (0, empty slice, mean fallback).

USAGE:
  if errors.Is(err, generic.ErrStorage) {
      // fall back to an empty report
  }

SEE ALSO:
  - store.go: Collaborator returning these errors
  - analytics/engine.go: Wraps collaborator failures in StorageError
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFarmNotFound is returned when a referenced farm doesn't exist.
	ErrFarmNotFound = errors.New("farm not found")

	// ErrFlockNotFound is returned when a referenced flock doesn't exist.
	ErrFlockNotFound = errors.New("flock not found")

	// ErrPartyNotFound is returned when a referenced party doesn't exist.
	ErrPartyNotFound = errors.New("party not found")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidRecord is returned when a record fails validation on write.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrUnknownMetric is returned by RangeAggregate for a metric it cannot sum.
	ErrUnknownMetric = errors.New("unknown metric")

	// ErrStorage marks a failure inside the storage collaborator.
	ErrStorage = errors.New("storage failure")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a collaborator failure with the operation that failed.
// It matches both ErrStorage and the underlying cause under errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// WrapStorage returns nil for a nil err, otherwise a *StorageError.
// Errors that already are storage errors pass through unchanged.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// RecordError describes a record rejected on write.
type RecordError struct {
	Kind   EntityKind
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Kind, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFarmNotFound) ||
		errors.Is(err, ErrFlockNotFound) ||
		errors.Is(err, ErrPartyNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidRecord)
}
