package kmeans

import (
	"errors"
	"fmt"
)

// sentinel error kinds a caller can match with errors.Is.
var (
	// ErrValidation marks a parameter that failed validation before any
	// work started; no state was mutated.
	ErrValidation = errors.New("kmeans: validation error")

	// ErrCancelled marks an orderly teardown triggered by the run
	// controller reporting IsRunning() == false between phases.
	ErrCancelled = errors.New("kmeans: training cancelled")
)

// ValidationError wraps ErrValidation with the offending detail.
func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// CancellationSignal wraps ErrCancelled.
func CancellationSignal() error {
	return fmt.Errorf("%w", ErrCancelled)
}

// RuntimeFailure wraps an error surfaced from a map/reduce phase, the
// model store, or a numeric operation, preserving it for errors.Is /
// errors.As on the underlying cause.
func RuntimeFailure(phase string, err error) error {
	return fmt.Errorf("kmeans: %s failed: %w", phase, err)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsCancelled reports whether err is (or wraps) a CancellationSignal.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }
