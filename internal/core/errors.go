package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for lookups of records that do not exist or
	// belong to a different user.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentModification rejects a re-index or a second chat send
	// while one is already in flight. Callers surface it synchronously.
	ErrConcurrentModification = errors.New("operation already in flight")

	// ErrFolderNotReady rejects chat against a folder that has not finished
	// indexing.
	ErrFolderNotReady = errors.New("folder is not ready")

	// ErrUnsupportedFile marks content that can never be indexed (unknown
	// format, empty extraction). Never retried.
	ErrUnsupportedFile = errors.New("unsupported file content")
)

// ProviderError wraps a failure from an external provider (model API, drive,
// similarity store). Transient failures are retried with bounded backoff;
// permanent ones are not.
type ProviderError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Transientf wraps err as a retryable provider failure.
func Transientf(op string, err error) error {
	return &ProviderError{Op: op, Transient: true, Err: err}
}

// Permanentf wraps err as a non-retryable provider failure.
func Permanentf(op string, err error) error {
	return &ProviderError{Op: op, Transient: false, Err: err}
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Transient
	}
	return false
}
