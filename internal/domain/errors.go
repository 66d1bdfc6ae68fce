package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput signals a malformed request: empty query, bad diff text, bad filter.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrFileExists signals a write that would overwrite a file without permission.
	ErrFileExists = errors.New("file already exists")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")

	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationProviderError signals a chat/generation provider failure.
	ErrGenerationProviderError = errors.New("generation provider error")
	// ErrStorage signals a persistent storage failure. Never fatal to the caller.
	ErrStorage = errors.New("storage error")

	// ErrPartialApply signals that block reconciliation could not locate its target.
	ErrPartialApply = errors.New("partial apply")
	// ErrIndexBusy signals that a workspace index run is already in progress.
	ErrIndexBusy = errors.New("indexing already in progress")
)

// DimMismatchError wraps ErrVectorDimMismatch with the expected and actual sizes.
type DimMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrVectorDimMismatch.Error(), e.Expected, e.Actual)
}

func (e *DimMismatchError) Unwrap() error { return ErrVectorDimMismatch }

// NewDimMismatch creates a dimension mismatch error.
func NewDimMismatch(expected, actual int) error {
	return &DimMismatchError{Expected: expected, Actual: actual}
}

// InvalidInputf formats a message and wraps it with ErrInvalidInput.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
