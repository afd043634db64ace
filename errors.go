package knowbase

import (
	"errors"
	"fmt"

	"github.com/vantageinsurance/knowbase/embed"
	"github.com/vantageinsurance/knowbase/index"
)

var (
	// ErrEmptyQuery is returned when the query is empty after trimming.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrScopeViolation is returned when a retrieval request carries no
	// owner scope. The scope is normally server-injected, so hitting
	// this means a caller bug, not a user mistake.
	ErrScopeViolation = errors.New("retrieval requires an owner scope")

	// ErrNotInitialized is returned when an operation runs before
	// Initialize.
	ErrNotInitialized = errors.New("engine not initialized")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("engine closed")
)

// RetrievalError wraps an unexpected provider or index failure during a
// retrieval or upsert operation.
//
// The underlying error can be accessed via errors.Unwrap.
type RetrievalError struct {
	Op    string
	cause error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed during %s: %v", e.Op, e.cause)
}

func (e *RetrievalError) Unwrap() error { return e.cause }

// DimensionMismatchError indicates a vector/query dimensionality
// mismatch.
//
// The underlying error can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, embed.ErrEmptyInput) {
		return fmt.Errorf("%w: %w", ErrEmptyQuery, err)
	}

	var dm *index.DimensionMismatchError
	if errors.As(err, &dm) {
		return &DimensionMismatchError{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	return err
}
