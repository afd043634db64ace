// Package index defines the contract shared by vector index
// implementations and the result types they return.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantageinsurance/knowbase/metadata"
)

// ErrInvalidK indicates an invalid k parameter for search.
var ErrInvalidK = errors.New("index: k must be positive")

// ErrEmptyVector indicates an attempt to store an empty vector.
var ErrEmptyVector = errors.New("index: vector must not be empty")

// ErrDuplicateID indicates a restore payload carrying the same chunk ID
// twice.
var ErrDuplicateID = errors.New("index: duplicate chunk id")

// DimensionMismatchError indicates a vector whose length does not match
// the index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Entry is one chunk as stored in the index: its identifier, embedding,
// raw text and metadata sidecar.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata metadata.Document
}

// SearchResult is a single nearest neighbor. Distance is in the metric
// space of the index: negated dot product for cosine on unit vectors,
// squared L2 otherwise. Lower is always better.
type SearchResult struct {
	ID       string
	Text     string
	Metadata metadata.Document
	Distance float32
}

// Index is a vector index over identified chunks. Implementations must
// allow concurrent searches while a writer is active.
type Index interface {
	// Upsert inserts entries, replacing vector, text and metadata of
	// entries whose ID is already present. The batch is validated
	// before any change is applied.
	Upsert(ctx context.Context, entries []Entry) error

	// Search returns up to k nearest entries among those matching the
	// filter, ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int, filter metadata.Filter) ([]SearchResult, error)

	// Count returns the number of stored entries.
	Count() int

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Clear removes all entries.
	Clear()

	// Dump returns all entries in insertion order for persistence. The
	// returned slices alias index memory and must be treated as
	// read-only.
	Dump() []Entry

	// Restore replaces the index contents with previously dumped
	// entries.
	Restore(entries []Entry) error
}
