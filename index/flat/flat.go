// Package flat provides a brute-force vector index with metadata
// filtering. Rows are stored densely in insertion order; upserts replace
// matched rows in place, so a chunk keeps its row number for the
// lifetime of the index.
package flat

import (
	"container/heap"
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/vantageinsurance/knowbase/distance"
	"github.com/vantageinsurance/knowbase/index"
	"github.com/vantageinsurance/knowbase/metadata"
	"github.com/vantageinsurance/knowbase/queue"
)

// Compile-time check that Flat satisfies the index contract.
var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all upserts and searches.
	Dimension int

	// Metric selects the distance function.
	Metric distance.Metric

	// NormalizeVectors enables L2 normalization for stored vectors.
	// Queries are normalized either way when the metric is cosine.
	NormalizeVectors bool
}

// DefaultOptions contains the default configuration options for the
// flat index.
var DefaultOptions = Options{
	Metric:           distance.MetricCosine,
	NormalizeVectors: false,
}

// row is one stored chunk.
type row struct {
	id   string
	vec  []float32
	text string
	meta metadata.Document
}

// indexState holds the immutable state of the index for lock-free reads.
type indexState struct {
	rows []row
	byID map[string]uint32
}

// Flat is a dense brute-force index. It uses a copy-on-write pattern for
// lock-free concurrent reads; the metadata postings are maintained in a
// shared inverted index whose answers are re-verified against the row
// snapshot during search.
type Flat struct {
	state   atomic.Value // holds *indexState for lock-free reads
	writeMu sync.Mutex   // Serializes writes only
	distFn  distance.Func
	meta    *metadata.Inverted
	opts    Options
}

// New creates a new flat index. Dimension is required.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("flat: dimension must be positive, got %d", opts.Dimension)
	}

	distFn, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	if opts.Metric == distance.MetricCosine {
		// Cosine via dot product is only valid on unit vectors.
		opts.NormalizeVectors = true
	}

	f := &Flat{
		distFn: distFn,
		meta:   metadata.NewInverted(),
		opts:   opts,
	}

	f.state.Store(&indexState{
		rows: make([]row, 0),
		byID: make(map[string]uint32),
	})

	return f, nil
}

// getState returns the current immutable state (lock-free read).
func (f *Flat) getState() *indexState {
	return f.state.Load().(*indexState)
}

// cloneState creates a copy of the current state for copy-on-write.
func (f *Flat) cloneState(st *indexState) *indexState {
	newRows := make([]row, len(st.rows))
	copy(newRows, st.rows)

	return &indexState{
		rows: newRows,
		byID: maps.Clone(st.byID),
	}
}

// Upsert inserts or replaces entries. Known IDs have their vector, text
// and metadata replaced in the row they already occupy; unknown IDs are
// appended in batch order. No change is applied unless the whole batch
// validates.
func (f *Flat) Upsert(ctx context.Context, entries []index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	for _, e := range entries {
		if len(e.Vector) == 0 {
			return index.ErrEmptyVector
		}
		if len(e.Vector) != f.opts.Dimension {
			return &index.DimensionMismatchError{Expected: f.opts.Dimension, Actual: len(e.Vector)}
		}
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	oldState := f.getState()
	newState := f.cloneState(oldState)

	for _, e := range entries {
		vec := e.Vector
		if f.opts.NormalizeVectors {
			// A zero vector stays zero; featureless text is storable.
			if norm, ok := distance.NormalizeL2Copy(vec); ok {
				vec = norm
			} else {
				vec = append([]float32(nil), vec...)
			}
		} else {
			vec = append([]float32(nil), vec...)
		}

		r := row{id: e.ID, vec: vec, text: e.Text, meta: e.Metadata.Clone()}

		if rowIdx, ok := newState.byID[e.ID]; ok {
			old := newState.rows[rowIdx]
			newState.rows[rowIdx] = r
			f.meta.Update(rowIdx, old.meta, r.meta)
			continue
		}

		rowIdx := uint32(len(newState.rows))
		newState.rows = append(newState.rows, r)
		newState.byID[e.ID] = rowIdx
		f.meta.Add(rowIdx, r.meta)
	}

	// Atomic swap to new state
	f.state.Store(newState)

	return nil
}

// Search performs a brute-force nearest neighbor search over the rows
// matching the filter. This method is lock-free for reads using the
// copy-on-write pattern.
//
// The inverted index narrows the candidate rows; each candidate is then
// re-checked against the filter on the snapshot it came from, so a
// search never returns a row that does not satisfy the filter. A
// zero-norm query is searched as-is; under the cosine metric every row
// then scores identically.
func (f *Flat) Search(ctx context.Context, query []float32, k int, filter metadata.Filter) ([]index.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	currentState := f.getState()

	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if len(currentState.rows) == 0 {
		return nil, nil
	}
	if len(query) != f.opts.Dimension {
		return nil, &index.DimensionMismatchError{Expected: f.opts.Dimension, Actual: len(query)}
	}

	q := query
	if f.opts.NormalizeVectors {
		if norm, ok := distance.NormalizeL2Copy(query); ok {
			q = norm
		}
	}

	candidates := f.meta.Eval(filter, uint32(len(currentState.rows)))
	if candidates.IsEmpty() {
		return nil, nil
	}

	actualK := k
	if c := int(candidates.GetCardinality()); actualK > c {
		actualK = c
	}

	topCandidates := queue.NewMax(actualK)
	heap.Init(topCandidates)

	it := candidates.Iterator()
	for it.HasNext() {
		rowIdx := it.Next()
		r := currentState.rows[rowIdx]

		// The bitmap prunes; the predicate decides. A concurrent
		// writer may have republished postings ahead of this snapshot.
		if filter != nil && !filter.Matches(r.meta) {
			continue
		}

		rowDist := f.distFn(q, r.vec)

		if topCandidates.Len() < actualK {
			heap.Push(topCandidates, queue.PriorityQueueItem{Row: rowIdx, Distance: rowDist})
			continue
		}

		largest := topCandidates.Top().(queue.PriorityQueueItem)
		if rowDist < largest.Distance {
			heap.Pop(topCandidates)
			heap.Push(topCandidates, queue.PriorityQueueItem{Row: rowIdx, Distance: rowDist})
		}
	}

	results := make([]index.SearchResult, topCandidates.Len())
	for i := topCandidates.Len() - 1; i >= 0; i-- {
		item := heap.Pop(topCandidates).(queue.PriorityQueueItem)
		r := currentState.rows[item.Row]
		results[i] = index.SearchResult{
			ID:       r.id,
			Text:     r.text,
			Metadata: r.meta,
			Distance: item.Distance,
		}
	}
	return results, nil
}

// Count returns the number of stored entries.
func (f *Flat) Count() int {
	return len(f.getState().rows)
}

// Dimension returns the fixed vector dimension.
func (f *Flat) Dimension() int {
	return f.opts.Dimension
}

// Metric returns the configured distance metric.
func (f *Flat) Metric() distance.Metric {
	return f.opts.Metric
}

// Clear removes all entries and postings.
func (f *Flat) Clear() {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.state.Store(&indexState{
		rows: make([]row, 0),
		byID: make(map[string]uint32),
	})
	f.meta.Clear()
}

// Dump returns all entries in row order. The vectors and metadata alias
// index memory; callers must treat them as read-only.
func (f *Flat) Dump() []index.Entry {
	st := f.getState()
	entries := make([]index.Entry, len(st.rows))
	for i, r := range st.rows {
		entries[i] = index.Entry{
			ID:       r.id,
			Vector:   r.vec,
			Text:     r.text,
			Metadata: r.meta,
		}
	}
	return entries
}

// Restore replaces the index contents with previously dumped entries.
// Vectors are stored as given, without renormalization. Restore fails
// without side effects on dimension mismatches or duplicate IDs.
func (f *Flat) Restore(entries []index.Entry) error {
	for _, e := range entries {
		if len(e.Vector) != f.opts.Dimension {
			return &index.DimensionMismatchError{Expected: f.opts.Dimension, Actual: len(e.Vector)}
		}
	}

	newState := &indexState{
		rows: make([]row, 0, len(entries)),
		byID: make(map[string]uint32, len(entries)),
	}
	for _, e := range entries {
		if _, ok := newState.byID[e.ID]; ok {
			return fmt.Errorf("%w: %q", index.ErrDuplicateID, e.ID)
		}
		rowIdx := uint32(len(newState.rows))
		newState.rows = append(newState.rows, row{id: e.ID, vec: e.Vector, text: e.Text, meta: e.Metadata})
		newState.byID[e.ID] = rowIdx
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.meta.Clear()
	for rowIdx, r := range newState.rows {
		f.meta.Add(uint32(rowIdx), r.meta)
	}
	f.state.Store(newState)

	return nil
}
