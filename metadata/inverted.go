package metadata

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Inverted maintains posting lists from metadata key/value pairs to row
// numbers, backed by roaring bitmaps. It accelerates filtered search by
// narrowing the candidate set before any distance is computed; the
// Filter.Matches predicate remains the source of truth for each survivor.
//
// Postings are keyed by the canonical text form of each value, matching
// the comparison rule of Equals. A separate presence bitmap per key
// supports the empty-string filter, which must also match rows that do
// not carry the key at all.
type Inverted struct {
	mu       sync.RWMutex
	postings map[string]map[string]*roaring.Bitmap
	present  map[string]*roaring.Bitmap
}

// NewInverted returns an empty index.
func NewInverted() *Inverted {
	return &Inverted{
		postings: make(map[string]map[string]*roaring.Bitmap),
		present:  make(map[string]*roaring.Bitmap),
	}
}

// Add indexes the document under the given row.
func (ix *Inverted) Add(row uint32, d Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(row, d)
}

// Update replaces the postings of row, removing the old document before
// indexing the new one.
func (ix *Inverted) Update(row uint32, old, new Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(row, old)
	ix.addLocked(row, new)
}

// Remove drops the postings of row for the given document.
func (ix *Inverted) Remove(row uint32, d Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(row, d)
}

// Clear drops all postings.
func (ix *Inverted) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.postings = make(map[string]map[string]*roaring.Bitmap)
	ix.present = make(map[string]*roaring.Bitmap)
}

// Keys returns the indexed metadata keys in sorted order.
func (ix *Inverted) Keys() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	keys := make([]string, 0, len(ix.present))
	for k := range ix.present {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (ix *Inverted) addLocked(row uint32, d Document) {
	for k, v := range d {
		m := ix.postings[k]
		if m == nil {
			m = make(map[string]*roaring.Bitmap)
			ix.postings[k] = m
		}
		text := v.Text()
		bm := m[text]
		if bm == nil {
			bm = roaring.New()
			m[text] = bm
		}
		bm.Add(row)

		p := ix.present[k]
		if p == nil {
			p = roaring.New()
			ix.present[k] = p
		}
		p.Add(row)
	}
}

func (ix *Inverted) removeLocked(row uint32, d Document) {
	for k, v := range d {
		m := ix.postings[k]
		if m == nil {
			continue
		}
		text := v.Text()
		if bm := m[text]; bm != nil {
			bm.Remove(row)
			if bm.IsEmpty() {
				delete(m, text)
			}
		}
		if len(m) == 0 {
			delete(ix.postings, k)
		}
		if p := ix.present[k]; p != nil {
			p.Remove(row)
			if p.IsEmpty() {
				delete(ix.present, k)
			}
		}
	}
}

// Eval returns the rows in [0, total) that satisfy the filter. A nil
// filter selects every row.
func (ix *Inverted) Eval(f Filter, total uint32) *roaring.Bitmap {
	universe := roaring.New()
	if total > 0 {
		universe.AddRange(0, uint64(total))
	}
	if f == nil {
		return universe
	}

	ix.mu.RLock()
	out := ix.evalLocked(f, universe)
	ix.mu.RUnlock()

	// Rows indexed after the caller took its snapshot are out of scope.
	out.And(universe)
	return out
}

func (ix *Inverted) evalLocked(f Filter, universe *roaring.Bitmap) *roaring.Bitmap {
	switch t := f.(type) {
	case Equals:
		out := roaring.New()
		if m := ix.postings[t.Key]; m != nil {
			if bm := m[t.Value]; bm != nil {
				out.Or(bm)
			}
		}
		if t.Value == "" {
			// Absent keys read as empty, so the complement of the
			// presence bitmap matches too.
			absent := universe.Clone()
			if p := ix.present[t.Key]; p != nil {
				absent.AndNot(p)
			}
			out.Or(absent)
		}
		return out
	case And:
		out := universe.Clone()
		for _, c := range t.Filters {
			out.And(ix.evalLocked(c, universe))
			if out.IsEmpty() {
				break
			}
		}
		return out
	case Or:
		out := roaring.New()
		for _, c := range t.Filters {
			out.Or(ix.evalLocked(c, universe))
		}
		return out
	default:
		return roaring.New()
	}
}
