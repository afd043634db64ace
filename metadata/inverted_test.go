package metadata

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInverted_Eval(t *testing.T) {
	ix := NewInverted()
	docs := []Document{
		{"source": String("handbook.pdf"), "section_type": String("faq")},
		{"source": String("handbook.pdf"), "section_type": String("coverage")},
		{"source": String("policy.pdf"), "section_type": String("faq")},
		{"source": String("policy.pdf")},
	}
	for row, d := range docs {
		ix.Add(uint32(row), d)
	}
	total := uint32(len(docs))

	tests := []struct {
		name     string
		filter   Filter
		expected []uint32
	}{
		{"Nil", nil, []uint32{0, 1, 2, 3}},
		{"Equals", Eq("source", "handbook.pdf"), []uint32{0, 1}},
		{"NoMatch", Eq("source", "other.pdf"), []uint32{}},
		{
			"And",
			AndOf(Eq("source", "handbook.pdf"), Eq("section_type", "faq")),
			[]uint32{0},
		},
		{
			"Or",
			OrOf(Eq("section_type", "coverage"), Eq("source", "policy.pdf")),
			[]uint32{1, 2, 3},
		},
		{"EmptyMatchesAbsentKey", Eq("section_type", ""), []uint32{3}},
		{"EmptyUnknownKeyMatchesAll", Eq("user_id", ""), []uint32{0, 1, 2, 3}},
		{"EmptyAnd", And{}, []uint32{0, 1, 2, 3}},
		{"EmptyOr", Or{}, []uint32{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm := ix.Eval(tt.filter, total)
			assert.Equal(t, tt.expected, bm.ToArray())
		})
	}
}

// A filter matching nothing evaluates to an empty bitmap whose array
// form is empty but never nil; assertions against brute-force scans
// must account for that.
func TestInverted_EvalNoMatchIsEmptyNotNil(t *testing.T) {
	ix := NewInverted()
	ix.Add(0, Document{"source": String("a")})

	bm := ix.Eval(Eq("source", "zzz"), 1)
	assert.True(t, bm.IsEmpty())
	assert.NotNil(t, bm.ToArray())
	assert.Empty(t, bm.ToArray())
}

func TestInverted_EvalRespectsSnapshotBound(t *testing.T) {
	ix := NewInverted()
	ix.Add(0, Document{"source": String("a")})
	ix.Add(1, Document{"source": String("a")})

	// A caller holding a two-row snapshot must not see row 2 even though
	// the index already carries it.
	ix.Add(2, Document{"source": String("a")})
	bm := ix.Eval(Eq("source", "a"), 2)
	assert.Equal(t, []uint32{0, 1}, bm.ToArray())
}

func TestInverted_Update(t *testing.T) {
	ix := NewInverted()
	old := Document{"source": String("draft.pdf"), "section_type": String("faq")}
	ix.Add(0, old)

	updated := Document{"source": String("final.pdf")}
	ix.Update(0, old, updated)

	assert.Empty(t, ix.Eval(Eq("source", "draft.pdf"), 1).ToArray())
	assert.Equal(t, []uint32{0}, ix.Eval(Eq("source", "final.pdf"), 1).ToArray())

	// The old section_type posting is gone, so the empty filter now
	// matches through the absence path.
	assert.Equal(t, []uint32{0}, ix.Eval(Eq("section_type", ""), 1).ToArray())
}

func TestInverted_RemoveAndClear(t *testing.T) {
	ix := NewInverted()
	doc := Document{"source": String("a")}
	ix.Add(0, doc)
	ix.Add(1, doc)

	ix.Remove(0, doc)
	assert.Equal(t, []uint32{1}, ix.Eval(Eq("source", "a"), 2).ToArray())

	ix.Clear()
	assert.Empty(t, ix.Eval(Eq("source", "a"), 2).ToArray())
	assert.Empty(t, ix.Keys())
}

func TestInverted_Keys(t *testing.T) {
	ix := NewInverted()
	ix.Add(0, Document{"source": String("a"), "category": String("b")})
	assert.Equal(t, []string{"category", "source"}, ix.Keys())
}

// TestInverted_EvalAgreesWithMatches cross-checks the bitmap evaluator
// against a brute-force scan with the Matches predicate over randomized
// documents and filters.
func TestInverted_EvalAgreesWithMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	keys := []string{"source", "section_type", "category", "claim_id"}
	values := []string{"a", "b", "c", ""}

	randomDoc := func() Document {
		d := Document{}
		for _, k := range keys {
			switch rng.Intn(4) {
			case 0:
				d[k] = String(values[rng.Intn(len(values))])
			case 1:
				d[k] = Int(int64(rng.Intn(3)))
			case 2:
				d[k] = Null()
			case 3:
				// Key absent.
			}
		}
		return d
	}

	var randomFilter func(depth int) Filter
	randomFilter = func(depth int) Filter {
		if depth == 0 || rng.Intn(3) == 0 {
			candidates := append([]string{}, values...)
			candidates = append(candidates, "0", "1", "2")
			return Eq(keys[rng.Intn(len(keys))], candidates[rng.Intn(len(candidates))])
		}
		n := 1 + rng.Intn(3)
		children := make([]Filter, n)
		for i := range children {
			children[i] = randomFilter(depth - 1)
		}
		if rng.Intn(2) == 0 {
			return And{Filters: children}
		}
		return Or{Filters: children}
	}

	const numDocs = 200
	ix := NewInverted()
	docs := make([]Document, numDocs)
	for row := range docs {
		docs[row] = randomDoc()
		ix.Add(uint32(row), docs[row])
	}

	for trial := 0; trial < 100; trial++ {
		f := randomFilter(3)
		t.Run(fmt.Sprintf("Trial%02d", trial), func(t *testing.T) {
			// ToArray yields an empty non-nil slice for no matches.
			expected := []uint32{}
			for row, d := range docs {
				if f.Matches(d) {
					expected = append(expected, uint32(row))
				}
			}
			bm := ix.Eval(f, numDocs)
			require.Equal(t, expected, bm.ToArray())
		})
	}
}
