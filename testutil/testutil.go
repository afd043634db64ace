package testutil

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/vantageinsurance/knowbase/distance"
	"github.com/vantageinsurance/knowbase/index"
	"github.com/vantageinsurance/knowbase/metadata"
)

// RNG encapsulates a seeded random number generator.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// UnitVectors generates L2-normalized random vectors. Gaussian
// components give a uniform distribution on the hypersphere, which is
// what the cosine scoring path expects of stored vectors.
func (r *RNG) UnitVectors(num int, dimensions int) [][]float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	data := make([]float32, num*dimensions)
	vectors := make([][]float32, num)

	for i := range num {
		vec := data[i*dimensions : (i+1)*dimensions]
		r.fillUnitLocked(vec)
		vectors[i] = vec
	}

	return vectors
}

// UnitVector generates a single L2-normalized random vector.
func (r *RNG) UnitVector(dimensions int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	vec := make([]float32, dimensions)
	r.fillUnitLocked(vec)
	return vec
}

func (r *RNG) fillUnitLocked(vec []float32) {
	for j := range vec {
		vec[j] = float32(r.rand.NormFloat64())
	}
	if !distance.NormalizeL2InPlace(vec) {
		vec[0] = 1 // all-zero draw, vanishingly unlikely
	}
}

// ExactTopK performs exhaustive search over entries as ground truth for
// index implementations. Ties keep slice order, matching the stable
// insertion-order tie-break of the flat index.
func ExactTopK(query []float32, entries []index.Entry, k int, dist distance.Func) []index.SearchResult {
	type scored struct {
		pos  int
		dist float32
	}

	results := make([]scored, len(entries))
	for i, e := range entries {
		results[i] = scored{pos: i, dist: dist(query, e.Vector)}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].dist < results[j].dist
	})

	if len(results) > k {
		results = results[:k]
	}

	out := make([]index.SearchResult, len(results))
	for i, s := range results {
		e := entries[s.pos]
		out[i] = index.SearchResult{
			ID:       e.ID,
			Text:     e.Text,
			Metadata: e.Metadata,
			Distance: s.dist,
		}
	}
	return out
}

// Corpus is a deterministic synthetic insurance corpus: a fixed set of
// shared policy documents plus per-tenant claim decisions. The parallel
// slices feed UpsertChunks directly.
type Corpus struct {
	IDs       []string
	Texts     []string
	Metadatas []metadata.Document

	// Shared lists the chunk ids carrying no owner metadata.
	Shared []string

	// Owned maps each tenant id to its chunk ids.
	Owned map[string][]string
}

var sharedDocs = []struct {
	source, section, text string
}{
	{"Drive.pdf", "coverage_details", "vehicle coverage up to $50,000 for collision and comprehensive damage"},
	{"Home.pdf", "coverage_details", "homeowner policy covers fire water and storm damage to the insured property"},
	{"Handbook.pdf", "claims_process", "submit claims within thirty days including photos and a police report where applicable"},
	{"Contact.pdf", "contact_info", "reach the support team by phone or email for general policy questions"},
}

var claimSubjects = []string{
	"windshield replacement",
	"rear bumper repair",
	"water damage to kitchen flooring",
	"stolen bicycle from garage",
	"hail damage to roof shingles",
}

// NewCorpus builds a corpus with the given number of tenants and claims
// per tenant, plus a fixed set of shared documents. Identical arguments
// always produce the identical corpus. Tenant ids are "user-001".. and
// claim ids "CLM-001".. numbered globally.
func NewCorpus(tenants, claimsPerTenant int) *Corpus {
	c := &Corpus{Owned: make(map[string][]string, tenants)}

	for i, doc := range sharedDocs {
		id := fmt.Sprintf("shared-%03d_chunk_000", i+1)
		c.add(id, doc.text, metadata.FromStringMap(map[string]string{
			"source":       doc.source,
			"document_id":  fmt.Sprintf("shared-%03d", i+1),
			"section_type": doc.section,
		}))
		c.Shared = append(c.Shared, id)
	}

	claimSeq := 0
	for t := 1; t <= tenants; t++ {
		userID := fmt.Sprintf("user-%03d", t)
		for range claimsPerTenant {
			claimSeq++
			claimID := fmt.Sprintf("CLM-%03d", claimSeq)
			subject := claimSubjects[claimSeq%len(claimSubjects)]
			decision := "approved"
			if claimSeq%3 == 0 {
				decision = "rejected"
			}

			id := fmt.Sprintf("claim-%03d_chunk_000", claimSeq)
			text := fmt.Sprintf("claim %s for %s was %s after adjuster review", claimID, subject, decision)
			c.add(id, text, metadata.FromStringMap(map[string]string{
				"source":       fmt.Sprintf("Claim%03d.pdf", claimSeq),
				"document_id":  fmt.Sprintf("claim-%03d", claimSeq),
				"section_type": "decision",
				"user_id":      userID,
				"claim_id":     claimID,
			}))
			c.Owned[userID] = append(c.Owned[userID], id)
		}
	}

	return c
}

func (c *Corpus) add(id, text string, meta metadata.Document) {
	c.IDs = append(c.IDs, id)
	c.Texts = append(c.Texts, text)
	c.Metadatas = append(c.Metadatas, meta)
}

// Len returns the total chunk count.
func (c *Corpus) Len() int {
	return len(c.IDs)
}
