package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantageinsurance/knowbase/distance"
	"github.com/vantageinsurance/knowbase/index"
)

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)
	require.Len(t, v, 8)

	for _, vec := range v {
		require.Len(t, vec, 32)
		var norm float64
		for _, x := range vec {
			norm += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	}
}

func TestRNGDeterminism(t *testing.T) {
	a := NewRNG(42).UnitVectors(4, 16)
	b := NewRNG(42).UnitVectors(4, 16)
	assert.Equal(t, a, b)

	rng := NewRNG(42)
	first := rng.UnitVector(16)
	rng.Reset()
	assert.Equal(t, first, rng.UnitVector(16))
}

func TestExactTopK(t *testing.T) {
	entries := []index.Entry{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
		{ID: "c", Vector: []float32{0.7071, 0.7071}},
	}
	cosine, err := distance.Provider(distance.MetricCosine)
	require.NoError(t, err)

	got := ExactTopK([]float32{1, 0}, entries, 2, cosine)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
	assert.LessOrEqual(t, got[0].Distance, got[1].Distance)
}

func TestExactTopK_StableTies(t *testing.T) {
	entries := []index.Entry{
		{ID: "first", Vector: []float32{0, 1}},
		{ID: "second", Vector: []float32{0, 1}},
	}
	cosine, err := distance.Provider(distance.MetricCosine)
	require.NoError(t, err)

	got := ExactTopK([]float32{1, 0}, entries, 2, cosine)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)
}

func TestNewCorpus(t *testing.T) {
	a := NewCorpus(3, 2)
	b := NewCorpus(3, 2)
	assert.Equal(t, a, b)

	require.Equal(t, a.Len(), len(a.Texts))
	require.Equal(t, a.Len(), len(a.Metadatas))
	assert.Len(t, a.Shared, 4)
	assert.Len(t, a.Owned, 3)

	for i, id := range a.IDs {
		meta := a.Metadatas[i]
		assert.NotEmpty(t, meta.Text("source"), "chunk %s", id)
		assert.NotEmpty(t, meta.Text("document_id"), "chunk %s", id)
	}
	for _, id := range a.Shared {
		i := indexOf(t, a.IDs, id)
		assert.False(t, a.Metadatas[i].Has("user_id"))
	}
	for userID, ids := range a.Owned {
		for _, id := range ids {
			i := indexOf(t, a.IDs, id)
			assert.Equal(t, userID, a.Metadatas[i].Text("user_id"))
			assert.NotEmpty(t, a.Metadatas[i].Text("claim_id"))
		}
	}
}

func indexOf(t *testing.T, ids []string, id string) int {
	t.Helper()
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	t.Fatalf("id %s not in corpus", id)
	return -1
}
