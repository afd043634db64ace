// Package testutil provides testing utilities for knowbase.
//
// This package is intended for use in tests only. It provides helpers
// for generating deterministic unit vectors, computing exact nearest
// neighbors as ground truth, and seeding a synthetic multi-tenant
// insurance corpus.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 128)
//
// # Exact Search (Ground Truth)
//
//	results := testutil.ExactTopK(query, entries, k, distFn)
//
// # Corpus Seeding
//
//	corpus := testutil.NewCorpus(3, 2)
//	total, err := engine.UpsertChunks(ctx, corpus.IDs, corpus.Texts, corpus.Metadatas)
package testutil
