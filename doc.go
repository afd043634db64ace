// Package knowbase is a privacy-scoped semantic retrieval engine: an
// embedded vector store for multi-tenant document chunks with a
// fail-closed, defense-in-depth guarantee against cross-tenant leakage.
//
// Chunks carry per-tenant ownership metadata. Retrieval runs in two
// phases: a metadata-filtered cosine search over the flat index, then a
// second independent ownership check on every candidate. A chunk whose
// owner differs from the requester is stripped and logged even when the
// primary filter should have excluded it.
//
// # Quick Start
//
//	eng := knowbase.New(
//	    knowbase.WithStoreDir("./data/vectors"),
//	    knowbase.WithLogLevel(slog.LevelInfo),
//	)
//	if err := eng.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	_, _ = eng.UpsertChunks(ctx,
//	    []string{"doc-1_chunk_000"},
//	    []string{"vehicle coverage up to $50,000"},
//	    []metadata.Document{{"source": metadata.String("Drive.pdf")}},
//	)
//
//	res, err := eng.RetrieveForUser(ctx, "what does my policy cover", "user-42")
//
// Embeddings come from a remote sentence encoder when one is configured
// and reachable, otherwise from a deterministic hashed n-gram fallback;
// callers never branch on the active strategy. State persists as a
// compressed snapshot pair that loads on Initialize, with optional
// replication to a blob store archive.
//
// The engine trusts its caller for identity values. Authentication and
// authorization, including the admin override flag, are the
// responsibility of the layer above; every override use is audit-logged.
package knowbase
