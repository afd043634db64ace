package knowbase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vantageinsurance/knowbase/index"
	"github.com/vantageinsurance/knowbase/metadata"
)

// UpsertChunks embeds texts and stores them under their ids. An id that
// already exists has its text, vector and metadata replaced in place,
// so re-ingesting a changed document updates what retrieval sees
// instead of serving stale vectors. Returns the chunk count after the
// write.
//
// The write is persisted before returning; a persistence failure is
// returned even though the in-memory index already holds the new rows.
func (e *Engine) UpsertChunks(ctx context.Context, ids []string, texts []string, metadatas []metadata.Document) (int, error) {
	start := time.Now()
	total, err := e.upsertChunks(ctx, ids, texts, metadatas)
	e.opts.metricsCollector.RecordUpsert(len(ids), time.Since(start), err)
	e.opts.logger.LogUpsert(ctx, len(ids), total, err)
	return total, err
}

func (e *Engine) upsertChunks(ctx context.Context, ids []string, texts []string, metadatas []metadata.Document) (int, error) {
	refs, err := e.refs()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return refs.idx.Count(), nil
	}
	if len(texts) != len(ids) || len(metadatas) != len(ids) {
		return 0, fmt.Errorf("knowbase: ids, texts and metadatas must have equal length, got %d/%d/%d",
			len(ids), len(texts), len(metadatas))
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return 0, fmt.Errorf("knowbase: chunk %q has empty text", ids[i])
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	embedStart := time.Now()
	vectors, err := refs.provider.EmbedDocuments(ctx, texts)
	e.opts.metricsCollector.RecordEmbed(len(texts), time.Since(embedStart), err)
	if err != nil {
		return 0, &RetrievalError{Op: "embedding chunks", cause: translateError(err)}
	}

	entries := make([]index.Entry, len(ids))
	for i, id := range ids {
		entries[i] = index.Entry{
			ID:       id,
			Vector:   vectors[i],
			Text:     texts[i],
			Metadata: metadatas[i],
		}
	}

	if err := refs.idx.Upsert(ctx, entries); err != nil {
		return 0, translateError(err)
	}

	total := refs.idx.Count()
	if err := e.persist(ctx, refs); err != nil {
		return total, err
	}
	return total, nil
}

// Count reports how many chunks the index holds.
func (e *Engine) Count(ctx context.Context) (int, error) {
	refs, err := e.refs()
	if err != nil {
		return 0, err
	}
	return refs.idx.Count(), nil
}

// Clear removes every chunk and persists the empty state.
func (e *Engine) Clear(ctx context.Context) error {
	refs, err := e.refs()
	if err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	refs.idx.Clear()
	return e.persist(ctx, refs)
}

// persist saves the index to the local snapshot store and, when an
// archive is configured, replicates the snapshot. Archive failures
// degrade to warnings; the local snapshot is the durability boundary.
// Callers must hold writeMu.
func (e *Engine) persist(ctx context.Context, refs engineRefs) error {
	entries := refs.idx.Dump()

	start := time.Now()
	err := refs.store.Save(ctx, refs.idx.Dimension(), entries)
	e.opts.metricsCollector.RecordSnapshot(time.Since(start), err)
	e.opts.logger.LogSnapshot(ctx, refs.store.Dir(), len(entries), err)
	if err != nil {
		return &RetrievalError{Op: "persisting snapshot", cause: err}
	}

	if e.opts.archive != nil {
		if gen, err := e.opts.archive.Push(ctx, refs.store); err != nil {
			e.opts.logger.WarnContext(ctx, "archive push failed", "error", err)
		} else {
			e.opts.logger.DebugContext(ctx, "snapshot archived", "generation", gen)
			if err := e.opts.archive.Prune(ctx); err != nil {
				e.opts.logger.WarnContext(ctx, "archive prune failed", "error", err)
			}
		}
	}
	return nil
}
