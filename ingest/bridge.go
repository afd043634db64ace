package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vantageinsurance/knowbase/metadata"
)

// BridgeOptions configure NewBridge.
type BridgeOptions struct {
	// Splitter cuts oversized sections. When nil a token splitter is
	// built, degrading to a word splitter if the vocabulary cannot be
	// loaded.
	Splitter Splitter

	// Logger receives ingestion progress. Defaults to discard.
	Logger *slog.Logger
}

// Bridge converts a document's sections into chunks and stores them.
type Bridge struct {
	upserter Upserter
	splitter Splitter
	logger   *slog.Logger
}

// NewBridge builds a bridge over the given upserter.
func NewBridge(upserter Upserter, optFns ...func(o *BridgeOptions)) *Bridge {
	opts := BridgeOptions{
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Splitter == nil {
		ts, err := NewTokenSplitter()
		if err != nil {
			opts.Logger.Warn("token splitter unavailable, splitting by words", "error", err)
			opts.Splitter, _ = NewWordSplitter()
		} else {
			opts.Splitter = ts
		}
	}

	return &Bridge{upserter: upserter, splitter: opts.Splitter, logger: opts.Logger}
}

// Ingest stores a document's sections as chunks. Chunk ids are
// <docID>_chunk_<index> with a zero-padded index counting across all
// sections, so a re-ingested document replaces its earlier chunks.
// Sections over the token budget are split first; each piece becomes
// its own chunk carrying the section's metadata.
func (b *Bridge) Ingest(ctx context.Context, docID string, record DocumentRecord, sections []Section) (*Result, error) {
	if docID == "" {
		return nil, fmt.Errorf("ingest: document id must not be empty")
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("ingest: document %q has no sections", docID)
	}

	base := recordValues(record)
	base["document_id"] = docID
	base["ingested_at"] = time.Now().UTC().Format(time.RFC3339)
	base["source"] = record.Name
	if base["source"] == "" {
		base["source"] = "unknown"
	}

	var (
		ids       []string
		texts     []string
		metadatas []metadata.Document
		types     = make(map[string]struct{}, len(sections))
	)
	for _, section := range sections {
		class := section.Class
		if class == "" {
			class = "unknown"
		}
		types[class] = struct{}{}

		for _, piece := range b.splitter.Split(section.Text) {
			if strings.TrimSpace(piece) == "" {
				continue
			}
			doc := metadata.FromStringMap(base)
			doc["section_type"] = metadata.String(class)
			doc["chunk_index"] = metadata.String(strconv.Itoa(len(ids)))
			for k, v := range section.Attributes {
				doc["attr_"+k] = metadata.String(v)
			}

			ids = append(ids, fmt.Sprintf("%s_chunk_%03d", docID, len(ids)))
			texts = append(texts, piece)
			metadatas = append(metadatas, doc)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ingest: document %q has no section text", docID)
	}

	total, err := b.upserter.UpsertChunks(ctx, ids, texts, metadatas)
	if err != nil {
		return nil, fmt.Errorf("ingest: storing chunks for document %q: %w", docID, err)
	}

	sectionTypes := make([]string, 0, len(types))
	for class := range types {
		sectionTypes = append(sectionTypes, class)
	}
	sort.Strings(sectionTypes)

	b.logger.InfoContext(ctx, "document ingested",
		"document_id", docID,
		"sections", len(sections),
		"chunks", len(ids),
		"total", total)

	return &Result{
		ChunksStored:    len(ids),
		CollectionTotal: total,
		SectionTypes:    sectionTypes,
	}, nil
}
