// Package ingest turns extracted document sections into retrievable
// chunks. The bridge assigns stable chunk ids, builds the metadata the
// retrieval side filters on, splits oversized sections to a token
// budget and hands the batch to an upserter.
//
// Chunk ids are derived from the document id, so re-ingesting a
// document overwrites its previous chunks instead of accumulating
// stale ones.
package ingest

import (
	"context"
	"reflect"
	"strings"

	"github.com/vantageinsurance/knowbase/metadata"
)

// DocumentRecord carries the identifying fields of a stored document.
// The `meta` tags name the metadata keys the fields are written under;
// FilterableKeys derives the filter schema from the same tags, so
// adding a field here makes it filterable without further changes.
type DocumentRecord struct {
	Name         string `meta:"name"`
	UserID       string `meta:"user_id"`
	ClaimID      string `meta:"claim_id"`
	PolicyNumber string `meta:"policy_number"`
	UserEmail    string `meta:"user_email"`
	Category     string `meta:"category"`
}

// Section is one logical unit of an extracted document, typically
// produced by an upstream section-discovery step.
type Section struct {
	// Class is the section's semantic role, such as "coverage_details"
	// or "exclusion". Stored as section_type; empty becomes "unknown".
	Class string

	Text string

	// Attributes are section-level key-value pairs. They are flattened
	// into chunk metadata under an attr_ prefix.
	Attributes map[string]string
}

// Upserter stores embedded chunks. It is satisfied by the engine.
type Upserter interface {
	UpsertChunks(ctx context.Context, ids []string, texts []string, metadatas []metadata.Document) (int, error)
}

// Result summarizes one ingestion.
type Result struct {
	ChunksStored    int      `json:"chunks_stored"`
	CollectionTotal int      `json:"collection_total"`
	SectionTypes    []string `json:"section_types"`
}

// FilterableKeys is the metadata schema retrieval filters are checked
// against: the DocumentRecord fields plus the keys the bridge always
// writes.
func FilterableKeys() metadata.Schema {
	return metadata.SchemaFromStruct(DocumentRecord{}).Merge(metadata.NewSchema(
		"source", "document_id", "section_type", "user_id",
		"claim_id", "policy_number", "user_email", "category",
	))
}

// recordValues reads the record's tagged fields, skipping empties. Kept
// reflective so it cannot drift from FilterableKeys.
func recordValues(record DocumentRecord) map[string]string {
	out := make(map[string]string)
	v := reflect.ValueOf(record)
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("meta")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.IndexByte(tag, ','); idx >= 0 {
			tag = tag[:idx]
		}
		if s, ok := v.Field(i).Interface().(string); ok && s != "" {
			out[tag] = s
		}
	}
	return out
}
