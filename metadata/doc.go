// Package metadata provides typed chunk metadata, an equality filter
// language, and a Roaring Bitmap inverted index for filtered retrieval.
//
// # Values
//
// Metadata values are a compact tagged union:
//
//   - String: metadata.String("handbook.pdf")
//   - Int: metadata.Int(3)
//   - Float: metadata.Float(0.25)
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{...})
//   - Null: metadata.Null()
//
// Values marshal to their natural JSON form, so a stored document
// round-trips as the plain object it was ingested from:
//
//	meta := metadata.Document{
//	    "source":      metadata.String("handbook.pdf"),
//	    "chunk_index": metadata.Int(3),
//	}
//
// # Filters
//
// Filtering is equality on the canonical text form of a value, combined
// with conjunction and disjunction:
//
//	filter := metadata.AndOf(
//	    metadata.Eq("source", "handbook.pdf"),
//	    metadata.OrOf(
//	        metadata.Eq("section_type", "faq"),
//	        metadata.Eq("section_type", "coverage"),
//	    ),
//	)
//
// Comparison is on text form, so Eq("chunk_index", "3") matches both
// Int(3) and String("3"). Eq(key, "") additionally matches rows that do
// not carry the key at all.
//
// # Inverted index
//
// Inverted maps key/value pairs to row bitmaps so a filter narrows the
// candidate set before any distance computation. The bitmap prunes; the
// Matches predicate decides.
//
// # Schema
//
// Schema restricts which keys external callers may filter on. It can be
// derived from struct tags with SchemaFromStruct.
package metadata
