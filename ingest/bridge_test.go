package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantageinsurance/knowbase/metadata"
)

type fakeUpserter struct {
	ids       []string
	texts     []string
	metadatas []metadata.Document
	seen      map[string]struct{}
	err       error
}

func (f *fakeUpserter) UpsertChunks(_ context.Context, ids []string, texts []string, metadatas []metadata.Document) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]struct{})
	}
	f.ids = ids
	f.texts = texts
	f.metadatas = metadatas
	for _, id := range ids {
		f.seen[id] = struct{}{}
	}
	return len(f.seen), nil
}

func newTestBridge(t *testing.T, up Upserter) *Bridge {
	t.Helper()
	ws, err := NewWordSplitter()
	require.NoError(t, err)
	return NewBridge(up, func(o *BridgeOptions) {
		o.Splitter = ws
	})
}

func TestBridge_Ingest(t *testing.T) {
	up := &fakeUpserter{}
	bridge := newTestBridge(t, up)

	record := DocumentRecord{
		Name:         "Policy.pdf",
		UserID:       "user-1",
		ClaimID:      "CLM-001",
		PolicyNumber: "POL-42",
	}
	sections := []Section{
		{
			Class:      "coverage_details",
			Text:       "This policy covers vehicle damage up to $50,000.",
			Attributes: map[string]string{"topic": "coverage", "section_number": "1"},
		},
		{
			Text: "Signed in duplicate.",
		},
	}

	res, err := bridge.Ingest(context.Background(), "doc-1", record, sections)
	require.NoError(t, err)

	assert.Equal(t, 2, res.ChunksStored)
	assert.Equal(t, 2, res.CollectionTotal)
	assert.Equal(t, []string{"coverage_details", "unknown"}, res.SectionTypes)

	require.Equal(t, []string{"doc-1_chunk_000", "doc-1_chunk_001"}, up.ids)
	require.Len(t, up.metadatas, 2)

	first := up.metadatas[0]
	assert.Equal(t, "Policy.pdf", first.Text("source"))
	assert.Equal(t, "Policy.pdf", first.Text("name"))
	assert.Equal(t, "doc-1", first.Text("document_id"))
	assert.Equal(t, "user-1", first.Text("user_id"))
	assert.Equal(t, "CLM-001", first.Text("claim_id"))
	assert.Equal(t, "POL-42", first.Text("policy_number"))
	assert.Equal(t, "coverage_details", first.Text("section_type"))
	assert.Equal(t, "0", first.Text("chunk_index"))
	assert.Equal(t, "coverage", first.Text("attr_topic"))
	assert.Equal(t, "1", first.Text("attr_section_number"))
	assert.True(t, first.Has("ingested_at"))

	second := up.metadatas[1]
	assert.Equal(t, "unknown", second.Text("section_type"))
	assert.Equal(t, "1", second.Text("chunk_index"))
	assert.False(t, second.Has("attr_topic"))
}

func TestBridge_SharedDocumentHasNoOwner(t *testing.T) {
	up := &fakeUpserter{}
	bridge := newTestBridge(t, up)

	_, err := bridge.Ingest(context.Background(), "doc-base", DocumentRecord{},
		[]Section{{Class: "paragraph", Text: "Base policy terms."}})
	require.NoError(t, err)

	meta := up.metadatas[0]
	assert.False(t, meta.Has("user_id"))
	assert.False(t, meta.Has("name"))
	assert.Equal(t, "unknown", meta.Text("source"))
}

func TestBridge_SplitsOversizedSections(t *testing.T) {
	up := &fakeUpserter{}
	ws, err := NewWordSplitter(func(o *SplitterOptions) {
		o.MaxTokens = 5
		o.Overlap = 1
	})
	require.NoError(t, err)
	bridge := NewBridge(up, func(o *BridgeOptions) { o.Splitter = ws })

	_, err = bridge.Ingest(context.Background(), "doc-2", DocumentRecord{},
		[]Section{{Class: "clause", Text: "one two three four five six seven eight nine ten eleven twelve"}})
	require.NoError(t, err)

	require.Equal(t, []string{"doc-2_chunk_000", "doc-2_chunk_001", "doc-2_chunk_002"}, up.ids)
	for i, meta := range up.metadatas {
		assert.Equal(t, "clause", meta.Text("section_type"))
		assert.Equal(t, up.metadatas[0].Text("document_id"), meta.Text("document_id"))
		assert.NotEqual(t, "", up.texts[i])
	}
	assert.Equal(t, "2", up.metadatas[2].Text("chunk_index"))
}

func TestBridge_SkipsBlankSections(t *testing.T) {
	up := &fakeUpserter{}
	bridge := newTestBridge(t, up)

	res, err := bridge.Ingest(context.Background(), "doc-3", DocumentRecord{}, []Section{
		{Class: "header", Text: "   \n\t"},
		{Class: "clause", Text: "The deductible is $500."},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.ChunksStored)
	assert.Equal(t, []string{"doc-3_chunk_000"}, up.ids)
}

func TestBridge_Validation(t *testing.T) {
	bridge := newTestBridge(t, &fakeUpserter{})

	t.Run("EmptyDocumentID", func(t *testing.T) {
		_, err := bridge.Ingest(context.Background(), "", DocumentRecord{},
			[]Section{{Text: "x"}})
		assert.Error(t, err)
	})

	t.Run("NoSections", func(t *testing.T) {
		_, err := bridge.Ingest(context.Background(), "doc-4", DocumentRecord{}, nil)
		assert.Error(t, err)
	})

	t.Run("OnlyBlankSections", func(t *testing.T) {
		_, err := bridge.Ingest(context.Background(), "doc-5", DocumentRecord{},
			[]Section{{Text: "  "}})
		assert.Error(t, err)
	})
}

func TestBridge_UpsertErrorPropagates(t *testing.T) {
	wantErr := errors.New("store full")
	bridge := newTestBridge(t, &fakeUpserter{err: wantErr})

	_, err := bridge.Ingest(context.Background(), "doc-6", DocumentRecord{},
		[]Section{{Text: "some text"}})
	assert.ErrorIs(t, err, wantErr)
}

func TestFilterableKeys(t *testing.T) {
	schema := FilterableKeys()

	for _, key := range []string{
		"source", "document_id", "section_type", "user_id",
		"claim_id", "policy_number", "user_email", "category", "name",
	} {
		assert.True(t, schema.Allows(key), "key %q", key)
	}
	assert.False(t, schema.Allows("ingested_at"))
	assert.False(t, schema.Allows("chunk_index"))
}
