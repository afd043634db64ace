package knowbase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantageinsurance/knowbase"
	"github.com/vantageinsurance/knowbase/metadata"
)

// newTestEngine builds an initialized engine over a temp store. With no
// encoder configured the hashed provider is selected without any
// network access.
func newTestEngine(t *testing.T, optFns ...knowbase.Option) *knowbase.Engine {
	t.Helper()

	opts := append([]knowbase.Option{
		knowbase.WithStoreDir(t.TempDir()),
	}, optFns...)
	engine := knowbase.New(opts...)
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, engine.Close())
	})
	return engine
}

func seedChunks(t *testing.T, engine *knowbase.Engine, ids []string, texts []string, metadatas []metadata.Document) {
	t.Helper()
	total, err := engine.UpsertChunks(context.Background(), ids, texts, metadatas)
	require.NoError(t, err)
	require.GreaterOrEqual(t, total, len(ids))
}

func TestEngine_Lifecycle(t *testing.T) {
	ctx := context.Background()
	engine := knowbase.New(knowbase.WithStoreDir(t.TempDir()))

	t.Run("OperationsBeforeInitialize", func(t *testing.T) {
		_, err := engine.Count(ctx)
		assert.ErrorIs(t, err, knowbase.ErrNotInitialized)

		_, err = engine.RetrieveForUser(ctx, "anything", "user-1")
		assert.ErrorIs(t, err, knowbase.ErrNotInitialized)
	})

	t.Run("InitializeIsIdempotent", func(t *testing.T) {
		require.NoError(t, engine.Initialize(ctx))
		require.NoError(t, engine.Initialize(ctx))

		count, err := engine.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("CloseIsIdempotent", func(t *testing.T) {
		require.NoError(t, engine.Close())
		require.NoError(t, engine.Close())

		_, err := engine.Count(ctx)
		assert.ErrorIs(t, err, knowbase.ErrClosed)

		assert.ErrorIs(t, engine.Initialize(ctx), knowbase.ErrClosed)
	})
}

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := knowbase.New(knowbase.WithStoreDir(dir))
	require.NoError(t, first.Initialize(ctx))
	_, err := first.UpsertChunks(ctx,
		[]string{"doc-1_chunk_000"},
		[]string{"glass replacement is covered after the deductible"},
		[]metadata.Document{metadata.FromStringMap(map[string]string{
			"source":      "Policy.pdf",
			"document_id": "doc-1",
			"user_id":     "user-1",
		})},
	)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := knowbase.New(knowbase.WithStoreDir(dir))
	require.NoError(t, second.Initialize(ctx))
	defer second.Close()

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	res, err := second.RetrieveForUser(ctx, "glass replacement deductible", "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, res.Total)
	assert.Equal(t, "doc-1_chunk_000", res.Chunks[0].ID)
	assert.Equal(t, "Policy.pdf", res.Chunks[0].Metadata.Text("source"))
}

func TestEngine_SnapshotDimensionChangeStartsEmpty(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first := knowbase.New(knowbase.WithStoreDir(dir), knowbase.WithHashDimension(256))
	require.NoError(t, first.Initialize(ctx))
	_, err := first.UpsertChunks(ctx,
		[]string{"c1"}, []string{"some text"},
		[]metadata.Document{metadata.FromStringMap(map[string]string{"source": "a"})})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A different dimension invalidates the stored vectors.
	second := knowbase.New(knowbase.WithStoreDir(dir), knowbase.WithHashDimension(128))
	require.NoError(t, second.Initialize(ctx))
	defer second.Close()

	count, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_Reset(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	engine := knowbase.New(knowbase.WithStoreDir(dir))
	require.NoError(t, engine.Initialize(ctx))
	defer engine.Close()

	_, err := engine.UpsertChunks(ctx,
		[]string{"c1"}, []string{"resettable text"},
		[]metadata.Document{metadata.FromStringMap(map[string]string{"source": "a"})})
	require.NoError(t, err)

	engine.Reset()
	_, err = engine.Count(ctx)
	assert.ErrorIs(t, err, knowbase.ErrNotInitialized)

	// Reinitializing reloads the persisted snapshot.
	require.NoError(t, engine.Initialize(ctx))
	count, err := engine.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngine_Clear(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	seedChunks(t, engine,
		[]string{"c1", "c2"},
		[]string{"first text", "second text"},
		[]metadata.Document{
			metadata.FromStringMap(map[string]string{"source": "a"}),
			metadata.FromStringMap(map[string]string{"source": "b"}),
		})

	require.NoError(t, engine.Clear(ctx))

	count, err := engine.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEngine_Stats(t *testing.T) {
	engine := newTestEngine(t, knowbase.WithHashDimension(256))

	seedChunks(t, engine,
		[]string{"c1"}, []string{"stats text"},
		[]metadata.Document{metadata.FromStringMap(map[string]string{"source": "a"})})

	stats, err := engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 256, stats.Dimension)
	assert.NotEmpty(t, stats.Provider)
}

func TestEngine_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	t.Run("LengthMismatch", func(t *testing.T) {
		_, err := engine.UpsertChunks(ctx,
			[]string{"a", "b"}, []string{"only one"},
			[]metadata.Document{nil, nil})
		assert.Error(t, err)
	})

	t.Run("EmptyText", func(t *testing.T) {
		_, err := engine.UpsertChunks(ctx,
			[]string{"a"}, []string{"   "},
			[]metadata.Document{nil})
		assert.Error(t, err)
	})

	t.Run("EmptyBatchReturnsCount", func(t *testing.T) {
		total, err := engine.UpsertChunks(ctx, nil, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, total)
	})
}

func TestEngine_MetricsCollector(t *testing.T) {
	ctx := context.Background()
	mc := &knowbase.BasicMetricsCollector{}
	engine := newTestEngine(t, knowbase.WithMetricsCollector(mc))

	seedChunks(t, engine,
		[]string{"c1"}, []string{"metrics text"},
		[]metadata.Document{metadata.FromStringMap(map[string]string{"source": "a", "user_id": "user-1"})})

	_, err := engine.RetrieveForUser(ctx, "metrics text", "user-1")
	require.NoError(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(1), stats.UpsertCount)
	assert.Equal(t, int64(1), stats.RetrieveCount)
	assert.GreaterOrEqual(t, stats.EmbedCount, int64(1))
	assert.Zero(t, stats.RetrieveErrors)
}
