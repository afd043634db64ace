package knowbase

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/vantageinsurance/knowbase/distance"
	"github.com/vantageinsurance/knowbase/embed"
	"github.com/vantageinsurance/knowbase/index/flat"
	"github.com/vantageinsurance/knowbase/ingest"
	"github.com/vantageinsurance/knowbase/metadata"
	"github.com/vantageinsurance/knowbase/resource"
	"github.com/vantageinsurance/knowbase/snapshot"
)

// Engine is the process-wide retrieval state container: one embedding
// provider, one flat cosine index and one snapshot store. New only
// captures configuration; Initialize builds the state and is idempotent.
//
// One logical writer per store directory is assumed. Retrievals are
// lock-free against the index's copy-on-write state; upserts and clears
// are serialized.
type Engine struct {
	// mu guards lifecycle state, writeMu serializes mutators. mu is
	// never held while acquiring writeMu.
	mu      sync.Mutex
	writeMu sync.Mutex

	opts   options
	schema metadata.Schema

	controller  *resource.Controller
	provider    embed.Provider
	idx         *flat.Flat
	store       *snapshot.Store
	initialized bool
	closed      bool
}

// New creates an Engine from options. Nothing is probed or loaded until
// Initialize.
func New(optFns ...Option) *Engine {
	opts := applyOptions(optFns)

	schema := ingest.FilterableKeys()
	if len(opts.filterableKeys) > 0 {
		schema = schema.Merge(metadata.NewSchema(opts.filterableKeys...))
	}

	return &Engine{opts: opts, schema: schema}
}

// Initialize probes the embedding provider, opens the snapshot store
// and loads the persisted state. It is idempotent; a second call on a
// live engine is a no-op. A missing, corrupt or dimensionally
// incompatible snapshot is never fatal: the engine logs a warning and
// starts empty.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.initialized {
		return nil
	}

	if e.controller == nil && e.opts.resourceConfig != nil {
		e.controller = resource.NewController(*e.opts.resourceConfig)
	}

	provider := e.opts.provider
	if provider == nil {
		provider = embed.NewProvider(ctx, func(o *embed.ProviderOptions) {
			o.Encoder = e.opts.encoderConfig
			if e.opts.hashDimension > 0 {
				o.HashDimension = e.opts.hashDimension
			}
			o.Controller = e.controller
			o.Logger = e.opts.logger.Logger
		})
	}
	e.opts.logger.LogProbe(ctx, provider.Name(), provider.Dimension())

	store, err := snapshot.NewStore(e.opts.storeDir, func(o *snapshot.Options) {
		o.Compression = e.opts.compression
		o.Codec = e.opts.codec
		o.Controller = e.controller
	})
	if err != nil {
		e.releaseProvider(provider)
		return err
	}

	idx, err := flat.New(func(o *flat.Options) {
		o.Dimension = provider.Dimension()
		o.Metric = distance.MetricCosine
	})
	if err != nil {
		e.releaseProvider(provider)
		return translateError(err)
	}

	e.loadSnapshot(ctx, store, idx, provider.Dimension())

	e.provider = provider
	e.store = store
	e.idx = idx
	e.initialized = true
	return nil
}

func (e *Engine) loadSnapshot(ctx context.Context, store *snapshot.Store, idx *flat.Flat, dim int) {
	log := e.opts.logger

	if e.opts.archive != nil && !store.Exists() {
		switch err := e.opts.archive.Pull(ctx, store); {
		case errors.Is(err, snapshot.ErrNoArchivedSnapshot):
			log.DebugContext(ctx, "archive has no committed snapshot")
		case err != nil:
			log.WarnContext(ctx, "archive pull failed, continuing with local state", "error", err)
		default:
			log.InfoContext(ctx, "snapshot restored from archive", "dir", store.Dir())
		}
	}

	snapDim, entries, err := store.Load(ctx)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.InfoContext(ctx, "no snapshot found, starting empty", "dir", store.Dir())
	case err != nil:
		log.WarnContext(ctx, "snapshot unusable, starting empty",
			"dir", store.Dir(), "error", err)
	case snapDim != dim:
		// A provider or model change invalidates every stored vector.
		log.WarnContext(ctx, "snapshot dimension does not match embedding provider, starting empty",
			"snapshot_dimension", snapDim, "provider_dimension", dim)
	default:
		if err := idx.Restore(entries); err != nil {
			log.WarnContext(ctx, "snapshot restore failed, starting empty", "error", err)
			idx.Clear()
			return
		}
		log.InfoContext(ctx, "snapshot loaded", "rows", len(entries), "dimension", dim)
	}
}

// releaseProvider closes a provider the engine built itself. Injected
// providers stay the caller's to close.
func (e *Engine) releaseProvider(p embed.Provider) {
	if p != nil && p != e.opts.provider {
		_ = p.Close()
	}
}

// Reset drops all in-memory state so a later Initialize starts fresh.
// Persisted snapshots stay on disk. Mainly for tests.
func (e *Engine) Reset() {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.releaseProvider(e.provider)
	e.provider = nil
	e.idx = nil
	e.store = nil
	e.initialized = false
}

// Close releases the embedding provider and marks the engine unusable.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.releaseProvider(e.provider)
	e.provider = nil
	e.idx = nil
	e.store = nil
	e.initialized = false
	e.closed = true
	return nil
}

// engineRefs is the initialized state handed to operations, copied
// under the lifecycle mutex so operations run without holding it.
type engineRefs struct {
	provider embed.Provider
	idx      *flat.Flat
	store    *snapshot.Store
}

func (e *Engine) refs() (engineRefs, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return engineRefs{}, ErrClosed
	}
	if !e.initialized {
		return engineRefs{}, ErrNotInitialized
	}
	return engineRefs{provider: e.provider, idx: e.idx, store: e.store}, nil
}

// Stats describes the live engine state.
type Stats struct {
	Count     int    `json:"count"`
	Dimension int    `json:"dimension"`
	Provider  string `json:"provider"`
}

// Stats returns the chunk count, vector dimension and the active
// embedding provider.
func (e *Engine) Stats() (Stats, error) {
	refs, err := e.refs()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Count:     refs.idx.Count(),
		Dimension: refs.provider.Dimension(),
		Provider:  refs.provider.Name(),
	}, nil
}
