package knowbase

import (
	"log/slog"

	"github.com/vantageinsurance/knowbase/codec"
	"github.com/vantageinsurance/knowbase/embed"
	"github.com/vantageinsurance/knowbase/resource"
	"github.com/vantageinsurance/knowbase/snapshot"
)

// DefaultStoreDir is where snapshots are persisted when no directory is
// configured.
const DefaultStoreDir = "./data/vectors"

type options struct {
	codec            codec.Codec
	metricsCollector MetricsCollector
	logger           *Logger
	storeDir         string
	encoderConfig    embed.Config
	hashDimension    int
	provider         embed.Provider
	filterableKeys   []string
	compression      snapshot.Compression
	archive          *snapshot.Archive
	resourceConfig   *resource.Config
	minSimilarity    float64
}

// Option configures Engine construction.
type Option func(*options)

// WithCodec configures the codec used for the metadata sidecar and
// filter echoes.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := knowbase.NewJSONLogger(slog.LevelInfo)
//	eng := knowbase.New(knowbase.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &knowbase.BasicMetricsCollector{}
//	eng := knowbase.New(knowbase.WithMetricsCollector(metrics))
//	// ... use eng ...
//	stats := metrics.GetStats()
//	fmt.Printf("Retrievals: %d, Avg latency: %dns\n", stats.RetrieveCount, stats.RetrieveAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithStoreDir configures the snapshot directory.
func WithStoreDir(dir string) Option {
	return func(o *options) {
		if dir != "" {
			o.storeDir = dir
		}
	}
}

// WithEncoderConfig configures the remote sentence encoder. An empty
// BaseURL leaves the engine on hashed embeddings.
func WithEncoderConfig(cfg embed.Config) Option {
	return func(o *options) {
		o.encoderConfig = cfg
	}
}

// WithHashDimension configures the hashed-embedding dimension used when
// no encoder is reachable.
func WithHashDimension(dim int) Option {
	return func(o *options) {
		o.hashDimension = dim
	}
}

// WithProvider injects a concrete embedding provider, bypassing the
// startup probe. Mainly for tests.
func WithProvider(p embed.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithFilterableKeys adds keys to the recognized filter key set on top
// of the ingest record schema.
func WithFilterableKeys(keys ...string) Option {
	return func(o *options) {
		o.filterableKeys = append(o.filterableKeys, keys...)
	}
}

// WithCompression selects the snapshot block codec.
func WithCompression(c snapshot.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithArchive replicates every saved snapshot to the archive and, on
// Initialize, pulls the committed generation when no local snapshot
// exists. Archive failures degrade to warnings; the local store stays
// authoritative.
func WithArchive(a *snapshot.Archive) Option {
	return func(o *options) {
		o.archive = a
	}
}

// WithResourceLimits bounds embedding concurrency, memory accounting
// and snapshot IO through a resource controller.
func WithResourceLimits(cfg resource.Config) Option {
	return func(o *options) {
		o.resourceConfig = &cfg
	}
}

// WithMinSimilarity drops retrieval results whose cosine similarity is
// below the floor. Zero (the default) disables the floor.
func WithMinSimilarity(min float64) Option {
	return func(o *options) {
		o.minSimilarity = min
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		codec:            codec.Default,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		storeDir:         DefaultStoreDir,
		compression:      snapshot.CompressionZSTD,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
