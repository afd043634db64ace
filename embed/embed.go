// Package embed turns chunk text into fixed-dimension unit vectors.
//
// Two providers are available. Encoder calls a text-embeddings-inference
// server over HTTP and is preferred when one is configured. Hasher is a
// deterministic n-gram fallback that needs no model or network and keeps
// the service available when the encoder is not.
//
// NewProvider probes the configured encoder once and settles on a
// provider for the lifetime of the process, so Dimension is stable from
// the first call on.
package embed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/vantageinsurance/knowbase/resource"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider generates embeddings for queries and documents. All vectors
// returned by a provider have length Dimension and unit L2 norm, except
// for text with no signal at all, which embeds to the zero vector.
type Provider interface {
	// EmbedQuery embeds a single retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds a batch of chunk texts, one vector per text
	// in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of produced vectors.
	Dimension() int

	// Name identifies the provider for logs and stats.
	Name() string

	// Close releases held resources.
	Close() error
}

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	// Encoder configures the remote encoder. An empty BaseURL disables
	// it and selects the hashed provider directly.
	Encoder Config

	// HashDimension is the dimension of the hashed fallback provider.
	HashDimension int

	// MaxBatchSize caps the number of texts per encoder request.
	MaxBatchSize int

	// HTTPClient overrides the encoder's HTTP client.
	HTTPClient *http.Client

	// Controller bounds concurrent encoder calls. Optional.
	Controller *resource.Controller

	// Logger receives the fallback warning. Defaults to discard.
	Logger *slog.Logger
}

// NewProvider selects the embedding provider. When an encoder is
// configured it is probed with a single request; on probe failure the
// hashed provider takes over with a warning, never an error. Retrieval
// must stay available even when no model server is reachable.
func NewProvider(ctx context.Context, optFns ...func(o *ProviderOptions)) Provider {
	opts := ProviderOptions{
		HashDimension: DefaultHashDimension,
		Logger:        slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	hasher := NewHasher(func(o *HasherOptions) {
		o.Dimension = opts.HashDimension
	})

	if opts.Encoder.BaseURL == "" {
		opts.Logger.DebugContext(ctx, "no encoder configured, using hashed embeddings",
			"dimension", hasher.Dimension())
		return hasher
	}

	enc, err := NewEncoder(opts.Encoder, func(o *EncoderOptions) {
		o.HTTPClient = opts.HTTPClient
		o.Controller = opts.Controller
		if opts.MaxBatchSize > 0 {
			o.MaxBatchSize = opts.MaxBatchSize
		}
	})
	if err == nil {
		err = enc.Probe(ctx)
	}
	if err != nil {
		opts.Logger.WarnContext(ctx, "encoder unavailable, falling back to hashed embeddings",
			"base_url", opts.Encoder.BaseURL,
			"model", opts.Encoder.Model,
			"dimension", hasher.Dimension(),
			"error", err)
		return hasher
	}

	return enc
}
