package embed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/vantageinsurance/knowbase/codec"
	"github.com/vantageinsurance/knowbase/distance"
	"github.com/vantageinsurance/knowbase/resource"
)

// DefaultModel is the encoder model assumed when none is configured.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// modelDimensions maps known encoder models to their embedding
// dimensions. Unknown models resolve their dimension at probe time.
var modelDimensions = map[string]int{
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-base-en-v1.5":                  768,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// Config holds configuration for the remote encoder.
type Config struct {
	// BaseURL is the base URL of the text-embeddings-inference server.
	BaseURL string

	// Model is the embedding model served there.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string
}

// ConfigFromEnv creates a Config from environment variables. An unset
// KNOWBASE_ENCODER_URL leaves BaseURL empty, which disables the encoder.
func ConfigFromEnv() Config {
	model := os.Getenv("KNOWBASE_ENCODER_MODEL")
	if model == "" {
		model = DefaultModel
	}

	return Config{
		BaseURL: os.Getenv("KNOWBASE_ENCODER_URL"),
		Model:   model,
		APIKey:  os.Getenv("KNOWBASE_ENCODER_API_KEY"),
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return nil
}

// EncoderOptions holds tunables beyond the connection Config.
type EncoderOptions struct {
	// HTTPClient is the client used for requests.
	HTTPClient *http.Client

	// Timeout applies per request when HTTPClient is nil.
	Timeout time.Duration

	// MaxBatchSize caps the number of texts per request.
	MaxBatchSize int

	// Controller bounds concurrent requests. Optional.
	Controller *resource.Controller
}

// DefaultEncoderOptions returns the defaults for NewEncoder.
func DefaultEncoderOptions() EncoderOptions {
	return EncoderOptions{
		Timeout:      30 * time.Second,
		MaxBatchSize: 32,
	}
}

// Encoder generates embeddings via a text-embeddings-inference server.
type Encoder struct {
	config Config
	opts   EncoderOptions
	client *http.Client
	dim    int
}

var _ Provider = (*Encoder)(nil)

// NewEncoder creates a new remote encoder. The dimension of unknown
// models is discovered by Probe.
func NewEncoder(config Config, optFns ...func(o *EncoderOptions)) (*Encoder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	opts := DefaultEncoderOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Encoder{
		config: config,
		opts:   opts,
		client: client,
		dim:    modelDimensions[config.Model],
	}, nil
}

// teiRequest is the request body for the embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// Probe verifies the server is reachable and records the served
// dimension. It must be called before the first Dimension read for
// models missing from the known-dimension table.
func (e *Encoder) Probe(ctx context.Context) error {
	vecs, err := e.embed(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	e.dim = len(vecs[0])
	return nil
}

// EmbedQuery generates an embedding for a single query.
func (e *Encoder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vecs, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments generates embeddings for multiple texts, batching
// requests at MaxBatchSize.
func (e *Encoder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.opts.MaxBatchSize {
		end := min(start+e.opts.MaxBatchSize, len(texts))
		vecs, err := e.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embed performs one request. Returned vectors are L2-normalized, which
// lets the index compute cosine similarity as a dot product.
func (e *Encoder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.opts.Controller.AcquireWorker(ctx); err != nil {
		return nil, err
	}
	defer e.opts.Controller.ReleaseWorker()

	body, err := codec.Default.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, truncateForError(respBody))
	}

	var vectors [][]float32
	if err := codec.Default.Unmarshal(respBody, &vectors); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}

	for i, vec := range vectors {
		if e.dim > 0 && len(vec) != e.dim {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(vec), e.dim)
		}
		distance.NormalizeL2InPlace(vec)
	}

	return vectors, nil
}

// Dimension returns the embedding dimension. Zero until Probe for
// models missing from the known-dimension table.
func (e *Encoder) Dimension() int { return e.dim }

// Name identifies the encoder and its model.
func (e *Encoder) Name() string { return "encoder:" + e.config.Model }

// Close releases idle connections.
func (e *Encoder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func truncateForError(b []byte) string {
	const maxLen = 512
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
