package embed

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/vantageinsurance/knowbase/distance"
)

// DefaultHashDimension is the dimension of the hashed provider.
const DefaultHashDimension = 512

// Feature weights. Whole words carry the most signal, word bigrams add
// phrase context, character trigrams keep typos and partial matches
// near their intended bucket.
const (
	wordWeight    = 3
	bigramWeight  = 2
	trigramWeight = 1
)

// HasherOptions configures NewHasher.
type HasherOptions struct {
	// Dimension is the output vector length. Powers of two spread the
	// digest evenly across buckets.
	Dimension int
}

// Hasher embeds text by hashing word, word-bigram and character-trigram
// features into a fixed number of buckets. It is fully deterministic:
// the same text maps to the same unit vector on every machine, which
// keeps a persisted index consistent across restarts and deployments.
//
// Matching is lexical rather than semantic, good enough to keep
// retrieval running when no encoder is reachable.
type Hasher struct {
	dim int
}

var _ Provider = (*Hasher)(nil)

// NewHasher creates a hashed n-gram provider.
func NewHasher(optFns ...func(o *HasherOptions)) *Hasher {
	opts := HasherOptions{Dimension: DefaultHashDimension}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultHashDimension
	}

	return &Hasher{dim: opts.Dimension}
}

// EmbedQuery embeds a single query. Text without any word or trigram
// features embeds to the zero vector rather than an error.
func (h *Hasher) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h.embed(text), nil
}

// EmbedDocuments embeds a batch of texts in input order.
func (h *Hasher) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *Hasher) embed(text string) []float32 {
	t := strings.ToLower(strings.TrimSpace(text))
	vec := make([]float32, h.dim)

	words := tokenize(t)
	for _, w := range words {
		vec[h.bucket(w)] += wordWeight
	}
	for i := 0; i+1 < len(words); i++ {
		vec[h.bucket(words[i]+"_"+words[i+1])] += bigramWeight
	}

	runes := []rune(t)
	for i := 0; i+3 <= len(runes); i++ {
		tri := string(runes[i : i+3])
		if strings.TrimSpace(tri) == "" {
			continue
		}
		vec[h.bucket(tri)] += trigramWeight
	}

	distance.NormalizeL2InPlace(vec)
	return vec
}

// bucket hashes a feature to a vector index using the low 64 bits of
// its md5 digest. md5 is used as a stable mixer here, not for security.
func (h *Hasher) bucket(feature string) int {
	sum := md5.Sum([]byte(feature))
	return int(binary.BigEndian.Uint64(sum[8:]) % uint64(h.dim))
}

// tokenize splits lowered text into runs of ASCII letters and digits.
// Everything else, including punctuation and non-ASCII characters, acts
// as a separator.
func tokenize(t string) []string {
	var words []string
	start := -1
	for i := 0; i < len(t); i++ {
		c := t[i]
		alnum := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
		if alnum {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			words = append(words, t[start:i])
			start = -1
		}
	}
	if start >= 0 {
		words = append(words, t[start:])
	}
	return words
}

// Dimension returns the configured bucket count.
func (h *Hasher) Dimension() int { return h.dim }

// Name identifies the hashed provider.
func (h *Hasher) Name() string { return "hashed-ngram" }

// Close is a no-op.
func (h *Hasher) Close() error { return nil }
