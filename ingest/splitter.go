package ingest

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// MaxChunkTokens is the default token budget per chunk.
	MaxChunkTokens = 512

	// ChunkOverlap is the default number of tokens consecutive chunks
	// of the same section share.
	ChunkOverlap = 50

	// splitterModel selects the BPE vocabulary used for counting.
	splitterModel = "gpt-3.5-turbo"
)

// Splitter cuts section text into pieces that fit the chunk budget.
// Text within budget comes back unchanged as a single piece.
type Splitter interface {
	Split(text string) []string
}

// SplitterOptions configure the splitters.
type SplitterOptions struct {
	// MaxTokens is the budget per piece. Defaults to MaxChunkTokens.
	MaxTokens int

	// Overlap is how much consecutive pieces share. Must be smaller
	// than MaxTokens. Defaults to ChunkOverlap.
	Overlap int
}

func (o *SplitterOptions) apply(optFns []func(o *SplitterOptions)) error {
	o.MaxTokens = MaxChunkTokens
	o.Overlap = ChunkOverlap
	for _, fn := range optFns {
		fn(o)
	}
	if o.MaxTokens <= 0 {
		return fmt.Errorf("ingest: chunk budget must be positive, got %d", o.MaxTokens)
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxTokens {
		return fmt.Errorf("ingest: overlap %d must be in [0, %d)", o.Overlap, o.MaxTokens)
	}
	return nil
}

// TokenSplitter splits on BPE token boundaries, so the budget matches
// what embedding models actually see.
type TokenSplitter struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
	overlap   int
}

var _ Splitter = (*TokenSplitter)(nil)

// NewTokenSplitter builds a token-based splitter. The vocabulary is
// fetched and cached on first use; in offline environments this can
// fail, which is why the bridge degrades to a word splitter.
func NewTokenSplitter(optFns ...func(o *SplitterOptions)) (*TokenSplitter, error) {
	var opts SplitterOptions
	if err := opts.apply(optFns); err != nil {
		return nil, err
	}

	enc, err := tiktoken.EncodingForModel(splitterModel)
	if err != nil {
		return nil, fmt.Errorf("ingest: loading token encoding: %w", err)
	}

	return &TokenSplitter{enc: enc, maxTokens: opts.MaxTokens, overlap: opts.Overlap}, nil
}

func (s *TokenSplitter) Split(text string) []string {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= s.maxTokens {
		return []string{text}
	}

	var pieces []string
	step := s.maxTokens - s.overlap
	for start := 0; start < len(tokens); start += step {
		end := min(start+s.maxTokens, len(tokens))
		piece := strings.TrimSpace(s.enc.Decode(tokens[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(tokens) {
			break
		}
	}
	return pieces
}

// WordSplitter splits on whitespace words. It is the no-dependency
// fallback when the token vocabulary cannot be loaded; word counts
// approximate token counts closely enough for a budget.
type WordSplitter struct {
	maxWords int
	overlap  int
}

var _ Splitter = (*WordSplitter)(nil)

// NewWordSplitter builds a word-based splitter.
func NewWordSplitter(optFns ...func(o *SplitterOptions)) (*WordSplitter, error) {
	var opts SplitterOptions
	if err := opts.apply(optFns); err != nil {
		return nil, err
	}
	return &WordSplitter{maxWords: opts.MaxTokens, overlap: opts.Overlap}, nil
}

func (s *WordSplitter) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) <= s.maxWords {
		return []string{text}
	}

	var pieces []string
	step := s.maxWords - s.overlap
	for start := 0; start < len(words); start += step {
		end := min(start+s.maxWords, len(words))
		pieces = append(pieces, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return pieces
}
