package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterOptions_Validation(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
		wantErr   bool
	}{
		{name: "Defaults", maxTokens: MaxChunkTokens, overlap: ChunkOverlap},
		{name: "NoOverlap", maxTokens: 10, overlap: 0},
		{name: "OverlapEqualsBudget", maxTokens: 10, overlap: 10, wantErr: true},
		{name: "NegativeOverlap", maxTokens: 10, overlap: -1, wantErr: true},
		{name: "ZeroBudget", maxTokens: 0, overlap: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWordSplitter(func(o *SplitterOptions) {
				o.MaxTokens = tt.maxTokens
				o.Overlap = tt.overlap
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWordSplitter_WithinBudgetIsUntouched(t *testing.T) {
	s, err := NewWordSplitter(func(o *SplitterOptions) {
		o.MaxTokens = 10
		o.Overlap = 3
	})
	require.NoError(t, err)

	text := "the policy covers windshield damage"
	assert.Equal(t, []string{text}, s.Split(text))
}

func TestWordSplitter_SplitsWithOverlap(t *testing.T) {
	s, err := NewWordSplitter(func(o *SplitterOptions) {
		o.MaxTokens = 10
		o.Overlap = 3
	})
	require.NoError(t, err)

	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	pieces := s.Split(strings.Join(words, " "))
	require.Len(t, pieces, 4)

	for i, piece := range pieces {
		assert.LessOrEqual(t, len(strings.Fields(piece)), 10, "piece %d over budget", i)
	}

	// Consecutive pieces share the overlap.
	for i := 0; i < len(pieces)-1; i++ {
		cur := strings.Fields(pieces[i])
		next := strings.Fields(pieces[i+1])
		assert.Equal(t, cur[len(cur)-3:], next[:3])
	}

	// Nothing is lost: the last word of the text ends the last piece.
	last := strings.Fields(pieces[len(pieces)-1])
	assert.Equal(t, "w24", last[len(last)-1])
}

func TestTokenSplitter_SplitsLongText(t *testing.T) {
	s, err := NewTokenSplitter(func(o *SplitterOptions) {
		o.MaxTokens = 16
		o.Overlap = 4
	})
	if err != nil {
		t.Skipf("token vocabulary unavailable: %v", err)
	}

	short := "claim approved"
	assert.Equal(t, []string{short}, s.Split(short))

	long := strings.Repeat("the quick brown fox jumps over the lazy dog ", 20)
	pieces := s.Split(long)
	require.Greater(t, len(pieces), 1)
	for _, piece := range pieces {
		assert.NotEmpty(t, strings.TrimSpace(piece))
	}
}
