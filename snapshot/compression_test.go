package snapshot

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCompression(t *testing.T) {
	tests := []struct {
		input   string
		want    Compression
		wantErr bool
	}{
		{input: "none", want: CompressionNone},
		{input: "", want: CompressionNone},
		{input: "lz4", want: CompressionLZ4},
		{input: "ZSTD", want: CompressionZSTD},
		{input: " zstd ", want: CompressionZSTD},
		{input: "gzip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCompression(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlockRoundTrip(t *testing.T) {
	// Repetitive data compresses well under every codec.
	data := bytes.Repeat([]byte("vantage insurance knowledge base "), 512)

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			block, err := compressBlock(data, comp)
			require.NoError(t, err)

			if comp != CompressionNone {
				assert.Less(t, len(block), len(data), "repetitive data should shrink")
			}

			payload, n, err := readBlock(block, comp)
			require.NoError(t, err)
			assert.Equal(t, len(block), n)
			assert.Equal(t, data, payload)
		})
	}
}

func TestBlockIncompressibleFallsBackToRaw(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 8192)
	_, err := rng.Read(data)
	require.NoError(t, err)

	for _, comp := range []Compression{CompressionLZ4, CompressionZSTD} {
		t.Run(comp.String(), func(t *testing.T) {
			block, err := compressBlock(data, comp)
			require.NoError(t, err)

			// CompressedSize 0 marks the raw fallback.
			assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(block[4:8]))

			payload, n, err := readBlock(block, comp)
			require.NoError(t, err)
			assert.Equal(t, len(block), n)
			assert.Equal(t, data, payload)
		})
	}
}

func TestReadBlockTruncated(t *testing.T) {
	data := bytes.Repeat([]byte("abc"), 100)
	block, err := compressBlock(data, CompressionZSTD)
	require.NoError(t, err)

	_, _, err = readBlock(block[:4], CompressionZSTD)
	assert.Error(t, err)

	_, _, err = readBlock(block[:len(block)-1], CompressionZSTD)
	assert.Error(t, err)
}

func TestReadBlockRejectsCompressedInNoneFile(t *testing.T) {
	framed := frameBlock([]byte("data"), []byte("bogus"))
	_, _, err := readBlock(framed, CompressionNone)
	assert.ErrorContains(t, err, "uncompressed file")
}
