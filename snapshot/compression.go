package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the block codec for the vector file.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as used in configuration.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("snapshot: unknown compression %q", s)
	}
}

// Block framing: [UncompressedSize u32][CompressedSize u32][payload],
// little endian. CompressedSize 0 marks a payload stored raw, used when
// compression does not pay for itself.
const blockHeaderSize = 8

const defaultBlockSize = 256 << 10

// Blocks that compress to more than this fraction of their input are
// stored raw.
const maxCompressRatio = 0.9

var zstdEncoders = sync.Pool{
	New: func() any {
		enc, _ := zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	},
}

var zstdDecoders = sync.Pool{
	New: func() any {
		dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return dec
	},
}

func frameBlock(uncompressed, compressed []byte) []byte {
	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(uncompressed)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out
}

func frameRawBlock(data []byte) []byte {
	out := make([]byte, blockHeaderSize+len(data))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:8], 0)
	copy(out[blockHeaderSize:], data)
	return out
}

// compressBlock frames one block of data with the given codec.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return frameRawBlock(data), nil

	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("snapshot: lz4 compression failed: %w", err)
		}
		// n == 0 means incompressible.
		if n == 0 || float64(n) > float64(len(data))*maxCompressRatio {
			return frameRawBlock(data), nil
		}
		return frameBlock(data, buf[:n]), nil

	case CompressionZSTD:
		enc := zstdEncoders.Get().(*zstd.Encoder)
		compressed := enc.EncodeAll(data, nil)
		zstdEncoders.Put(enc)
		if float64(len(compressed)) > float64(len(data))*maxCompressRatio {
			return frameRawBlock(data), nil
		}
		return frameBlock(data, compressed), nil

	default:
		return nil, fmt.Errorf("snapshot: unknown compression %q", c)
	}
}

// readBlock decodes the framed block at the start of data and returns
// the payload and the number of bytes consumed.
func readBlock(data []byte, c Compression) ([]byte, int, error) {
	if len(data) < blockHeaderSize {
		return nil, 0, io.ErrUnexpectedEOF
	}
	uncompressedSize := int(binary.LittleEndian.Uint32(data[0:4]))
	compressedSize := int(binary.LittleEndian.Uint32(data[4:8]))

	if compressedSize == 0 {
		end := blockHeaderSize + uncompressedSize
		if len(data) < end {
			return nil, 0, io.ErrUnexpectedEOF
		}
		return data[blockHeaderSize:end], end, nil
	}

	end := blockHeaderSize + compressedSize
	if len(data) < end {
		return nil, 0, io.ErrUnexpectedEOF
	}
	payload := data[blockHeaderSize:end]

	var out []byte
	switch c {
	case CompressionLZ4:
		out = make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot: lz4 decompression failed: %w", err)
		}
		if n != uncompressedSize {
			return nil, 0, fmt.Errorf("snapshot: block decodes to %d bytes, header says %d", n, uncompressedSize)
		}

	case CompressionZSTD:
		dec := zstdDecoders.Get().(*zstd.Decoder)
		var err error
		out, err = dec.DecodeAll(payload, nil)
		zstdDecoders.Put(dec)
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot: zstd decompression failed: %w", err)
		}
		if len(out) != uncompressedSize {
			return nil, 0, fmt.Errorf("snapshot: block decodes to %d bytes, header says %d", len(out), uncompressedSize)
		}

	case CompressionNone:
		// A file marked uncompressed must contain only raw blocks.
		return nil, 0, fmt.Errorf("snapshot: compressed block in uncompressed file")

	default:
		return nil, 0, fmt.Errorf("snapshot: unknown compression %q", c)
	}
	return out, end, nil
}
