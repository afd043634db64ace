// Package snapshot persists the index as two files: a compressed
// little-endian vector file and a row-aligned JSON metadata file.
// Saves are atomic per file; loads memory-map the vector file and
// cross-check the two files so a torn pair is reported instead of
// half-loaded.
package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/vantageinsurance/knowbase/codec"
	"github.com/vantageinsurance/knowbase/index"
	"github.com/vantageinsurance/knowbase/internal/mmap"
	"github.com/vantageinsurance/knowbase/metadata"
	"github.com/vantageinsurance/knowbase/resource"
)

const (
	vectorsFile  = "vectors.bin"
	metadataFile = "metadata.json"
)

// Vector file header: magic, format version u16, compression u8, one
// pad byte, dimension u32, row count u32. All little endian.
var vectorsMagic = [4]byte{'K', 'B', 'V', 'S'}

const (
	formatVersion = 1
	headerSize    = 16
)

// Rows above this dimension are rejected as corrupt rather than
// trusted for allocation sizing.
const maxDimension = 1 << 16

// Options configures a snapshot Store.
type Options struct {
	Compression Compression
	BlockSize   int
	Codec       codec.Codec
	Controller  *resource.Controller
}

// DefaultOptions are sensible defaults for local persistence.
var DefaultOptions = Options{
	Compression: CompressionZSTD,
	BlockSize:   defaultBlockSize,
	Codec:       codec.Default,
}

// Store reads and writes snapshots in a local directory.
type Store struct {
	dir  string
	opts Options
}

// NewStore creates a snapshot store rooted at dir, creating the
// directory if needed.
func NewStore(dir string, optFns ...func(o *Options)) (*Store, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = defaultBlockSize
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, opts: opts}, nil
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether a snapshot is present locally. It does not
// validate the pair; Load does.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, vectorsFile))
	return err == nil
}

// record is the wire form of one row in the metadata file. Records are
// ordered exactly like the rows in the vector file.
type record struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata metadata.Document `json:"metadata,omitempty"`
}

// Save writes all entries as a new snapshot. Each file is written to a
// temp file, synced and renamed; a crash between the two renames leaves
// a mismatched pair that Load reports as corrupt.
func (s *Store) Save(ctx context.Context, dim int, entries []index.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("snapshot: dimension must be positive, got %d", dim)
	}
	for _, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("snapshot: entry %q has %d dimensions, want %d", e.ID, len(e.Vector), dim)
		}
	}

	if err := s.saveVectors(ctx, dim, entries); err != nil {
		return err
	}
	return s.saveMetadata(ctx, entries)
}

func (s *Store) saveVectors(ctx context.Context, dim int, entries []index.Entry) error {
	raw := make([]byte, len(entries)*dim*4)
	for i, e := range entries {
		base := i * dim * 4
		for j, v := range e.Vector {
			binary.LittleEndian.PutUint32(raw[base+j*4:], math.Float32bits(v))
		}
	}

	return s.writeFileAtomic(ctx, vectorsFile, func(w io.Writer) error {
		header := make([]byte, headerSize)
		copy(header[0:4], vectorsMagic[:])
		binary.LittleEndian.PutUint16(header[4:6], formatVersion)
		header[6] = byte(s.opts.Compression)
		binary.LittleEndian.PutUint32(header[8:12], uint32(dim))
		binary.LittleEndian.PutUint32(header[12:16], uint32(len(entries)))
		if _, err := w.Write(header); err != nil {
			return err
		}

		for off := 0; off < len(raw); off += s.opts.BlockSize {
			end := min(off+s.opts.BlockSize, len(raw))
			block, err := compressBlock(raw[off:end], s.opts.Compression)
			if err != nil {
				return err
			}
			if _, err := w.Write(block); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) saveMetadata(ctx context.Context, entries []index.Entry) error {
	records := make([]record, len(entries))
	for i, e := range entries {
		records[i] = record{ID: e.ID, Text: e.Text, Metadata: e.Metadata}
	}
	data, err := s.opts.Codec.Marshal(records)
	if err != nil {
		return fmt.Errorf("snapshot: encoding metadata: %w", err)
	}

	return s.writeFileAtomic(ctx, metadataFile, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// writeFileAtomic writes through a temp file, fsyncs, renames into
// place and syncs the directory.
func (s *Store) writeFileAtomic(ctx context.Context, name string, write func(w io.Writer) error) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	var w io.Writer = f
	if s.opts.Controller != nil {
		w = resource.NewRateLimitedWriter(ctx, f, s.opts.Controller)
	}

	if err := write(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	dir, err := os.OpenFile(s.dir, os.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer dir.Close()
	return dir.Sync()
}

// Load reads the snapshot back. A missing snapshot returns an error
// satisfying errors.Is(err, os.ErrNotExist); any other failure means
// the pair on disk is unusable and the caller decides whether to start
// empty.
func (s *Store) Load(ctx context.Context) (int, []index.Entry, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	m, err := mmap.Open(filepath.Join(s.dir, vectorsFile))
	if err != nil {
		return 0, nil, err
	}
	defer m.Close()

	data := m.Bytes()
	if len(data) < headerSize {
		return 0, nil, fmt.Errorf("snapshot: vector file truncated at %d bytes", len(data))
	}
	if [4]byte(data[0:4]) != vectorsMagic {
		return 0, nil, fmt.Errorf("snapshot: bad magic %q", data[0:4])
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != formatVersion {
		return 0, nil, fmt.Errorf("snapshot: unsupported format version %d", v)
	}
	comp := Compression(data[6])
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))
	if dim <= 0 && count > 0 {
		return 0, nil, fmt.Errorf("snapshot: %d rows with dimension %d", count, dim)
	}
	if dim > maxDimension {
		return 0, nil, fmt.Errorf("snapshot: implausible dimension %d", dim)
	}

	var raw []byte
	rest := data[headerSize:]
	for len(rest) > 0 {
		payload, n, err := readBlock(rest, comp)
		if err != nil {
			return 0, nil, err
		}
		raw = append(raw, payload...)
		rest = rest[n:]
	}
	if int64(len(raw)) != int64(count)*int64(dim)*4 {
		return 0, nil, fmt.Errorf("snapshot: expected %d vector bytes for %d rows, got %d",
			int64(count)*int64(dim)*4, count, len(raw))
	}

	records, err := s.loadRecords()
	if err != nil {
		return 0, nil, err
	}
	if len(records) != count {
		return 0, nil, fmt.Errorf("snapshot: %d metadata records do not match %d vector rows",
			len(records), count)
	}

	entries := make([]index.Entry, count)
	for i := range entries {
		vec := make([]float32, dim)
		base := i * dim * 4
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[base+j*4:]))
		}
		entries[i] = index.Entry{
			ID:       records[i].ID,
			Vector:   vec,
			Text:     records[i].Text,
			Metadata: records[i].Metadata,
		}
	}
	return dim, entries, nil
}

func (s *Store) loadRecords() ([]record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("snapshot: metadata file missing for existing vector file: %w", err)
		}
		return nil, err
	}
	var records []record
	if err := s.opts.Codec.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("snapshot: decoding metadata: %w", err)
	}
	return records, nil
}
