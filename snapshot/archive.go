package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vantageinsurance/knowbase/blobstore"
	"github.com/vantageinsurance/knowbase/resource"
)

const (
	currentPointer   = "CURRENT"
	generationPrefix = "snapshots/"
)

// ErrNoArchivedSnapshot is returned by Pull when the archive has no
// committed generation.
var ErrNoArchivedSnapshot = errors.New("snapshot: archive has no committed generation")

// ArchiveOptions configures an Archive.
type ArchiveOptions struct {
	// KeepGenerations is how many generations Prune retains.
	KeepGenerations int
	Controller      *resource.Controller
}

// Archive replicates snapshots to a blob store. Each Push uploads the
// snapshot pair under a fresh generation path and then commits the
// CURRENT pointer, so readers always resolve a complete pair. With an
// s3.DDBCommitStore underneath, the pointer commit is a conditional
// write and concurrent pushers surface ErrConcurrentModification.
type Archive struct {
	blobs blobstore.Store
	opts  ArchiveOptions
}

// NewArchive creates an Archive on top of blobs.
func NewArchive(blobs blobstore.Store, optFns ...func(o *ArchiveOptions)) *Archive {
	opts := ArchiveOptions{KeepGenerations: 3}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.KeepGenerations < 1 {
		opts.KeepGenerations = 1
	}
	return &Archive{blobs: blobs, opts: opts}
}

// Push uploads the store's current snapshot as a new generation and
// commits the CURRENT pointer to it. It returns the generation path.
func (a *Archive) Push(ctx context.Context, store *Store) (string, error) {
	gen := fmt.Sprintf("%sgen-%d", generationPrefix, time.Now().UnixNano())

	for _, name := range []string{vectorsFile, metadataFile} {
		if err := a.upload(ctx, filepath.Join(store.dir, name), gen+"/"+name); err != nil {
			return "", fmt.Errorf("snapshot: uploading %s: %w", name, err)
		}
	}

	if err := a.blobs.Put(ctx, currentPointer, []byte(gen)); err != nil {
		return "", fmt.Errorf("snapshot: committing generation pointer: %w", err)
	}
	return gen, nil
}

// Pull downloads the current generation into the store's directory,
// replacing whatever snapshot is there. Returns ErrNoArchivedSnapshot
// when no generation has been committed.
func (a *Archive) Pull(ctx context.Context, store *Store) error {
	cur, err := a.blobs.Open(ctx, currentPointer)
	if errors.Is(err, blobstore.ErrNotFound) {
		return ErrNoArchivedSnapshot
	}
	if err != nil {
		return err
	}
	genBytes, err := blobstore.ReadAll(ctx, cur)
	cur.Close()
	if err != nil {
		return err
	}
	gen := strings.TrimSpace(string(genBytes))
	if gen == "" {
		return ErrNoArchivedSnapshot
	}

	for _, name := range []string{vectorsFile, metadataFile} {
		if err := a.download(ctx, gen+"/"+name, store, name); err != nil {
			return fmt.Errorf("snapshot: downloading %s from %s: %w", name, gen, err)
		}
	}
	return nil
}

// Prune deletes generations beyond KeepGenerations, oldest first. The
// generation CURRENT points at is never deleted.
func (a *Archive) Prune(ctx context.Context) error {
	names, err := a.blobs.List(ctx, generationPrefix)
	if err != nil {
		return err
	}

	// Group blob names by generation directory.
	blobsByGen := make(map[string][]string)
	for _, name := range names {
		rest := strings.TrimPrefix(name, generationPrefix)
		gen, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		key := generationPrefix + gen
		blobsByGen[key] = append(blobsByGen[key], name)
	}

	type generation struct {
		path  string
		stamp int64
	}
	gens := make([]generation, 0, len(blobsByGen))
	for gen := range blobsByGen {
		stampStr, ok := strings.CutPrefix(strings.TrimPrefix(gen, generationPrefix), "gen-")
		if !ok {
			continue
		}
		stamp, err := strconv.ParseInt(stampStr, 10, 64)
		if err != nil {
			// Unrecognized layouts are left alone.
			continue
		}
		gens = append(gens, generation{path: gen, stamp: stamp})
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i].stamp < gens[j].stamp })

	if len(gens) <= a.opts.KeepGenerations {
		return nil
	}

	current := a.currentGeneration(ctx)
	for _, gen := range gens[:len(gens)-a.opts.KeepGenerations] {
		if gen.path == current {
			continue
		}
		for _, name := range blobsByGen[gen.path] {
			if err := a.blobs.Delete(ctx, name); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Archive) currentGeneration(ctx context.Context) string {
	cur, err := a.blobs.Open(ctx, currentPointer)
	if err != nil {
		return ""
	}
	defer cur.Close()
	data, err := blobstore.ReadAll(ctx, cur)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (a *Archive) upload(ctx context.Context, localPath, blobName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := a.blobs.Create(ctx, blobName)
	if err != nil {
		return err
	}

	// Throttle on the read side; the store throttles its own writes.
	if _, err := io.Copy(w, resource.NewRateLimitedReader(ctx, f, a.opts.Controller)); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (a *Archive) download(ctx context.Context, blobName string, store *Store, name string) error {
	b, err := a.blobs.Open(ctx, blobName)
	if err != nil {
		return err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer rc.Close()

	return store.writeFileAtomic(ctx, name, func(w io.Writer) error {
		_, err := io.Copy(w, rc)
		return err
	})
}
