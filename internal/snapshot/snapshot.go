// Package snapshot checkpoints and restores engine state to block
// storage (internal/storage/block), adapted from the teacher's
// catalog/WAL checkpoint pattern (internal/catalog/persistence.go's
// backup/restore cycle) but writing internal/engine's own Dump/Load
// binary form instead of JSON catalog metadata.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/storage/block"
	"versionedkv/internal/trash"
)

const pathPrefix = "snapshots/"

// Manifest describes one checkpoint: the engine dump taken at a given
// WAL sequence id, so a restart can replay only the WAL entries after
// it (see internal/wal.ReplayInto).
type Manifest struct {
	ID        string    `json:"id"`
	SeqID     uint64    `json:"seq_id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

func dataPath(id string) string     { return pathPrefix + id + ".dump" }
func manifestPath(id string) string { return pathPrefix + id + ".manifest" }

// Checkpoint dumps e's full state to store under id, returning the
// manifest recorded alongside it. seqID is the WAL sequence number the
// dump is consistent as of; callers take it from the last entry applied
// before calling Checkpoint.
func Checkpoint(ctx context.Context, store block.Storage, e *engine.Engine, id string, seqID uint64) (*Manifest, error) {
	var buf bytes.Buffer
	if err := e.Dump(&buf); err != nil {
		return nil, fmt.Errorf("snapshot: dump engine: %w", err)
	}

	w, err := store.Writer(ctx, dataPath(id))
	if err != nil {
		return nil, fmt.Errorf("snapshot: open writer: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		w.Close()
		return nil, fmt.Errorf("snapshot: write dump: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close writer: %w", err)
	}

	manifest := &Manifest{
		ID:        id,
		SeqID:     seqID,
		CreatedAt: time.Now(),
		Size:      int64(buf.Len()),
	}
	if err := writeManifest(ctx, store, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Restore loads the engine dump stored under id. alloc and cleaner are
// fresh collaborators the restored engine will use going forward; see
// engine.Load's doc comment on why the allocator is not itself restored.
func Restore(ctx context.Context, store block.Storage, id string, alloc idalloc.Allocator, cleaner trash.Cleaner) (*engine.Engine, *Manifest, error) {
	r, err := store.Reader(ctx, dataPath(id))
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: open reader: %w", err)
	}
	defer r.Close()

	e, err := engine.Load(r, alloc, cleaner)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: load engine: %w", err)
	}

	manifest, err := readManifest(ctx, store, id)
	if err != nil {
		return nil, nil, err
	}
	return e, manifest, nil
}

// Latest returns the id of the most recently created checkpoint, or
// false if none exist yet.
func Latest(ctx context.Context, store block.Storage) (string, bool, error) {
	metas, err := store.List(ctx, pathPrefix)
	if err != nil {
		return "", false, fmt.Errorf("snapshot: list: %w", err)
	}

	var ids []string
	for _, m := range metas {
		name := strings.TrimPrefix(m.Path, pathPrefix)
		if id, ok := strings.CutSuffix(name, ".manifest"); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false, nil
	}
	sort.Strings(ids)
	return ids[len(ids)-1], true, nil
}

func writeManifest(ctx context.Context, store block.Storage, m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("snapshot: marshal manifest: %w", err)
	}
	w, err := store.Writer(ctx, manifestPath(m.ID))
	if err != nil {
		return fmt.Errorf("snapshot: open manifest writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("snapshot: write manifest: %w", err)
	}
	return w.Close()
}

func readManifest(ctx context.Context, store block.Storage, id string) (*Manifest, error) {
	r, err := store.Reader(ctx, manifestPath(id))
	if err != nil {
		return nil, fmt.Errorf("snapshot: open manifest reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal manifest: %w", err)
	}
	return &m, nil
}
