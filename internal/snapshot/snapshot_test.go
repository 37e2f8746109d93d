package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/storage/block"
	"versionedkv/internal/trash"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cleaner := trash.NewWorkerCleaner(1, 8)
	t.Cleanup(cleaner.Close)
	return engine.New(idalloc.New(), cleaner)
}

func TestCheckpointRestore_RoundTrips(t *testing.T) {
	ctx := context.Background()
	store, err := block.NewLocalFS(block.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	e := newTestEngine(t)
	require.NoError(t, e.VersionCreate("v1"))
	_, err = e.Insert([]byte("a"), []byte("1"))
	require.NoError(t, err)

	manifest, err := Checkpoint(ctx, store, e, "chk-1", 42)
	require.NoError(t, err)
	require.Equal(t, uint64(42), manifest.SeqID)

	restored, gotManifest, err := Restore(ctx, store, "chk-1", idalloc.New(), trash.NewWorkerCleaner(1, 8))
	require.NoError(t, err)
	require.Equal(t, manifest.ID, gotManifest.ID)

	v, ok := restored.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestLatest_ReturnsMostRecentID(t *testing.T) {
	ctx := context.Background()
	store, err := block.NewLocalFS(block.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	e := newTestEngine(t)
	_, err = Checkpoint(ctx, store, e, "chk-1", 1)
	require.NoError(t, err)
	_, err = Checkpoint(ctx, store, e, "chk-2", 2)
	require.NoError(t, err)

	id, ok, err := Latest(ctx, store)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "chk-2", id)
}

func TestExportChangeSet_ProducesOneRowPerKey(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.VersionCreate("v1"))
	_, err := e.Insert([]byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = e.Insert([]byte("b"), []byte("2"))
	require.NoError(t, err)

	verID, ok := e.VersionIDByName("v1")
	require.True(t, ok)

	rec, err := ExportChangeSet(e, verID)
	require.NoError(t, err)
	defer rec.Release()

	require.EqualValues(t, 2, rec.NumRows())
}
