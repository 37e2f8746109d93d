package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versionedkv/internal/storage/block"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	store, err := block.NewLocalFS(block.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	c, err := New(context.Background(), NewFilePersistence(store), Config{CacheSize: 1024})
	require.NoError(t, err)
	return c
}

func TestCatalog_RegisterAndGetBranch(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)

	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "main", ID: 1, HeadVersion: "v1"}))

	info, ok := c.GetBranch("main")
	require.True(t, ok)
	assert.Equal(t, "v1", info.HeadVersion)
	assert.False(t, info.Removed)
}

func TestCatalog_UpdateBranchHead(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "main", ID: 1}))

	require.NoError(t, c.UpdateBranchHead(ctx, "main", "v2"))

	info, ok := c.GetBranch("main")
	require.True(t, ok)
	assert.Equal(t, "v2", info.HeadVersion)
}

func TestCatalog_UpdateBranchHead_UnknownBranch(t *testing.T) {
	c := newTestCatalog(t)
	err := c.UpdateBranchHead(context.Background(), "ghost", "v1")
	assert.Error(t, err)
}

func TestCatalog_RemoveBranch_MarksRemovedRatherThanDeleting(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "feature", ID: 2}))

	require.NoError(t, c.RemoveBranch(ctx, "feature"))

	info, ok := c.GetBranch("feature")
	require.True(t, ok)
	assert.True(t, info.Removed)
}

func TestCatalog_Stats(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "main", ID: 1}))
	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "feature", ID: 2}))
	require.NoError(t, c.RemoveBranch(ctx, "feature"))
	require.NoError(t, c.RegisterVersion(ctx, &VersionInfo{Name: "v1", ID: 1, Branch: "main"}))

	stats := c.Stats()
	assert.Equal(t, 2, stats.BranchCount)
	assert.Equal(t, 1, stats.ActiveBranchCount)
	assert.Equal(t, 1, stats.VersionCount)
}

func TestCatalog_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := block.NewLocalFS(block.Config{BaseDir: dir})
	require.NoError(t, err)

	c, err := New(ctx, NewFilePersistence(store), Config{})
	require.NoError(t, err)
	require.NoError(t, c.RegisterBranch(ctx, &BranchInfo{Name: "main", ID: 1, HeadVersion: "v1"}))

	store2, err := block.NewLocalFS(block.Config{BaseDir: dir})
	require.NoError(t, err)
	reloaded, err := New(ctx, NewFilePersistence(store2), Config{})
	require.NoError(t, err)

	info, ok := reloaded.GetBranch("main")
	require.True(t, ok)
	assert.Equal(t, "v1", info.HeadVersion)
}

func TestCatalog_ListVersionsByBranch(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t)
	require.NoError(t, c.RegisterVersion(ctx, &VersionInfo{Name: "v1", ID: 1, Branch: "main"}))
	require.NoError(t, c.RegisterVersion(ctx, &VersionInfo{Name: "v2", ID: 2, Branch: "main"}))
	require.NoError(t, c.RegisterVersion(ctx, &VersionInfo{Name: "w1", ID: 3, Branch: "dev"}))

	versions := c.ListVersionsByBranch("main")
	assert.Len(t, versions, 2)
}
