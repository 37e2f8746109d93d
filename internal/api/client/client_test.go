package client

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "versionedkv/internal/api/http"
	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/trash"
)

func newTestClient(t *testing.T) (*Client, *engine.Engine) {
	t.Helper()
	e := engine.New(idalloc.New(), trash.NewWorkerCleaner(1, 8))
	require.NoError(t, e.VersionCreate("v1"))

	srv := apihttp.NewServer(e, nil, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return New(&Config{BaseURL: ts.URL, RetryCount: 0}), e
}

func TestClient_PutGetRemove(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "main", []byte("foo"), []byte("bar")))

	value, err := c.Get(ctx, "main", []byte("foo"))
	require.NoError(t, err)
	assert.Equal(t, "bar", string(value))

	require.NoError(t, c.Remove(ctx, "main", []byte("foo")))
	_, err = c.Get(ctx, "main", []byte("foo"))
	assert.Error(t, err)
}

func TestClient_BranchAndVersionLifecycle(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.CreateBranch(ctx, "dev", "main", "v1", false))

	branches, err := c.ListBranches(ctx)
	require.NoError(t, err)
	assert.Contains(t, branches, "dev")

	require.NoError(t, c.CreateVersion(ctx, "dev", "v2"))
	versions, err := c.ListVersions(ctx, "dev")
	require.NoError(t, err)
	assert.Contains(t, versions, "v2")

	require.NoError(t, c.RemoveBranch(ctx, "dev"))
}

func TestClient_Range(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "main", []byte("a"), []byte("1")))
	require.NoError(t, c.Put(ctx, "main", []byte("b"), []byte("2")))
	require.NoError(t, c.CreateVersion(ctx, "main", "v2"))

	entries, err := c.Range(ctx, "main", nil, nil)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestClient_Prune(t *testing.T) {
	c, _ := newTestClient(t)
	assert.NoError(t, c.Prune(context.Background(), nil))
}
