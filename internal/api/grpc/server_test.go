package grpc

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/trash"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	e := engine.New(idalloc.New(), trash.NewWorkerCleaner(1, 8))
	require.NoError(t, e.VersionCreate("v1"))
	return NewServer(e, nil, nil, nil)
}

func reqStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return st
}

func TestPutAndGet(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.Put(ctx, reqStruct(t, map[string]interface{}{
		"branch": "main",
		"key":    base64.StdEncoding.EncodeToString([]byte("foo")),
		"value":  base64.StdEncoding.EncodeToString([]byte("bar")),
	}))
	require.NoError(t, err)

	resp, err := s.Get(ctx, reqStruct(t, map[string]interface{}{
		"branch": "main",
		"key":    base64.StdEncoding.EncodeToString([]byte("foo")),
	}))
	require.NoError(t, err)
	value, err := base64.StdEncoding.DecodeString(resp.Fields["value"].GetStringValue())
	require.NoError(t, err)
	assert.Equal(t, "bar", string(value))
}

func TestGet_UnknownBranch(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Get(context.Background(), reqStruct(t, map[string]interface{}{
		"branch": "ghost",
		"key":    base64.StdEncoding.EncodeToString([]byte("foo")),
	}))
	assert.Error(t, err)
}

func TestCreateBranchAndListBranches(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.CreateBranch(ctx, reqStruct(t, map[string]interface{}{
		"name":         "dev",
		"base_version": "v1",
	}))
	require.NoError(t, err)

	resp, err := s.ListBranches(ctx, reqStruct(t, nil))
	require.NoError(t, err)
	branches := resp.Fields["branches"].GetListValue().Values
	var names []string
	for _, v := range branches {
		names = append(names, v.GetStringValue())
	}
	assert.Contains(t, names, "dev")
	assert.Contains(t, names, "main")
}

func TestCreateVersionAndListVersions(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.CreateVersion(ctx, reqStruct(t, map[string]interface{}{
		"branch": "main",
		"name":   "v2",
	}))
	require.NoError(t, err)

	resp, err := s.ListVersions(ctx, reqStruct(t, map[string]interface{}{"branch": "main"}))
	require.NoError(t, err)
	versions := resp.Fields["versions"].GetListValue().Values
	assert.GreaterOrEqual(t, len(versions), 2)
}

func TestPrune(t *testing.T) {
	s := newTestServer(t)
	_, err := s.Prune(context.Background(), reqStruct(t, nil))
	assert.NoError(t, err)
}

func TestAuthorize_NilMiddlewareAllowsWithoutToken(t *testing.T) {
	s := newTestServer(t)
	s.authMW = nil // explicit: nil middleware means unrestricted, matching NewServer(..., nil)
	err := s.authorize(context.Background(), "main", "read")
	assert.NoError(t, err)
}
