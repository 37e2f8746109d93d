// Package integration exercises internal/engine end-to-end through the
// HTTP front door, the same way the teacher's integration suite drove
// its table/record API against a live client -- but against an
// in-process httptest server instead of a separately-started service,
// since kv-server has no external dependencies to bring up first.
package integration

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"versionedkv/internal/api/client"
	apihttp "versionedkv/internal/api/http"
	"versionedkv/internal/engine"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/trash"
	"versionedkv/internal/wal"
)

// EngineTestSuite drives a full kv-server stack (engine + WAL, no
// catalog/auth) through internal/api/client against an httptest server.
type EngineTestSuite struct {
	suite.Suite
	engine *engine.Engine
	wal    *wal.Manager
	server *httptest.Server
	client *client.Client
}

func (s *EngineTestSuite) SetupSuite() {
	s.engine = engine.New(idalloc.New(), trash.NewWorkerCleaner(2, 64))
	require.NoError(s.T(), s.engine.VersionCreate("v1"))

	var err error
	s.wal, err = wal.NewManager(wal.Config{
		DataDir:         s.T().TempDir(),
		SegmentSize:     1 << 20,
		MaxSegments:     4,
		SyncPolicy:      wal.SyncBatch,
		CompressionType: "none",
	})
	require.NoError(s.T(), err)

	srv := apihttp.NewServer(s.engine, s.wal, nil, nil)
	s.server = httptest.NewServer(srv.Router())
	s.client = client.New(&client.Config{BaseURL: s.server.URL, Timeout: 5 * time.Second})
}

func (s *EngineTestSuite) TearDownSuite() {
	s.server.Close()
	require.NoError(s.T(), s.wal.Close())
}

func (s *EngineTestSuite) TestWriteReadRoundTrip() {
	ctx := context.Background()
	require.NoError(s.T(), s.client.Put(ctx, "main", []byte("alpha"), []byte("1")))

	value, err := s.client.Get(ctx, "main", []byte("alpha"))
	require.NoError(s.T(), err)
	s.Equal("1", string(value))
}

func (s *EngineTestSuite) TestBranchLifecycle() {
	ctx := context.Background()
	require.NoError(s.T(), s.client.CreateBranch(ctx, "feature-x", "main", "v1", false))

	branches, err := s.client.ListBranches(ctx)
	require.NoError(s.T(), err)
	s.Contains(branches, "feature-x")

	require.NoError(s.T(), s.client.Put(ctx, "feature-x", []byte("k"), []byte("v")))
	value, err := s.client.Get(ctx, "feature-x", []byte("k"))
	require.NoError(s.T(), err)
	s.Equal("v", string(value))

	require.NoError(s.T(), s.client.RemoveBranch(ctx, "feature-x"))
}

func (s *EngineTestSuite) TestVersionLifecycleAndRange() {
	ctx := context.Background()
	require.NoError(s.T(), s.client.Put(ctx, "main", []byte("range-a"), []byte("1")))
	require.NoError(s.T(), s.client.Put(ctx, "main", []byte("range-b"), []byte("2")))
	require.NoError(s.T(), s.client.CreateVersion(ctx, "main", "range-version"))

	versions, err := s.client.ListVersions(ctx, "main")
	require.NoError(s.T(), err)
	s.Contains(versions, "range-version")

	entries, err := s.client.Range(ctx, "main", []byte("range-"), []byte("range-z"))
	require.NoError(s.T(), err)
	s.GreaterOrEqual(len(entries), 2)
}

func (s *EngineTestSuite) TestMergeBranch() {
	ctx := context.Background()
	require.NoError(s.T(), s.client.CreateBranch(ctx, "merge-src", "main", "v1", false))
	require.NoError(s.T(), s.client.Put(ctx, "merge-src", []byte("merge-key"), []byte("merge-value")))
	require.NoError(s.T(), s.client.CreateVersion(ctx, "merge-src", "merge-v2"))

	require.NoError(s.T(), s.client.MergeBranch(ctx, "merge-src", "main", false))

	value, err := s.client.Get(ctx, "main", []byte("merge-key"))
	require.NoError(s.T(), err)
	s.Equal("merge-value", string(value))
}

func (s *EngineTestSuite) TestPrune() {
	require.NoError(s.T(), s.client.Prune(context.Background(), nil))
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
