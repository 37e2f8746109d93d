package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versionedkv/internal/idalloc"
	"versionedkv/internal/trash"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(idalloc.New(), trash.Inline{})
	require.NoError(t, e.VersionCreate("v0"))
	return e
}

func TestEngine_InsertGetOnDefaultBranch(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Insert([]byte("k1"), []byte("v1"))
	require.NoError(t, err)

	v, ok := e.Get([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestEngine_RemoveIsATombstoneNotErasure(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Insert([]byte("k1"), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, e.VersionCreate("v1"))

	prev, err := e.Remove([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), prev)

	_, ok := e.Get([]byte("k1"))
	assert.False(t, ok)

	v0, ok := e.VersionIDByName("v0")
	require.True(t, ok)
	v, ok := e.GetByBranchVersion([]byte("k1"), e.DefaultBranchID(), v0)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestEngine_BranchForkAndIsolation(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Insert([]byte("k"), []byte("base"))
	require.NoError(t, err)

	require.NoError(t, e.BranchCreate("feature", "f0", false))
	featureID, ok := e.BranchIDByName("feature")
	require.True(t, ok)

	_, err = e.InsertByBranch([]byte("k"), []byte("feature-value"), featureID)
	require.NoError(t, err)

	v, ok := e.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("base"), v)

	v, ok = e.GetByBranch([]byte("k"), featureID)
	require.True(t, ok)
	assert.Equal(t, []byte("feature-value"), v)
}

func TestEngine_BranchAlreadyExists(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.BranchCreate("feature", "f0", false))
	err := e.BranchCreate("feature", "f1", false)
	require.Error(t, err)
}

func TestEngine_MergeRefusesWhenTargetDiverged(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.BranchCreate("feature", "f0", false))
	featureID, _ := e.BranchIDByName("feature")

	require.NoError(t, e.VersionCreate("v2")) // default branch diverges further

	err := e.BranchMergeTo(featureID, e.DefaultBranchID())
	require.Error(t, err) // default's latest version v2 is not on feature, unsafe

	require.NoError(t, e.VersionCreateByBranch("f1", featureID))
	err = e.BranchMergeTo(e.DefaultBranchID(), featureID)
	assert.Error(t, err)
}

func TestEngine_RebaseCollapsesHistory(t *testing.T) {
	e := newTestEngine(t)
	v0 := e.DefaultBranchID()

	_, err := e.Insert([]byte("k"), []byte("v1"))
	require.NoError(t, err)
	require.NoError(t, e.VersionCreate("v1"))
	_, err = e.Insert([]byte("k"), []byte("v2"))
	require.NoError(t, err)

	base, ok := e.VersionIDByName("v0")
	require.True(t, ok)

	require.NoError(t, e.VersionRebaseByBranch(base, v0))

	names, err := e.VersionList()
	require.NoError(t, err)
	assert.Equal(t, []string{"v0"}, names)

	v, ok := e.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)
}

func TestEngine_Prune(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := e.Insert([]byte("k"), []byte{byte(i)})
		require.NoError(t, err)
		require.NoError(t, e.VersionCreate(string(rune('a' + i))))
	}

	reserve := 1
	require.NoError(t, e.Prune(&reserve))

	v, ok := e.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte{4}, v)
}

func TestEngine_ChgsetTrieRootDeterministic(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Insert([]byte("a"), []byte("1"))
	require.NoError(t, err)
	_, err = e.Insert([]byte("b"), []byte("2"))
	require.NoError(t, err)

	v0, _ := e.VersionIDByName("v0")
	root1, err := e.VersionChgsetTrieRoot(v0)
	require.NoError(t, err)
	root2, err := e.VersionChgsetTrieRoot(v0)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(root1, root2))
}

func TestEngine_IterOrdersKeys(t *testing.T) {
	e := newTestEngine(t)
	for _, k := range []string{"c", "a", "b"} {
		_, err := e.Insert([]byte(k), []byte(k))
		require.NoError(t, err)
	}

	var seen []string
	it := e.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}
