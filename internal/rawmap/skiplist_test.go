package rawmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkipMap_InsertGet(t *testing.T) {
	m := New()

	prev := m.Insert([]byte("a"), []byte("1"))
	assert.Nil(t, prev)

	v, ok := m.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	prev = m.Insert([]byte("a"), []byte("2"))
	assert.Equal(t, []byte("1"), prev)

	v, ok = m.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestSkipMap_RemoveAndContains(t *testing.T) {
	m := New()
	m.Insert([]byte("k1"), []byte("v1"))

	assert.True(t, m.ContainsKey([]byte("k1")))

	v, ok := m.Remove([]byte("k1"))
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
	assert.False(t, m.ContainsKey([]byte("k1")))

	_, ok = m.Remove([]byte("k1"))
	assert.False(t, ok)
}

func TestSkipMap_OrderedIteration(t *testing.T) {
	m := New()
	keys := []string{"c", "a", "e", "b", "d"}
	for _, k := range keys {
		m.Insert([]byte(k), []byte(k))
	}

	it := m.Iter()
	var seen []string
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestSkipMap_NextBack(t *testing.T) {
	m := New()
	for _, k := range []string{"a", "b", "c"} {
		m.Insert([]byte(k), []byte(k))
	}

	it := m.Iter()
	k, _, ok := it.NextBack()
	require.True(t, ok)
	assert.Equal(t, "c", string(k))

	k, _, ok = it.Next()
	require.True(t, ok)
	assert.Equal(t, "a", string(k))
}

func TestSkipMap_Range(t *testing.T) {
	m := New()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		m.Insert([]byte(k), []byte(k))
	}

	it := m.Range([]byte("b"), true, []byte("d"), false)
	var seen []string
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"b", "c"}, seen)
}

func TestSkipMap_Last(t *testing.T) {
	m := New()
	_, _, ok := m.Last()
	assert.False(t, ok)

	m.Insert([]byte("a"), []byte("1"))
	m.Insert([]byte("z"), []byte("2"))
	m.Insert([]byte("m"), []byte("3"))

	k, v, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, "z", string(k))
	assert.Equal(t, []byte("2"), v)
}

func TestSkipMap_ClearAndIsEmpty(t *testing.T) {
	m := New()
	assert.True(t, m.IsEmpty())

	m.Insert([]byte("a"), []byte("1"))
	assert.False(t, m.IsEmpty())
	assert.Equal(t, 1, m.Len())

	m.Clear()
	assert.True(t, m.IsEmpty())
	assert.Equal(t, 0, m.Len())
}

func TestSkipMap_Shadow(t *testing.T) {
	m := New()
	m.Insert([]byte("a"), []byte("1"))

	shadow := m.Shadow()
	v, ok := shadow.Get([]byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	shadow.Insert([]byte("b"), []byte("2"))
	v, ok = m.Get([]byte("b"))
	require.True(t, ok)
	assert.Equal(t, []byte("2"), v)
}

func TestSubMapHandleRoundTrip(t *testing.T) {
	child, handle := NewSubMap()
	child.Insert([]byte("x"), []byte("y"))

	resolved, ok := FromSlice(handle)
	require.True(t, ok)

	v, ok := resolved.Get([]byte("x"))
	require.True(t, ok)
	assert.Equal(t, []byte("y"), v)
}
