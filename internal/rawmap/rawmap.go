package rawmap

import (
	"encoding/binary"
	"sync"
)

// RawMap is the ordered, byte-keyed collaborator the engine is built on
// (spec §6). The engine never assumes anything about RawMap beyond this
// contract: insert/get/remove/iterate in key order, cheap shadow aliasing,
// and the ability to nest a RawMap as the value of another RawMap's key
// via a prefix handle.
type RawMap interface {
	Insert(key, value []byte) []byte
	Get(key []byte) ([]byte, bool)
	GetMut(key []byte) (*[]byte, bool)
	Remove(key []byte) ([]byte, bool)
	ContainsKey(key []byte) bool
	Clear()
	IsEmpty() bool
	Len() int
	Last() (key, value []byte, ok bool)
	Iter() Iterator
	Range(lower []byte, lowerInclusive bool, upper []byte, upperInclusive bool) Iterator
	Shadow() RawMap
}

// Iterator walks a RawMap's entries in key order.
type Iterator interface {
	Next() (key, value []byte, ok bool)
	NextBack() (key, value []byte, ok bool)
}

type sliceIter struct {
	nodes []*node
	front int
	back  int
}

func (it *sliceIter) Next() (key, value []byte, ok bool) {
	if it.back == 0 {
		it.back = len(it.nodes)
	}
	if it.front >= it.back {
		return nil, nil, false
	}
	n := it.nodes[it.front]
	it.front++
	return []byte(n.key), n.value, true
}

func (it *sliceIter) NextBack() (key, value []byte, ok bool) {
	if it.back == 0 {
		it.back = len(it.nodes)
	}
	if it.front >= it.back {
		return nil, nil, false
	}
	it.back--
	n := it.nodes[it.back]
	return []byte(n.key), n.value, true
}

// registry backs sub-map nesting: a RawMap that stores another RawMap as
// one of its values does so by keeping the child in this process-wide
// table and embedding an 8-byte big-endian handle as the "value" bytes.
// This mirrors the on-disk design the engine is modeled after, where a
// sub-map's identity really is a byte prefix into a shared keyspace; here
// the shared keyspace is this in-memory table instead of a shared backing
// store, but the identify-by-handle contract is the same.
var (
	registryMu   sync.Mutex
	registry     = map[uint64]RawMap{}
	nextHandleID uint64
)

// NewSubMap allocates a fresh RawMap and returns the opaque handle bytes
// that address it, suitable for storing as a value in a parent RawMap.
func NewSubMap() (RawMap, []byte) {
	m := New()
	registryMu.Lock()
	nextHandleID++
	id := nextHandleID
	registry[id] = m
	registryMu.Unlock()

	handle := make([]byte, 8)
	binary.BigEndian.PutUint64(handle, id)
	return m, handle
}

// FromSlice resolves a handle previously returned by NewSubMap/AsPrefixSlice
// back to its RawMap.
func FromSlice(handle []byte) (RawMap, bool) {
	if len(handle) != 8 {
		return nil, false
	}
	id := binary.BigEndian.Uint64(handle)
	registryMu.Lock()
	m, ok := registry[id]
	registryMu.Unlock()
	return m, ok
}

// AsPrefixSlice returns m's handle bytes, registering m if it was not
// created via NewSubMap (e.g. the engine's top-level maps).
func AsPrefixSlice(m *SkipMap) []byte {
	registryMu.Lock()
	defer registryMu.Unlock()
	for id, existing := range registry {
		if existing == RawMap(m) {
			handle := make([]byte, 8)
			binary.BigEndian.PutUint64(handle, id)
			return handle
		}
	}
	nextHandleID++
	id := nextHandleID
	registry[id] = m
	handle := make([]byte, 8)
	binary.BigEndian.PutUint64(handle, id)
	return handle
}
