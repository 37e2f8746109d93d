package engine

import (
	"sync"

	"versionedkv/internal/common"
	"versionedkv/internal/idalloc"
	"versionedkv/internal/rawmap"
	"versionedkv/internal/trash"
)

const initialBranchName = "main"

// Engine is the versioned map. All exported methods are safe under a
// single concurrent writer and many concurrent readers (spec §5); it is
// the caller's responsibility not to mutate through two live Shadow()
// aliases at once.
type Engine struct {
	mu sync.RWMutex

	defaultBranch BranchID

	brNameToBrID   rawmap.RawMap // name -> 8-byte branch id
	verNameToVerID rawmap.RawMap // name -> 8-byte version id

	// Derived from brNameToBrID/verNameToVerID; rebuilt on load, not
	// serialized directly, mirroring backend.rs's *mut HashMap fields.
	brIDToBrName   map[BranchID]string
	verIDToVerName map[VersionID]string

	// branch id -> sub-RawMap of version ids visible on that branch
	brToItsVers rawmap.RawMap
	// version id -> sub-RawMap of keys mutated by that version (values unused)
	verToChangeSet rawmap.RawMap
	// key -> sub-RawMap of version id -> value (empty value == tombstone)
	layeredKV rawmap.RawMap

	alloc   idalloc.Allocator
	cleaner trash.Cleaner
}

// New creates an Engine with a single default branch ("main") and no
// versions on it yet; callers must call VersionCreate before any write.
func New(alloc idalloc.Allocator, cleaner trash.Cleaner) *Engine {
	e := &Engine{
		brNameToBrID:   rawmap.New(),
		verNameToVerID: rawmap.New(),
		brIDToBrName:   map[BranchID]string{},
		verIDToVerName: map[VersionID]string{},
		brToItsVers:    rawmap.New(),
		verToChangeSet: rawmap.New(),
		layeredKV:      rawmap.New(),
		alloc:          alloc,
		cleaner:        cleaner,
	}
	e.init()
	return e
}

func (e *Engine) init() {
	brID := e.alloc.AllocBranchID()
	e.defaultBranch = brID

	e.brNameToBrID.Insert([]byte(initialBranchName), encodeID(brID))
	e.brIDToBrName[brID] = initialBranchName

	vers, _ := rawmap.NewSubMap()
	e.brToItsVers.Insert(encodeID(brID), rawmap.AsPrefixSlice(vers.(*rawmap.SkipMap)))
}

// Shadow returns a cheap alias sharing this engine's underlying storage.
// It is intended for read-only iteration held alongside the original
// engine (spec §5, §9); mutating through a shadow while the original is
// also mutated is unsafe, exactly as with the underlying RawMap shadows.
func (e *Engine) Shadow() *Engine {
	e.mu.RLock()
	defer e.mu.RUnlock()
	brNames := make(map[BranchID]string, len(e.brIDToBrName))
	for k, v := range e.brIDToBrName {
		brNames[k] = v
	}
	verNames := make(map[VersionID]string, len(e.verIDToVerName))
	for k, v := range e.verIDToVerName {
		verNames[k] = v
	}
	return &Engine{
		defaultBranch:  e.defaultBranch,
		brNameToBrID:   e.brNameToBrID.Shadow(),
		verNameToVerID: e.verNameToVerID.Shadow(),
		brIDToBrName:   brNames,
		verIDToVerName: verNames,
		brToItsVers:    e.brToItsVers.Shadow(),
		verToChangeSet: e.verToChangeSet.Shadow(),
		layeredKV:      e.layeredKV.Shadow(),
		alloc:          e.alloc,
		cleaner:        e.cleaner,
	}
}

// Clear wipes all data and resets the engine to its freshly-created
// state, for testing purposes (mirrors backend.rs's clear()).
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.brNameToBrID.Clear()
	e.verNameToVerID.Clear()
	e.brIDToBrName = map[BranchID]string{}
	e.verIDToVerName = map[VersionID]string{}
	e.brToItsVers.Clear()
	e.verToChangeSet.Clear()
	e.layeredKV.Clear()

	e.init()
}

func (e *Engine) branchVersions(brID BranchID) (rawmap.RawMap, bool) {
	handle, ok := e.brToItsVers.Get(encodeID(brID))
	if !ok {
		return nil, false
	}
	return rawmap.FromSlice(handle)
}

func (e *Engine) changeSet(verID VersionID) (rawmap.RawMap, bool) {
	handle, ok := e.verToChangeSet.Get(encodeID(verID))
	if !ok {
		return nil, false
	}
	return rawmap.FromSlice(handle)
}

func (e *Engine) keyVersions(key []byte) (rawmap.RawMap, bool) {
	handle, ok := e.layeredKV.Get(key)
	if !ok {
		return nil, false
	}
	return rawmap.FromSlice(handle)
}

func (e *Engine) keyVersionsOrCreate(key []byte) rawmap.RawMap {
	if m, ok := e.keyVersions(key); ok {
		return m
	}
	m, handle := rawmap.NewSubMap()
	e.layeredKV.Insert(key, handle)
	return m
}

func branchNotFound(name string) *common.StorageError {
	return common.ErrBranchNotFoundError(name)
}
