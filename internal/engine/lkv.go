package engine

import (
	"versionedkv/internal/common"
)

// Insert stores value under key on the default branch's latest version.
func (e *Engine) Insert(key, value []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(key, value, e.defaultBranch)
}

// InsertByBranch stores value under key on brID's latest version.
func (e *Engine) InsertByBranch(key, value []byte, brID BranchID) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.insertLocked(key, value, brID)
}

func (e *Engine) insertLocked(key, value []byte, brID BranchID) ([]byte, error) {
	verID, err := e.latestVersionLocked(brID)
	if err != nil {
		return nil, err
	}
	return e.writeByBranchVersion(key, value, true, brID, verID)
}

// Remove deletes key on the default branch's latest version. The
// removal is itself recorded as a new value (an empty tombstone) on
// that version, not an erasure of history.
func (e *Engine) Remove(key []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(key, e.defaultBranch)
}

// RemoveByBranch deletes key on brID's latest version.
func (e *Engine) RemoveByBranch(key []byte, brID BranchID) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(key, brID)
}

func (e *Engine) removeLocked(key []byte, brID BranchID) ([]byte, error) {
	verID, err := e.latestVersionLocked(brID)
	if err != nil {
		return nil, err
	}
	return e.writeByBranchVersion(key, nil, false, brID, verID)
}

func (e *Engine) latestVersionLocked(brID BranchID) (VersionID, error) {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return 0, branchNotFound(e.brIDToBrName[brID])
	}
	k, _, ok := vers.Last()
	if !ok {
		return 0, common.ErrNoVersionOnBranchError(e.brIDToBrName[brID])
	}
	return decodeID(k), nil
}

// writeByBranchVersion is the single mutation primitive everything else
// is built on (backend.rs's write_by_branch_version): it is never public
// on its own because writes must land on a branch's *latest* version
// only, never a historical one.
func (e *Engine) writeByBranchVersion(key, value []byte, present bool, brID BranchID, verID VersionID) ([]byte, error) {
	ret, _ := e.getByBranchVersionLocked(key, brID, verID)

	if !present && ret == nil {
		return nil, nil
	}

	chgset, ok := e.changeSet(verID)
	if !ok {
		return nil, common.ErrCorruptedIndexError("version has no change set")
	}
	chgset.Insert(key, nil)

	kvers := e.keyVersionsOrCreate(key)
	if present {
		kvers.Insert(encodeID(verID), value)
	} else {
		kvers.Insert(encodeID(verID), []byte{})
	}

	return ret, nil
}

// Get reads key as visible from the default branch's latest version.
func (e *Engine) Get(key []byte) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getByBranchLocked(key, e.defaultBranch)
}

// GetByBranch reads key as visible from brID's latest version.
func (e *Engine) GetByBranch(key []byte, brID BranchID) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getByBranchLocked(key, brID)
}

// GetByBranchVersion reads key as it stood at exactly verID on brID.
func (e *Engine) GetByBranchVersion(key []byte, brID BranchID, verID VersionID) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.getByBranchVersionLocked(key, brID, verID)
}

func (e *Engine) getByBranchLocked(key []byte, brID BranchID) ([]byte, bool) {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return nil, false
	}
	k, _, ok := vers.Last()
	if !ok {
		return nil, false
	}
	return e.getByBranchVersionLocked(key, brID, decodeID(k))
}

// getByBranchVersionLocked descends key's version map from verID
// backwards, returning the first value whose version id is visible on
// brID (present in its version set), skipping tombstones (spec §4.1).
func (e *Engine) getByBranchVersionLocked(key []byte, brID BranchID, verID VersionID) ([]byte, bool) {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return nil, false
	}
	kvers, ok := e.keyVersions(key)
	if !ok {
		return nil, false
	}

	it := kvers.Range(nil, false, encodeID(verID), true)
	for {
		k, v, ok := it.NextBack()
		if !ok {
			return nil, false
		}
		if vers.ContainsKey(k) {
			if len(v) == 0 {
				return nil, false
			}
			return v, true
		}
	}
}

// GetGe returns the first key >= key (and its value) visible on the
// default branch's latest version.
func (e *Engine) GetGe(key []byte) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(e.defaultBranch, 0, key, true, nil, false, true)
}

// GetGeByBranch is GetGe scoped to brID's latest version.
func (e *Engine) GetGeByBranch(key []byte, brID BranchID) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(brID, 0, key, true, nil, false, true)
}

// GetGeByBranchVersion is GetGe scoped to brID at exactly verID.
func (e *Engine) GetGeByBranchVersion(key []byte, brID BranchID, verID VersionID) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(brID, verID, key, true, nil, false, true)
}

// GetLe returns the last key <= key (and its value) visible on the
// default branch's latest version.
func (e *Engine) GetLe(key []byte) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(e.defaultBranch, 0, nil, false, key, true, false)
}

// GetLeByBranch is GetLe scoped to brID's latest version.
func (e *Engine) GetLeByBranch(key []byte, brID BranchID) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(brID, 0, nil, false, key, true, false)
}

// GetLeByBranchVersion is GetLe scoped to brID at exactly verID.
func (e *Engine) GetLeByBranchVersion(key []byte, brID BranchID, verID VersionID) (k, v []byte, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rangeFirstLocked(brID, verID, nil, false, key, true, false)
}

func (e *Engine) rangeFirstLocked(brID BranchID, pinnedVer VersionID, lower []byte, hasLower bool, upper []byte, hasUpper bool, forward bool) (k, v []byte, ok bool) {
	verID := pinnedVer
	if verID == 0 {
		vers, exists := e.branchVersions(brID)
		if !exists {
			return nil, nil, false
		}
		vk, _, exists := vers.Last()
		if !exists {
			return nil, nil, false
		}
		verID = decodeID(vk)
	}

	it := e.iterRangeLocked(brID, verID, lower, hasLower, upper, hasUpper)
	if forward {
		return it.Next()
	}
	return it.NextBack()
}
