package engine

import (
	"versionedkv/internal/common"
	"versionedkv/internal/merkle"
	"versionedkv/internal/rawmap"
)

// VersionCreate allocates a new latest version on the default branch.
func (e *Engine) VersionCreate(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionCreateLocked(name, e.defaultBranch)
}

// VersionCreateByBranch allocates a new latest version on brID.
func (e *Engine) VersionCreateByBranch(name string, brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionCreateLocked(name, brID)
}

func (e *Engine) versionCreateLocked(name string, brID BranchID) error {
	if e.verNameToVerID.ContainsKey([]byte(name)) {
		return common.ErrVersionAlreadyExistsError(name)
	}
	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}

	verID := e.alloc.AllocVersionID()
	vers.Insert(encodeID(verID), nil)

	e.verNameToVerID.Insert([]byte(name), encodeID(verID))
	e.verIDToVerName[verID] = name

	_, handle := rawmap.NewSubMap()
	e.verToChangeSet.Insert(encodeID(verID), handle)

	return nil
}

// VersionExists checks existence on the default branch (spec §9: kept
// distinct from GlobalVersionExists, which is a genuinely different
// check, rather than overloading one ambiguous name for both).
func (e *Engine) VersionExists(verID VersionID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionExistsOnBranchLocked(verID, e.defaultBranch)
}

// VersionExistsOnBranch checks whether verID is in brID's visible set.
func (e *Engine) VersionExistsOnBranch(verID VersionID, brID BranchID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionExistsOnBranchLocked(verID, brID)
}

func (e *Engine) versionExistsOnBranchLocked(verID VersionID, brID BranchID) bool {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return false
	}
	return vers.ContainsKey(encodeID(verID))
}

// GlobalVersionExists checks whether verID exists anywhere, regardless
// of which branches still reference it.
func (e *Engine) GlobalVersionExists(verID VersionID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.verToChangeSet.ContainsKey(encodeID(verID))
}

// VersionPop discards the default branch's latest version.
func (e *Engine) VersionPop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionPopLocked(e.defaultBranch)
}

// VersionPopByBranch discards brID's latest version.
func (e *Engine) VersionPopByBranch(brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionPopLocked(brID)
}

func (e *Engine) versionPopLocked(brID BranchID) error {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}
	if k, _, ok := vers.Last(); ok {
		vers.Remove(k)
	}
	return nil
}

// VersionRebaseByBranch collapses every version on brID newer than
// baseVersion into baseVersion, last-writer-wins. The caller must ensure
// baseVersion was created directly by brID: rebasing a version another
// branch also descends from corrupts that branch's history (spec §4.3.1).
func (e *Engine) VersionRebaseByBranch(baseVersion VersionID, brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}

	it := vers.Range(encodeID(baseVersion), true, nil, false)
	k, _, ok := it.Next()
	if !ok || decodeID(k) != baseVersion {
		return common.ErrVersionOnWrongBranchError(e.verIDToVerName[baseVersion])
	}
	var toMerge []VersionID
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		toMerge = append(toMerge, decodeID(k))
	}

	baseChgset, ok := e.changeSet(baseVersion)
	if !ok {
		return common.ErrCorruptedIndexError("base version has no change set")
	}

	newKVForBase := map[string][]byte{}
	var discarded []rawmap.RawMap
	for _, verID := range toMerge {
		chgset, ok := e.changeSet(verID)
		if !ok {
			continue
		}
		discarded = append(discarded, chgset)

		cit := chgset.Iter()
		for {
			k, _, ok := cit.Next()
			if !ok {
				break
			}
			kvers, ok := e.keyVersions(k)
			if !ok {
				continue
			}
			v, _ := kvers.Remove(encodeID(verID))
			newKVForBase[string(k)] = v
		}

		name := e.verIDToVerName[verID]
		e.verNameToVerID.Remove([]byte(name))
		delete(e.verIDToVerName, verID)
		e.verToChangeSet.Remove(encodeID(verID))
		vers.Remove(encodeID(verID))
	}

	for k, v := range newKVForBase {
		baseChgset.Insert([]byte(k), nil)
		kvers := e.keyVersionsOrCreate([]byte(k))
		kvers.Insert(encodeID(baseVersion), v)
	}

	e.cleaner.Execute(func() {
		for _, cs := range discarded {
			cs.Clear()
		}
	})

	return nil
}

// VersionRebase rebases the default branch onto baseVersion.
func (e *Engine) VersionRebase(baseVersion VersionID) error {
	return e.VersionRebaseByBranch(baseVersion, e.DefaultBranchID())
}

// VersionList lists version names on the default branch, oldest first.
func (e *Engine) VersionList() ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionListByBranchLocked(e.defaultBranch)
}

// VersionListByBranch lists version names on brID, oldest first.
func (e *Engine) VersionListByBranch(brID BranchID) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.versionListByBranchLocked(brID)
}

func (e *Engine) versionListByBranchLocked(brID BranchID) ([]string, error) {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return nil, branchNotFound(e.brIDToBrName[brID])
	}
	var names []string
	it := vers.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, e.verIDToVerName[decodeID(k)])
	}
	return names, nil
}

// VersionListGlobally lists every version name that still exists,
// regardless of which branches reference it.
func (e *Engine) VersionListGlobally() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	it := e.verToChangeSet.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, e.verIDToVerName[decodeID(k)])
	}
	return names
}

// VersionHasChangeSet reports whether verID actually mutated any key.
func (e *Engine) VersionHasChangeSet(verID VersionID) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	chgset, ok := e.changeSet(verID)
	if !ok {
		return false, common.ErrVersionNotFoundError(e.verIDToVerName[verID])
	}
	return !chgset.IsEmpty(), nil
}

// VersionCleanUpGlobally purges change-sets and layered-KV entries for
// versions no longer referenced by any branch (spec §4.3.3).
func (e *Engine) VersionCleanUpGlobally() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionCleanUpGloballyLocked()
}

func (e *Engine) versionCleanUpGloballyLocked() error {
	valid := map[VersionID]struct{}{}
	bit := e.brToItsVers.Iter()
	for {
		_, handle, ok := bit.Next()
		if !ok {
			break
		}
		vm, ok := rawmap.FromSlice(handle)
		if !ok {
			continue
		}
		vit := vm.Iter()
		for {
			vk, _, ok := vit.Next()
			if !ok {
				break
			}
			valid[decodeID(vk)] = struct{}{}
		}
	}

	var toRemove []VersionID
	cit := e.verToChangeSet.Shadow().Iter()
	for {
		verKey, handle, ok := cit.Next()
		if !ok {
			break
		}
		verID := decodeID(verKey)
		if _, ok := valid[verID]; ok {
			continue
		}
		toRemove = append(toRemove, verID)

		chgset, ok := rawmap.FromSlice(handle)
		if !ok {
			continue
		}
		kit := chgset.Iter()
		for {
			k, _, ok := kit.Next()
			if !ok {
				break
			}
			kvers, ok := e.keyVersions(k)
			if !ok {
				continue
			}
			kvers.Remove(encodeID(verID))
			if kvers.IsEmpty() {
				e.layeredKV.Remove(k)
			}
		}
	}

	var discarded []rawmap.RawMap
	for _, verID := range toRemove {
		name := e.verIDToVerName[verID]
		e.verNameToVerID.Remove([]byte(name))
		delete(e.verIDToVerName, verID)
		if handle, ok := e.verToChangeSet.Get(encodeID(verID)); ok {
			if cs, ok := rawmap.FromSlice(handle); ok {
				discarded = append(discarded, cs)
			}
		}
		e.verToChangeSet.Remove(encodeID(verID))
	}

	e.cleaner.Execute(func() {
		for _, cs := range discarded {
			cs.Clear()
		}
	})

	return nil
}

// VersionRevertGlobally purges verID and its changes from every branch.
// The caller must ensure no branch still needs verID's data: reverting a
// version other branches depend on corrupts their history (spec §4.3.2).
func (e *Engine) VersionRevertGlobally(verID VersionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	handle, ok := e.verToChangeSet.Get(encodeID(verID))
	if !ok {
		return common.ErrVersionNotFoundError(e.verIDToVerName[verID])
	}
	chgset, ok := rawmap.FromSlice(handle)
	if !ok {
		return common.ErrCorruptedIndexError("change set handle")
	}
	e.verToChangeSet.Remove(encodeID(verID))

	kit := chgset.Iter()
	for {
		k, _, ok := kit.Next()
		if !ok {
			break
		}
		if kvers, ok := e.keyVersions(k); ok {
			kvers.Remove(encodeID(verID))
		}
	}

	e.cleaner.Execute(func() { chgset.Clear() })

	bit := e.brToItsVers.Iter()
	for {
		_, bhandle, ok := bit.Next()
		if !ok {
			break
		}
		if vm, ok := rawmap.FromSlice(bhandle); ok {
			vm.Remove(encodeID(verID))
		}
	}

	name := e.verIDToVerName[verID]
	e.verNameToVerID.Remove([]byte(name))
	delete(e.verIDToVerName, verID)

	return nil
}

// VersionChgsetTrieRoot returns the Merkle root of verID's change set.
func (e *Engine) VersionChgsetTrieRoot(verID VersionID) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chgsetTrieRootLocked(verID)
}

// VersionChgsetTrieRootByBranch returns the Merkle root of brID's latest
// version's change set.
func (e *Engine) VersionChgsetTrieRootByBranch(brID BranchID) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vers, ok := e.branchVersions(brID)
	if !ok {
		return nil, branchNotFound(e.brIDToBrName[brID])
	}
	k, _, ok := vers.Last()
	if !ok {
		return nil, common.ErrNoVersionOnBranchError(e.brIDToBrName[brID])
	}
	return e.chgsetTrieRootLocked(decodeID(k))
}

func (e *Engine) chgsetTrieRootLocked(verID VersionID) ([]byte, error) {
	entries, err := e.chgsetEntriesLocked(verID)
	if err != nil {
		return nil, err
	}
	return merkle.ChangeSetRoot(entries)
}

// VersionChgsetEntries returns the (key, value) pairs verID wrote, in the
// same order VersionChgsetTrieRoot hashes them. Used by internal/snapshot's
// Arrow export to materialize a version's change set as a record batch.
func (e *Engine) VersionChgsetEntries(verID VersionID) ([][2][]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.chgsetEntriesLocked(verID)
}

func (e *Engine) chgsetEntriesLocked(verID VersionID) ([][2][]byte, error) {
	chgset, ok := e.changeSet(verID)
	if !ok {
		return nil, common.ErrVersionNotFoundError(e.verIDToVerName[verID])
	}

	var entries [][2][]byte
	it := chgset.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		kvers, ok := e.keyVersions(k)
		if !ok {
			continue
		}
		v, ok := kvers.Get(encodeID(verID))
		if !ok {
			continue
		}
		entries = append(entries, [2][]byte{k, v})
	}

	return entries, nil
}
