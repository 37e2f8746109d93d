package engine

import (
	"bytes"

	"versionedkv/internal/common"
	"versionedkv/internal/rawmap"
)

// BranchCreate creates brName forking from the default branch's latest
// version and immediately opens verName as its first version.
func (e *Engine) BranchCreate(brName, verName string, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var baseVerID *VersionID
	if vers, ok := e.branchVersions(e.defaultBranch); ok {
		if k, _, ok := vers.Last(); ok {
			v := decodeID(k)
			baseVerID = &v
		}
	}
	return e.branchCreateLocked(brName, &verName, e.defaultBranch, baseVerID, force)
}

// BranchCreateByBaseBranch forks brName from baseBrID's latest version.
func (e *Engine) BranchCreateByBaseBranch(brName, verName string, baseBrID BranchID, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var baseVerID *VersionID
	if vers, ok := e.branchVersions(baseBrID); ok {
		if k, _, ok := vers.Last(); ok {
			v := decodeID(k)
			baseVerID = &v
		}
	}
	return e.branchCreateLocked(brName, &verName, baseBrID, baseVerID, force)
}

// BranchCreateByBaseBranchVersion forks brName from exactly baseVerID on
// baseBrID, not necessarily baseBrID's latest.
func (e *Engine) BranchCreateByBaseBranchVersion(brName, verName string, baseBrID BranchID, baseVerID VersionID, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchCreateLocked(brName, &verName, baseBrID, &baseVerID, force)
}

// BranchCreateWithoutNewVersion forks brName from baseBrID's latest
// version without opening a first version on it; callers must create one
// before writing.
func (e *Engine) BranchCreateWithoutNewVersion(brName string, baseBrID BranchID, force bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var baseVerID *VersionID
	if vers, ok := e.branchVersions(baseBrID); ok {
		if k, _, ok := vers.Last(); ok {
			v := decodeID(k)
			baseVerID = &v
		}
	}
	return e.branchCreateLocked(brName, nil, baseBrID, baseVerID, force)
}

func (e *Engine) branchCreateLocked(brName string, verName *string, baseBrID BranchID, baseVerID *VersionID, force bool) error {
	if force {
		if b, ok := e.brNameToBrID.Get([]byte(brName)); ok {
			e.branchRemoveLocked(decodeID(b))
		}
	}

	if e.brNameToBrID.ContainsKey([]byte(brName)) {
		return common.ErrBranchAlreadyExistsError(brName)
	}

	baseVers, ok := e.branchVersions(baseBrID)
	if !ok {
		return common.ErrBaseBranchNotFoundError(e.brIDToBrName[baseBrID])
	}

	versCopied, handle := rawmap.NewSubMap()
	if baseVerID != nil {
		if !baseVers.ContainsKey(encodeID(*baseVerID)) {
			return common.ErrVersionOnWrongBranchError(e.verIDToVerName[*baseVerID])
		}
		it := baseVers.Range(nil, false, encodeID(*baseVerID), true)
		for {
			k, v, ok := it.Next()
			if !ok {
				break
			}
			versCopied.Insert(k, v)
		}
	}

	brID := e.alloc.AllocBranchID()
	e.brNameToBrID.Insert([]byte(brName), encodeID(brID))
	e.brIDToBrName[brID] = brName
	e.brToItsVers.Insert(encodeID(brID), handle)

	if verName != nil {
		return e.versionCreateLocked(*verName, brID)
	}
	return nil
}

// BranchExists reports whether brID names a live branch.
func (e *Engine) BranchExists(brID BranchID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.brIDToBrName[brID]
	return ok
}

// BranchHasVersions reports whether brID exists and has at least one
// version on it.
func (e *Engine) BranchHasVersions(brID BranchID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.brIDToBrName[brID]; !ok {
		return false
	}
	vers, ok := e.branchVersions(brID)
	return ok && !vers.IsEmpty()
}

// BranchRemove deletes brID and drops its whole visible version set,
// inherited versions included; other branches' version sets are untouched.
func (e *Engine) BranchRemove(brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchRemoveLocked(brID)
}

func (e *Engine) branchRemoveLocked(brID BranchID) error {
	if err := e.branchTruncateLocked(brID); err != nil {
		return err
	}

	name, ok := e.brIDToBrName[brID]
	if !ok {
		return branchNotFound("")
	}
	delete(e.brIDToBrName, brID)
	e.brNameToBrID.Remove([]byte(name))

	handle, ok := e.brToItsVers.Get(encodeID(brID))
	e.brToItsVers.Remove(encodeID(brID))
	if ok {
		if vers, ok := rawmap.FromSlice(handle); ok {
			e.cleaner.Execute(func() { vers.Clear() })
		}
	}
	return nil
}

// BranchKeepOnly removes every branch not named in brIDs, then cleans up
// any versions left globally orphaned.
func (e *Engine) BranchKeepOnly(brIDs []BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := map[BranchID]struct{}{}
	for _, id := range brIDs {
		keep[id] = struct{}{}
	}

	var toRemove []BranchID
	for id := range e.brIDToBrName {
		if _, ok := keep[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		if err := e.branchRemoveLocked(id); err != nil {
			return err
		}
	}
	return e.versionCleanUpGloballyLocked()
}

// BranchTruncate empties brID's whole visible version set, inherited
// versions included, keeping the branch itself.
func (e *Engine) BranchTruncate(brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchTruncateLocked(brID)
}

func (e *Engine) branchTruncateLocked(brID BranchID) error {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}
	vers.Clear()
	return nil
}

// BranchTruncateTo removes every version on brID newer than lastVerID.
func (e *Engine) BranchTruncateTo(brID BranchID, lastVerID VersionID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}

	var toRemove [][]byte
	it := vers.Range(encodeID(lastVerID+1), true, nil, false)
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		toRemove = append(toRemove, append([]byte(nil), k...))
	}
	for _, k := range toRemove {
		vers.Remove(k)
	}
	return nil
}

// BranchPopVersion discards brID's latest version.
func (e *Engine) BranchPopVersion(brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versionPopLocked(brID)
}

// BranchMergeTo merges brID into targetBrID, refusing if targetBrID has
// diverged with versions of its own (spec §4.2).
func (e *Engine) BranchMergeTo(brID, targetBrID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchMergeToLocked(brID, targetBrID, false)
}

// BranchMergeToForce merges brID into targetBrID unconditionally, even if
// targetBrID has diverged; data referenced by branches built on
// targetBrID's discarded versions may become unreachable.
func (e *Engine) BranchMergeToForce(brID, targetBrID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.branchMergeToLocked(brID, targetBrID, true)
}

func (e *Engine) branchMergeToLocked(brID, targetBrID BranchID, force bool) error {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return branchNotFound(e.brIDToBrName[brID])
	}
	targetVers, ok := e.branchVersions(targetBrID)
	if !ok {
		return common.ErrTargetBranchNotFoundError(e.brIDToBrName[targetBrID])
	}

	if !force {
		if k, _, ok := targetVers.Last(); ok {
			if !vers.ContainsKey(k) {
				return common.ErrUnsafeMergeError()
			}
		}
	}

	forkKey, forked := findForkPoint(vers, targetVers)
	if forked {
		it := vers.Range(forkKey, true, nil, false)
		for {
			k, _, ok := it.Next()
			if !ok {
				break
			}
			targetVers.Insert(k, nil)
		}
		return nil
	}

	latestKey, _, hasLatest := vers.Last()
	if !hasLatest {
		return nil
	}
	targetLatestKey, _, hasTargetLatest := targetVers.Last()
	if !hasTargetLatest {
		it := vers.Iter()
		for {
			k, _, ok := it.Next()
			if !ok {
				break
			}
			targetVers.Insert(k, nil)
		}
		return nil
	}

	switch bytes.Compare(latestKey, targetLatestKey) {
	case 0:
		return nil
	case 1:
		it := vers.Range(encodeID(decodeID(targetLatestKey)+1), true, nil, false)
		for {
			k, _, ok := it.Next()
			if !ok {
				break
			}
			targetVers.Insert(k, nil)
		}
	}
	return nil
}

// findForkPoint walks vers and targetVers in lockstep and returns the key
// of the first divergence, mirroring backend.rs's zip-based scan.
func findForkPoint(vers, targetVers rawmap.RawMap) ([]byte, bool) {
	vit := vers.Iter()
	tit := targetVers.Iter()
	for {
		vk, _, vok := vit.Next()
		tk, _, tok := tit.Next()
		if !vok || !tok {
			return nil, false
		}
		if !bytes.Equal(vk, tk) {
			return vk, true
		}
	}
}

// BranchSetDefault makes brID the default branch for unscoped operations.
func (e *Engine) BranchSetDefault(brID BranchID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.brIDToBrName[brID]; !ok {
		return branchNotFound("")
	}
	e.defaultBranch = brID
	return nil
}

// BranchIsEmpty reports whether every version on brID carries no change
// set (the branch has version markers but no actual mutations).
func (e *Engine) BranchIsEmpty(brID BranchID) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vers, ok := e.branchVersions(brID)
	if !ok {
		return false, branchNotFound(e.brIDToBrName[brID])
	}
	it := vers.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			return true, nil
		}
		chgset, ok := e.changeSet(decodeID(k))
		if ok && !chgset.IsEmpty() {
			return false, nil
		}
	}
}

// BranchList lists every branch name, ascending.
func (e *Engine) BranchList() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var names []string
	it := e.brNameToBrID.Iter()
	for {
		k, _, ok := it.Next()
		if !ok {
			break
		}
		names = append(names, string(k))
	}
	return names
}

// BranchSwap exchanges the identities of branch1 and branch2: each name
// now resolves to the other's id and history. Callers must ensure no
// concurrent reads or writes touch either branch during the swap.
func (e *Engine) BranchSwap(branch1, branch2 string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b1, ok := e.brNameToBrID.Get([]byte(branch1))
	if !ok {
		return common.ErrBranchNotFoundError(branch1)
	}
	b2, ok := e.brNameToBrID.Get([]byte(branch2))
	if !ok {
		return common.ErrBranchNotFoundError(branch2)
	}
	id1, id2 := decodeID(b1), decodeID(b2)

	e.brNameToBrID.Insert([]byte(branch1), encodeID(id2))
	e.brNameToBrID.Insert([]byte(branch2), encodeID(id1))
	e.brIDToBrName[id1] = branch2
	e.brIDToBrName[id2] = branch1

	if e.defaultBranch == id1 {
		e.defaultBranch = id2
	} else if e.defaultBranch == id2 {
		e.defaultBranch = id1
	}
	return nil
}
