package engine

import (
	"bytes"

	"versionedkv/internal/common"
	"versionedkv/internal/rawmap"
)

// defaultReservedVersions mirrors backend.rs's RESERVED_VERSION_NUM_DEFAULT:
// how many of the newest shared versions prune() keeps beyond the single
// permanently-kept oldest rewrite version, when the caller doesn't name a
// count explicitly.
const defaultReservedVersions = 10

// Prune collapses the longest run of version ids shared by every
// non-empty branch, keeping only the oldest ("rewrite") version plus the
// reserve most recent of that shared run, last-writer-wins (spec §4.4).
// A nil reserve uses defaultReservedVersions.
func (e *Engine) Prune(reserve *int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pruneLocked(reserve)
}

func (e *Engine) pruneLocked(reserve *int) error {
	reservedCount := defaultReservedVersions
	if reserve != nil {
		reservedCount = *reserve
	}
	if reservedCount <= 0 {
		return common.ErrInvalidReserveCountError()
	}
	reservedVerNum := 1 + reservedCount

	var brVersNonEmpty []rawmap.RawMap
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
		if !vm.IsEmpty() {
			brVersNonEmpty = append(brVersNonEmpty, vm)
		}
	}
	if len(brVersNonEmpty) == 0 {
		return nil
	}

	iters := make([]rawmap.Iterator, len(brVersNonEmpty))
	for i, vm := range brVersNonEmpty {
		iters[i] = vm.Iter()
	}

	// Filter out the longest common prefix of version ids shared by
	// every non-empty branch.
	var versToBeMerged []VersionID
outer:
	for {
		var guard []byte
		for idx, it := range iters {
			k, _, ok := it.Next()
			if !ok {
				break outer
			}
			if idx == 0 {
				guard = k
			} else if !bytes.Equal(guard, k) {
				break outer
			}
		}
		versToBeMerged = append(versToBeMerged, decodeID(guard))
	}

	l := len(versToBeMerged)
	if l <= reservedVerNum {
		return nil
	}

	guardIdx := l - reservedVerNum + 1
	toMerge := versToBeMerged[1:guardIdx]
	rewriteVer := versToBeMerged[0]

	rewriteChgset, ok := e.changeSet(rewriteVer)
	if !ok {
		return common.ErrCorruptedIndexError("rewrite version has no change set")
	}

	for _, vm := range brVersNonEmpty {
		for _, ver := range toMerge {
			vm.Remove(encodeID(ver))
		}
	}

	var chgsets []rawmap.RawMap
	newKVForRewrite := map[string][]byte{}
	for _, ver := range toMerge {
		chgset, ok := e.changeSet(ver)
		if !ok {
			continue
		}
		chgsets = append(chgsets, chgset)

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
			v, ok := kvers.Get(encodeID(ver))
			if !ok {
				continue
			}
			newKVForRewrite[string(k)] = v
		}
	}

	// avoid duplicate inserts for keys touched by more than one merged version
	for k, v := range newKVForRewrite {
		rewriteChgset.Insert([]byte(k), nil)
		kvers := e.keyVersionsOrCreate([]byte(k))
		kvers.Insert(encodeID(rewriteVer), v)
	}

	// orphan the merged versions on every branch; version_clean_up_globally
	// reclaims their change sets below, after all data has been relocated.
	for _, ver := range toMerge {
		bit := e.brToItsVers.Iter()
		for {
			_, handle, ok := bit.Next()
			if !ok {
				break
			}
			if vm, ok := rawmap.FromSlice(handle); ok {
				vm.Remove(encodeID(ver))
			}
		}
	}

	// lowest-level KVs left with a 'deleted' state at the rewrite version
	// are garbage, not history; drop them.
	touchedKeys := map[string]struct{}{}
	for _, chgset := range chgsets {
		cit := chgset.Iter()
		for {
			k, _, ok := cit.Next()
			if !ok {
				break
			}
			touchedKeys[string(k)] = struct{}{}
		}
	}
	for k := range touchedKeys {
		kb := []byte(k)
		kvers, ok := e.keyVersions(kb)
		if !ok {
			continue
		}
		if v, ok := kvers.Get(encodeID(rewriteVer)); ok && len(v) == 0 {
			kvers.Remove(encodeID(rewriteVer))
			rewriteChgset.Remove(kb)
		}
		if kvers.IsEmpty() {
			e.layeredKV.Remove(kb)
		}
	}

	return e.versionCleanUpGloballyLocked()
}
