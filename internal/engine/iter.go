package engine

import "versionedkv/internal/rawmap"

// Iterator walks the engine's layered KV in key order, yielding only the
// entries visible on a pinned branch/version, skipping tombstones and
// keys not yet written at that version. Grounded on backend.rs's
// MapxRawVsIter (a DoubleEndedIterator over the whole layered_kv,
// filtered per-key through get_by_branch_version).
type Iterator struct {
	e     *Engine
	inner rawmap.Iterator
	brID  BranchID
	verID VersionID
}

// Next returns the next visible key/value pair in ascending key order.
func (it *Iterator) Next() (key, value []byte, ok bool) {
	if it.brID == NullID || it.verID == NullID {
		return nil, nil, false
	}
	for {
		k, _, ok := it.inner.Next()
		if !ok {
			return nil, nil, false
		}
		if v, present := it.e.getByBranchVersionLocked(k, it.brID, it.verID); present {
			return k, v, true
		}
	}
}

// NextBack returns the next visible key/value pair in descending key order.
func (it *Iterator) NextBack() (key, value []byte, ok bool) {
	if it.brID == NullID || it.verID == NullID {
		return nil, nil, false
	}
	for {
		k, _, ok := it.inner.NextBack()
		if !ok {
			return nil, nil, false
		}
		if v, present := it.e.getByBranchVersionLocked(k, it.brID, it.verID); present {
			return k, v, true
		}
	}
}

func (e *Engine) iterRangeLocked(brID BranchID, verID VersionID, lower []byte, hasLower bool, upper []byte, hasUpper bool) *Iterator {
	var lo, up []byte
	if hasLower {
		lo = lower
	}
	if hasUpper {
		up = upper
	}
	return &Iterator{
		e:     e,
		inner: e.layeredKV.Range(lo, true, up, true),
		brID:  brID,
		verID: verID,
	}
}

func (e *Engine) latestVersionOrNull(brID BranchID) (BranchID, VersionID) {
	vers, ok := e.branchVersions(brID)
	if !ok {
		return NullID, NullID
	}
	k, _, ok := vers.Last()
	if !ok {
		return brID, NullID
	}
	return brID, decodeID(k)
}

// Iter iterates the default branch's latest version.
func (e *Engine) Iter() *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	br, ver := e.latestVersionOrNull(e.defaultBranch)
	return e.iterRangeLocked(br, ver, nil, false, nil, false)
}

// IterByBranch iterates brID's latest version.
func (e *Engine) IterByBranch(brID BranchID) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	br, ver := e.latestVersionOrNull(brID)
	return e.iterRangeLocked(br, ver, nil, false, nil, false)
}

// IterByBranchVersion iterates brID at exactly verID.
func (e *Engine) IterByBranchVersion(brID BranchID, verID VersionID) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.iterRangeLocked(brID, verID, nil, false, nil, false)
}

// Range iterates [lower, upper] on the default branch's latest version;
// both bounds are inclusive, and a nil bound is unbounded on that side.
func (e *Engine) Range(lower, upper []byte) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	br, ver := e.latestVersionOrNull(e.defaultBranch)
	return e.iterRangeLocked(br, ver, lower, lower != nil, upper, upper != nil)
}

// RangeByBranch is Range scoped to brID's latest version.
func (e *Engine) RangeByBranch(brID BranchID, lower, upper []byte) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	br, ver := e.latestVersionOrNull(brID)
	return e.iterRangeLocked(br, ver, lower, lower != nil, upper, upper != nil)
}

// RangeByBranchVersion is Range scoped to brID at exactly verID.
func (e *Engine) RangeByBranchVersion(brID BranchID, verID VersionID, lower, upper []byte) *Iterator {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.iterRangeLocked(brID, verID, lower, lower != nil, upper, upper != nil)
}

// Len is a stupid O(n) counter over the default branch's latest version
// (spec §9 open question: kept as documented O(n), not cached).
func (e *Engine) Len() int {
	return count(e.Iter())
}

// LenByBranch is Len scoped to brID's latest version.
func (e *Engine) LenByBranch(brID BranchID) int {
	return count(e.IterByBranch(brID))
}

// LenByBranchVersion is Len scoped to brID at exactly verID.
func (e *Engine) LenByBranchVersion(brID BranchID, verID VersionID) int {
	return count(e.IterByBranchVersion(brID, verID))
}

func count(it *Iterator) int {
	n := 0
	for {
		_, _, ok := it.Next()
		if !ok {
			return n
		}
		n++
	}
}
