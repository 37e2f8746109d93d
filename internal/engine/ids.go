// Package engine implements the versioned map engine described in the
// spec: a single logical key/value map overlaid with named, branching
// versions, Git-like in shape (branches fork from a version, versions
// stack on a branch, branches can rebase, merge, and be pruned).
//
// The package is a direct Go port of the algorithms in
// core/src/versioned/mapx_raw/backend.rs, built on top of the RawMap,
// idalloc and trash collaborators (spec §6) instead of the original's
// RocksDB-backed MapxRaw and global VSDB/TRASH_CLEANER statics.
package engine

import "encoding/binary"

// BranchID and VersionID are big-endian-encoded uint64s so that their
// RawMap key byte order matches numeric id order (spec §2).
type BranchID = uint64
type VersionID = uint64

// NullID marks "no such branch/version". Id 0 is never allocated.
const NullID uint64 = 0

func encodeID(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}

func decodeID(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
