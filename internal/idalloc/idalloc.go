// Package idalloc provides the branch/version identifier allocator the
// engine is built on (spec §6). Branch and version ids are monotonically
// increasing uint64s whose big-endian byte encoding is used as RawMap
// keys, so that lexicographic key order matches numeric id order (spec
// §2, "Big-endian 64-bit ids"). Grounded on the teacher's nextJobID
// counter pattern in internal/catalog/catalog.go, generalized from a
// mutex-guarded int to a lock-free atomic counter since allocation is the
// only operation this collaborator performs.
package idalloc

import "sync/atomic"

// Allocator hands out fresh, never-reused branch and version ids.
type Allocator interface {
	AllocBranchID() uint64
	AllocVersionID() uint64
}

// AtomicAllocator is the concrete, process-local Allocator.
type AtomicAllocator struct {
	nextBranchID  uint64
	nextVersionID uint64
}

// New returns an allocator whose first branch id and version id are both 1.
// Id 0 is reserved: the engine treats a zero id as "no such branch/version".
func New() *AtomicAllocator {
	return &AtomicAllocator{}
}

// AllocBranchID returns the next unused branch id.
func (a *AtomicAllocator) AllocBranchID() uint64 {
	return atomic.AddUint64(&a.nextBranchID, 1)
}

// AllocVersionID returns the next unused version id.
func (a *AtomicAllocator) AllocVersionID() uint64 {
	return atomic.AddUint64(&a.nextVersionID, 1)
}

var _ Allocator = (*AtomicAllocator)(nil)
