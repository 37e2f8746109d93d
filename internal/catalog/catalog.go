// Package catalog is the branch/version metadata service sitting beside
// internal/engine: a persisted, queryable mirror of branch/version
// existence and lineage, for external inspection without taking the
// engine's lock. The engine itself remains the source of truth for live
// reads/writes, and the HTTP/gRPC list endpoints read the engine; the
// catalog is updated by the HTTP/gRPC branch and version handlers after
// a successful engine call, not by internal/wal.Apply or WAL replay.
//
// Grounded on internal/catalog/catalog.go's cache-plus-persistence-layer
// shape, narrowed from the teacher's file/schema/column-stats metadata
// to branch/version metadata only -- the rest of that surface (table
// schemas, compaction jobs, column statistics) has no equivalent in this
// engine's domain.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PersistenceLayer defines how the catalog persists its metadata.
// FilePersistence (persistence.go) is the concrete implementation,
// backed by internal/storage/block.
type PersistenceLayer interface {
	Save(ctx context.Context, branches map[string]*BranchInfo, versions map[string]*VersionInfo) error
	Load(ctx context.Context) (map[string]*BranchInfo, map[string]*VersionInfo, error)
	Close() error
}

// Catalog is the in-memory, mutex-guarded branch/version metadata cache
// backed by a PersistenceLayer.
type Catalog struct {
	mu          sync.RWMutex
	persistence PersistenceLayer
	config      Config

	branches map[string]*BranchInfo
	versions map[string]*VersionInfo
}

// New creates a Catalog, loading any existing metadata from persistence.
func New(ctx context.Context, persistence PersistenceLayer, config Config) (*Catalog, error) {
	c := &Catalog{
		persistence: persistence,
		config:      config,
		branches:    make(map[string]*BranchInfo),
		versions:    make(map[string]*VersionInfo),
	}

	branches, versions, err := persistence.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	c.branches = branches
	c.versions = versions
	return c, nil
}

// RegisterBranch records a newly created branch.
func (c *Catalog) RegisterBranch(ctx context.Context, info *BranchInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info.CreatedAt = time.Now()
	info.UpdatedAt = info.CreatedAt
	c.branches[info.Name] = info
	return c.persistLocked(ctx)
}

// UpdateBranchHead updates the head version recorded for a branch, e.g.
// after a version create/rebase/revert changes what it points at.
func (c *Catalog) UpdateBranchHead(ctx context.Context, branch, headVersion string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.branches[branch]
	if !ok {
		return fmt.Errorf("catalog: branch %q not registered", branch)
	}
	info.HeadVersion = headVersion
	info.UpdatedAt = time.Now()
	return c.persistLocked(ctx)
}

// RemoveBranch marks a branch removed rather than deleting its catalog
// row outright, preserving lineage history for audit purposes.
func (c *Catalog) RemoveBranch(ctx context.Context, branch string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.branches[branch]
	if !ok {
		return fmt.Errorf("catalog: branch %q not registered", branch)
	}
	info.Removed = true
	info.UpdatedAt = time.Now()
	return c.persistLocked(ctx)
}

// GetBranch returns the catalog's metadata for a branch.
func (c *Catalog) GetBranch(branch string) (*BranchInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.branches[branch]
	return info, ok
}

// ListBranches returns every registered branch, including removed ones.
func (c *Catalog) ListBranches() []*BranchInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*BranchInfo, 0, len(c.branches))
	for _, info := range c.branches {
		out = append(out, info)
	}
	return out
}

// RegisterVersion records a newly created version.
func (c *Catalog) RegisterVersion(ctx context.Context, info *VersionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info.CreatedAt = time.Now()
	c.versions[info.Name] = info
	return c.persistLocked(ctx)
}

// GetVersion returns the catalog's metadata for a version.
func (c *Catalog) GetVersion(name string) (*VersionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.versions[name]
	return info, ok
}

// ListVersionsByBranch returns every version registered against branch,
// in registration order is not guaranteed; callers needing branch order
// should consult internal/engine.VersionListByBranch instead, since the
// catalog's map has no ordering guarantee.
func (c *Catalog) ListVersionsByBranch(branch string) []*VersionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*VersionInfo
	for _, info := range c.versions {
		if info.Branch == branch {
			out = append(out, info)
		}
	}
	return out
}

// Stats summarizes the catalog's current contents.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		BranchCount:  len(c.branches),
		VersionCount: len(c.versions),
	}
	for _, info := range c.branches {
		if !info.Removed {
			stats.ActiveBranchCount++
		}
	}
	return stats
}

// Close closes the underlying persistence layer.
func (c *Catalog) Close() error {
	return c.persistence.Close()
}

func (c *Catalog) persistLocked(ctx context.Context) error {
	if err := c.persistence.Save(ctx, c.branches, c.versions); err != nil {
		return fmt.Errorf("catalog: save: %w", err)
	}
	return nil
}
