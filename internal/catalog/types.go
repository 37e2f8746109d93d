package catalog

import "time"

// BranchInfo is the catalog's view of a branch: metadata the engine
// itself doesn't retain once a branch is pruned away, useful for
// external inspection without holding a lock on the live engine.
type BranchInfo struct {
	Name        string    `json:"name"`
	ID          uint64    `json:"id"`
	BaseBranch  string    `json:"base_branch,omitempty"`
	HeadVersion string    `json:"head_version,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Removed     bool      `json:"removed"`
}

// VersionInfo is the catalog's view of a version.
type VersionInfo struct {
	Name      string    `json:"name"`
	ID        uint64    `json:"id"`
	Branch    string    `json:"branch"`
	BaseVer   string    `json:"base_version,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes the catalog's current contents.
type Stats struct {
	BranchCount       int `json:"branch_count"`
	ActiveBranchCount int `json:"active_branch_count"`
	VersionCount      int `json:"version_count"`
}

// Config holds catalog configuration. CacheSize is stored but not read:
// the in-memory cache this package keeps on top of its PersistenceLayer
// has no size bound.
type Config struct {
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}
