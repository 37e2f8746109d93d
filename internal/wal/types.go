package wal

import (
	"encoding/json"
	"time"

	"versionedkv/internal/common"
)

// SyncPolicy defines when to sync WAL writes to disk
type SyncPolicy int

const (
	SyncAlways   SyncPolicy = iota // Sync after every write (highest durability)
	SyncBatch                      // Sync after batch of writes
	SyncPeriodic                   // Sync periodically based on timer
)

// Op identifies which engine mutation a WAL entry replays.
type Op int

const (
	OpInsert Op = iota + 1
	OpRemove
	OpVersionCreate
	OpVersionRebase
	OpVersionRevert
	OpBranchCreate
	OpBranchRemove
	OpPrune
)

// String returns the string representation of Op.
func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpRemove:
		return "REMOVE"
	case OpVersionCreate:
		return "VERSION_CREATE"
	case OpVersionRebase:
		return "VERSION_REBASE"
	case OpVersionRevert:
		return "VERSION_REVERT"
	case OpBranchCreate:
		return "BRANCH_CREATE"
	case OpBranchRemove:
		return "BRANCH_REMOVE"
	case OpPrune:
		return "PRUNE"
	default:
		return "UNKNOWN"
	}
}

// Entry represents a single entry in the Write-Ahead Log: one engine
// mutation, logged before it is applied, so Replay can reconstruct an
// engine's state by re-issuing the same calls in order.
type Entry struct {
	SequenceID uint64           `json:"sequence_id"`
	Op         Op               `json:"op"`
	Branch     string           `json:"branch,omitempty"`
	Version    string           `json:"version,omitempty"`
	BaseVer    string           `json:"base_version,omitempty"`
	Key        []byte           `json:"key,omitempty"`
	Value      []byte           `json:"value,omitempty"`
	Timestamp  common.Timestamp `json:"timestamp"`
	Checksum   string           `json:"checksum,omitempty"`
	Size       int              `json:"size,omitempty"`
}

// EstimatedSize returns the estimated size of the entry in bytes
func (e *Entry) EstimatedSize() int {
	if e.Size > 0 {
		return e.Size
	}
	size := 64 // base size for fixed fields
	size += len(e.Branch) + len(e.Version) + len(e.BaseVer)
	size += len(e.Key) + len(e.Value)
	return size
}

// Marshal serializes the entry to bytes using JSON
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry deserializes bytes to an Entry using JSON
func UnmarshalEntry(data []byte) (*Entry, error) {
	var entry Entry
	err := json.Unmarshal(data, &entry)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SegmentMetadata represents metadata for a WAL segment file
type SegmentMetadata struct {
	ID         common.SegmentID  `json:"id"`
	Path       string            `json:"path"`
	Size       int64             `json:"size"`
	EntryCount int64             `json:"entry_count"`
	FirstEntry int64             `json:"first_entry"`
	LastEntry  int64             `json:"last_entry"`
	CreatedAt  common.Timestamp  `json:"created_at"`
	ClosedAt   *common.Timestamp `json:"closed_at,omitempty"`
	Checksum   string            `json:"checksum"`
	IsClosed   bool              `json:"is_closed"`
}

// Checkpoint represents a checkpoint in the WAL: everything up to and
// including SeqID has been folded into a snapshot and its segments may
// be reclaimed (see internal/snapshot).
type Checkpoint struct {
	ID        string           `json:"id"`
	SegmentID common.SegmentID `json:"segment_id"`
	SeqID     uint64           `json:"seq_id"`
	Timestamp common.Timestamp `json:"timestamp"`
}

// ReplayPosition represents the position during WAL replay
type ReplayPosition struct {
	SegmentID common.SegmentID `json:"segment_id"`
	SeqID     uint64           `json:"seq_id"`
	Timestamp common.Timestamp `json:"timestamp"`
}

// ReplayResult represents the result of WAL replay
type ReplayResult struct {
	StartPosition   ReplayPosition `json:"start_position"`
	EndPosition     ReplayPosition `json:"end_position"`
	EntriesReplayed int64          `json:"entries_replayed"`
	Duration        time.Duration  `json:"duration"`
	ErrorCount      int            `json:"error_count"`
}

// Config represents WAL configuration
type Config struct {
	DataDir         string        `yaml:"data_dir" json:"data_dir"`
	SegmentSize     int64         `yaml:"segment_size" json:"segment_size"`
	MaxSegments     int           `yaml:"max_segments" json:"max_segments"`
	SyncPolicy      SyncPolicy    `yaml:"sync_policy" json:"sync_policy"`
	SyncInterval    time.Duration `yaml:"sync_interval" json:"sync_interval"`
	CompressionType string        `yaml:"compression_type" json:"compression_type"` // "none" or "zstd"
}

// Stats represents WAL statistics
type Stats struct {
	SegmentCount int         `json:"segment_count"`
	TotalSize    int64       `json:"total_size"`
	NextSeqID    uint64      `json:"next_seq_id"`
	FirstSeqID   uint64      `json:"first_seq_id"`
	LastSeqID    uint64      `json:"last_seq_id"`
	LastCheckpoint *Checkpoint `json:"last_checkpoint,omitempty"`
}
