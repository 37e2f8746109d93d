package common

import (
	"time"
)

// Timestamp represents a point in time. It is recorded alongside engine
// mutations for logging and checkpoint metadata; it plays no role in the
// engine's branch/version semantics, which are ordered purely by id.
type Timestamp time.Time

// Now returns the current timestamp.
func Now() Timestamp {
	return Timestamp(time.Now())
}

// Unix returns the Unix timestamp.
func (t Timestamp) Unix() int64 {
	return time.Time(t).Unix()
}

// String returns a string representation of the timestamp.
func (t Timestamp) String() string {
	return time.Time(t).Format(time.RFC3339)
}

// SegmentID identifies a WAL segment file.
type SegmentID string

// Constants for system limits.
const (
	MaxBranchNameLength  = 256
	MaxVersionNameLength = 256
	DefaultTimeout       = 30 * time.Second
)
