package wal

import (
	"context"
	"fmt"

	"versionedkv/internal/common"
	"versionedkv/internal/engine"
)

// LogAndApply appends entry to the WAL, then applies it to e. Logging
// before applying means a crash between the two leaves a WAL entry whose
// effect never landed; Replay against a fresh engine re-applies it then,
// matching the usual WAL-ahead-of-apply ordering.
func LogAndApply(ctx context.Context, m *Manager, e *engine.Engine, entry *Entry) error {
	if entry.Timestamp == (common.Timestamp{}) {
		entry.Timestamp = common.Now()
	}
	if err := m.Append(ctx, entry); err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	return Apply(e, entry)
}

// Apply replays a single WAL entry against e, without touching the WAL
// itself. Used both by LogAndApply's post-log step and by ReplayInto
// when rebuilding an engine from a WAL.
func Apply(e *engine.Engine, entry *Entry) error {
	switch entry.Op {
	case OpInsert:
		brID, ok := e.BranchIDByName(entry.Branch)
		if !ok {
			return fmt.Errorf("wal replay: unknown branch %q", entry.Branch)
		}
		_, err := e.InsertByBranch(entry.Key, entry.Value, brID)
		return err
	case OpRemove:
		brID, ok := e.BranchIDByName(entry.Branch)
		if !ok {
			return fmt.Errorf("wal replay: unknown branch %q", entry.Branch)
		}
		_, err := e.RemoveByBranch(entry.Key, brID)
		return err
	case OpVersionCreate:
		brID, ok := e.BranchIDByName(entry.Branch)
		if !ok {
			return fmt.Errorf("wal replay: unknown branch %q", entry.Branch)
		}
		return e.VersionCreateByBranch(entry.Version, brID)
	case OpVersionRebase:
		brID, ok := e.BranchIDByName(entry.Branch)
		if !ok {
			return fmt.Errorf("wal replay: unknown branch %q", entry.Branch)
		}
		baseID, ok := e.VersionIDByName(entry.BaseVer)
		if !ok {
			return fmt.Errorf("wal replay: unknown base version %q", entry.BaseVer)
		}
		return e.VersionRebaseByBranch(baseID, brID)
	case OpVersionRevert:
		verID, ok := e.VersionIDByName(entry.Version)
		if !ok {
			return fmt.Errorf("wal replay: unknown version %q", entry.Version)
		}
		return e.VersionRevertGlobally(verID)
	case OpBranchCreate:
		return e.BranchCreate(entry.Branch, entry.Version, false)
	case OpBranchRemove:
		brID, ok := e.BranchIDByName(entry.Branch)
		if !ok {
			return fmt.Errorf("wal replay: unknown branch %q", entry.Branch)
		}
		return e.BranchRemove(brID)
	case OpPrune:
		return e.Prune(nil)
	default:
		return fmt.Errorf("wal replay: unknown op %v", entry.Op)
	}
}

// ReplayInto rebuilds e's mutation history by replaying every WAL entry
// from fromSeqID onward, in order. Intended to run once at startup,
// against a freshly loaded snapshot (see internal/snapshot), to catch up
// on mutations that happened after the snapshot was taken.
func ReplayInto(ctx context.Context, m *Manager, e *engine.Engine, fromSeqID uint64) (*ReplayResult, error) {
	var result ReplayResult
	err := m.Replay(ctx, fromSeqID, func(entry *Entry) error {
		if err := Apply(e, entry); err != nil {
			result.ErrorCount++
			return err
		}
		result.EntriesReplayed++
		result.EndPosition.SeqID = entry.SequenceID
		result.EndPosition.Timestamp = entry.Timestamp
		return nil
	})
	if err != nil {
		return &result, fmt.Errorf("wal replay: %w", err)
	}
	return &result, nil
}
