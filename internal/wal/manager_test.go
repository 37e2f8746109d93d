package wal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versionedkv/internal/common"
)

func TestManager_NewManager(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:     tempDir,
		SegmentSize: 1024 * 1024,
		SyncPolicy:  SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	require.NotNil(t, manager)
	defer manager.Close()

	assert.DirExists(t, tempDir)
}

func TestManager_AppendEntry(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:     tempDir,
		SegmentSize: 1024 * 1024,
		SyncPolicy:  SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	entry := &Entry{
		Op:        OpInsert,
		Branch:    "main",
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Timestamp: common.Now(),
	}

	ctx := context.Background()
	err = manager.Append(ctx, entry)
	require.NoError(t, err)
	assert.True(t, entry.SequenceID > 0)
}

func TestManager_AppendAndReplay_Compressed(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:         tempDir,
		SegmentSize:     1024 * 1024,
		SyncPolicy:      SyncAlways,
		CompressionType: "zstd",
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, manager.Append(ctx, &Entry{
			Op:        OpInsert,
			Branch:    "main",
			Key:       []byte("k"),
			Value:     []byte("v"),
			Timestamp: common.Now(),
		}))
	}
	require.NoError(t, manager.current.Sync())

	var replayed []*Entry
	err = manager.Replay(ctx, 1, func(e *Entry) error {
		replayed = append(replayed, e)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, replayed, 3)
}

func TestManager_GetStats(t *testing.T) {
	tempDir := t.TempDir()

	config := Config{
		DataDir:     tempDir,
		SegmentSize: 1024 * 1024,
		SyncPolicy:  SyncAlways,
	}

	manager, err := NewManager(config)
	require.NoError(t, err)
	defer manager.Close()

	stats := manager.GetStats()
	assert.Equal(t, 1, stats.SegmentCount)

	entry := &Entry{
		Op:        OpInsert,
		Branch:    "main",
		Key:       []byte("k1"),
		Value:     []byte("v1"),
		Timestamp: common.Now(),
	}

	ctx := context.Background()
	err = manager.Append(ctx, entry)
	require.NoError(t, err)

	stats = manager.GetStats()
	assert.Equal(t, 1, stats.SegmentCount)
	assert.Equal(t, uint64(1), stats.LastSeqID)
}
