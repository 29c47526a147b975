package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

func snapshotAt(sec int) model.MonitoringMetrics {
	return model.MonitoringMetrics{
		Timestamp: time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC),
	}
}

func TestHistoryStoreEvictsOldestAtCap(t *testing.T) {
	store := NewHistoryStore(3)

	for i := 0; i < 5; i++ {
		store.Append(snapshotAt(i))
	}

	assert.Equal(t, 3, store.Len())

	snapshots := store.Snapshot()
	require.Len(t, snapshots, 3)
	assert.Equal(t, snapshotAt(2).Timestamp, snapshots[0].Timestamp)
	assert.Equal(t, snapshotAt(4).Timestamp, snapshots[2].Timestamp)
}

func TestHistoryStoreLatestAndPrevious(t *testing.T) {
	store := NewHistoryStore(10)

	_, ok := store.Latest()
	assert.False(t, ok)
	_, ok = store.Previous()
	assert.False(t, ok)

	store.Append(snapshotAt(0))
	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, snapshotAt(0).Timestamp, latest.Timestamp)
	_, ok = store.Previous()
	assert.False(t, ok)

	store.Append(snapshotAt(1))
	prev, ok := store.Previous()
	require.True(t, ok)
	assert.Equal(t, snapshotAt(0).Timestamp, prev.Timestamp)
}

func TestHistoryStoreRecentReturnsNewestEntries(t *testing.T) {
	store := NewHistoryStore(10)
	for i := 0; i < 5; i++ {
		store.Append(snapshotAt(i))
	}

	recent := store.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, snapshotAt(3).Timestamp, recent[0].Timestamp)
	assert.Equal(t, snapshotAt(4).Timestamp, recent[1].Timestamp)

	assert.Len(t, store.Recent(0), 5)
	assert.Len(t, store.Recent(100), 5)
}

func TestHistoryStoreRestoreKeepsNewestCapEntries(t *testing.T) {
	store := NewHistoryStore(2)

	store.Restore([]model.MonitoringMetrics{snapshotAt(0), snapshotAt(1), snapshotAt(2)})

	assert.Equal(t, 2, store.Len())
	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, snapshotAt(2).Timestamp, latest.Timestamp)
}
