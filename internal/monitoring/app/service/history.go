package service

import (
	"sync"

	"github.com/income-clarity/healthwatch/internal/monitoring/domain/model"
)

// HistoryStore is the bounded in-memory metrics history. Snapshots are
// held oldest to newest; appending beyond the cap evicts the oldest entry.
// The collection pipeline is the single writer; readers always get copies.
type HistoryStore struct {
	mu        sync.RWMutex
	snapshots []model.MonitoringMetrics
	cap       int
}

// NewHistoryStore creates a history buffer holding at most cap snapshots.
func NewHistoryStore(cap int) *HistoryStore {
	if cap <= 0 {
		cap = 100
	}
	return &HistoryStore{
		snapshots: make([]model.MonitoringMetrics, 0, cap),
		cap:       cap,
	}
}

// Append adds a snapshot, evicting the oldest once the cap is reached.
func (h *HistoryStore) Append(m model.MonitoringMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = append(h.snapshots, m)
	if len(h.snapshots) > h.cap {
		h.snapshots = h.snapshots[len(h.snapshots)-h.cap:]
	}
}

// Latest returns the newest snapshot.
func (h *HistoryStore) Latest() (model.MonitoringMetrics, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.snapshots) == 0 {
		return model.MonitoringMetrics{}, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

// Previous returns the snapshot immediately before the newest one. The
// change detector is a no-op on the first cycle when this reports false.
func (h *HistoryStore) Previous() (model.MonitoringMetrics, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.snapshots) < 2 {
		return model.MonitoringMetrics{}, false
	}
	return h.snapshots[len(h.snapshots)-2], true
}

// NthFromLatest returns the snapshot n entries before the newest (n=0 is
// the newest itself).
func (h *HistoryStore) NthFromLatest(n int) (model.MonitoringMetrics, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	idx := len(h.snapshots) - 1 - n
	if idx < 0 {
		return model.MonitoringMetrics{}, false
	}
	return h.snapshots[idx], true
}

// Recent returns up to limit snapshots, newest last, as a copy.
func (h *HistoryStore) Recent(limit int) []model.MonitoringMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > len(h.snapshots) {
		limit = len(h.snapshots)
	}
	out := make([]model.MonitoringMetrics, limit)
	copy(out, h.snapshots[len(h.snapshots)-limit:])
	return out
}

// Snapshot returns the full history, oldest to newest, as a copy for
// persistence.
func (h *HistoryStore) Snapshot() []model.MonitoringMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.MonitoringMetrics, len(h.snapshots))
	copy(out, h.snapshots)
	return out
}

// Restore replaces the buffer with persisted snapshots, keeping only the
// newest cap entries.
func (h *HistoryStore) Restore(snapshots []model.MonitoringMetrics) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(snapshots) > h.cap {
		snapshots = snapshots[len(snapshots)-h.cap:]
	}
	h.snapshots = make([]model.MonitoringMetrics, len(snapshots))
	copy(h.snapshots, snapshots)
}

// Len reports the number of stored snapshots.
func (h *HistoryStore) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snapshots)
}
