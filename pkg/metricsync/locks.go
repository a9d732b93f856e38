package metricsync

import (
	"sync"

	"github.com/google/uuid"
)

// metricLocks serializes sync attempts per metric id. Two concurrent syncs of
// the same metric would race on the append-only value series and produce
// duplicate points; syncs of different metrics proceed in parallel.
type metricLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newMetricLocks() *metricLocks {
	return &metricLocks{locks: make(map[uuid.UUID]*sync.Mutex)}
}

// acquire locks the mutex for a metric id and returns its release func.
func (m *metricLocks) acquire(id uuid.UUID) func() {
	m.mu.Lock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
