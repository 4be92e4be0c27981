package queue

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a non-durable Store for tests and sessions where the device
// offers no writable storage.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]PendingRecord
	now     Clock
}

// NewMemoryStore constructs an empty MemoryStore. A nil clock means time.Now.
func NewMemoryStore(clock Clock) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{records: make(map[string]PendingRecord), now: clock}
}

// Put implements Store.
func (m *MemoryStore) Put(ctx context.Context, rec PendingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.LocalID] = rec
	return nil
}

// GetAll implements Store.
func (m *MemoryStore) GetAll(ctx context.Context) ([]PendingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PendingRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sortByCapture(out)
	return out, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, localID)
	return nil
}

// IncrementRetryCount implements Store.
func (m *MemoryStore) IncrementRetryCount(ctx context.Context, localID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[localID]
	if !ok {
		return nil
	}
	rec.RetryCount++
	m.records[localID] = rec
	return nil
}

// Count implements Store.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// DeleteOlderThan implements Store.
func (m *MemoryStore) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-age).UnixMilli()
	removed := 0
	for id, rec := range m.records {
		if rec.CapturedAt < cutoff {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]PendingRecord)
	return nil
}
