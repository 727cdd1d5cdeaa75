package cas

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/srmgate/srmgate/core/domain"
)

// MemoryRecordStore is a process-local domain.RecordStore. It is meant for
// tests and single-process deployments.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[int64][]byte
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[int64][]byte)}
}

func (m *MemoryRecordStore) Create(ctx context.Context, id int64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; ok {
		return fmt.Errorf("memory: record %d: %w", id, domain.ErrRecordExists)
	}
	m.records[id] = append([]byte{}, payload...)
	return nil
}

func (m *MemoryRecordStore) Read(ctx context.Context, id int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return append([]byte{}, payload...), nil
}

func (m *MemoryRecordStore) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

// RecordIDs implements domain.RecordLister.
func (m *MemoryRecordStore) RecordIDs(ctx context.Context) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Len returns the number of stored records.
func (m *MemoryRecordStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
