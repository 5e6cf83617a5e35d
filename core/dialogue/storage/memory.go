package storage

import (
	"context"
	"sync"
)

// Memory is an in-process Storage for tests, development and single-instance bots.
type Memory struct {
	mu      sync.RWMutex
	records map[ChatID][]byte
}

// NewMemory constructs an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{records: make(map[ChatID][]byte)}
}

// GetState returns a copy of the record for id.
func (m *Memory) GetState(_ context.Context, id ChatID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.records[id]
	if !ok {
		return nil, false, nil
	}
	return clone(data), true, nil
}

// UpdateState stores a copy of data for id.
func (m *Memory) UpdateState(_ context.Context, id ChatID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[id] = clone(data)
	return nil
}

// RemoveState deletes the record for id.
func (m *Memory) RemoveState(_ context.Context, id ChatID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

// Len reports how many conversations currently hold a record.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func clone(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
