package store

import (
	"context"
	"sync"
)

// MemoryBackend holds documents in process memory. Nothing survives Close.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[Doc][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{docs: make(map[Doc][]byte)}
}

func (m *MemoryBackend) Init(ctx context.Context) error { return nil }

func (m *MemoryBackend) Load(ctx context.Context, doc Doc) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[doc]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryBackend) Save(ctx context.Context, records ...Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.docs[r.Doc] = append([]byte(nil), r.Data...)
	}
	return nil
}

func (m *MemoryBackend) Location() string { return "memory" }

func (m *MemoryBackend) Close() error { return nil }
