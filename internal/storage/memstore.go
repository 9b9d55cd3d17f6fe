package storage

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory RowStore with the same contract as the SQLite
// implementation. Tests and ephemeral runs use it to avoid disk I/O.
type MemStore struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
	closed  bool
}

func NewMemStore() *MemStore {
	return &MemStore{buckets: make(map[string]map[string][]byte)}
}

func (m *MemStore) Put(ctx context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b[key] = cp
	return nil
}

func (m *MemStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	value, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	return cp, nil
}

func (m *MemStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucket][key]; !ok {
		return ErrNotFound
	}
	delete(m.buckets[bucket], key)
	return nil
}

func (m *MemStore) List(ctx context.Context, bucket string) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.buckets[bucket]
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Row, 0, len(keys))
	for _, k := range keys {
		cp := make([]byte, len(b[k]))
		copy(cp, b[k])
		out = append(out, Row{Key: k, Value: cp})
	}
	return out, nil
}

func (m *MemStore) Clear(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets, bucket)
	return nil
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
