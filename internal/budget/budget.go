// Package budget aggregates the byte usage of the task cache and the sync
// queue into one persisted read model. The figures are reporting only; a
// missed refresh makes them stale, never wrong in a way that loses data.
package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/SorgKs/homeplanner-sub002/internal/logging"
	"github.com/SorgKs/homeplanner-sub002/internal/storage"
)

// DefaultTotalBytes is the combined local storage budget: 20 MB cache plus
// 5 MB queue.
const DefaultTotalBytes = 25 * 1024 * 1024

const metadataKey = "storage"

type Metadata struct {
	QueueSizeBytes int64   `json:"queue_size_bytes"`
	CacheSizeBytes int64   `json:"cache_size_bytes"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	Percentage     float64 `json:"percentage"`
}

// Sizer is the one thing the manager needs from each store.
type Sizer interface {
	SizeBytes(ctx context.Context) (int64, error)
}

type Manager struct {
	rows       storage.RowStore
	cache      Sizer
	queue      Sizer
	log        *logging.Logger
	totalBytes int64

	mu sync.Mutex
}

func New(rows storage.RowStore, cache, queue Sizer, log *logging.Logger, totalBytes int64) *Manager {
	if totalBytes <= 0 {
		totalBytes = DefaultTotalBytes
	}
	return &Manager{rows: rows, cache: cache, queue: queue, log: log, totalBytes: totalBytes}
}

// Refresh recomputes both store sizes, derives the total and the capped
// percentage, and persists all four numbers for fast synchronous read.
func (m *Manager) Refresh(ctx context.Context) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cacheBytes, err := m.cache.SizeBytes(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("budget: cache size: %w", err)
	}
	queueBytes, err := m.queue.SizeBytes(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("budget: queue size: %w", err)
	}

	meta := Metadata{
		QueueSizeBytes: queueBytes,
		CacheSizeBytes: cacheBytes,
		TotalSizeBytes: queueBytes + cacheBytes,
	}
	meta.Percentage = float64(meta.TotalSizeBytes) / float64(m.totalBytes) * 100
	if meta.Percentage > 100 {
		meta.Percentage = 100
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("budget: encode metadata: %w", err)
	}
	if err := m.rows.Put(ctx, storage.BucketMetadata, metadataKey, data); err != nil {
		return Metadata{}, fmt.Errorf("budget: persist metadata: %w", err)
	}
	return meta, nil
}

// Current returns the last persisted figures, or zeros when none exist or
// the read fails.
func (m *Manager) Current(ctx context.Context) Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.rows.Get(ctx, storage.BucketMetadata, metadataKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			m.log.Warnf("budget: read metadata: %v", err)
		}
		return Metadata{}
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		m.log.Warnf("budget: decode metadata: %v", err)
		return Metadata{}
	}
	return meta
}
