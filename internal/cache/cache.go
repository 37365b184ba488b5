package cache

import (
	"context"
	"sync"
	"time"

	"qayd/backend/internal/domain"
)

// ReportEntry is a cached sales report plus the moment it was computed.
// Readers decide freshness against their own TTL; the cache itself only
// stores and reports the timestamp.
type ReportEntry struct {
	Report   domain.SalesReport `json:"report"`
	CachedAt time.Time          `json:"cached_at"`
}

type ReportCache interface {
	Get(ctx context.Context, key string) (*ReportEntry, bool, error)
	Set(ctx context.Context, key string, entry ReportEntry, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*ReportEntry, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ ReportEntry, _ time.Duration) error {
	return nil
}

// MemoryReportCache is a process-local cache used in dev mode and tests.
type MemoryReportCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	entry     ReportEntry
	expiresAt time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryReportCache) Get(_ context.Context, key string) (*ReportEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && time.Now().UTC().After(item.expiresAt) {
		return nil, false, nil
	}
	entry := item.entry
	return &entry, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, entry ReportEntry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := memoryEntry{entry: entry}
	if ttl > 0 {
		item.expiresAt = time.Now().UTC().Add(ttl)
	}
	c.entries[key] = item
	return nil
}
