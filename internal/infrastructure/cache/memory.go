package cache

import (
	"context"
	"sync"
	"time"

	"github.com/usama216/shipping-market-sub004/internal/domain"
)

type memoryEntry struct {
	rate      domain.RateResponse
	expiresAt time.Time
}

// MemoryRateCache is a process-local rate cache. Expired entries are
// dropped lazily on read and on Set.
type MemoryRateCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryRateCache creates an empty in-memory cache
func NewMemoryRateCache() *MemoryRateCache {
	return &MemoryRateCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached rate for key
func (c *MemoryRateCache) Get(_ context.Context, key string) (*domain.RateResponse, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expiresAt) {
		c.mu.Lock()
		if current, still := c.entries[key]; still && !c.now().Before(current.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	rate := entry.rate
	return &rate, true, nil
}

// Set stores rate under key; the last write wins
func (c *MemoryRateCache) Set(_ context.Context, key string, rate domain.RateResponse, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{rate: rate, expiresAt: now.Add(ttl)}
	if len(c.entries)%256 == 0 {
		c.sweepLocked(now)
	}
	return nil
}

// Forget removes key
func (c *MemoryRateCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Len returns the number of entries, expired ones included
func (c *MemoryRateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryRateCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

var _ domain.RateCache = (*MemoryRateCache)(nil)
