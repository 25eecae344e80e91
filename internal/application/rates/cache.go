package rates

import (
	"sync"

	"github.com/J0E-2/Worldcoin-to-Mpesa/internal/domain"
)

// MemoryCache is the default single-slot snapshot cache, constructed once
// per process and shared by reference.
type MemoryCache struct {
	mu       sync.RWMutex
	snapshot domain.RateSnapshot
	set      bool
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get() (domain.RateSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.set
}

func (c *MemoryCache) Put(snapshot domain.RateSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snapshot
	c.set = true
}
