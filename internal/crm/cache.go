package crm

import (
	"sync"
	"time"

	"github.com/dealradar-io/dealradar/pkg/protocol"
)

// RecordCache is a short-TTL cache for the full deal list. Reads hit
// the cache only while the entry is fresh; any write through the client
// invalidates it, so a read that starts after a write returns sees the
// new data.
//
// A TTL of zero disables caching. A negative TTL never expires, which
// tests use to pin an entry.
type RecordCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	deals   []protocol.Deal
	fetched time.Time
	now     func() time.Time
}

// NewRecordCache creates a cache with the given TTL.
func NewRecordCache(ttl time.Duration) *RecordCache {
	return &RecordCache{ttl: ttl, now: time.Now}
}

// Get returns the cached deal list if present and fresh.
func (c *RecordCache) Get() ([]protocol.Deal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deals == nil || c.ttl == 0 {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(c.fetched) > c.ttl {
		c.deals = nil
		return nil, false
	}
	out := make([]protocol.Deal, len(c.deals))
	copy(out, c.deals)
	return out, true
}

// Put stores a freshly fetched deal list.
func (c *RecordCache) Put(deals []protocol.Deal) {
	if c.ttl == 0 {
		return
	}
	stored := make([]protocol.Deal, len(deals))
	copy(stored, deals)
	c.mu.Lock()
	c.deals = stored
	c.fetched = c.now()
	c.mu.Unlock()
}

// Invalidate drops the cached list.
func (c *RecordCache) Invalidate() {
	c.mu.Lock()
	c.deals = nil
	c.mu.Unlock()
}
