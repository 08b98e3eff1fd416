package cover

import (
	"sync"
	"time"
)

// DefaultCoolDown is how long a rejected query is not retried.
const DefaultCoolDown = time.Hour

// NegativeCache remembers remote queries that recently failed. It is shared
// by every session of the process. Races between sessions can at worst cause
// one duplicate request.
type NegativeCache struct {
	mu       sync.Mutex
	entries  map[string]time.Time
	coolDown time.Duration
	now      func() time.Time
}

// NewNegativeCache creates an empty record. A non-positive cool-down selects
// DefaultCoolDown.
func NewNegativeCache(coolDown time.Duration) *NegativeCache {
	if coolDown <= 0 {
		coolDown = DefaultCoolDown
	}
	return &NegativeCache{
		entries:  make(map[string]time.Time),
		coolDown: coolDown,
		now:      time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (n *NegativeCache) SetClock(now func() time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.now = now
}

// Suppressed reports whether key failed inside the cool-down window.
// Expired entries are dropped on the way.
func (n *NegativeCache) Suppressed(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	at, ok := n.entries[key]
	if !ok {
		return false
	}
	if n.now().Sub(at) < n.coolDown {
		return true
	}
	delete(n.entries, key)
	return false
}

// Record stamps key with the current time.
func (n *NegativeCache) Record(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[key] = n.now()
}

// Len returns the number of remembered queries, expired ones included.
func (n *NegativeCache) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.entries)
}

// Clear forgets everything. Called when the plugin is disabled.
func (n *NegativeCache) Clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = make(map[string]time.Time)
}
