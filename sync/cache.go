package sync

import "time"

// DefaultCacheTTL is the lifetime a cached value is considered fresh for
// before a caller must refresh it.
const DefaultCacheTTL = 60 * time.Second

// DecayingCache is a single-slot, time-bounded cache. It is not safe for
// concurrent use on its own -- callers wrap it in a sync.RWMutex (see
// PeerSetProvider) so that the expensive refresh path can single-flight
// under concurrent readers.
type DecayingCache[T any] struct {
	value      T
	lastUpdate time.Time
	ttl        time.Duration
	hasValue   bool
}

// NewDecayingCache creates an empty cache with the given TTL. A zero ttl
// means DefaultCacheTTL.
func NewDecayingCache[T any](ttl time.Duration) *DecayingCache[T] {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &DecayingCache[T]{ttl: ttl}
}

// Get returns the cached value and true if it was ever set and is still
// fresh. It does not clear the value when stale; the caller is expected to
// call Update once it has refreshed.
func (c *DecayingCache[T]) Get() (T, bool) {
	var zero T
	if !c.hasValue || time.Since(c.lastUpdate) > c.ttl {
		return zero, false
	}
	return c.value, true
}

// Update stamps the current time and replaces the cached value.
func (c *DecayingCache[T]) Update(value T) {
	c.value = value
	c.lastUpdate = time.Now()
	c.hasValue = true
}
