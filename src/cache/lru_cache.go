package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// CacheEntry holds a cached value with expiration
type CacheEntry struct {
	Value     any
	ExpiresAt time.Time
}

func (e CacheEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// LRUCache is a thread-safe LRU cache with TTL support
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	lru      *list.List
	now      func() time.Time
	// pinLive stops capacity eviction from dropping unexpired entries.
	pinLive bool
}

type entry struct {
	key   string
	value CacheEntry
}

// NewLRUCache creates a new LRU cache with the given capacity and default TTL.
// A zero TTL keeps entries until they are evicted.
func NewLRUCache(capacity int, ttl time.Duration) *LRUCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRUCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		lru:      list.New(),
		now:      time.Now,
	}
}

// Get retrieves a value from the cache
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.lookup(key)
	if !ok {
		return nil, false
	}
	c.lru.MoveToFront(elem)
	return elem.Value.(*entry).value.Value, true
}

// Set adds or updates a value using the cache's default TTL.
func (c *LRUCache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL adds or updates a value with its own TTL. Re-setting a key
// refreshes both value and expiry.
func (c *LRUCache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(key, value, ttl)
}

// SetNX stores value only when key is absent or expired. It reports whether
// the value was stored.
func (c *LRUCache) SetNX(key string, value any, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lookup(key); ok {
		return false
	}
	c.put(key, value, ttl)
	return true
}

// Delete removes key if present.
func (c *LRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.lru.Remove(elem)
		delete(c.items, key)
	}
}

// Clear removes all entries from the cache
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.capacity)
	c.lru.Init()
}

// Len returns the number of items in the cache
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// lookup returns the live element for key, dropping it when expired.
// Callers hold c.mu.
func (c *LRUCache) lookup(key string) (*list.Element, bool) {
	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if elem.Value.(*entry).value.expired(c.now()) {
		c.lru.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	return elem, true
}

// put writes key under c.mu.
func (c *LRUCache) put(key string, value any, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	val := CacheEntry{Value: value, ExpiresAt: expiresAt}

	if elem, ok := c.items[key]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*entry).value = val
		return
	}

	elem := c.lru.PushFront(&entry{key: key, value: val})
	c.items[key] = elem

	if c.lru.Len() > c.capacity {
		c.evict()
	}
}

// evict drops expired entries first, then the least recently used one.
// A pinned cache grows instead of dropping a live entry. Callers hold c.mu.
func (c *LRUCache) evict() {
	now := c.now()
	for elem := c.lru.Back(); elem != nil; {
		prev := elem.Prev()
		if e := elem.Value.(*entry); e.value.expired(now) {
			c.lru.Remove(elem)
			delete(c.items, e.key)
		}
		elem = prev
	}
	if c.lru.Len() <= c.capacity {
		return
	}
	if c.pinLive {
		c.capacity *= 2
		return
	}
	if oldest := c.lru.Back(); oldest != nil {
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// HashKey returns the hex sha256 of s.
func HashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
