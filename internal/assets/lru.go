package assets

import (
	"sync"
)

// lruCache is a thread-safe LRU cache of assets keyed by id.
// Pinned entries bypass eviction.
type lruCache struct {
	maxSize int
	cache   map[string]*cacheNode
	head    *cacheNode
	tail    *cacheNode
	mutex   sync.Mutex
}

// cacheNode represents a node in the doubly-linked list used by the LRU cache.
type cacheNode struct {
	key    string
	value  Asset
	prev   *cacheNode
	next   *cacheNode
	pinned bool
}

// newLRUCache creates a new LRU cache with the specified maximum size.
func newLRUCache(maxSize int) *lruCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}

	// Sentinel nodes for head and tail
	head := &cacheNode{}
	tail := &cacheNode{}
	head.next = tail
	tail.prev = head

	return &lruCache{
		maxSize: maxSize,
		cache:   make(map[string]*cacheNode),
		head:    head,
		tail:    tail,
	}
}

// Get retrieves an asset and marks it as recently used.
func (c *lruCache) Get(key string) (Asset, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	node, exists := c.cache[key]
	if !exists {
		return Asset{}, false
	}

	if !node.pinned {
		c.moveToHead(node)
	}
	return node.value, true
}

// Set adds or updates an asset, evicting the least recently used entry when full.
func (c *lruCache) Set(key string, value Asset) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.cache[key]; exists {
		node.value = value
		if !node.pinned {
			c.moveToHead(node)
		}
		return
	}

	newNode := &cacheNode{key: key, value: value}
	c.cache[key] = newNode
	c.addToHead(newNode)

	if len(c.cache) > c.maxSize {
		c.evictLRU()
	}
}

// Delete removes a key from the cache.
func (c *lruCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.cache[key]; exists {
		c.removeNode(node)
		delete(c.cache, key)
	}
}

// SetPinned marks an entry as pinned, preventing it from being evicted.
func (c *lruCache) SetPinned(key string, pinned bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if node, exists := c.cache[key]; exists {
		node.pinned = pinned
	}
}

// Size returns the current number of entries.
func (c *lruCache) Size() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.cache)
}

// Must be called with mutex locked.
func (c *lruCache) moveToHead(node *cacheNode) {
	c.removeNode(node)
	c.addToHead(node)
}

// Must be called with mutex locked.
func (c *lruCache) addToHead(node *cacheNode) {
	node.prev = c.head
	node.next = c.head.next
	c.head.next.prev = node
	c.head.next = node
}

// Must be called with mutex locked.
func (c *lruCache) removeNode(node *cacheNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

// evictLRU removes the least recently used unpinned entry.
// Must be called with mutex locked.
func (c *lruCache) evictLRU() {
	for node := c.tail.prev; node != c.head; node = node.prev {
		if node.pinned {
			continue
		}
		c.removeNode(node)
		delete(c.cache, node.key)
		return
	}
}
