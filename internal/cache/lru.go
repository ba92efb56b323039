package cache

import (
	"sync"
)

// Cache is a thread-safe LRU cache of values derived from input files.
// Entries remember the path they came from so they can be invalidated by path.
type Cache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used

	// OnLookup, when set, is called after every Get with the lookup result.
	OnLookup func(hit bool)
}

type entry[V any] struct {
	key   string
	path  string
	value V
	prev  *entry[V]
	next  *entry[V]
}

// New creates a cache bounded to maxEntries (at least 1).
func New[V any](maxEntries int) *Cache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Cache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		c.moveToFront(e)
	}
	c.mu.Unlock()

	if c.OnLookup != nil {
		c.OnLookup(ok)
	}
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, recording path as its source file.
func (c *Cache[V]) Put(key, path string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.path = path
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, path: path, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

// Invalidate drops every entry derived from path and returns how many were removed.
func (c *Cache[V]) Invalidate(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if e.path == path {
			c.remove(e)
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Purge empties the cache.
func (c *Cache[V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
	c.head, c.tail = nil, nil
}

func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *Cache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *Cache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
