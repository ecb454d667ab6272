// Package client implements the library-facing half of OpenDAX: the
// fixed-capacity tag descriptor cache and the session abstraction that
// carries request/response and event traffic to the tag server.
package client

import (
	"container/list"
	"sync"

	"opendax/internal/types"
)

// TagDescriptor is the cached shape of a resolved tag: everything a
// client library needs to build a handle without asking the server
// again.
type TagDescriptor struct {
	Name  string
	Index uint32
	Type  types.ID
	Count uint
}

// entry is the payload stored in each list.Element.
type entry struct {
	key TagDescriptor
}

// Cache is a fixed-capacity LRU of resolved tag descriptors, kept in a
// doubly linked list so a hit can be rotated one step toward the head in
// O(1) without
// reallocating. Grounded on the teacher's ARCList (container/list + map),
// simplified from ARC's four lists down to the single bubble-up list
// spec.md describes.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	byName   map[string]*list.Element
}

// NewCache creates a Cache holding up to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		byName:   make(map[string]*list.Element),
	}
}

// Get looks up name, rotating it one step toward the head on a hit
// (bubble-up), so frequently used descriptors drift toward the head.
func (c *Cache) Get(name string) (TagDescriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byName[name]
	if !ok {
		return TagDescriptor{}, false
	}
	if prev := el.Prev(); prev != nil {
		c.order.MoveBefore(el, prev)
	}
	return el.Value.(*entry).key, true
}

// Put inserts or refreshes a descriptor, evicting the tail entry if the
// cache is at capacity and the name is new.
func (c *Cache) Put(d TagDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byName[d.Name]; ok {
		el.Value.(*entry).key = d
		c.order.MoveToFront(el)
		return
	}

	if c.order.Len() >= c.capacity {
		tail := c.order.Back()
		if tail != nil {
			c.order.Remove(tail)
			delete(c.byName, tail.Value.(*entry).key.Name)
		}
	}

	el := c.order.PushFront(&entry{key: d})
	c.byName[d.Name] = el
}

// Invalidate removes name from the cache, e.g. after the server reports
// the tag was deleted.
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byName[name]
	if !ok {
		return
	}
	c.order.Remove(el)
	delete(c.byName, name)
}

// Len reports the number of cached descriptors.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
