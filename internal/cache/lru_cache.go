package cache

import (
	"sync"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// LRUCache implements a fixed-capacity cache over RsrvId. It uses a linked
// list as the primary data structure along with a hash-map for checking
// existence of an element in the cache.
//
// The starting element in the linked list is always the most recently
// used element in the cache, maintained that way by all the operating
// functions:
//   - Touch (this package's replacement for the teacher's GetElement, since
//     there is no per-element payload to return here — only presence and
//     recency matter for replica eviction) moves an existing key to MRU.
//   - put (reached through Touch for a key not yet cached) inserts a new
//     key at MRU, evicting the LRU key when full.
//   - Remove deletes a key from wherever it sits in the list.
//
// Adapted from the teacher's internal/cache.LRUCache, which was keyed on a
// SimpleKey(int) carrying an unused Owner string and referenced a Cache
// interface that was never declared anywhere in that package. This
// version drops both defects: it's keyed directly on rsrvid.RsrvId, and
// it makes no claim to implement an interface it doesn't need to.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	size     int
	tail     *DLLNode
	m        map[rsrvid.RsrvId]*DLLNode
	dll      *DoublyLinkedList

	// onEvict, if set, is called with the key dropped to make room for a
	// new one. Called while mu is held, so it must not call back into
	// the cache.
	onEvict func(rsrvid.RsrvId)
}

// NewLRUCache creates a new LRUCache of the given capacity.
func NewLRUCache(capacity int) *LRUCache {
	return &LRUCache{
		capacity: capacity,
		m:        make(map[rsrvid.RsrvId]*DLLNode),
		dll:      NewDoublyLinkedList(),
	}
}

// OnEvict registers a callback fired synchronously whenever Put drops the
// least-recently-used key to make room for a new one.
func (lru *LRUCache) OnEvict(fn func(rsrvid.RsrvId)) {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	lru.onEvict = fn
}

// Contains reports whether id is currently cached, without affecting its
// recency.
func (lru *LRUCache) Contains(id rsrvid.RsrvId) bool {
	lru.mu.Lock()
	defer lru.mu.Unlock()
	_, ok := lru.m[id]
	return ok
}

// Touch marks id as the most recently used entry, inserting it at
// capacity's expense if it isn't already cached. Returns ErrCacheFull
// only when the cache has zero capacity.
func (lru *LRUCache) Touch(id rsrvid.RsrvId) error {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	if node, ok := lru.m[id]; ok {
		lru.bumpToHead(node)
		return nil
	}
	return lru.put(id)
}

// Remove deletes id from the cache, wherever it sits.
func (lru *LRUCache) Remove(id rsrvid.RsrvId) error {
	lru.mu.Lock()
	defer lru.mu.Unlock()

	node, ok := lru.m[id]
	if !ok {
		return ErrElementDoesntExist
	}
	lru.deleteNode(node)
	return nil
}

// Capacity returns the max capacity of the cache.
func (lru *LRUCache) Capacity() int { return lru.capacity }

// Size returns the number of elements in the cache.
func (lru *LRUCache) Size() int { return lru.size }

// bumpToHead moves node to the MRU position. Must be called with mu held.
func (lru *LRUCache) bumpToHead(node *DLLNode) {
	if lru.dll.Head == node {
		return
	}
	if lru.tail == node {
		lru.tail = node.LeftNode
	}
	key := node.NodeKey
	lru.dll.DeleteNode(node)
	newNode := lru.dll.InsertNodeToLeft(lru.dll.Head, key).(*DLLNode)
	lru.m[key.Value] = newNode
	if lru.tail == nil {
		lru.tail = newNode
	}
}

// put inserts a fresh id at MRU, evicting the LRU entry if full. Must be
// called with mu held.
func (lru *LRUCache) put(id rsrvid.RsrvId) error {
	if lru.capacity <= 0 {
		return ErrCacheFull
	}

	key := NewReplicaKey(id)
	newHead := lru.dll.InsertNodeToLeft(lru.dll.Head, key).(*DLLNode)
	lru.m[id] = newHead
	if lru.dll.Head == newHead && lru.tail == nil {
		lru.tail = newHead
	}
	lru.size++

	if lru.size > lru.capacity {
		evicted := lru.tail
		lru.deleteNode(evicted)
		if lru.onEvict != nil {
			lru.onEvict(evicted.NodeKey.Value)
		}
	}
	return nil
}

// deleteNode removes node from both the list and the map, fixing up tail
// as needed. Must be called with mu held.
func (lru *LRUCache) deleteNode(node *DLLNode) {
	if lru.tail == node {
		lru.tail = node.LeftNode
	}
	lru.dll.DeleteNode(node)
	delete(lru.m, node.NodeKey.Value)
	lru.size--
}
