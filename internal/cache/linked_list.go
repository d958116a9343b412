// Package cache implements a capacity-bounded LRU over reservation
// replicas: when a node has acquired or been asked about more remote
// RsrvIds than it wants to keep fully materialized, the least recently
// touched entry leaves the cache, and its replica is dropped if it is idle.
//
// Adapted from the teacher's internal/cache package (doubly linked list +
// hash map LRU over an int-valued SimpleKey). The teacher's version here
// only ever exercised int keys and a string "Owner" value that didn't
// belong to this domain; this keeps its DLL/LRU shape and naming but
// retargets the key type to a RsrvId and drops the Owner field, which
// SPEC_FULL.md's replica-eviction use has no need for.
package cache

// Key describes a single key held by a linked-list node.
type Key interface {
	Data() interface{}
}

// Node describes a single node in the linked list.
type Node interface {
	Left() Node
	Right() Node
	Key() Key
}

// LinkedList describes a linked-list object.
type LinkedList interface {
	// InsertNodeToLeft inserts a node to the left of node with the given
	// key and returns the new node. A nil node means "the list is empty;
	// make this the only node".
	InsertNodeToLeft(node Node, key Key) Node
	// DeleteNode removes node from the linked list.
	DeleteNode(node Node)
}
