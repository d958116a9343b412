package cache

import "github.com/SystemBuilders/LocKey/internal/rsrvid"

// ReplicaKey implements Key over a RsrvId.
type ReplicaKey struct {
	Value rsrvid.RsrvId
}

// Data returns the underlying RsrvId.
func (rk *ReplicaKey) Data() interface{} { return rk.Value }

// NewReplicaKey returns a new ReplicaKey for id.
func NewReplicaKey(id rsrvid.RsrvId) *ReplicaKey {
	return &ReplicaKey{Value: id}
}

// Assert that *DLLNode implements Node.
var _ Node = (*DLLNode)(nil)

// Left returns the node to the left of the current node.
func (n *DLLNode) Left() Node { return n.LeftNode }

// Right returns the node to the right of the current node.
func (n *DLLNode) Right() Node { return n.RightNode }

// Key returns the key of the node.
func (n *DLLNode) Key() Key { return n.NodeKey }

// DLLNode is the single entity of the doubly linked list.
type DLLNode struct {
	LeftNode  *DLLNode
	RightNode *DLLNode
	NodeKey   *ReplicaKey
}

// Assert that *DoublyLinkedList implements LinkedList.
var _ LinkedList = (*DoublyLinkedList)(nil)

// DoublyLinkedList implements LinkedList. Head is always the
// most-recently-used node; the list has no separate tail pointer — the
// LRUCache that owns it tracks that itself.
type DoublyLinkedList struct {
	Head *DLLNode
}

// NewDoublyLinkedList returns a new, empty DoublyLinkedList.
func NewDoublyLinkedList() *DoublyLinkedList {
	return &DoublyLinkedList{}
}

// InsertNodeToLeft inserts a new node holding key to the left of node and
// returns it. Passing a nil node (or a nil Head) starts a fresh list.
func (dll *DoublyLinkedList) InsertNodeToLeft(node Node, key Key) Node {
	newNode := &DLLNode{NodeKey: key.(*ReplicaKey)}

	dn, _ := node.(*DLLNode)
	if dn == nil {
		dll.Head = newNode
		return newNode
	}

	left := dn.LeftNode
	newNode.LeftNode = left
	newNode.RightNode = dn
	dn.LeftNode = newNode
	if left != nil {
		left.RightNode = newNode
	}
	if dn == dll.Head {
		dll.Head = newNode
	}
	return newNode
}

// DeleteNode removes node from the list.
func (dll *DoublyLinkedList) DeleteNode(node Node) {
	if node == nil {
		return
	}
	dn := node.(*DLLNode)
	left, right := dn.LeftNode, dn.RightNode

	if left != nil {
		left.RightNode = right
	}
	if right != nil {
		right.LeftNode = left
	}
	if dll.Head == dn {
		dll.Head = right
	}
}
