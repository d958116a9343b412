// Package nodedir implements the Node Directory collaborator described in
// spec.md §6: "my_node_id()", "send<M>(dest, msg, payload_bytes)" over a
// reliable, per-pair-ordered channel to any node.
//
// The reservation core never designs a wire transport (spec.md §1 lists
// the transport as deliberately out of scope); this package supplies the
// minimal concrete instantiation needed to run a cluster of nodes in one
// process or in tests, honoring exactly the "reliable, ordered per (from,
// to) pair" assumption spec.md §5 states and nothing more. It plays the
// role the teacher's internal/node + internal/routing packages play for
// SimpleLockService: the thing that turns an abstract service into a
// running, addressable node.
package nodedir

import (
	"sync"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// NodeID re-exports rsrvid.NodeID for callers that only need addressing.
type NodeID = rsrvid.NodeID

// Handler processes one message delivered to a node, in the order it was
// sent by each individual peer.
type Handler func(from NodeID, msg any)

type link struct {
	mu sync.Mutex // serializes sends on this (from,to) pair
	ch chan envelope
}

type envelope struct {
	from NodeID
	msg  any
}

type endpoint struct {
	handler Handler
	links   map[NodeID]*link // keyed by sender
}

// Network is a shared in-memory cluster fabric: a set of endpoints (one
// per node) that can send each other typed messages with per-pair FIFO
// delivery. It stands in for "a reliable ordered active-message facility
// to any node" (spec.md §6).
type Network struct {
	mu        sync.Mutex
	endpoints map[NodeID]*endpoint
}

// NewNetwork returns an empty cluster fabric.
func NewNetwork() *Network {
	return &Network{endpoints: make(map[NodeID]*endpoint)}
}

// Register binds handler as the message sink for node id and returns a
// Directory view of the network scoped to that node. Registering the same
// id twice replaces the previous handler.
func (n *Network) Register(id NodeID, handler Handler) *Directory {
	n.mu.Lock()
	n.endpoints[id] = &endpoint{handler: handler, links: make(map[NodeID]*link)}
	n.mu.Unlock()
	return &Directory{net: n, self: id}
}

func (n *Network) linkFor(from, to NodeID) *link {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[to]
	if !ok {
		return nil
	}
	l, ok := ep.links[from]
	if !ok {
		l = &link{ch: make(chan envelope, 256)}
		ep.links[from] = l
		go n.drain(to, l)
	}
	return l
}

func (n *Network) drain(to NodeID, l *link) {
	for env := range l.ch {
		n.mu.Lock()
		ep, ok := n.endpoints[to]
		n.mu.Unlock()
		if !ok {
			continue
		}
		ep.handler(env.from, env.msg)
	}
}

// Directory is the per-node handle onto a Network: spec.md §6's Node
// Directory interface, consumed (never designed) by the reservation core.
type Directory struct {
	net  *Network
	self NodeID
}

// MyNodeID returns the id of the node this Directory was registered for.
func (d *Directory) MyNodeID() NodeID {
	return d.self
}

// Send delivers msg to dest, preserving send order relative to every
// other Send call this Directory has made to the same dest.
func (d *Directory) Send(dest NodeID, msg any) {
	l := d.net.linkFor(d.self, dest)
	if l == nil {
		// unreachable/unknown node: the transport is assumed reliable
		// per spec.md §6, so an unregistered destination is a
		// programming error, not a retriable failure.
		panic("nodedir: send to unregistered node")
	}
	l.mu.Lock()
	l.ch <- envelope{from: d.self, msg: msg}
	l.mu.Unlock()
}
