// Package reservation implements the distributed migratory reader/writer
// lock described in spec.md §4.1: Rsrv / RsrvImpl, its message protocol,
// and the Deferred Action Layer (§4.3) that wires completion tokens into
// it.
//
// Grounded on ReservationImpl in
// _examples/original_source/runtime/realm/rsrv_impl.cc.
package reservation

import "github.com/SystemBuilders/LocKey/internal/rsrvid"

// Mode is a reservation access mode: either ModeExcl (exclusive) or a
// non-negative sharer tag. Sharer tags compare numerically; the lowest
// numbered sharer tag present among waiters is highest priority, except
// that ModeExcl waiters are always favored first regardless of its
// (deliberately large) numeric value. This mirrors MODE_EXCL being handled
// as a special case in ReservationImpl::select_local_waiters rather than
// relying on ordered-map iteration order.
type Mode uint32

// ModeExcl is the sentinel mode meaning "exclusive access". It is chosen
// as the maximum representable Mode so that, were it ever compared
// numerically by mistake, it would sort last rather than silently winning
// a priority comparison meant for sharer tags.
const ModeExcl Mode = ^Mode(0)

// ZeroCount biases RsrvImpl.count so "no active holders" is a specific
// non-zero sentinel, simplifying the arithmetic around grants/releases
// (spec.md §3 glossary: ZERO_COUNT).
const ZeroCount = 1 << 16

// AcqType selects how an ungrantable acquire behaves (spec.md glossary).
type AcqType int

const (
	// Blocking parks the caller's token in local_waiters until granted.
	Blocking AcqType = iota
	// Nonblocking records a fresh retry expectation and returns a retry
	// token shared by all current nonblocking waiters of that mode.
	Nonblocking
	// NonblockingRetry is a retry of a previous Nonblocking attempt; it
	// does not bump retry_count again.
	NonblockingRetry
	// NonblockingPlaceholder only records that a retry will eventually
	// be attempted, without creating or returning a usable token.
	NonblockingPlaceholder
)

func (t AcqType) String() string {
	switch t {
	case Blocking:
		return "BLOCKING"
	case Nonblocking:
		return "NONBLOCKING"
	case NonblockingRetry:
		return "NONBLOCKING_RETRY"
	case NonblockingPlaceholder:
		return "NONBLOCKING_PLACEHOLDER"
	default:
		return "UNKNOWN"
	}
}

// NodeSet is a small unordered set of node ids, used for remote_waiter_mask
// and its wire-format snapshot.
type NodeSet map[rsrvid.NodeID]struct{}

func newNodeSet() NodeSet { return make(NodeSet) }

func (s NodeSet) add(n rsrvid.NodeID)    { s[n] = struct{}{} }
func (s NodeSet) remove(n rsrvid.NodeID) { delete(s, n) }
func (s NodeSet) empty() bool            { return len(s) == 0 }

// takeLowest removes and returns the numerically smallest member of s. Any
// deterministic choice satisfies spec.md's release state machine; lowest
// id keeps tests reproducible.
func (s NodeSet) takeLowest() (rsrvid.NodeID, bool) {
	first := true
	var lowest rsrvid.NodeID
	for n := range s {
		if first || n < lowest {
			lowest = n
			first = false
		}
	}
	if first {
		return 0, false
	}
	delete(s, lowest)
	return lowest, true
}

func (s NodeSet) snapshot() []rsrvid.NodeID {
	out := make([]rsrvid.NodeID, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	return out
}

func nodeSetFromSlice(ns []rsrvid.NodeID) NodeSet {
	s := newNodeSet()
	for _, n := range ns {
		s.add(n)
	}
	return s
}
