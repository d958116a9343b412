package reservation

import (
	"sync"

	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// replica is one node's view of a reservation: RsrvImpl from spec.md §3.
// A node holds a replica for every RsrvId it has ever created, acquired,
// or been asked about; exactly one node's replica has owner == that node
// at any instant per lock (spec.md §3 invariant).
type replica struct {
	mu sync.Mutex

	id    rsrvid.RsrvId
	owner rsrvid.NodeID

	count int  // ZeroCount-biased holder count
	mode  Mode // meaningful only while count > ZeroCount

	localWaiters map[Mode][]event.CEvent // blocking waiters, grouped by requested mode
	retryEvents  map[Mode]event.CEvent   // one shared retry token per pending nonblocking mode
	retryCount   map[Mode]int            // outstanding placeholder+nonblocking retries per mode

	remoteWaiterMask NodeSet // owner-only: other nodes waiting for this lock
	remoteSharerMask NodeSet // reserved for a future shared cross-node grant; always empty today

	requested bool // owner != self and a LockRequestMsg is already in flight
	inUse     bool // creator-only: false once destroy_reservation has run

	localData []byte
}

func newReplica(id rsrvid.RsrvId, owner rsrvid.NodeID) *replica {
	return &replica{
		id:               id,
		owner:            owner,
		count:            ZeroCount,
		localWaiters:     make(map[Mode][]event.CEvent),
		retryEvents:      make(map[Mode]event.CEvent),
		retryCount:       make(map[Mode]int),
		remoteWaiterMask: newNodeSet(),
		remoteSharerMask: newNodeSet(),
		inUse:            true,
	}
}

// minKeyLocalWaiters returns the lowest sharer-tag key present in
// localWaiters, ignoring ModeExcl (callers check ModeExcl separately).
func minKeyLocalWaiters(m map[Mode][]event.CEvent) (Mode, bool) {
	first := true
	var min Mode
	for k := range m {
		if k == ModeExcl {
			continue
		}
		if first || k < min {
			min, first = k, false
		}
	}
	return min, !first
}

func minKeyRetryEvents(m map[Mode]event.CEvent) (Mode, bool) {
	first := true
	var min Mode
	for k := range m {
		if first || k < min {
			min, first = k, false
		}
	}
	return min, !first
}

// selectLocalWaiters picks the next local waiter group(s) to grant now
// that the replica is idle, sets mode/count for the grant, and returns the
// tokens to trigger. Returns ok == false if there was nothing to grant.
//
// Grounded line-for-line on ReservationImpl::select_local_waiters:
// exclusive waiters are favored outright (blocking ones first, then an
// exclusive retry token); otherwise the numerically lowest
// mode between local_waiters and retry_events wins, ties favoring
// local_waiters (the "it->first <= it2->first" comparison in the original).
func (r *replica) selectLocalWaiters() (toWake []event.CEvent, ok bool) {
	if len(r.localWaiters) == 0 && len(r.retryEvents) == 0 {
		return nil, false
	}

	if waiters, has := r.localWaiters[ModeExcl]; has {
		toWake = append(toWake, waiters[0])
		if len(waiters) > 1 {
			r.localWaiters[ModeExcl] = waiters[1:]
		} else {
			delete(r.localWaiters, ModeExcl)
		}
		r.mode = ModeExcl
		r.count = ZeroCount + 1
		return toWake, true
	}

	if ev, has := r.retryEvents[ModeExcl]; has {
		toWake = append(toWake, ev)
		delete(r.retryEvents, ModeExcl)
		return toWake, true
	}

	lwMode, lwOK := minKeyLocalWaiters(r.localWaiters)
	reMode, reOK := minKeyRetryEvents(r.retryEvents)

	switch {
	case lwOK && (!reOK || lwMode <= reMode):
		group := r.localWaiters[lwMode]
		delete(r.localWaiters, lwMode)
		r.mode = lwMode
		r.count = ZeroCount + len(group)
		toWake = append(toWake, group...)
		return toWake, true
	case reOK:
		toWake = append(toWake, r.retryEvents[reMode])
		delete(r.retryEvents, reMode)
		// A retry grant doesn't change count/mode here: the retrying
		// caller re-enters acquire() and does its own accounting, exactly
		// as a fresh acquire would (spec.md §4.1 acquire state machine,
		// NONBLOCKING_RETRY case).
		return toWake, true
	default:
		return nil, false
	}
}

// grantableLocally reports whether, with this node already owning the
// lock, a request for newMode can be satisfied immediately by joining the
// current sharers rather than queueing. Grounded on the ZERO_COUNT / mode
// match / no-higher-priority-waiter test in ReservationImpl::acquire case 2:
// a queued exclusive waiter, or a queued sharer with a tag <= newMode,
// blocks the join.
func (r *replica) grantableLocally(newMode Mode) bool {
	if r.count == ZeroCount {
		return true
	}
	if newMode == ModeExcl || r.mode != newMode {
		return false
	}
	if _, has := r.localWaiters[ModeExcl]; has {
		return false
	}
	if min, ok := minKeyLocalWaiters(r.localWaiters); ok && min <= newMode {
		return false
	}
	return true
}
