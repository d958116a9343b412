package reservation

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/nodedir"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// TraceEvent is a single hook point fired while servicing a reservation
// operation, in place of the original's #ifdef LOCK_TRACING blocks
// (SPEC_FULL.md §11): an optional zero-cost-by-default observability seam
// rather than a compile-time flag, since Go has none.
type TraceEvent struct {
	Kind string // "acquire", "release", "grant", "request", "destroy"
	ID   rsrvid.RsrvId
	Mode Mode
}

// replicaCache lets a bounded LRU (internal/cache) decide when idle,
// non-owning replicas may be forgotten. A Manager with no cache configured
// never evicts.
type replicaCache interface {
	Touch(id rsrvid.RsrvId)
}

// Manager owns every replica this node holds and is the node's side of the
// reservation wire protocol. It plays the role Reservation/ReservationImpl
// together play in rsrv_impl.cc, scoped to one node.
type Manager struct {
	self  rsrvid.NodeID
	alloc *rsrvid.Allocator
	dir   *nodedir.Directory
	log   zerolog.Logger

	mu       sync.Mutex
	replicas map[rsrvid.RsrvId]*replica

	cache   replicaCache
	onTrace func(TraceEvent)
}

// NewManager returns a Manager bound to dir, which must have been
// registered under the same node id as self.
func NewManager(dir *nodedir.Directory, log zerolog.Logger) *Manager {
	m := &Manager{
		self:     dir.MyNodeID(),
		alloc:    rsrvid.NewAllocator(dir.MyNodeID()),
		dir:      dir,
		log:      log.With().Str("component", "reservation").Uint16("node", uint16(dir.MyNodeID())).Logger(),
		replicas: make(map[rsrvid.RsrvId]*replica),
	}
	return m
}

// SetReplicaCache wires an eviction policy for non-owning replicas
// (SPEC_FULL.md §9 EXPANSION). Optional.
func (m *Manager) SetReplicaCache(c replicaCache) { m.cache = c }

// SetTraceHook installs fn to be called at each protocol step. Optional.
func (m *Manager) SetTraceHook(fn func(TraceEvent)) { m.onTrace = fn }

func (m *Manager) trace(kind string, id rsrvid.RsrvId, mode Mode) {
	if m.onTrace != nil {
		m.onTrace(TraceEvent{Kind: kind, ID: id, Mode: mode})
	}
}

// HandleMessage dispatches a message delivered by the node directory to
// this node. Callers register it as the Handler passed to
// nodedir.Network.Register.
func (m *Manager) HandleMessage(from rsrvid.NodeID, msg any) {
	switch t := msg.(type) {
	case LockRequestMsg:
		m.handleLockRequest(from, t)
	case LockReleaseMsg:
		m.handleLockRelease(from, t)
	case LockGrantMsg:
		m.handleLockGrant(from, t)
	case DestroyLockMsg:
		m.handleDestroyLock(from, t)
	default:
		invariantViolation("unrecognized reservation message type")
	}
}

// getOrCreateReplica never calls into m.cache while holding m.mu: the
// cache's own eviction callback calls back into Evictable/Forget, which
// take m.mu themselves, so touching the cache must happen after m.mu is
// released to avoid a self-deadlock.
func (m *Manager) getOrCreateReplica(id rsrvid.RsrvId) *replica {
	m.mu.Lock()
	r, ok := m.replicas[id]
	if !ok {
		r = newReplica(id, id.CreatorNode())
		r.inUse = false
		m.replicas[id] = r
	}
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Touch(id)
	}
	return r
}

// Evictable reports whether id's replica may be safely dropped from
// memory: neither created nor owned here, idle, no request in flight, and
// nobody local is waiting on it. Called by the configured replicaCache
// before it actually evicts an entry.
func (m *Manager) Evictable(id rsrvid.RsrvId) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.replicas[id]
	if !ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return id.CreatorNode() != m.self &&
		r.owner != m.self &&
		!r.requested &&
		r.count == ZeroCount &&
		len(r.localWaiters) == 0 &&
		len(r.retryEvents) == 0
}

// Forget drops id's replica, if still evictable. Safe to call speculatively.
func (m *Manager) Forget(id rsrvid.RsrvId) {
	if !m.Evictable(id) {
		return
	}
	m.mu.Lock()
	delete(m.replicas, id)
	m.mu.Unlock()
}

// Create mints a fresh reservation owned by this node, optionally carrying
// an initial payload (spec.md §4.1 create). Grounded on
// Reservation::create_reservation / ReservationImpl::init.
func (m *Manager) Create(payload []byte) (rsrvid.RsrvId, error) {
	id := m.alloc.Next()
	if !id.Exists() {
		return rsrvid.NoRsrv, ErrExhausted
	}
	r := newReplica(id, m.self)
	if len(payload) > 0 {
		r.localData = append([]byte(nil), payload...)
	}
	m.mu.Lock()
	m.replicas[id] = r
	m.mu.Unlock()
	return id, nil
}

// Acquire requests mode access to id (spec.md §4.1 acquire /
// §6 Rsrv::acquire). If precondition is a real, not-yet-triggered token,
// the acquire is deferred until precondition fires (BLOCKING) or a
// placeholder retry slot is reserved and precondition itself is returned
// (NONBLOCKING variants) — this is Reservation::acquire/try_acquire
// collapsed into one entry point, matching spec.md's unified signature.
func (m *Manager) Acquire(id rsrvid.RsrvId, mode Mode, exclusive bool, acqType AcqType, precondition event.CEvent) event.CEvent {
	if exclusive {
		mode = ModeExcl
	}

	if precondition.Exists() {
		if triggered, poisoned := precondition.HasTriggered(); !triggered {
			if acqType == Blocking {
				return newDeferredAcquire(m, id, mode, precondition).register()
			}
			m.internalAcquire(id, mode, NonblockingPlaceholder, event.NoEvent)
			return precondition
		} else if poisoned {
			out := event.CreateFresh()
			out.Trigger(true)
			return out
		}
		// triggered, unpoisoned: fall through to an ordinary acquire.
	}

	return m.internalAcquire(id, mode, acqType, event.NoEvent)
}

// DeferredAcquire is the explicit, always-blocking form of Acquire bound
// to a precondition (spec.md §4.1 deferred_acquire).
func (m *Manager) DeferredAcquire(id rsrvid.RsrvId, mode Mode, exclusive bool, precondition event.CEvent) event.CEvent {
	if exclusive {
		mode = ModeExcl
	}
	return m.Acquire(id, mode, exclusive, Blocking, precondition)
}

// acquireReusing performs a BLOCKING acquire, reusing an existing token as
// the one to trigger on grant instead of minting a fresh one. Used by
// deferredAcquire.Fire once its precondition has resolved, mirroring
// ReservationImpl::acquire(mode, exclusive, ACQUIRE_BLOCKING, after_lock).
func (m *Manager) acquireReusing(id rsrvid.RsrvId, mode Mode, reuse event.CEvent) event.CEvent {
	return m.internalAcquire(id, mode, Blocking, reuse)
}

// internalAcquire is ReservationImpl::acquire: no precondition handling,
// just the local/remote grantability check, message send, and waiter
// bookkeeping. reuse, if it Exists(), is the token to park/trigger instead
// of minting a fresh one (used by the deferred-acquire continuation).
func (m *Manager) internalAcquire(id rsrvid.RsrvId, mode Mode, acqType AcqType, reuse event.CEvent) event.CEvent {
	m.trace("acquire", id, mode)

	if acqType == NonblockingPlaceholder {
		r := m.getOrCreateReplica(id)
		r.mu.Lock()
		r.retryCount[mode]++
		r.mu.Unlock()
		return event.NoEvent
	}

	r := m.getOrCreateReplica(id)

	var gotLock bool
	var sendRequestTo rsrvid.NodeID
	sendRequest := false
	var bonusGrants []event.CEvent
	token := reuse

	r.mu.Lock()
	if r.owner == m.self {
		if r.grantableLocally(mode) {
			r.mode = mode
			r.count++
			gotLock = true
			// Fun special case: a shared-mode grant lets any local waiters
			// and nonblocking retriers already queued for the same mode
			// come along for the ride instead of waiting their turn.
			// Grounded on ReservationImpl::acquire's bonus_grants sweep.
			// The localWaiters half bumps count for each grantee, since
			// those callers never call Acquire again (see DESIGN.md —
			// matches spec.md's scenario 4 final count). The retryEvents
			// half does not: each swept retrier still owes its own
			// mandatory NonblockingRetry completion call, which is where
			// its count increment belongs.
			if mode != ModeExcl {
				if group, ok := r.localWaiters[mode]; ok {
					bonusGrants = append(bonusGrants, group...)
					r.count += len(group)
					delete(r.localWaiters, mode)
				}
				if ev, ok := r.retryEvents[mode]; ok {
					// count is deliberately left untouched here: the woken
					// retrier still owes its own mandatory NonblockingRetry
					// completion call (spec.md scenario 3), which performs
					// the one-and-only increment. Crediting count here too
					// would double-count it and wedge the replica at
					// count > ZeroCount forever.
					bonusGrants = append(bonusGrants, ev)
					delete(r.retryEvents, mode)
				}
			}
		}
	} else {
		if r.count > ZeroCount && r.mode == mode {
			r.count++
			gotLock = true
		}
		if !gotLock && !r.requested {
			sendRequestTo = r.owner
			sendRequest = true
			r.requested = true
		}
	}

	if gotLock {
		if acqType == NonblockingRetry {
			if r.retryCount[mode] > 0 {
				r.retryCount[mode]--
				if r.retryCount[mode] == 0 {
					delete(r.retryCount, mode)
				}
			}
		}
	} else {
		switch acqType {
		case Blocking:
			if !token.Exists() {
				token = event.CreateFresh()
			}
			r.localWaiters[mode] = append(r.localWaiters[mode], token)
		case Nonblocking:
			r.retryCount[mode]++
			if ev, ok := r.retryEvents[mode]; ok {
				token = ev
			} else {
				token = event.CreateFresh()
				r.retryEvents[mode] = token
			}
		case NonblockingRetry:
			if ev, ok := r.retryEvents[mode]; ok {
				token = ev
			} else {
				token = event.CreateFresh()
				r.retryEvents[mode] = token
			}
		}
	}
	r.mu.Unlock()

	if sendRequest {
		m.trace("request", id, mode)
		m.dir.Send(sendRequestTo, LockRequestMsg{From: m.self, ID: id, Mode: mode})
	}
	if gotLock && token.Exists() {
		token.Trigger(false)
	}
	for _, bg := range bonusGrants {
		bg.Trigger(false)
	}
	return token
}

type pendingRelease struct{ target rsrvid.NodeID }
type pendingGrant struct {
	target  rsrvid.NodeID
	waiters []rsrvid.NodeID
	payload []byte
}

// releaseOne decrements one holder off r and, once idle, runs the same
// cascade whether the caller is a local holder or a remote sharer telling
// us it's done — spec.md §4.1 says a LockRelease message is "treated like
// a local release() of one exclusive count", i.e. it goes through this
// exact function too. Grounded on ReservationImpl::release.
func (m *Manager) releaseOne(r *replica) (toWake []event.CEvent, rel *pendingRelease, grant *pendingGrant) {
	r.mu.Lock()
	if r.count <= ZeroCount {
		r.mu.Unlock()
		invariantViolation("release with no active holder")
	}
	r.count--
	if r.count > ZeroCount {
		r.mu.Unlock()
		return nil, nil, nil
	}

	if r.owner != m.self {
		r.mode = 0
		target := r.owner
		r.mu.Unlock()
		return nil, &pendingRelease{target: target}, nil
	}

	if woke, ok := r.selectLocalWaiters(); ok {
		r.mu.Unlock()
		return woke, nil, nil
	}

	if !r.remoteWaiterMask.empty() && len(r.retryCount) == 0 {
		newOwner, _ := r.remoteWaiterMask.takeLowest()
		waiters := r.remoteWaiterMask.snapshot()
		payload := append([]byte(nil), r.localData...)
		r.owner = newOwner
		r.remoteWaiterMask = newNodeSet()
		r.mu.Unlock()
		return nil, nil, &pendingGrant{target: newOwner, waiters: waiters, payload: payload}
	}

	r.mu.Unlock()
	return nil, nil, nil
}

func (m *Manager) applyRelease(id rsrvid.RsrvId, toWake []event.CEvent, rel *pendingRelease, grant *pendingGrant) {
	if rel != nil {
		m.dir.Send(rel.target, LockReleaseMsg{ID: id})
	}
	if grant != nil {
		m.trace("grant", id, 0)
		m.dir.Send(grant.target, LockGrantMsg{ID: id, Mode: 0, Waiters: grant.waiters, Payload: grant.payload})
	}
	for _, w := range toWake {
		w.Trigger(false)
	}
}

// Release gives up one held count of id (spec.md §4.1 release).
func (m *Manager) Release(id rsrvid.RsrvId) {
	m.trace("release", id, 0)
	m.mu.Lock()
	r, ok := m.replicas[id]
	m.mu.Unlock()
	if !ok {
		invariantViolation("release of a reservation this node never touched")
	}
	toWake, rel, grant := m.releaseOne(r)
	m.applyRelease(id, toWake, rel, grant)
}

// DeferredRelease binds a release to precondition (spec.md §4.1
// deferred_release): released inline once precondition resolves
// unpoisoned, logged and skipped if it resolves poisoned, or immediately
// if precondition is already resolved.
func (m *Manager) DeferredRelease(id rsrvid.RsrvId, precondition event.CEvent) {
	if !precondition.Exists() {
		m.Release(id)
		return
	}
	if triggered, poisoned := precondition.HasTriggered(); triggered {
		if poisoned {
			m.log.Warn().Uint64("rsrv", uint64(id)).Msg("skipping release: precondition was poisoned")
			return
		}
		m.Release(id)
		return
	}
	newDeferredRelease(m, id, precondition).register()
}

// Destroy retires id (spec.md §4.1 destroy). Non-creator callers forward
// the request to the creator node, grounded on
// Reservation::destroy_reservation / DestroyLockMessage::handle_message.
func (m *Manager) Destroy(id rsrvid.RsrvId) {
	if id.CreatorNode() != m.self {
		m.dir.Send(id.CreatorNode(), DestroyLockMsg{Actual: id})
		return
	}
	m.destroyAtCreator(id)
}

// destroyAtCreator acquires id exclusively, then frees it, deferring the
// free if the exclusive acquire doesn't complete immediately. Grounded on
// Reservation::destroy_reservation's use of DeferredLockDestruction.
func (m *Manager) destroyAtCreator(id rsrvid.RsrvId) {
	ev := m.internalAcquire(id, ModeExcl, Blocking, event.NoEvent)
	if !ev.Exists() {
		m.finishDestroy(id)
		return
	}
	newDeferredDestroy(m, id).register(ev)
}

// finishDestroy releases the exclusive hold acquired for destruction and
// drops the replica. Grounded on the tail of
// Reservation::destroy_reservation / ReservationImpl::release_reservation.
func (m *Manager) finishDestroy(id rsrvid.RsrvId) {
	m.trace("destroy", id, 0)
	m.mu.Lock()
	r, ok := m.replicas[id]
	if !ok {
		m.mu.Unlock()
		invariantViolation("destroy of a replica that vanished mid-flight")
	}
	delete(m.replicas, id)
	m.mu.Unlock()

	r.mu.Lock()
	if r.count != ZeroCount+1 || r.mode != ModeExcl || len(r.localWaiters) != 0 {
		r.mu.Unlock()
		invariantViolation("destroy invariants violated at the moment of teardown")
	}
	r.inUse = false
	r.localData = nil
	r.mu.Unlock()
}

// IsLocked reports whether this node's replica of id has any active
// holder. Holders on other nodes are not seen. A SUPPLEMENTED FEATURE
// (SPEC_FULL.md §11), simplified from the original's is_locked: it takes
// no mode argument and does not distinguish exclusive from shared holds.
func (m *Manager) IsLocked(id rsrvid.RsrvId) bool {
	m.mu.Lock()
	r, ok := m.replicas[id]
	m.mu.Unlock()
	if !ok {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count != ZeroCount
}

func (m *Manager) handleLockRequest(from rsrvid.NodeID, msg LockRequestMsg) {
	r := m.getOrCreateReplica(msg.ID)

	var forward, grant bool
	var target rsrvid.NodeID
	var waiters []rsrvid.NodeID
	var payload []byte

	r.mu.Lock()
	switch {
	case r.owner != m.self:
		forward = true
		target = r.owner
	case r.count == ZeroCount && r.remoteSharerMask.empty() && len(r.retryCount) == 0:
		if !r.remoteWaiterMask.empty() {
			r.mu.Unlock()
			invariantViolation("owner idle but remote_waiter_mask non-empty")
		}
		grant = true
		target = msg.From
		waiters = nil
		payload = append([]byte(nil), r.localData...)
		r.owner = msg.From
	default:
		r.remoteWaiterMask.add(msg.From)
	}
	r.mu.Unlock()

	if forward {
		m.dir.Send(target, msg)
		return
	}
	if grant {
		m.trace("grant", msg.ID, 0)
		m.dir.Send(target, LockGrantMsg{ID: msg.ID, Mode: 0, Waiters: waiters, Payload: payload})
	}
}

func (m *Manager) handleLockRelease(from rsrvid.NodeID, msg LockReleaseMsg) {
	r := m.getOrCreateReplica(msg.ID)
	toWake, rel, grant := m.releaseOne(r)
	m.applyRelease(msg.ID, toWake, rel, grant)
}

func (m *Manager) handleLockGrant(from rsrvid.NodeID, msg LockGrantMsg) {
	r := m.getOrCreateReplica(msg.ID)

	r.mu.Lock()
	if r.owner == m.self {
		r.mu.Unlock()
		invariantViolation("grant received while already owner")
	}
	if !r.requested {
		r.mu.Unlock()
		invariantViolation("grant received with no outstanding request")
	}
	r.remoteWaiterMask = nodeSetFromSlice(msg.Waiters)
	if len(msg.Payload) > 0 {
		r.localData = append([]byte(nil), msg.Payload...)
	}
	if msg.Mode == 0 {
		r.mode = ModeExcl
		r.owner = m.self
	} else {
		r.mode = msg.Mode
	}
	r.requested = false

	toWake, ok := r.selectLocalWaiters()
	if !ok {
		r.mu.Unlock()
		invariantViolation("grant arrived with no local waiter queued for it")
	}
	r.mu.Unlock()

	for _, w := range toWake {
		w.Trigger(false)
	}
}

func (m *Manager) handleDestroyLock(from rsrvid.NodeID, msg DestroyLockMsg) {
	if msg.Actual.CreatorNode() != m.self {
		m.dir.Send(msg.Actual.CreatorNode(), msg)
		return
	}
	m.destroyAtCreator(msg.Actual)
}
