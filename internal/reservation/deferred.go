package reservation

import (
	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// This file is the Deferred Action Layer (spec.md §4.3): a small closed
// set of one-shot continuations fired when a precondition token resolves.
// Grounded on DeferredLockRequest, DeferredUnlockRequest, and
// DeferredLockDestruction in rsrv_impl.cc, which the original keeps in the
// same translation unit as ReservationImpl for the same reason these stay
// in the same package here — they reach directly into replica state that
// has no business being public API.
//
// Each type is built, registered on its precondition via event.AddWaiter,
// and then dropped; nothing retains a pointer to one after Fire runs.

type deferredAcquire struct {
	mgr          *Manager
	id           rsrvid.RsrvId
	mode         Mode
	precondition event.CEvent
	out          event.CEvent
}

func newDeferredAcquire(mgr *Manager, id rsrvid.RsrvId, mode Mode, precondition event.CEvent) *deferredAcquire {
	return &deferredAcquire{mgr: mgr, id: id, mode: mode, precondition: precondition, out: event.CreateFresh()}
}

// register attaches d to its precondition and returns the token the
// original caller should wait on. Grounded on Reservation::acquire's
// "wait_on not triggered" branch constructing a DeferredLockRequest and
// returning after_lock immediately.
func (d *deferredAcquire) register() event.CEvent {
	d.precondition.AddWaiter(d)
	return d.out
}

// Fire implements event.Waiter. If the precondition poisoned, the
// acquire never happens and the poison propagates to the output token
// (spec.md §4.3: "acquire propagates poison"). Otherwise the real acquire
// runs now, reusing d.out as its token.
func (d *deferredAcquire) Fire(poisoned bool) {
	if poisoned {
		d.out.Trigger(true)
		return
	}
	d.mgr.acquireReusing(d.id, d.mode, d.out)
}

type deferredRelease struct {
	mgr          *Manager
	id           rsrvid.RsrvId
	precondition event.CEvent
}

func newDeferredRelease(mgr *Manager, id rsrvid.RsrvId, precondition event.CEvent) *deferredRelease {
	return &deferredRelease{mgr: mgr, id: id, precondition: precondition}
}

func (d *deferredRelease) register() {
	d.precondition.AddWaiter(d)
}

// Fire implements event.Waiter. Release on poison is skipped and logged,
// not propagated — spec.md §4.3: "release... on poison: log a warning and
// skip the release (the lock stays held)".
func (d *deferredRelease) Fire(poisoned bool) {
	if poisoned {
		d.mgr.log.Warn().Uint64("rsrv", uint64(d.id)).Msg("skipping deferred release: precondition was poisoned")
		return
	}
	d.mgr.Release(d.id)
}

type deferredDestroy struct {
	mgr *Manager
	id  rsrvid.RsrvId
}

func newDeferredDestroy(mgr *Manager, id rsrvid.RsrvId) *deferredDestroy {
	return &deferredDestroy{mgr: mgr, id: id}
}

// register binds d to the exclusive-acquire token obtained while tearing
// id down, matching DeferredLockDestruction's role in
// Reservation::destroy_reservation: the destroy only actually frees the
// reservation once that acquire has gone through.
func (d *deferredDestroy) register(acquireDone event.CEvent) {
	acquireDone.AddWaiter(d)
}

// Fire implements event.Waiter. Same poison-skip-and-log rule as release:
// spec.md §4.3 groups destroy with release for poison handling.
func (d *deferredDestroy) Fire(poisoned bool) {
	if poisoned {
		d.mgr.log.Warn().Uint64("rsrv", uint64(d.id)).Msg("skipping deferred destroy: exclusive acquire was poisoned")
		return
	}
	d.mgr.finishDestroy(d.id)
}
