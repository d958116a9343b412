package fastrsrv

import (
	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

// Wrlock acquires exclusive access. It returns (event.NoEvent, true) on
// the lock-free fast path, or a token to wait on plus false if the caller
// must wait (spec.md §4.2 wrlock/wrlock_slow).
func (f *FastRsrv) Wrlock(mode WaitMode) (event.CEvent, bool) {
	cur := f.st.load()
	if cur&(stateBaseRsrv|stateBaseRsrvWaiting|stateWriter|readerCountMask|stateSleeper|stateSlowFallback) == 0 {
		if f.st.cas(cur&stateWriterWaiting, stateWriter) {
			return event.NoEvent, true
		}
	}
	ev := f.wrlockSlow(mode)
	return ev, !ev.Exists()
}

// Trywrlock attempts exclusive access without blocking.
func (f *FastRsrv) Trywrlock() bool {
	cur := f.st.load()
	if f.st.load()&stateSlowFallback != 0 {
		return f.fallbackTry(true)
	}
	if cur&(readerCountMask|stateWriter|stateWriterWaiting) == 0 {
		if f.st.cas(0, stateWriter) {
			return true
		}
	}
	return f.trywrlockSlow()
}

// Rdlock acquires shared access.
func (f *FastRsrv) Rdlock(mode WaitMode) (event.CEvent, bool) {
	cur := f.st.load()
	if cur&(stateBaseRsrv|stateBaseRsrvWaiting|stateWriter|stateWriterWaiting|stateSlowFallback) == 0 {
		next := f.st.fetchAdd(1) + 1
		if next&^(readerCountMask|stateSleeper) == 0 {
			return event.NoEvent, true
		}
		f.st.fetchSub(1)
	}
	ev := f.rdlockSlow(mode)
	return ev, !ev.Exists()
}

// Tryrdlock attempts shared access without blocking.
func (f *FastRsrv) Tryrdlock() bool {
	if f.st.load()&stateSlowFallback != 0 {
		return f.fallbackTry(false)
	}
	cur := f.st.load()
	if cur&(stateBaseRsrv|stateBaseRsrvWaiting|stateWriter|stateWriterWaiting) != 0 {
		return f.tryrdlockSlow()
	}
	next := f.st.fetchAdd(1) + 1
	if next&^(readerCountMask|stateSleeper) == 0 {
		return true
	}
	f.st.fetchSub(1)
	return f.tryrdlockSlow()
}

// Unlock releases whichever of wrlock/rdlock this caller was holding.
func (f *FastRsrv) Unlock() {
	if f.st.cas(stateWriter, 0) {
		return
	}
	cur := f.st.load()
	if cur&(stateWriter|stateBaseRsrv|stateBaseRsrvWaiting|stateSleeper|stateSlowFallback) == 0 &&
		cur.readerCount() > 0 {
		if f.st.cas(cur, cur-1) {
			return
		}
	}
	f.unlockSlow()
}

// AdviseSleepEntry tells the fast reservation that the current holder may
// suspend itself on guard while still holding the lock, so other
// acquirers must not spin expecting quick progress.
func (f *FastRsrv) AdviseSleepEntry(guard event.CEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old := f.st.fetchOr(stateSleeper)
	if old&stateSleeper == 0 {
		f.sleeperEvent = guard
	} else {
		f.sleeperEvent = event.Merge(f.sleeperEvent, guard)
	}
	if old&stateWriterWaiting != 0 {
		f.st.fetchAnd(^stateWriterWaiting)
	}
	f.sleeperCount++
}

// AdviseSleepExit is the dual of AdviseSleepEntry.
func (f *FastRsrv) AdviseSleepExit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeperCount--
	if f.sleeperCount == 0 {
		f.st.fetchAnd(^stateSleeper)
		f.sleeperEvent = event.NoEvent
	}
}

// fallbackTry issues a single nonblocking acquire against the underlying
// reservation, maintaining the shared fallback retry balance described in
// spec.md §4.1.
func (f *FastRsrv) fallbackTry(exclusive bool) bool {
	acqType := nextFallbackAcqType()
	ev := f.base.Acquire(f.baseID, 0, exclusive, acqType, event.NoEvent)
	if ev.Exists() {
		bumpFallbackRetryBalance(1)
		return false
	}
	return true
}

func nextFallbackAcqType() reservation.AcqType {
	for {
		cur := loadFallbackRetryBalance()
		if cur == 0 {
			return reservation.Nonblocking
		}
		if casFallbackRetryBalance(cur, cur-1) {
			return reservation.NonblockingRetry
		}
	}
}
