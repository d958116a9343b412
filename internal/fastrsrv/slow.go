package fastrsrv

import (
	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

// requestBaseRsrv issues (or notices completion of) an exclusive request
// against the underlying reservation, clearing STATE_BASE_RSRV once it's
// actually ours. Must be called while f.mu is held. Grounded on
// FastRsrvState::request_base_rsrv.
func (f *FastRsrv) requestBaseRsrv() event.CEvent {
	if !f.rsrvReady.Exists() {
		f.rsrvReady = f.base.Acquire(f.baseID, 0, true, reservation.Blocking, event.NoEvent)
	}
	if !f.rsrvReady.Exists() {
		f.st.fetchSub(stateBaseRsrv)
		return event.NoEvent
	}
	if triggered, _ := f.rsrvReady.HasTriggered(); triggered {
		f.rsrvReady = event.NoEvent
		f.st.fetchSub(stateBaseRsrv)
		return event.NoEvent
	}
	return f.rsrvReady
}

// handBack gives the underlying reservation back to whoever requested it,
// swapping STATE_BASE_RSRV_WAITING for STATE_BASE_RSRV. Must be called
// with f.mu held and only when readers/writer are both zero. Grounded on
// the hand-back sequences in wrlock_slow/rdlock_slow.
func (f *FastRsrv) handBack() {
	f.st.fetchSub(stateBaseRsrvWaiting - stateBaseRsrv)
	f.base.Release(f.baseID)
}

func (f *FastRsrv) wrlockSlow(mode WaitMode) event.CEvent {
	if f.st.load()&stateSlowFallback != 0 {
		acqType := nextFallbackAcqType()
		ev := f.base.Acquire(f.baseID, 0, true, acqType, event.NoEvent)
		if ev.Exists() {
			bumpFallbackRetryBalance(1)
		}
		return ev
	}

	for {
		cur := f.st.load()

		if cur&(stateSlowFallback|stateBaseRsrv|stateBaseRsrvWaiting|stateSleeper) == 0 {
			prev := cur & stateWriterWaiting
			if f.st.cas(prev, stateWriter) {
				return event.NoEvent
			}
			if mode == Spin || mode == AlwaysSpin {
				f.st.cas(cur, cur|stateWriterWaiting)
				continue
			}
		}

		f.mu.Lock()
		cur = f.st.load()
		var waitFor event.CEvent
		switch {
		case cur&stateBaseRsrv != 0:
			waitFor = f.requestBaseRsrv()
		case cur&stateBaseRsrvWaiting != 0 && cur.readerCount() == 0 && cur&stateWriter == 0:
			f.handBack()
			waitFor = f.requestBaseRsrv()
		case cur&stateSleeper != 0:
			waitFor = f.sleeperEvent
		default:
			waitFor = event.NoEvent
		}
		f.mu.Unlock()

		if !waitFor.Exists() {
			continue
		}
		switch mode {
		case ExternalWait:
			waitFor.Wait()
			continue
		default:
			return waitFor
		}
	}
}

func (f *FastRsrv) trywrlockSlow() bool {
	if f.st.load()&stateSlowFallback != 0 {
		return f.fallbackTry(true)
	}

	cur := f.st.load()
	if f.st.cas(0, stateWriter) {
		return true
	}
	if cur&(readerCountMask|stateWriter|stateWriterWaiting) != 0 {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cur = f.st.load()
	if cur&stateBaseRsrv != 0 {
		ev := f.requestBaseRsrv()
		if !ev.Exists() {
			return f.st.cas(0, stateWriter)
		}
		return false
	}
	if cur&stateBaseRsrvWaiting != 0 {
		return false
	}
	if cur&stateSleeper != 0 {
		return false
	}
	return f.st.cas(0, stateWriter)
}

func (f *FastRsrv) rdlockSlow(mode WaitMode) event.CEvent {
	if f.st.load()&stateSlowFallback != 0 {
		acqType := nextFallbackAcqType()
		ev := f.base.Acquire(f.baseID, 0, false, acqType, event.NoEvent)
		if ev.Exists() {
			bumpFallbackRetryBalance(1)
		}
		return ev
	}

	for {
		cur := f.st.load()

		if cur&(stateSlowFallback|stateBaseRsrv|stateBaseRsrvWaiting) == 0 &&
			cur&(stateWriter|stateWriterWaiting) == 0 {
			next := f.st.fetchAdd(1) + 1
			if next&^(readerCountMask|stateSleeper) == 0 {
				return event.NoEvent
			}
			f.st.fetchSub(1)
		}

		f.mu.Lock()
		cur = f.st.load()
		var waitFor event.CEvent
		switch {
		case cur&stateBaseRsrv != 0:
			waitFor = f.requestBaseRsrv()
		case cur&stateBaseRsrvWaiting != 0 && cur&(stateWriter|readerCountMask) == 0:
			f.handBack()
			waitFor = f.requestBaseRsrv()
		case cur&stateBaseRsrvWaiting != 0:
			// someone else is active; they'll hand back when they drain.
			waitFor = event.NoEvent
		case cur&stateSleeper != 0:
			waitFor = f.sleeperEvent
		default:
			waitFor = event.NoEvent
		}
		f.mu.Unlock()

		if !waitFor.Exists() {
			continue
		}
		switch mode {
		case ExternalWait:
			waitFor.Wait()
			continue
		default:
			return waitFor
		}
	}
}

func (f *FastRsrv) tryrdlockSlow() bool {
	if f.st.load()&stateSlowFallback != 0 {
		return f.fallbackTry(false)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.st.load()
	if cur&stateBaseRsrv != 0 {
		ev := f.requestBaseRsrv()
		if ev.Exists() {
			return false
		}
		cur = f.st.load()
	}
	if cur&(stateWriter|stateWriterWaiting|stateBaseRsrvWaiting) != 0 {
		return false
	}
	next := f.st.fetchAdd(1) + 1
	if next&^(readerCountMask|stateSleeper) == 0 {
		return true
	}
	f.st.fetchSub(1)
	return false
}

func (f *FastRsrv) unlockSlow() {
	f.mu.Lock()
	cur := f.st.load()

	if cur&stateSlowFallback != 0 {
		f.mu.Unlock()
		f.base.Release(f.baseID)
		return
	}

	if cur&stateWriter != 0 {
		f.st.fetchSub(stateWriter)
		if cur&stateBaseRsrvWaiting != 0 {
			f.handBack()
		}
		f.mu.Unlock()
		return
	}

	rc := cur.readerCount()
	if rc > 1 {
		f.st.fetchSub(1)
		f.mu.Unlock()
		return
	}
	f.st.fetchSub(1)
	if cur&stateBaseRsrvWaiting != 0 {
		f.handBack()
	}
	f.mu.Unlock()
}
