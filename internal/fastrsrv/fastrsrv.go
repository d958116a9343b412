// Package fastrsrv implements the lock-free fast path over a reservation:
// an atomic state word handles the common uncontended case, falling back
// to the underlying Rsrv (internal/reservation) only when contended or
// when ownership needs to migrate off this node.
//
// Grounded on FastReservation / FastRsrvState in
// _examples/original_source/runtime/realm/rsrv_impl.cc (wrlock_slow,
// trywrlock_slow, rdlock_slow, tryrdlock_slow, unlock_slow,
// advise_sleep_entry/exit). Atomic-state-word shape cross-checked against
// other_examples/balasanjay-lrlock__lrlock.go and
// other_examples/thetarby-rtwmutex__rwmutex.go.
package fastrsrv

import (
	"sync"
	"sync/atomic"

	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/reservation"
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// state is the single atomic word described in spec.md §4.2.
type state uint32

const (
	readerCountBits = 24
	readerCountMask state = (1 << readerCountBits) - 1

	stateWriter          state = 1 << readerCountBits
	stateWriterWaiting   state = 1 << (readerCountBits + 1)
	stateBaseRsrv        state = 1 << (readerCountBits + 2)
	stateBaseRsrvWaiting state = 1 << (readerCountBits + 3)
	stateSleeper         state = 1 << (readerCountBits + 4)
	stateSlowFallback    state = 1 << (readerCountBits + 5)
)

func (s state) readerCount() state { return s & readerCountMask }

// WaitMode selects how the caller wants to wait when the fast path can't
// satisfy the request immediately (spec.md §4.2).
type WaitMode int

const (
	Spin WaitMode = iota
	Wait
	ExternalWait
	AlwaysSpin
)

// fallbackRetryBalance is the process-wide retry-balance counter spec.md
// §4.1 describes: shared by every FastRsrv running in slow-fallback mode,
// so that an attempt which produced a pending event later becomes a retry
// rather than a fresh request. Grounded on the file-scope
// `atomic<int> fallback_retry_count` in rsrv_impl.cc.
var fallbackRetryBalance int64

// FastRsrv is the fast reservation described in spec.md §4.2.
type FastRsrv struct {
	st state32

	mu           sync.Mutex
	base         *reservation.Manager
	baseID       rsrvid.RsrvId
	rsrvReady    event.CEvent
	sleeperCount int
	sleeperEvent event.CEvent
}

// state32 is a tiny named wrapper so the rest of the file can read like
// "s.load()" / "s.cas(old, new)" the way the original reads
// "state.load()" / "state.compare_exchange(...)".
type state32 struct{ v uint32 }

func (s *state32) load() state                  { return state(atomic.LoadUint32(&s.v)) }
func (s *state32) store(n state)                 { atomic.StoreUint32(&s.v, uint32(n)) }
func (s *state32) cas(old, new state) bool       { return atomic.CompareAndSwapUint32(&s.v, uint32(old), uint32(new)) }
func (s *state32) fetchAdd(delta state) state    { return state(atomic.AddUint32(&s.v, uint32(delta)) - uint32(delta)) }
func (s *state32) fetchSub(delta state) state    { return state(atomic.AddUint32(&s.v, ^uint32(delta)+1) + uint32(delta)) }
func (s *state32) fetchOr(bits state) state {
	for {
		old := s.load()
		if s.cas(old, old|bits) {
			return old
		}
	}
}
func (s *state32) fetchAnd(bits state) state {
	for {
		old := s.load()
		if s.cas(old, old&bits) {
			return old
		}
	}
}

// New builds a FastRsrv. If base/baseID are given, the fast path starts
// inert (STATE_BASE_RSRV set) until the underlying reservation is
// transferred in; otherwise it starts immediately available.
func New(base *reservation.Manager, baseID rsrvid.RsrvId) *FastRsrv {
	f := &FastRsrv{base: base, baseID: baseID}
	if baseID.Exists() {
		f.st.store(stateBaseRsrv)
	}
	return f
}

// NewFallback builds a FastRsrv permanently in slow-fallback mode: every
// operation is forwarded to base/baseID, used as a correctness escape
// hatch (spec.md §4.2).
func NewFallback(base *reservation.Manager, baseID rsrvid.RsrvId) *FastRsrv {
	f := &FastRsrv{base: base, baseID: baseID}
	f.st.store(stateSlowFallback)
	return f
}

func loadFallbackRetryBalance() int64 { return atomic.LoadInt64(&fallbackRetryBalance) }

func casFallbackRetryBalance(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&fallbackRetryBalance, old, new)
}

func bumpFallbackRetryBalance(delta int64) { atomic.AddInt64(&fallbackRetryBalance, delta) }
