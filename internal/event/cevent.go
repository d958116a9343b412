// Package event implements the completion-token (CEvent) abstraction
// consumed throughout the reservation subsystem: an opaque handle to "this
// asynchronous condition has occurred", optionally poisoned to signal that
// the producing operation failed.
//
// This package has no teacher file to adapt — it is the Completion Token
// collaborator spec.md §6 declares as consumed, not specified, by the rest
// of the system. It is built directly from that contract and from every
// Event::... call site in rsrv_impl.cc.
package event

import "sync"

// Waiter is a one-shot continuation registered on a CEvent. Fire is called
// exactly once, with poisoned set if the event triggered in a poisoned
// state.
type Waiter interface {
	Fire(poisoned bool)
}

// WaiterFunc adapts a plain function to the Waiter interface.
type WaiterFunc func(poisoned bool)

// Fire implements Waiter.
func (f WaiterFunc) Fire(poisoned bool) { f(poisoned) }

type genEvent struct {
	mu        sync.Mutex
	triggered bool
	poisoned  bool
	done      chan struct{}
	waiters   []Waiter
}

// CEvent is an opaque completion token. The zero value is NoEvent: it
// behaves as an event that has already triggered, unpoisoned.
type CEvent struct {
	impl *genEvent
}

// NoEvent is the event constant meaning "already satisfied, no token
// needed". Acquire with precondition == NoEvent must not go through the
// deferred path (spec.md §8 boundary behavior).
var NoEvent = CEvent{}

// CreateFresh allocates a new, untriggered completion token.
func CreateFresh() CEvent {
	return CEvent{impl: &genEvent{done: make(chan struct{})}}
}

// Exists reports whether e is a real token (as opposed to NoEvent).
func (e CEvent) Exists() bool {
	return e.impl != nil
}

// HasTriggered reports whether the event has already fired, and if so
// whether it was poisoned. For NoEvent it always reports (true, false).
func (e CEvent) HasTriggered() (triggered, poisoned bool) {
	if e.impl == nil {
		return true, false
	}
	e.impl.mu.Lock()
	defer e.impl.mu.Unlock()
	return e.impl.triggered, e.impl.poisoned
}

// Wait blocks synchronously until e has triggered and reports whether it
// was poisoned. Waiting on NoEvent returns immediately.
func (e CEvent) Wait() (poisoned bool) {
	if e.impl == nil {
		return false
	}
	<-e.impl.done
	e.impl.mu.Lock()
	defer e.impl.mu.Unlock()
	return e.impl.poisoned
}

// AddWaiter registers w to be fired when e triggers. If e has already
// triggered (including NoEvent), w fires inline, synchronously, before
// AddWaiter returns.
func (e CEvent) AddWaiter(w Waiter) {
	if e.impl == nil {
		w.Fire(false)
		return
	}
	e.impl.mu.Lock()
	if e.impl.triggered {
		poisoned := e.impl.poisoned
		e.impl.mu.Unlock()
		w.Fire(poisoned)
		return
	}
	e.impl.waiters = append(e.impl.waiters, w)
	e.impl.mu.Unlock()
}

// Trigger fires e, waking every waiter and every Wait() caller exactly
// once. Triggering NoEvent is a no-op (there is nothing to trigger).
func (e CEvent) Trigger(poisoned bool) {
	if e.impl == nil {
		return
	}
	e.impl.mu.Lock()
	if e.impl.triggered {
		e.impl.mu.Unlock()
		panic("event: Trigger called twice on the same CEvent")
	}
	e.impl.triggered = true
	e.impl.poisoned = poisoned
	waiters := e.impl.waiters
	e.impl.waiters = nil
	close(e.impl.done)
	e.impl.mu.Unlock()

	for _, w := range waiters {
		w.Fire(poisoned)
	}
}

// Merge returns a fresh CEvent that triggers once every event in evs has
// triggered, poisoned if any input triggered poisoned. An empty or
// all-NoEvent input set returns NoEvent.
func Merge(evs ...CEvent) CEvent {
	pending := 0
	for _, e := range evs {
		if e.Exists() {
			pending++
		}
	}
	if pending == 0 {
		return NoEvent
	}

	merged := CreateFresh()
	var mu sync.Mutex
	remaining := pending
	anyPoisoned := false

	for _, e := range evs {
		if !e.Exists() {
			continue
		}
		e.AddWaiter(WaiterFunc(func(poisoned bool) {
			mu.Lock()
			if poisoned {
				anyPoisoned = true
			}
			remaining--
			done := remaining == 0
			p := anyPoisoned
			mu.Unlock()
			if done {
				merged.Trigger(p)
			}
		}))
	}

	return merged
}
