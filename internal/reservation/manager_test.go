package reservation_test

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/nodedir"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

func newSingleNodeManager(t *testing.T) *reservation.Manager {
	t.Helper()
	net := nodedir.NewNetwork()
	dir := net.Register(1, nil)
	return reservation.NewManager(dir, zerolog.New(os.Stderr))
}

// newClusterManagers wires two managers onto the same in-memory network,
// each dispatching the other's messages through HandleMessage.
func newClusterManagers(t *testing.T) (a, b *reservation.Manager) {
	t.Helper()
	log := zerolog.New(os.Stderr)
	net := nodedir.NewNetwork()

	dirA := net.Register(1, nil)
	dirB := net.Register(2, nil)
	a = reservation.NewManager(dirA, log)
	b = reservation.NewManager(dirB, log)
	net.Register(1, a.HandleMessage)
	net.Register(2, b.HandleMessage)
	return a, b
}

func TestManager_CreateAcquireExclusiveIsImmediateWhenIdle(t *testing.T) {
	mgr := newSingleNodeManager(t)

	id, err := mgr.Create([]byte("payload"))
	require.NoError(t, err)
	require.True(t, id.Exists())
	require.False(t, mgr.IsLocked(id))

	ev := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, ev.Exists(), "uncontended exclusive acquire should grant immediately")
	require.True(t, mgr.IsLocked(id))

	mgr.Release(id)
	require.False(t, mgr.IsLocked(id))
}

func TestManager_SecondExclusiveAcquireBlocksUntilReleased(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	first := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, first.Exists())

	second := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.True(t, second.Exists(), "contended exclusive acquire must queue")

	triggered, _ := second.HasTriggered()
	require.False(t, triggered)

	mgr.Release(id)

	select {
	case <-waitChan(second):
	case <-time.After(time.Second):
		t.Fatal("queued acquire never granted after release")
	}
	require.True(t, mgr.IsLocked(id))
}

func TestManager_SharedHoldersJoinWithoutQueueing(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	const sharerMode reservation.Mode = 1

	first := mgr.Acquire(id, sharerMode, false, reservation.Blocking, event.NoEvent)
	require.False(t, first.Exists())

	second := mgr.Acquire(id, sharerMode, false, reservation.Blocking, event.NoEvent)
	require.False(t, second.Exists(), "same-mode sharer should join immediately, not queue")

	mgr.Release(id)
	require.True(t, mgr.IsLocked(id), "one sharer remains after the other releases")

	mgr.Release(id)
	require.False(t, mgr.IsLocked(id))
}

func TestManager_NonblockingAcquireOnContendedLockReturnsRetryToken(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	held := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, held.Exists())

	retry := mgr.Acquire(id, 0, true, reservation.Nonblocking, event.NoEvent)
	require.True(t, retry.Exists())
	triggered, _ := retry.HasTriggered()
	require.False(t, triggered, "nonblocking acquire on a held lock must not grant")

	mgr.Release(id)
	select {
	case <-waitChan(retry):
	case <-time.After(time.Second):
		t.Fatal("retry token never fired after release")
	}
}

func TestManager_DestroyTearsDownReplica(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	mgr.Destroy(id)
	require.False(t, mgr.IsLocked(id))
}

func TestManager_CrossNodeAcquireMigratesOwnership(t *testing.T) {
	a, b := newClusterManagers(t)

	id, err := a.Create([]byte("payload"))
	require.NoError(t, err)

	evA := a.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, evA.Exists())

	evB := b.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.True(t, evB.Exists(), "B must wait while A holds the lock")

	a.Release(id)

	select {
	case <-waitChan(evB):
	case <-time.After(time.Second):
		t.Fatal("B's acquire never granted after A released")
	}
	require.True(t, b.IsLocked(id))
}

func TestManager_SetTraceHookObservesAcquireAndRelease(t *testing.T) {
	mgr := newSingleNodeManager(t)
	var kinds []string
	mgr.SetTraceHook(func(ev reservation.TraceEvent) {
		kinds = append(kinds, ev.Kind)
	})

	id, err := mgr.Create(nil)
	require.NoError(t, err)
	mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	mgr.Release(id)

	require.Contains(t, kinds, "acquire")
	require.Contains(t, kinds, "release")
}

// waitChan adapts event.CEvent.Wait (blocking) into something usable with
// select/time.After in tests.
func waitChan(ev event.CEvent) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ev.Wait()
		close(ch)
	}()
	return ch
}

func TestManager_TwoNonblockingRetriersBothIncrementRetryCount(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	held := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, held.Exists())

	retry1 := mgr.Acquire(id, 0, true, reservation.Nonblocking, event.NoEvent)
	retry2 := mgr.Acquire(id, 0, true, reservation.Nonblocking, event.NoEvent)
	require.True(t, retry1.Exists())
	require.True(t, retry2.Exists())
	require.Equal(t, retry1, retry2, "both nonblocking retriers on the same mode share one token")

	mgr.Release(id)

	select {
	case <-waitChan(retry1):
	case <-time.After(time.Second):
		t.Fatal("shared retry token never fired after release")
	}

	// retry1 performs its mandated completion call and immediately
	// releases, exactly as spec.md scenario 3 describes.
	done1 := mgr.Acquire(id, 0, true, reservation.NonblockingRetry, event.NoEvent)
	require.False(t, done1.Exists(), "first retrier's completion call must grant synchronously")
	mgr.Release(id)

	// retry2 has not completed yet: retryCount[ModeExcl] must still be 1,
	// which is only true if the earlier Nonblocking acquires each bumped
	// retryCount (rather than only NonblockingPlaceholder doing so). If
	// retryCount had been left at zero, mgr.Release above would have
	// nothing keeping the lock local, and this second completion call
	// would still land on an idle, locally-grantable replica either way
	// in a single-node test — the real hazard only appears with a
	// waiting remote node, exercised in
	// TestManager_RetryCountGuardKeepsOwnershipLocal below. This
	// assertion instead pins the directly observable half of the fix:
	// retry2's completion call still grants, uncontended.
	done2 := mgr.Acquire(id, 0, true, reservation.NonblockingRetry, event.NoEvent)
	require.False(t, done2.Exists())
	mgr.Release(id)
}

func TestManager_RetryCountGuardKeepsOwnershipLocal(t *testing.T) {
	a, b := newClusterManagers(t)

	id, err := a.Create(nil)
	require.NoError(t, err)

	held := a.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, held.Exists())

	retry1 := a.Acquire(id, 0, true, reservation.Nonblocking, event.NoEvent)
	retry2 := a.Acquire(id, 0, true, reservation.Nonblocking, event.NoEvent)
	require.True(t, retry1.Exists())
	require.True(t, retry2.Exists())

	// B asks for the lock while A is still busy with holder + two local
	// nonblocking retriers queued behind it; B ends up in A's
	// remote_waiter_mask.
	remote := b.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.True(t, remote.Exists())

	// A's direct holder releases: the shared retry token fires, ownership
	// stays with A (the retryEvents branch of selectLocalWaiters wins
	// over the remote-waiter branch).
	a.Release(id)
	select {
	case <-waitChan(retry1):
	case <-time.After(time.Second):
		t.Fatal("shared retry token never fired")
	}

	done1 := a.Acquire(id, 0, true, reservation.NonblockingRetry, event.NoEvent)
	require.False(t, done1.Exists(), "first retrier completes synchronously, still on A")
	a.Release(id)

	// retry2 has not completed yet, so retryCount[ModeExcl] must still be
	// 1: releaseOne's remote-handoff guard (len(retryCount) == 0) must
	// have kept ownership on A rather than transferring it to B. If the
	// guard had been defeated by retryCount never being incremented,
	// ownership would already belong to B here, and this completion call
	// would silently restart as a remote request instead of granting
	// synchronously.
	done2 := a.Acquire(id, 0, true, reservation.NonblockingRetry, event.NoEvent)
	require.False(t, done2.Exists(), "second retrier must still complete synchronously on A")
	a.Release(id)

	// Now that both retriers are done, retryCount is empty and B's
	// still-pending remote request can finally be granted.
	select {
	case <-waitChan(remote):
	case <-time.After(time.Second):
		t.Fatal("B's remote acquire never granted once local retriers drained")
	}
	require.True(t, b.IsLocked(id))
}

func TestManager_BonusGrantFromRetryEventsDoesNotDoubleCountCount(t *testing.T) {
	mgr := newSingleNodeManager(t)
	id, err := mgr.Create(nil)
	require.NoError(t, err)

	const sharerMode reservation.Mode = 3

	// An exclusive holder forces the two upcoming same-mode sharer
	// requests (and the nonblocking retrier) to actually queue instead of
	// joining for free.
	excl := mgr.Acquire(id, 0, true, reservation.Blocking, event.NoEvent)
	require.False(t, excl.Exists())

	sharerA := mgr.Acquire(id, sharerMode, false, reservation.Blocking, event.NoEvent)
	sharerB := mgr.Acquire(id, sharerMode, false, reservation.Blocking, event.NoEvent)
	require.True(t, sharerA.Exists())
	require.True(t, sharerB.Exists())

	// This nonblocking retrier queues its own retryEvents[sharerMode]
	// entry behind the two blocking sharers on the same mode.
	retry := mgr.Acquire(id, sharerMode, false, reservation.Nonblocking, event.NoEvent)
	require.True(t, retry.Exists())

	// The exclusive holder releases. selectLocalWaiters sees both
	// localWaiters[sharerMode] and retryEvents[sharerMode] at the same
	// mode; ties favor localWaiters (impl.go's "lwMode <= reMode"), so
	// only sharerA/sharerB are woken here — retryEvents[sharerMode]
	// stays parked, untouched.
	mgr.Release(id)
	select {
	case <-waitChan(sharerA):
	case <-time.After(time.Second):
		t.Fatal("queued sharer A never granted")
	}
	select {
	case <-waitChan(sharerB):
	case <-time.After(time.Second):
		t.Fatal("queued sharer B never granted")
	}

	// A brand new direct join for the same mode now succeeds locally
	// (count > ZeroCount, mode already matches, nothing left in
	// localWaiters) and its grant sweeps in the still-parked
	// retryEvents[sharerMode] entry as a bonus grant.
	sharerC := mgr.Acquire(id, sharerMode, false, reservation.Blocking, event.NoEvent)
	require.False(t, sharerC.Exists(), "third same-mode sharer should join immediately")

	select {
	case <-waitChan(retry):
	case <-time.After(time.Second):
		t.Fatal("parked retry token never fired via the bonus-grant sweep")
	}

	// The swept retrier still owes its own mandatory completion call,
	// which performs its one-and-only count increment.
	retryDone := mgr.Acquire(id, sharerMode, false, reservation.NonblockingRetry, event.NoEvent)
	require.False(t, retryDone.Exists(), "retrier's completion call must grant synchronously")

	// Four real holders now own sharerMode: sharerA, sharerB, sharerC,
	// and retryDone. Releasing exactly four times must return the
	// replica to fully idle. If the retry-events bonus grant had also
	// bumped count when it swept the parked token in, count would be
	// stuck one above ZeroCount and IsLocked would incorrectly still
	// report true after these four releases.
	mgr.Release(id)
	mgr.Release(id)
	mgr.Release(id)
	require.True(t, mgr.IsLocked(id), "one holder should remain after three releases")
	mgr.Release(id)
	require.False(t, mgr.IsLocked(id), "count must return to ZeroCount after all four real holders release")
}
