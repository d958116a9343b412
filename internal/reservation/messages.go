package reservation

import "github.com/SystemBuilders/LocKey/internal/rsrvid"

// LockRequestMsg asks the current owner (or forwards toward it) to grant
// Mode to From. Grounded on LockRequestMessage::RequestArgs.
type LockRequestMsg struct {
	From rsrvid.NodeID
	ID   rsrvid.RsrvId
	Mode Mode
}

// LockReleaseMsg tells the owner that a remote sharer released one count.
// Grounded on LockReleaseMessage::RequestArgs. Only meaningful once
// cross-node shared grants exist; see Manager.handleLockRelease.
type LockReleaseMsg struct {
	ID rsrvid.RsrvId
}

// LockGrantMsg transfers ownership (Mode == 0) or, in the reserved-for-
// future shared case, extends a remote share. Grounded on
// LockGrantMessage::RequestArgs, including the remote_waiter_mask and
// local_data piggyback.
type LockGrantMsg struct {
	ID      rsrvid.RsrvId
	Mode    Mode
	Waiters []rsrvid.NodeID
	Payload []byte
}

// DestroyLockMsg is creator-bound: forwarded until it reaches the node
// that minted Actual. Grounded on DestroyLockMessage::RequestArgs.
type DestroyLockMsg struct {
	Actual rsrvid.RsrvId
}
