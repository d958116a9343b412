package api

import "github.com/SystemBuilders/LocKey/internal/rsrvid"

// CreateRequest asks this node to mint a new reservation with the given
// opaque payload attached, as the creator node.
type CreateRequest struct {
	Payload []byte `json:"payload,omitempty"`
}

// CreateResponse carries the freshly minted RsrvId.
type CreateResponse struct {
	ID rsrvid.RsrvId `json:"id"`
}

// AcquireRequest describes a lock request against an existing RsrvId.
// AcqType selects blocking behavior: "blocking" (default), "nonblocking",
// or "nonblocking_retry".
type AcquireRequest struct {
	ID        rsrvid.RsrvId `json:"id"`
	Mode      uint32        `json:"mode"`
	Exclusive bool          `json:"exclusive"`
	AcqType   string        `json:"acq_type,omitempty"`
}

// AcquireResponse reports the outcome of an AcquireRequest.
type AcquireResponse struct {
	Granted  bool `json:"granted"`
	Poisoned bool `json:"poisoned,omitempty"`
}

// ReleaseRequest releases one count of whatever mode the caller holds on
// ID (spec.md's release() has no mode argument — the owner's replica
// tracks it).
type ReleaseRequest struct {
	ID rsrvid.RsrvId `json:"id"`
}

// DestroyRequest asks for ID to be permanently destroyed.
type DestroyRequest struct {
	ID rsrvid.RsrvId `json:"id"`
}

// StatusRequest queries whether a RsrvId is currently locked.
type StatusRequest struct {
	ID rsrvid.RsrvId `json:"id"`
}

// StatusResponse reports IsLocked's result.
type StatusResponse struct {
	Locked bool `json:"locked"`
}
