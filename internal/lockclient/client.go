// Package lockclient is a thin HTTP client over a node's internal/api
// surface, replacing the teacher's panic("TODO") stubs with a genuine
// implementation.
//
// As retrieved, the teacher's internal/lockclient package did not
// compile: simple_client.go imported a different, stale module path
// (github.com/GoPlayAndFun/LocKey instead of github.com/SystemBuilders/
// LocKey); session/simple_session.go imported internal/lockclient/id, a
// package that does not exist anywhere in the retrieved source; and
// internal/lockclient/cache held only a Cache interface and a test file,
// with no lru_cache.go/dll.go backing either — a second, never-
// implemented copy of internal/cache's job. None of that is adaptable,
// so this package is rebuilt from the teacher's Client/Config shape
// (this file) with a working implementation (simple_client.go) and a
// corrected session package (session/*.go) using oklog/ulid directly
// instead of the phantom id.ID indirection.
//
// The teacher's watch/pounce methods belonged to SimpleLockService's
// single-owner, non-migratory lock model (a queue of "pouncers" waiting
// to take over a lock some owner currently holds indefinitely). That
// concept has no equivalent once ownership is migratory and every
// acquire already queues through local/remote waiter lists
// (internal/reservation); dropped rather than carried forward as dead
// weight.
package lockclient

import "github.com/SystemBuilders/LocKey/internal/rsrvid"

// Config describes where a node's internal/api HTTP surface is reachable.
type Config interface {
	// IP provides the host or IP address (without scheme) where the server runs.
	IP() string
	// Port provides the port where the server runs.
	Port() string
}

// Client is the lockclient's view of one node's reservation API.
type Client interface {
	// Create asks the node to mint a new reservation carrying payload.
	Create(payload []byte) (rsrvid.RsrvId, error)
	// Acquire requests mode (exclusive or shared) on id, using acqType
	// ("blocking", "nonblocking", "nonblocking_retry"; empty means
	// blocking). Returns whether the lock was granted.
	Acquire(id rsrvid.RsrvId, mode uint32, exclusive bool, acqType string) (granted bool, err error)
	// Release gives up one count of whatever this client holds on id.
	Release(id rsrvid.RsrvId) error
	// Destroy permanently destroys id.
	Destroy(id rsrvid.RsrvId) error
	// Status reports whether id is currently locked.
	Status(id rsrvid.RsrvId) (locked bool, err error)
}
