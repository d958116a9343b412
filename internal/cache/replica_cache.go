package cache

import (
	"github.com/SystemBuilders/LocKey/internal/rsrvid"
	"github.com/rs/zerolog"
)

// Evictor is the half of reservation.Manager that ReplicaCache needs to
// drop an idle replica: check it's safe to drop, then drop it.
type Evictor interface {
	Evictable(id rsrvid.RsrvId) bool
	Forget(id rsrvid.RsrvId)
}

// ReplicaCache adapts LRUCache to the replicaCache interface
// internal/reservation.Manager expects (Touch(id)), and wires LRUCache's
// eviction callback back into the Manager: when capacity forces an entry
// out, the oldest-touched replica is dropped only if the Manager still
// considers it evictable.
type ReplicaCache struct {
	lru *LRUCache
	mgr Evictor
	log zerolog.Logger
}

// NewReplicaCache builds a ReplicaCache bounding the number of replicas
// mgr retains to capacity, evicting least-recently-touched first.
func NewReplicaCache(capacity int, mgr Evictor, log zerolog.Logger) *ReplicaCache {
	rc := &ReplicaCache{
		lru: NewLRUCache(capacity),
		mgr: mgr,
		log: log.With().Str("component", "replica-cache").Logger(),
	}
	rc.lru.OnEvict(rc.evict)
	return rc
}

// Touch implements internal/reservation.replicaCache.
func (rc *ReplicaCache) Touch(id rsrvid.RsrvId) {
	if err := rc.lru.Touch(id); err != nil {
		rc.log.Warn().Uint64("rsrv_id", uint64(id)).Err(err).Msg("replica cache touch failed")
	}
}

// Drop removes id from the cache without evicting it through the normal
// LRU path, used once the Manager has already destroyed the replica.
func (rc *ReplicaCache) Drop(id rsrvid.RsrvId) {
	_ = rc.lru.Remove(id)
}

// evict runs synchronously from inside LRUCache.put with its mutex held,
// so it must not call back into rc.lru.
func (rc *ReplicaCache) evict(id rsrvid.RsrvId) {
	if !rc.mgr.Evictable(id) {
		// Still in use elsewhere; the cache simply stops tracking its
		// recency. It'll be re-added on the next Touch and is otherwise
		// harmless since the Manager, not this cache, owns the replica.
		rc.log.Debug().Uint64("rsrv_id", uint64(id)).Msg("skipped evicting in-use replica")
		return
	}
	rc.mgr.Forget(id)
}
