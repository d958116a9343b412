// Package membership replicates the cluster's NodeId -> address registry
// across every node with Raft, so any node can resolve where to dial a
// given rsrvid.NodeID (SPEC_FULL.md §2/§10 EXPANSION — the original only ever
// ran within one address space and never needed a join protocol).
//
// Adapted from the teacher's internal/consensus (itself a generalization
// of internal/lockservice's raft.go/fsm.go/routing.go/listener.go): same
// hashicorp/raft + hashicorp/raft-boltdb shape, same single-HTTP-endpoint
// join protocol, but the FSM command set is join/leave over NodeID->addr
// instead of acquire/release over a lock map, since what's being
// replicated here is cluster membership, not reservation state (the
// reservation protocol itself is a point-to-point message exchange over
// internal/nodedir, not something Raft replicates).
package membership

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

const (
	retainSnapshotCount = 2
	raftTimeout         = 10 * time.Second
)

type command struct {
	Op     string        `json:"op,omitempty"`
	NodeID rsrvid.NodeID `json:"node_id"`
	Addr   string        `json:"addr,omitempty"`
}

// Registry maps rsrvid.NodeID to a dialable address, replicated to every
// node in the cluster via Raft.
type Registry struct {
	mu      sync.Mutex
	members map[rsrvid.NodeID]string
}

func newRegistry() *Registry {
	return &Registry{members: make(map[rsrvid.NodeID]string)}
}

// Lookup returns the address registered for id, if any.
func (r *Registry) Lookup(id rsrvid.NodeID) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.members[id]
	return addr, ok
}

// Snapshot returns a copy of the full membership set.
func (r *Registry) Snapshot() map[rsrvid.NodeID]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[rsrvid.NodeID]string, len(r.members))
	for k, v := range r.members {
		out[k] = v
	}
	return out
}

func (r *Registry) put(id rsrvid.NodeID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = addr
}

func (r *Registry) delete(id rsrvid.NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

// Store encapsulates the HTTP listener (listener.go/routing.go), the
// Raft node (Open/Join in this file) and the replicated Registry this Raft group
// maintains. Mirrors the shape of the teacher's RaftStore.
type Store struct {
	httpAddr   string
	reg        *Registry
	inmem      bool
	RaftDir    string
	RaftAddr   string
	RaftServer *raft.Raft
	ln         net.Listener
	log        zerolog.Logger
	logger     *log.Logger
}

// New returns a new Store. inmem selects an in-memory Raft log/stable
// store (tests), as opposed to a bolt-backed one on disk (production).
func New(inmem bool, log zerolog.Logger) *Store {
	return &Store{
		reg:    newRegistry(),
		inmem:  inmem,
		log:    log.With().Str("component", "membership").Logger(),
		logger: stdLogger(),
	}
}

func stdLogger() *log.Logger {
	return log.New(os.Stderr, "[membership] ", log.LstdFlags)
}

// Registry exposes the replicated NodeId->address map for lookups.
func (s *Store) Registry() *Registry { return s.reg }

// Open opens the store. If enableSingle is set and no peers yet exist,
// this node becomes the first node, and therefore leader, of the
// cluster. localID is this node's Raft server identifier.
func (s *Store) Open(enableSingle bool, localID string) error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(localID)

	httpAddr, err := getHTTPAddr(s.RaftAddr)
	if err != nil {
		return err
	}
	s.httpAddr = httpAddr

	addr, err := net.ResolveTCPAddr("tcp", s.RaftAddr)
	if err != nil {
		return err
	}
	transport, err := raft.NewTCPTransport(s.RaftAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return err
	}

	snapshots, err := raft.NewFileSnapshotStore(s.RaftDir, retainSnapshotCount, os.Stderr)
	if err != nil {
		return fmt.Errorf("file snapshot store: %s", err)
	}

	var logStore raft.LogStore
	var stableStore raft.StableStore
	if s.inmem {
		logStore = raft.NewInmemStore()
		stableStore = raft.NewInmemStore()
	} else {
		boltDB, err := raftboltdb.NewBoltStore(filepath.Join(s.RaftDir, "raft.db"))
		if err != nil {
			return fmt.Errorf("new bolt store: %s", err)
		}
		logStore = boltDB
		stableStore = boltDB
	}

	ra, err := raft.NewRaft(config, (*fsm)(s), logStore, stableStore, snapshots, transport)
	if err != nil {
		return fmt.Errorf("new raft: %s", err)
	}
	s.RaftServer = ra

	if enableSingle {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: config.LocalID, Address: transport.LocalAddr()},
			},
		}
		ra.BootstrapCluster(configuration)
	}

	return nil
}

// Join asks the existing cluster member whose Raft address is addr to
// admit this node, as Raft server id at this node's RaftAddr, via that
// member's HTTP join endpoint.
func (s *Store) Join(addr, id string) error {
	nodeID, err := strconv.Atoi(id)
	if err != nil {
		return err
	}
	b, err := json.Marshal(joinRequest{NodeID: rsrvid.NodeID(nodeID), Addr: s.RaftAddr})
	if err != nil {
		return err
	}

	httpAddr, err := getHTTPAddr(addr)
	if err != nil {
		return err
	}

	resp, err := http.Post(
		fmt.Sprintf("http://%s/join", httpAddr),
		"application/json",
		bytes.NewReader(b),
	)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func getHTTPAddr(raftAddr string) (string, error) {
	parts := strings.Split(raftAddr, ":")
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", parts[0], port+1), nil
}

func getRaftAddr(httpAddr string) string {
	parts := strings.Split(httpAddr, ":")
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s:%d", parts[0], port-1)
}
