package membership

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

func newTestStore(t *testing.T, raftAddr string) *Store {
	t.Helper()
	dir := t.TempDir()

	s := New(true, zerolog.New(os.Stderr))
	s.RaftDir = dir
	s.RaftAddr = raftAddr

	require.NoError(t, s.Open(true, "node0"))
	waitForLeader(t, s)
	return s
}

func waitForLeader(t *testing.T, s *Store) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.RaftServer.Leader() != "" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for raft leader election")
}

func TestStore_ApplyJoinAndLeave(t *testing.T) {
	s := newTestStore(t, "127.0.0.1:19001")

	c := command{Op: "join", NodeID: rsrvid.NodeID(7), Addr: "127.0.0.1:9000"}
	b, err := json.Marshal(c)
	require.NoError(t, err)

	f := s.RaftServer.Apply(b, raftTimeout)
	require.NoError(t, f.Error())

	addr, ok := s.Registry().Lookup(rsrvid.NodeID(7))
	require.True(t, ok)
	require.Equal(t, "127.0.0.1:9000", addr)

	c = command{Op: "leave", NodeID: rsrvid.NodeID(7)}
	b, err = json.Marshal(c)
	require.NoError(t, err)

	f = s.RaftServer.Apply(b, raftTimeout)
	require.NoError(t, f.Error())

	_, ok = s.Registry().Lookup(rsrvid.NodeID(7))
	require.False(t, ok)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	r := newRegistry()
	r.put(rsrvid.NodeID(1), "a")

	snap := r.Snapshot()
	snap[rsrvid.NodeID(2)] = "b"

	_, ok := r.Lookup(rsrvid.NodeID(2))
	require.False(t, ok, "mutating a snapshot must not affect the registry")
}
