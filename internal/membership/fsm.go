package membership

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

type fsm Store

type fsmSnapshot struct {
	members map[rsrvid.NodeID]string
}

// Apply implements raft.FSM, grounded on the teacher's fsm.Apply
// (lockservice/fsm.go), with "join"/"leave" replacing "acquire"/"release"
// as the replicated operation set.
func (f *fsm) Apply(l *raft.Log) interface{} {
	var c command
	if err := json.Unmarshal(l.Data, &c); err != nil {
		panic(fmt.Sprintf("membership: failed to unmarshal command: %s", err.Error()))
	}

	switch c.Op {
	case "join":
		f.reg.put(c.NodeID, c.Addr)
		return nil
	case "leave":
		f.reg.delete(c.NodeID)
		return nil
	default:
		panic(fmt.Sprintf("membership: unrecognized command op: %s", c.Op))
	}
}

// Snapshot returns a snapshot of the membership registry.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnapshot{members: f.reg.Snapshot()}, nil
}

// Restore replaces the registry with a previously persisted snapshot.
func (f *fsm) Restore(src io.ReadCloser) error {
	var members map[rsrvid.NodeID]string
	if err := json.NewDecoder(src).Decode(&members); err != nil {
		return err
	}
	f.reg.mu.Lock()
	f.reg.members = members
	f.reg.mu.Unlock()
	return nil
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		b, err := json.Marshal(s.members)
		if err != nil {
			return err
		}
		if _, err := sink.Write(b); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
		return err
	}
	return nil
}

func (s *fsmSnapshot) Release() {}
