package membership

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hashicorp/raft"

	"github.com/SystemBuilders/LocKey/internal/rsrvid"
)

// Router builds the HTTP router for this Store's membership endpoint:
// /join, proxied to the Raft leader when this node isn't it. Grounded on
// the teacher's lockservice.RaftStore.ServeHTTP, translated to
// gorilla/mux the way internal/routing does for the rest of the module
// (the teacher's raft-join endpoint itself used manual strings.Contains
// routing; this module's HTTP surface is gorilla/mux throughout, so the
// join endpoint follows suit instead of being the one outlier).
func (s *Store) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/join", s.proxyIfNotLeader(s.handleJoin)).Methods(http.MethodPost)
	return r
}

// proxyIfNotLeader forwards the request to the current Raft leader's HTTP
// endpoint unless this node already is the leader.
func (s *Store) proxyIfNotLeader(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if getRaftAddr(s.httpAddr) == string(s.RaftServer.Leader()) {
			next(w, r)
			return
		}

		leaderHTTP, err := getHTTPAddr(string(s.RaftServer.Leader()))
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		url := r.URL
		url.Host = leaderHTTP
		url.Scheme = "http"

		proxyReq, err := http.NewRequest(r.Method, url.String(), r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		proxyReq.Header.Set("Host", r.Host)
		proxyReq.Header.Set("X-Forwarded-For", r.RemoteAddr)
		for header, values := range r.Header {
			for _, value := range values {
				proxyReq.Header.Add(header, value)
			}
		}

		resp, err := (&http.Client{}).Do(proxyReq)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
	}
}

type joinRequest struct {
	NodeID rsrvid.NodeID `json:"node_id"`
	Addr   string        `json:"addr"`
}

func (s *Store) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.joinHelper(req.NodeID, req.Addr); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	c := command{Op: "join", NodeID: req.NodeID, Addr: req.Addr}
	b, err := json.Marshal(c)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if f := s.RaftServer.Apply(b, raftTimeout); f.Error() != nil {
		http.Error(w, f.Error().Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Printf("node %d at %s joined successfully", req.NodeID, req.Addr)
	w.Write([]byte("joined cluster"))
}

// joinHelper admits the Raft voter identified by nodeID/addr, replacing
// any stale entry under the same ID or address first. Grounded on
// lockservice.RaftStore.joinHelper.
func (s *Store) joinHelper(nodeID rsrvid.NodeID, addr string) error {
	serverID := raft.ServerID(strconv.Itoa(int(nodeID)))

	configFuture := s.RaftServer.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return fmt.Errorf("failed to get raft configuration: %w", err)
	}

	for _, srv := range configFuture.Configuration().Servers {
		if srv.ID == serverID || srv.Address == raft.ServerAddress(addr) {
			if srv.Address == raft.ServerAddress(addr) && srv.ID == serverID {
				return nil
			}
			if future := s.RaftServer.RemoveServer(srv.ID, 0, 0); future.Error() != nil {
				return fmt.Errorf("error removing existing node %s at %s: %w", serverID, addr, future.Error())
			}
		}
	}

	f := s.RaftServer.AddVoter(serverID, raft.ServerAddress(addr), 0, 0)
	return f.Error()
}
