package membership

import (
	"net"
	"net/http"
)

// Start begins serving this Store's HTTP join endpoint. The HTTP address
// is always one port above the Raft address the node uses to talk to its
// peers (getHTTPAddr/getRaftAddr), matching the teacher's convention.
func (s *Store) Start() error {
	ln, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return err
	}
	s.ln = ln

	server := http.Server{Handler: s.Router()}
	go func() {
		if err := server.Serve(s.ln); err != nil {
			s.logger.Printf("membership HTTP serve stopped: %s", err)
		}
	}()

	return nil
}

// Close stops the listener.
func (s *Store) Close() {
	s.ln.Close()
}
