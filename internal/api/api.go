// Package api is the HTTP front door onto a node's reservation.Manager:
// create/acquire/release/destroy over gorilla/mux, the way the teacher's
// internal/routing fronts internal/lockservice.SimpleLockService.
//
// Unlike the teacher's lock service, an acquire here can genuinely block
// (ownership may need to migrate from another node first), so for a
// blocking acquire handleAcquire waits on the returned event.CEvent before
// responding (a nonblocking one answers granted=false at once) —
// there's no HTTP-native async completion story in this module, and the
// teacher's own handlers are synchronous request/response too.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/SystemBuilders/LocKey/internal/reservation"
)

// Server wraps a reservation.Manager with an HTTP surface.
type Server struct {
	mgr *reservation.Manager
	log zerolog.Logger
}

// NewServer returns a Server fronting mgr.
func NewServer(mgr *reservation.Manager, log zerolog.Logger) *Server {
	return &Server{mgr: mgr, log: log.With().Str("component", "api").Logger()}
}

// SetupRouting adds this Server's routes to r, mirroring
// internal/routing.SetupRouting's method/path layout.
func (s *Server) SetupRouting(r *mux.Router) *mux.Router {
	r.HandleFunc("/create", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/acquire", s.handleAcquire).Methods(http.MethodPost)
	r.HandleFunc("/release", s.handleRelease).Methods(http.MethodPost)
	r.HandleFunc("/destroy", s.handleDestroy).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodPost)
	return r
}
