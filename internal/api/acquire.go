package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/SystemBuilders/LocKey/internal/event"
	"github.com/SystemBuilders/LocKey/internal/reservation"
)

func (s *Server) handleAcquire(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AcquireRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acqType, err := parseAcqType(req.AcqType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ev := s.mgr.Acquire(req.ID, reservation.Mode(req.Mode), req.Exclusive, acqType, event.NoEvent)
	if !ev.Exists() {
		writeJSON(w, http.StatusOK, AcquireResponse{Granted: true})
		return
	}
	if acqType != reservation.Blocking {
		// A nonblocking acquire that hands back a token was not granted;
		// the token only fires when a retry is worth attempting.
		writeJSON(w, http.StatusOK, AcquireResponse{Granted: false})
		return
	}

	poisoned := ev.Wait()
	writeJSON(w, http.StatusOK, AcquireResponse{Granted: !poisoned, Poisoned: poisoned})
}

func parseAcqType(s string) (reservation.AcqType, error) {
	switch s {
	case "", "blocking":
		return reservation.Blocking, nil
	case "nonblocking":
		return reservation.Nonblocking, nil
	case "nonblocking_retry":
		return reservation.NonblockingRetry, nil
	default:
		return 0, errUnknownAcqType(s)
	}
}

type errUnknownAcqType string

func (e errUnknownAcqType) Error() string { return "api: unknown acq_type " + string(e) }
