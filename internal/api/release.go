package api

import (
	"encoding/json"
	"io"
	"net/http"
)

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req ReleaseRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mgr.Release(req.ID)
	w.Write([]byte("lock released"))
}
