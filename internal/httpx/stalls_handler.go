package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"github.com/go-chi/chi/v5"
)

type createStallReq struct {
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`
}

func (s *Server) listStalls(w http.ResponseWriter, r *http.Request) {
	out, err := s.Stalls.List(r.Context())
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if out == nil {
		out = []stalls.Stall{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createStall(w http.ResponseWriter, r *http.Request) {
	var req createStallReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	out, err := s.Stalls.Create(r.Context(), principal(r), stalls.Stall{Name: req.Name, OwnerID: req.OwnerID})
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) lockStall(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.Stalls.SetLocked(r.Context(), principal(r), chi.URLParam(r, "id"), locked)
		if err != nil {
			writeError(w, r, s.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) deleteStall(w http.ResponseWriter, r *http.Request) {
	if err := s.Stalls.Delete(r.Context(), principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
