package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/go-chi/chi/v5"
)

type slotView struct {
	slots.Slot
	Available    int  `json:"available"`
	OverCapacity bool `json:"over_capacity"`
}

func viewSlot(sl slots.Slot) slotView {
	return slotView{Slot: sl, Available: sl.Available(), OverCapacity: sl.OverCapacity()}
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	list, err := s.Slots.List(r.Context())
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	out := make([]slotView, 0, len(list))
	for _, sl := range list {
		out = append(out, viewSlot(sl))
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeSlot checks the capability before reading the body.
func (s *Server) decodeSlot(w http.ResponseWriter, r *http.Request) (slots.Slot, bool) {
	var sl slots.Slot
	if err := principal(r).Require(auth.CapManageSlots); err != nil {
		writeError(w, r, s.Log, err)
		return sl, false
	}
	if err := decodeJSON(w, r, &sl); err != nil {
		writeError(w, r, s.Log, err)
		return sl, false
	}
	return sl, true
}

func (s *Server) createSlot(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.decodeSlot(w, r)
	if !ok {
		return
	}
	out, err := s.Slots.Create(r.Context(), sl)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewSlot(out))
}

func (s *Server) updateSlot(w http.ResponseWriter, r *http.Request) {
	sl, ok := s.decodeSlot(w, r)
	if !ok {
		return
	}
	sl.ID = chi.URLParam(r, "id")
	out, err := s.Slots.Update(r.Context(), sl)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSlot(out))
}

type capacityReq struct {
	Max *int `json:"max"`
}

func (s *Server) setSlotCapacity(w http.ResponseWriter, r *http.Request) {
	if err := principal(r).Require(auth.CapManageSlots); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	var req capacityReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if req.Max == nil {
		writeError(w, r, s.Log, slots.ErrInvalidCapacity)
		return
	}
	out, err := s.Slots.SetCapacity(r.Context(), chi.URLParam(r, "id"), *req.Max)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, viewSlot(out))
}

func (s *Server) deleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := principal(r).Require(auth.CapManageSlots); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if err := s.Slots.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
