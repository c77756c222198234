package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/go-chi/chi/v5"
)

type stockReq struct {
	Quantity *int   `json:"quantity"`
	Reason   string `json:"reason"`
}

// visible drops inactive items unless the caller may edit them.
func visible(items []inventory.Item, all bool) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		if it.Active || all {
			out = append(out, it)
		}
	}
	return out
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.Catalog.List(r.Context(), "")
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, visible(items, auth.Can(principal(r).Role, auth.CapEditCatalog)))
}

func (s *Server) putItem(w http.ResponseWriter, r *http.Request) {
	if err := principal(r).Require(auth.CapEditCatalog); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	var it inventory.Item
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	it.ID = chi.URLParam(r, "id")
	out, err := s.Catalog.Put(r.Context(), it)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adjustItem(w http.ResponseWriter, r *http.Request) {
	by := principal(r)
	if err := by.Require(auth.CapAdjustStock); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	var req stockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, s.Log, inventory.ErrInvalidQuantity)
		return
	}
	adj, err := s.Catalog.Adjust(r.Context(), chi.URLParam(r, "id"), *req.Quantity, req.Reason, by.ActorID())
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}

func (s *Server) listStallItems(w http.ResponseWriter, r *http.Request) {
	stallID := chi.URLParam(r, "id")
	items, err := s.Partition.Items(r.Context(), stallID)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, visible(items, principal(r).OwnsStall(stallID)))
}

func (s *Server) putStallItem(w http.ResponseWriter, r *http.Request) {
	var it inventory.Item
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	it.ID = chi.URLParam(r, "item")
	out, err := s.Partition.PutItem(r.Context(), principal(r), chi.URLParam(r, "id"), it)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adjustStallItem(w http.ResponseWriter, r *http.Request) {
	var req stockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, s.Log, inventory.ErrInvalidQuantity)
		return
	}
	adj, err := s.Partition.AdjustItem(r.Context(), principal(r), chi.URLParam(r, "id"), chi.URLParam(r, "item"), *req.Quantity, req.Reason)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}
