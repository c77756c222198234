package httpx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"go.uber.org/zap"
)

type reconcileReq struct {
	StallIDs []string `json:"stall_ids"`
}

// reconcile runs the orphan reconciler inline. stall_ids, when given, are
// treated as known-deleted stalls.
func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	by := principal(r)
	if err := by.Require(auth.CapReconcile); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	var req reconcileReq
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, s.Log, err)
			return
		}
	}
	rep, err := s.Reconciler.Run(r.Context(), req.StallIDs...)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	logging.FromContext(r.Context(), s.Log).Info("reconcile_requested",
		zap.String("actor_id", by.ActorID()),
		zap.Int("relabeled", rep.Relabeled),
		zap.Int("removed", rep.Removed),
	)
	writeJSON(w, http.StatusOK, rep)
}

type delegationReq struct {
	SubjectID      string `json:"subject_id"`
	SubjectRole    string `json:"subject_role"`
	SubjectStallID string `json:"subject_stall_id"`
}

type delegationResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) issueDelegation(w http.ResponseWriter, r *http.Request) {
	by := principal(r)
	var req delegationReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	role, err := auth.ParseRole(req.SubjectRole)
	if err != nil {
		writeError(w, r, s.Log, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.SubjectID == "" {
		writeError(w, r, s.Log, fmt.Errorf("%w: subject_id is required", errBadRequest))
		return
	}
	token, exp, err := s.Delegator.Issue(by, auth.Principal{UserID: req.SubjectID, Role: role, StallID: req.SubjectStallID})
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	logging.FromContext(r.Context(), s.Log).Info("delegation_issued",
		zap.String("actor_id", by.ActorID()),
		zap.String("subject_id", req.SubjectID),
		zap.String("subject_role", string(role)),
		zap.Time("expires_at", exp),
	)
	writeJSON(w, http.StatusCreated, delegationResp{Token: token, ExpiresAt: exp})
}
