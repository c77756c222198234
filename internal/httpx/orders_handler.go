package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const headerIdempotencyKey = "Idempotency-Key"

type CheckoutResp struct {
	OrderID       string        `json:"order_id"`
	Status        orders.Status `json:"status"`
	TotalCents    int           `json:"total_cents"`
	ShippingCents int           `json:"shipping_cents"`
	PaymentIntent string        `json:"payment_intent,omitempty"`
	Idempotent    bool          `json:"idempotent"`
}

func checkoutResp(o orders.Order, replay bool) CheckoutResp {
	return CheckoutResp{
		OrderID:       o.ID,
		Status:        o.Status,
		TotalCents:    o.TotalCents,
		ShippingCents: o.ShippingCents,
		PaymentIntent: o.PaymentIntent,
		Idempotent:    replay,
	}
}

type StatusResp struct {
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	by := principal(r)
	var req orders.CheckoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	log := logging.FromContext(ctx, s.Log)

	// keys are scoped per customer so two users cannot collide
	var idemKey string
	if k := r.Header.Get(headerIdempotencyKey); k != "" && s.Idem != nil {
		idemKey = by.UserID + ":" + k
		prev, claimed, err := s.Idem.Begin(ctx, idemKey)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, r, s.Log, err)
			return
		case err != nil:
			// redis is a shortcut, checkout still works without it
			log.Warn("idempotency_unavailable", zap.Error(err))
			idemKey = ""
		case !claimed && prev != "":
			o, err := s.Ledger.Get(ctx, prev, by)
			if err != nil {
				writeError(w, r, s.Log, err)
				return
			}
			writeJSON(w, http.StatusOK, checkoutResp(o, true))
			return
		case !claimed:
			writeError(w, r, s.Log, redisx.ErrInFlight)
			return
		}
	}

	o, err := s.Ledger.Create(ctx, by, req)
	if err == nil {
		o, err = s.Gate.CreateIntent(ctx, o)
	}
	if idemKey != "" {
		bg := context.WithoutCancel(ctx)
		if o.ID != "" {
			_ = s.Idem.Complete(bg, idemKey, o.ID)
		} else {
			_ = s.Idem.Abort(bg, idemKey)
		}
	}
	if err != nil {
		if errors.Is(err, payment.ErrGatewayUnavailable) && o.ID != "" {
			log.Warn("checkout_payment_unavailable", zap.String("order_id", o.ID), zap.Error(err))
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "payment_unavailable", "order": checkoutResp(o, false)})
			return
		}
		writeError(w, r, s.Log, err)
		return
	}
	s.cacheStatus(ctx, o)
	writeJSON(w, http.StatusCreated, checkoutResp(o, false))
}

func (s *Server) cacheStatus(ctx context.Context, o orders.Order) {
	if s.Status != nil {
		s.Status.Put(ctx, o)
	}
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := s.Ledger.Get(ctx, chi.URLParam(r, "id"), principal(r))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// getOrderStatus reads through the status cache. Visibility is checked
// against the cached owner fields too.
func (s *Server) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	by := principal(r)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if s.Status != nil {
		if c, ok := s.Status.Get(ctx, id); ok {
			if !orders.CanView(c.CustomerID, c.StallID, by) {
				writeError(w, r, s.Log, fmt.Errorf("%w: order %s", auth.ErrUnauthorized, id))
				return
			}
			writeJSON(w, http.StatusOK, StatusResp{OrderID: id, Status: c.Status, PaymentStatus: c.PaymentStatus, UpdatedAt: c.UpdatedAt})
			return
		}
	}

	o, err := s.Ledger.Get(ctx, id, by)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	s.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, StatusResp{OrderID: o.ID, Status: string(o.Status), PaymentStatus: string(o.PaymentStatus), UpdatedAt: o.UpdatedAt})
}

func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	out, err := s.Ledger.ListMine(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if out == nil {
		out = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, out)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, s.Log, err)
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "cancelled by request"
	}
	o, err := s.Ledger.Cancel(r.Context(), chi.URLParam(r, "id"), principal(r), req.Reason)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type advanceReq struct {
	Status string `json:"status"`
}

func (s *Server) advanceOrder(w http.ResponseWriter, r *http.Request) {
	var req advanceReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	to, ok := orders.ParseStatus(req.Status)
	if !ok {
		writeError(w, r, s.Log, fmt.Errorf("%w: unknown status %q", errBadRequest, req.Status))
		return
	}
	o, err := s.Ledger.Advance(r.Context(), chi.URLParam(r, "id"), principal(r), to)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
