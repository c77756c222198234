package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
)

const headerSignature = "X-Payment-Signature"

type callbackResp struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

// paymentCallback is unauthenticated at the HTTP level; the gate checks the
// HMAC before any order is read.
func (s *Server) paymentCallback(w http.ResponseWriter, r *http.Request) {
	var cb payment.Callback
	if err := decodeJSON(w, r, &cb); err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	if cb.Signature == "" {
		cb.Signature = r.Header.Get(headerSignature)
	}
	o, err := s.Gate.HandleCallback(r.Context(), cb)
	if err != nil {
		writeError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, callbackResp{OrderID: o.ID, Status: o.Status, PaymentStatus: o.PaymentStatus})
}
