package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/crm"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/redisx"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("missing identity")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json", errBadRequest)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// classify maps a domain error to a status code and a stable error code.
// detail reports whether err's text is safe to show the client.
func classify(err error) (code int, name string, detail bool) {
	switch {
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "sold_out", false
	case errors.Is(err, slots.ErrSlotFull):
		return http.StatusConflict, "slot_full", false
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized, "invalid_signature", false
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated", false
	case errors.Is(err, orders.ErrAlreadyCancelled):
		return http.StatusConflict, "already_cancelled", false
	case errors.Is(err, orders.ErrAlreadyPaid):
		return http.StatusConflict, "already_paid", false
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", true
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict, "conflict", false
	case errors.Is(err, redisx.ErrInFlight):
		return http.StatusConflict, "request_in_progress", false
	case errors.Is(err, stalls.ErrStallLocked):
		return http.StatusLocked, "stall_locked", false
	case errors.Is(err, slots.ErrExists), errors.Is(err, stalls.ErrExists):
		return http.StatusConflict, "already_exists", false
	case errors.Is(err, slots.ErrInUse):
		return http.StatusConflict, "slot_in_use", false
	case errors.Is(err, inventory.ErrInactive):
		return http.StatusConflict, "item_unavailable", true
	case errors.Is(err, orders.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound),
		errors.Is(err, slots.ErrNotFound),
		errors.Is(err, stalls.ErrNotFound),
		errors.Is(err, crm.ErrNotFound):
		return http.StatusNotFound, "not_found", false
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized", false
	case errors.Is(err, payment.ErrGatewayUnavailable):
		return http.StatusBadGateway, "payment_unavailable", false
	case errors.Is(err, errBadRequest),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidPayment),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidItem),
		errors.Is(err, inventory.ErrReasonRequired),
		errors.Is(err, slots.ErrInvalidCapacity),
		errors.Is(err, slots.ErrInvalidWindow),
		errors.Is(err, stalls.ErrInvalid),
		errors.Is(err, payment.ErrInvalidCallback):
		return http.StatusBadRequest, "invalid_request", true
	}
	return http.StatusInternalServerError, "internal error", false
}

func writeError(w http.ResponseWriter, r *http.Request, base *zap.Logger, err error) {
	code, name, detail := classify(err)
	body := errorBody{Error: name}
	if detail {
		body.Message = err.Error()
	}
	log := logging.FromContext(r.Context(), base)
	if code >= http.StatusInternalServerError {
		log.Error("request_failed", zap.Int("status", code), zap.Error(err))
	} else {
		log.Debug("request_rejected", zap.Int("status", code), zap.String("error_code", name), zap.Error(err))
	}
	writeJSON(w, code, body)
}
