package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/crm"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/reconcile"
	"github.com/ariefcatur/go-mango-store/internal/redisx"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

var (
	alice = auth.Principal{UserID: "alice", Role: auth.RoleCustomer}
	bob   = auth.Principal{UserID: "bob", Role: auth.RoleCustomer}
	staff = auth.Principal{UserID: "sam", Role: auth.RoleStaff}
	admin = auth.Principal{UserID: "root", Role: auth.RoleAdmin}
)

type env struct {
	srv     *Server
	handler http.Handler
	mr      *miniredis.Miniredis
	catalog *inventory.Catalog
	records *crm.MemoryStore
}

func newEnv(t *testing.T, gw payment.Gateway) *env {
	t.Helper()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redisx.New(mr.Addr())
	t.Cleanup(func() { _ = rdb.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cat := inventory.NewCatalog("catalog", inventory.NewMemoryStore(), nil, m, nil)
	_, err := cat.Put(ctx, inventory.Item{ID: "kesar-2kg", Variety: "Kesar", WeightClass: "2kg", PriceCents: 1500, Quantity: 5, Active: true})
	require.NoError(t, err)

	stallReg := stalls.NewMemoryRegistry()
	part := &stalls.Partition{Stalls: stallReg, Catalog: inventory.NewCatalog("stall", inventory.NewMemoryStore(), nil, m, nil), LockedPurchasable: true}
	slotReg := slots.NewRegistry(slots.NewMemoryStore(), nil, m)
	cache := redisx.StatusCache{RDB: rdb}

	ledger := &orders.Ledger{
		Orders: orders.NewMemoryRepo(),
		Stocks: func(_ context.Context, stallID string) (orders.Stock, error) {
			if stallID == "" {
				return cat, nil
			}
			return part.For(stallID), nil
		},
		Slots:    slotReg,
		Cache:    cache,
		Metrics:  m,
		Currency: "INR",
	}
	gate := &payment.Gate{
		Ledger:    ledger,
		Gateway:   gw,
		Signer:    payment.NewSigner("cb-secret"),
		Deadlines: payment.NewMemoryDeadlines(),
		Dedup:     redisx.PaymentDedup{RDB: rdb},
		Timeout:   15 * time.Minute,
		Currency:  "INR",
		Metrics:   m,
	}
	records := crm.NewMemoryStore()
	srv := &Server{
		Ledger:     ledger,
		Gate:       gate,
		Catalog:    cat,
		Slots:      slotReg,
		Stalls:     &stalls.Service{Registry: stallReg},
		Partition:  part,
		Reconciler: &reconcile.Reconciler{Stalls: stallReg, Records: records, Items: part, Policy: reconcile.PolicyRelabel},
		Delegator:  auth.NewDelegator("delegation-secret", time.Minute),
		Idem:       redisx.Idempotency{RDB: rdb},
		Status:     cache,
		Metrics:    m,
		Gatherer:   reg,
	}
	return &env{srv: srv, handler: srv.Router(), mr: mr, catalog: cat, records: records}
}

func (e *env) do(t *testing.T, method, path string, who *auth.Principal, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	if who != nil {
		req.Header.Set(headerUserID, who.UserID)
		req.Header.Set(headerUserRole, string(who.Role))
		if who.StallID != "" {
			req.Header.Set(headerStallID, who.StallID)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (e *env) stock(t *testing.T) int {
	it, err := e.catalog.Get(context.Background(), "kesar-2kg")
	require.NoError(t, err)
	return it.Quantity
}

func checkoutBody(qty int, mode orders.PaymentMode) orders.CheckoutRequest {
	return orders.CheckoutRequest{
		Items:       []orders.LineInput{{ItemID: "kesar-2kg", Qty: qty}},
		PaymentMode: mode,
	}
}

func TestCheckout_IdempotencyKeyReplaysTheOrder(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	hdr := map[string]string{headerIdempotencyKey: "cart-42"}

	first := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(2, orders.PaymentOnline), hdr)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	created := decode[CheckoutResp](t, first)
	assert.Equal(t, orders.StatusPending, created.Status)
	assert.Equal(t, 3000, created.TotalCents)
	assert.NotEmpty(t, created.PaymentIntent)

	again := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(2, orders.PaymentOnline), hdr)
	require.Equal(t, http.StatusOK, again.Code)
	replay := decode[CheckoutResp](t, again)
	assert.Equal(t, created.OrderID, replay.OrderID)
	assert.True(t, replay.Idempotent)
	assert.Equal(t, 3, e.stock(t))

	// same key, different customer
	other := e.do(t, http.MethodPost, "/checkout", &bob, checkoutBody(1, orders.PaymentCOD), hdr)
	require.Equal(t, http.StatusCreated, other.Code)
	assert.NotEqual(t, created.OrderID, decode[CheckoutResp](t, other).OrderID)
}

func TestCheckout_Errors(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})

	rec := e.do(t, http.MethodPost, "/checkout", nil, checkoutBody(1, orders.PaymentCOD), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(6, orders.PaymentCOD), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "sold_out", decode[errorBody](t, rec).Error)
	assert.Equal(t, 5, e.stock(t))

	rec = e.do(t, http.MethodPost, "/checkout", &alice, orders.CheckoutRequest{PaymentMode: orders.PaymentCOD}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/checkout", &auth.Principal{UserID: "x", Role: "wizard"}, checkoutBody(1, orders.PaymentCOD), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckout_IdempotencyKeyFreedAfterFailure(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	hdr := map[string]string{headerIdempotencyKey: "retry-me"}

	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(9, orders.PaymentCOD), hdr)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), hdr)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCheckout_RateLimited(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	e.srv.CheckoutLimiter = rate.NewLimiter(0, 1)
	e.handler = e.srv.Router()

	assert.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil).Code)
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

type downGateway struct{}

func (downGateway) CreateIntent(context.Context, payment.IntentRequest) (string, error) {
	return "", payment.ErrGatewayUnavailable
}

func TestCheckout_GatewayDownReturnsCancelledOrder(t *testing.T) {
	e := newEnv(t, downGateway{})
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(2, orders.PaymentOnline), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error string       `json:"error"`
		Order CheckoutResp `json:"order"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "payment_unavailable", body.Error)
	assert.Equal(t, orders.StatusCancelled, body.Order.Status)
	assert.Equal(t, 5, e.stock(t))
}

func TestOrderStatus_ReadThroughCache(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[CheckoutResp](t, rec).OrderID
	key := fmt.Sprintf(redisx.KeyOrderStatus, id)
	assert.True(t, e.mr.Exists(key))

	rec = e.do(t, http.MethodGet, "/orders/"+id+"/status", &alice, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(orders.StatusPending), decode[StatusResp](t, rec).Status)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/orders/"+id+"/status", &bob, nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/orders/"+id, &bob, nil, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/orders/"+id, &staff, nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/orders/nope", &staff, nil, nil).Code)

	rec = e.do(t, http.MethodPost, "/orders/"+id+"/cancel", &alice, map[string]string{"reason": "changed my mind"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cached, ok := e.srv.Status.Get(context.Background(), id)
	require.True(t, ok)
	assert.Equal(t, string(orders.StatusCancelled), cached.Status, "cancellation writes through")

	rec = e.do(t, http.MethodGet, "/orders/"+id+"/status", &alice, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(orders.StatusCancelled), decode[StatusResp](t, rec).Status)

	rec = e.do(t, http.MethodPost, "/orders/"+id+"/cancel", &alice, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", decode[errorBody](t, rec).Error)

	rec = e.do(t, http.MethodGet, "/orders", &alice, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]orders.Order](t, rec), 1)
}

func TestOrderStatus_StaleFillLosesToTransition(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	ctx := context.Background()
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[CheckoutResp](t, rec).OrderID
	e.mr.Del(fmt.Sprintf(redisx.KeyOrderStatus, id))

	// a status read misses and loads the order, then a cancel lands before
	// the read gets to fill the cache
	stale, err := e.srv.Ledger.Get(ctx, id, alice)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/orders/"+id+"/cancel", &alice, nil, nil).Code)
	e.srv.cacheStatus(ctx, stale)

	rec = e.do(t, http.MethodGet, "/orders/"+id+"/status", &alice, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(orders.StatusCancelled), decode[StatusResp](t, rec).Status)
}

func TestAdvanceOrder(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil)
	id := decode[CheckoutResp](t, rec).OrderID
	path := "/admin/orders/" + id + "/status"

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, path, &alice, advanceReq{Status: "CONFIRMED"}, nil).Code)
	assert.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, path, &staff, advanceReq{Status: "SHIPPED"}, nil).Code)

	rec = e.do(t, http.MethodPost, path, &staff, advanceReq{Status: "DELIVERED"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[errorBody](t, rec).Error)

	for _, to := range []string{"CONFIRMED", "OUT_FOR_DELIVERY", "DELIVERED"} {
		rec = e.do(t, http.MethodPost, path, &staff, advanceReq{Status: to}, nil)
		require.Equal(t, http.StatusOK, rec.Code, to)
		assert.Equal(t, orders.Status(to), decode[orders.Order](t, rec).Status)
	}
}

func TestPaymentCallback(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentOnline), nil)
	intent := decode[CheckoutResp](t, rec).PaymentIntent
	signer := payment.NewSigner("cb-secret")

	bad := payment.Callback{Intent: intent, Reference: "ref-1", Status: payment.CallbackSucceeded, Signature: signer.Sign(intent, "ref-2")}
	rec = e.do(t, http.MethodPost, "/payments/callback", nil, bad, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_signature", decode[errorBody](t, rec).Error)

	good := payment.Callback{Intent: intent, Reference: "ref-1", Status: payment.CallbackSucceeded}
	rec = e.do(t, http.MethodPost, "/payments/callback", nil, good, map[string]string{headerSignature: signer.Sign(intent, "ref-1")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[callbackResp](t, rec)
	assert.Equal(t, orders.StatusConfirmed, got.Status)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)

	good.Signature = signer.Sign(intent, "ref-1")
	rec = e.do(t, http.MethodPost, "/payments/callback", nil, good, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "replay is a no-op")
	assert.Equal(t, 4, e.stock(t))
}

func TestCatalogAdmin(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	item := inventory.Item{Variety: "Alphonso", WeightClass: "1kg", PriceCents: 900, Quantity: 3, Active: false}

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPut, "/admin/items/alphonso-1kg", &staff, item, nil).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, "/admin/items/alphonso-1kg", &admin, item, nil).Code)

	rec := e.do(t, http.MethodGet, "/items", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]inventory.Item](t, rec), 1, "inactive items are hidden from shoppers")
	rec = e.do(t, http.MethodGet, "/items", &admin, nil, nil)
	assert.Len(t, decode[[]inventory.Item](t, rec), 2)

	qty := 12
	rec = e.do(t, http.MethodPost, "/admin/items/kesar-2kg/stock", &admin, stockReq{Quantity: &qty}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is mandatory")

	rec = e.do(t, http.MethodPost, "/admin/items/kesar-2kg/stock", &admin, stockReq{Quantity: &qty, Reason: "truck arrived"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	adj := decode[inventory.Adjustment](t, rec)
	assert.Equal(t, 5, adj.Previous)
	assert.Equal(t, "root", adj.ActorID)
	assert.Equal(t, 12, e.stock(t))
}

func TestSlotsAdmin(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	start := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	slot := slots.Slot{ID: "morning", Label: "9-11", StartsAt: start, EndsAt: start.Add(2 * time.Hour), Max: 2}

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/admin/slots", &alice, slot, nil).Code)
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/admin/slots", &admin, slot, nil).Code)
	rec := e.do(t, http.MethodPost, "/admin/slots", &admin, slot, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", decode[errorBody](t, rec).Error)

	for _, who := range []*auth.Principal{&alice, &bob} {
		body := checkoutBody(1, orders.PaymentCOD)
		body.SlotID = "morning"
		require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/checkout", who, body, nil).Code)
	}
	body := checkoutBody(1, orders.PaymentCOD)
	body.SlotID = "morning"
	rec = e.do(t, http.MethodPost, "/checkout", &alice, body, nil)
	assert.Equal(t, "slot_full", decode[errorBody](t, rec).Error)

	one := 1
	rec = e.do(t, http.MethodPut, "/admin/slots/morning/capacity", &admin, capacityReq{Max: &one}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sv := decode[slotView](t, rec)
	assert.True(t, sv.OverCapacity)
	assert.Equal(t, 2, sv.Current)

	assert.Equal(t, http.StatusConflict, e.do(t, http.MethodDelete, "/admin/slots/morning", &admin, nil, nil).Code)

	rec = e.do(t, http.MethodGet, "/slots", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]slotView](t, rec), 1)
}

func TestStallLifecycle(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	ctx := context.Background()

	rec := e.do(t, http.MethodPost, "/admin/stalls", &admin, createStallReq{Name: "Devgad Corner", OwnerID: "olga"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	st := decode[stalls.Stall](t, rec)
	owner := auth.Principal{UserID: "olga", Role: auth.RoleStallOwner, StallID: st.ID}
	itemPath := "/stalls/" + st.ID + "/items/hapus"

	item := inventory.Item{Variety: "Hapus", WeightClass: "1kg", PriceCents: 1200, Quantity: 4, Active: true}
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPut, itemPath, &alice, item, nil).Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPut, itemPath, &owner, item, nil).Code)

	body := orders.CheckoutRequest{StallID: st.ID, Items: []orders.LineInput{{ItemID: "hapus", Qty: 3}}, PaymentMode: orders.PaymentCOD}
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/checkout", &alice, body, nil).Code)

	rec = e.do(t, http.MethodGet, "/stalls/"+st.ID+"/items", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]inventory.Item](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "hapus", items[0].ID)
	assert.Equal(t, 1, items[0].Quantity)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/admin/stalls/"+st.ID+"/lock", &admin, nil, nil).Code)
	qty := 10
	rec = e.do(t, http.MethodPost, itemPath+"/stock", &owner, stockReq{Quantity: &qty, Reason: "restock"}, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/admin/stalls/"+st.ID+"/unlock", &admin, nil, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodPost, itemPath+"/stock", &owner, stockReq{Quantity: &qty, Reason: "restock"}, nil).Code)

	_, err := e.records.Put(ctx, crm.Record{ID: "c1", Name: "Alice", StallID: st.ID})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodDelete, "/admin/stalls/"+st.ID, &staff, nil, nil).Code)
	require.Equal(t, http.StatusNoContent, e.do(t, http.MethodDelete, "/admin/stalls/"+st.ID, &admin, nil, nil).Code)

	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/admin/reconcile", &staff, nil, nil).Code)
	rec = e.do(t, http.MethodPost, "/admin/reconcile", &admin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rep := decode[reconcile.Report](t, rec)
	assert.Equal(t, 1, rep.Relabeled)
	assert.Equal(t, 1, rep.ItemsDeactivated)

	got, err := e.records.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, crm.DeletedStoreLabel, got.StallID)
}

func TestDelegation(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	rec := e.do(t, http.MethodPost, "/checkout", &alice, checkoutBody(1, orders.PaymentCOD), nil)
	id := decode[CheckoutResp](t, rec).OrderID

	req := delegationReq{SubjectID: "alice", SubjectRole: "customer"}
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/admin/delegations", &staff, req, nil).Code)
	assert.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/admin/delegations", &admin, delegationReq{SubjectID: "x", SubjectRole: "admin"}, nil).Code)

	rec = e.do(t, http.MethodPost, "/admin/delegations", &admin, req, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	token := decode[delegationResp](t, rec).Token

	rec = e.do(t, http.MethodGet, "/orders/"+id, nil, nil, map[string]string{headerDelegation: token})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/orders/"+id, &bob, nil, map[string]string{headerDelegation: token})
	assert.Equal(t, http.StatusForbidden, rec.Code, "token bound to its issuer")

	rec = e.do(t, http.MethodGet, "/orders/"+id, nil, nil, map[string]string{headerDelegation: token + "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = e.do(t, http.MethodPost, "/admin/delegations", nil, req, map[string]string{headerDelegation: token})
	assert.Equal(t, http.StatusForbidden, rec.Code, "delegated customer cannot delegate")
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t, payment.Sandbox{})
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil, nil, nil).Code)
	e.do(t, http.MethodGet, "/items", nil, nil, nil)

	rec := e.do(t, http.MethodGet, "/metrics", nil, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_request_duration_seconds_count{method="GET",route="/items",status="200"}`)
}
