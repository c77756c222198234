package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/reconcile"
	"github.com/ariefcatur/go-mango-store/internal/redisx"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Idempotency maps a client Idempotency-Key to the order it created.
type Idempotency interface {
	Begin(ctx context.Context, key string) (orderID string, claimed bool, err error)
	Complete(ctx context.Context, key, orderID string) error
	Abort(ctx context.Context, key string) error
}

// StatusCache is the read side of the order status cache. The ledger
// writes through on every transition and Put keeps the newest version, so a
// miss fill racing a transition cannot cache the older status.
type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.CachedStatus, bool)
	Put(ctx context.Context, o orders.Order)
}

type Server struct {
	Ledger     *orders.Ledger
	Gate       *payment.Gate
	Catalog    *inventory.Catalog
	Slots      *slots.Registry
	Stalls     *stalls.Service
	Partition  *stalls.Partition
	Reconciler *reconcile.Reconciler
	Delegator  *auth.Delegator

	// Optional. Nil Idem ignores Idempotency-Key; nil Status always reads
	// the ledger.
	Idem   Idempotency
	Status StatusCache

	Log             *zap.Logger
	Metrics         *metrics.Collectors
	Gatherer        prometheus.Gatherer
	CheckoutLimiter *rate.Limiter
	RequestTimeout  time.Duration
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Server) Router() chi.Router {
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, s.observe, middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(s.identify)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	}

	// public
	r.Get("/items", s.listItems)
	r.Get("/slots", s.listSlots)
	r.Get("/stalls", s.listStalls)
	r.Get("/stalls/{id}/items", s.listStallItems)
	r.Post("/payments/callback", s.paymentCallback)

	r.Group(func(r chi.Router) {
		r.Use(authenticated)

		r.With(limit(s.CheckoutLimiter)).Post("/checkout", s.checkout)
		r.Get("/orders", s.listMyOrders)
		r.Get("/orders/{id}", s.getOrder)
		r.Get("/orders/{id}/status", s.getOrderStatus)
		r.Post("/orders/{id}/cancel", s.cancelOrder)

		r.Put("/stalls/{id}/items/{item}", s.putStallItem)
		r.Post("/stalls/{id}/items/{item}/stock", s.adjustStallItem)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/orders/{id}/status", s.advanceOrder)

			r.Put("/items/{id}", s.putItem)
			r.Post("/items/{id}/stock", s.adjustItem)

			r.Post("/slots", s.createSlot)
			r.Put("/slots/{id}", s.updateSlot)
			r.Put("/slots/{id}/capacity", s.setSlotCapacity)
			r.Delete("/slots/{id}", s.deleteSlot)

			r.Post("/stalls", s.createStall)
			r.Post("/stalls/{id}/lock", s.lockStall(true))
			r.Post("/stalls/{id}/unlock", s.lockStall(false))
			r.Delete("/stalls/{id}", s.deleteStall)

			r.Post("/reconcile", s.reconcile)
			r.Post("/delegations", s.issueDelegation)
		})
	})
	return r
}
