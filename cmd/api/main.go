package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/auth"
	"github.com/ariefcatur/go-mango-store/internal/config"
	"github.com/ariefcatur/go-mango-store/internal/httpx"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/reconcile"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b := memoryBackend()
	if cfg.StoreBackend == "postgres" {
		if b, err = postgresBackend(ctx, cfg, logger); err != nil {
			logger.Fatal("backend_init_failed", zap.Error(err))
		}
	}
	defer b.close()

	// the producer outlives the request context so in-flight handlers can
	// still publish while the server drains
	prodCtx, stopProducer := context.WithCancel(context.Background())
	if b.producer != nil {
		b.producer.Start(prodCtx)
	}

	catalog := inventory.NewCatalog("catalog", b.catalog, logger, m, b.sink)
	partition := &stalls.Partition{
		Stalls:            b.stalls,
		Catalog:           inventory.NewCatalog("stall", b.stallItems, logger, m, b.sink),
		LockedPurchasable: cfg.LockedStallsPurchasable,
	}
	slotReg := slots.NewRegistry(b.slots, logger, m)

	var shipping orders.Quoter
	if len(cfg.ShippingZones) > 0 {
		shipping = orders.ZoneQuoter{Zones: cfg.ShippingZones, PerUnitCents: cfg.ShippingPerUnitCents}
	}
	ledger := &orders.Ledger{
		Orders: b.orders,
		Stocks: func(_ context.Context, stallID string) (orders.Stock, error) {
			if stallID == "" {
				return catalog, nil
			}
			return partition.For(stallID), nil
		},
		Slots: slotReg,
		Shipping: &orders.FeeCalculator{
			Quoter:    shipping,
			FlatCents: cfg.ShippingFlatFeeCents,
			Timeout:   cfg.ShippingQuoteTimeout,
			Log:       logger,
		},
		Events:   b.sink,
		Log:      logger,
		Metrics:  m,
		Currency: cfg.Currency,
	}

	var gateway payment.Gateway = payment.Sandbox{}
	if cfg.PaymentGatewayURL != "" {
		gateway = payment.NewHTTPGateway(cfg.PaymentGatewayURL, 5*time.Second)
	}
	gate := &payment.Gate{
		Ledger:    ledger,
		Gateway:   gateway,
		Signer:    payment.NewSigner(cfg.PaymentSecret),
		Deadlines: b.deadlines,
		Dedup:     b.dedup,
		Timeout:   cfg.PaymentTimeout,
		Currency:  cfg.Currency,
		Log:       logger,
		Metrics:   m,
	}

	policy, err := reconcile.ParsePolicy(cfg.OrphanPolicy)
	if err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}

	srv := &httpx.Server{
		Ledger:    ledger,
		Gate:      gate,
		Catalog:   catalog,
		Slots:     slotReg,
		Stalls:    &stalls.Service{Registry: b.stalls, Events: b.sink, Log: logger},
		Partition: partition,
		Reconciler: &reconcile.Reconciler{
			Stalls:  b.stalls,
			Records: b.records,
			Items:   partition,
			Policy:  policy,
			Log:     logger,
			Metrics: m,
		},
		Delegator:       auth.NewDelegator(cfg.DelegationSecret, cfg.DelegationTTL),
		Idem:            b.idem,
		Log:             logger,
		Metrics:         m,
		Gatherer:        reg,
		CheckoutLimiter: rate.NewLimiter(rate.Limit(cfg.CheckoutRPS), cfg.CheckoutBurst),
	}
	if b.status != nil {
		ledger.Cache = b.status
		srv.Status = b.status
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StoreBackend))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return gate.RunSweeper(gctx, cfg.PaymentSweepInterval)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_exit", zap.Error(err))
	}
	stopProducer()
	if b.producer != nil {
		b.producer.WaitClosed()
	}
}
