package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ariefcatur/go-mango-store/internal/config"
	"github.com/ariefcatur/go-mango-store/internal/crm"
	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	kafkax "github.com/ariefcatur/go-mango-store/internal/kafka"
	"github.com/ariefcatur/go-mango-store/internal/logging"
	"github.com/ariefcatur/go-mango-store/internal/metrics"
	"github.com/ariefcatur/go-mango-store/internal/postgres"
	"github.com/ariefcatur/go-mango-store/internal/reconcile"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.ServiceName+"-reconciler", cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	policy, err := reconcile.ParsePolicy(cfg.OrphanPolicy)
	if err != nil {
		logger.Fatal("config_invalid", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db_connect_failed", zap.Error(err))
	}
	defer db.Close()

	registry := &stalls.PGRegistry{DB: db}
	r := &reconcile.Reconciler{
		Stalls:  registry,
		Records: &crm.PGStore{DB: db},
		Items: &stalls.Partition{
			Stalls:  registry,
			Catalog: inventory.NewCatalog("stall", inventory.NewPGStore(db, "stall_items"), logger, nil, nil),
		},
		Policy:  policy,
		Log:     logger,
		Metrics: metrics.New(prometheus.NewRegistry()),
	}

	group := getenv("RECONCILER_GROUP", "mango-reconciler")
	workers := atoi(os.Getenv("RECONCILER_WORKERS"), 2)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicStallDeleted, workers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("reconciler_consumer_started",
			zap.String("group", group),
			zap.String("topic", events.TopicStallDeleted),
			zap.Int("workers", workers),
		)
		return cons.Start(gctx, r.HandleStallDeleted)
	})
	g.Go(func() error {
		return r.RunEvery(gctx, cfg.ReconcileInterval)
	})
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("reconciler_exit", zap.Error(err))
	}
	logger.Info("reconciler_stopped")
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
