package main

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-mango-store/internal/config"
	"github.com/ariefcatur/go-mango-store/internal/crm"
	"github.com/ariefcatur/go-mango-store/internal/events"
	"github.com/ariefcatur/go-mango-store/internal/httpx"
	"github.com/ariefcatur/go-mango-store/internal/inventory"
	kafkax "github.com/ariefcatur/go-mango-store/internal/kafka"
	"github.com/ariefcatur/go-mango-store/internal/orders"
	"github.com/ariefcatur/go-mango-store/internal/payment"
	"github.com/ariefcatur/go-mango-store/internal/postgres"
	"github.com/ariefcatur/go-mango-store/internal/redisx"
	"github.com/ariefcatur/go-mango-store/internal/slots"
	"github.com/ariefcatur/go-mango-store/internal/stalls"
	"go.uber.org/zap"
)

// backend is every store the API needs. Optional parts stay nil on the
// memory backend.
type backend struct {
	catalog    inventory.Store
	stallItems inventory.Store
	slots      slots.Store
	orders     orders.Repository
	stalls     stalls.Registry
	records    crm.Store
	deadlines  payment.DeadlineQueue
	dedup      payment.Dedup
	idem       httpx.Idempotency
	status     *redisx.StatusCache
	sink       events.Sink

	// producer is nil on the memory backend.
	producer *kafkax.Producer
	close    func()
}

func memoryBackend() *backend {
	return &backend{
		catalog:    inventory.NewMemoryStore(),
		stallItems: inventory.NewMemoryStore(),
		slots:      slots.NewMemoryStore(),
		orders:     orders.NewMemoryRepo(),
		stalls:     stalls.NewMemoryRegistry(),
		records:    crm.NewMemoryStore(),
		deadlines:  payment.NewMemoryDeadlines(),
		sink:       events.Discard{},
		close:      func() {},
	}
}

func postgresBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	rdb := redisx.New(cfg.RedisAddr)
	if err := redisx.Ping(ctx, rdb); err != nil {
		db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
	return &backend{
		catalog:    inventory.NewPGStore(db, "items"),
		stallItems: inventory.NewPGStore(db, "stall_items"),
		slots:      &slots.PGStore{DB: db},
		orders:     &orders.PGRepo{DB: db},
		stalls:     &stalls.PGRegistry{DB: db},
		records:    &crm.PGStore{DB: db},
		deadlines:  redisx.DeadlineQueue{RDB: rdb},
		dedup:      redisx.PaymentDedup{RDB: rdb},
		idem:       redisx.Idempotency{RDB: rdb},
		status:     &redisx.StatusCache{RDB: rdb, Log: log},
		sink:       &kafkax.Emitter{Pub: prod, Producer: cfg.ServiceName, Log: log},
		producer:   prod,
		close: func() {
			_ = rdb.Close()
			db.Close()
		},
	}, nil
}
