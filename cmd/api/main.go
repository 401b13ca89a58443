package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/lifecycle"
	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/outbox"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logger.Init(cfg.Env, cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer, dipakai oleh outbox relay saja
	prod := kafkax.NewProducer(cfg.KafkaBrokers)
	defer func() { _ = prod.Close() }()

	relay := &outbox.Relay{
		DB:        db,
		Publisher: prod,
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxPollInterval,
		Log:       log.Named("outbox"),
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()

	// Repo & handler
	products := &catalog.Repo{DB: db}
	ledger := &orders.Ledger{DB: db, Producer: cfg.ServiceName, LockTimeout: cfg.CheckoutLockTimeout}
	cache := &redisx.Cache{RDB: rdb, TTL: redisx.TTLOrderCache}
	coord := &checkout.Coordinator{
		Store:       &checkout.PGStore{DB: db, LockTimeout: cfg.CheckoutLockTimeout, Producer: cfg.ServiceName},
		MaxAttempts: cfg.CheckoutMaxAttempts,
		Backoff:     50 * time.Millisecond,
	}

	router := httpx.NewRouter()
	httpx.Handlers{
		Checkout: &httpx.CheckoutHandler{
			Checkout: coord,
			Orders:   ledger,
			Idem:     &redisx.Idempotency{RDB: rdb},
			Cache:    cache,
		},
		Orders:   &httpx.OrdersHandler{Ledger: ledger, Cache: cache},
		Cart:     &httpx.CartHandler{Cart: &cart.Service{Lines: &cart.Repo{DB: db}, Products: products}},
		Products: &httpx.ProductsHandler{Catalog: products},
		Admin:    &httpx.AdminHandler{Remover: &lifecycle.Remover{DB: db}},
	}.Mount(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	cancel()  // stop relay loop
	wg.Wait() // event yang belum terkirim tetap aman di outbox
}
