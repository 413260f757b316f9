package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/alerts"
	"github.com/ariefcatur/stockledger/internal/catalog"
	"github.com/ariefcatur/stockledger/internal/config"
	"github.com/ariefcatur/stockledger/internal/events"
	"github.com/ariefcatur/stockledger/internal/httpx"
	"github.com/ariefcatur/stockledger/internal/inventory"
	kafkax "github.com/ariefcatur/stockledger/internal/kafka"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/observability"
	"github.com/ariefcatur/stockledger/internal/postgres"
	"github.com/ariefcatur/stockledger/internal/redisx"
	"github.com/ariefcatur/stockledger/internal/restock"
	"github.com/ariefcatur/stockledger/internal/sales"
	"github.com/ariefcatur/stockledger/internal/stock"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var version = "dev"

type stores struct {
	ledger  ledger.Store
	catalog catalog.Store
	sales   sales.Repository
	close   func()
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log, err := observability.NewLogger(cfg.LogEnv, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ledgerd stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Version:     version,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// Stores
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	// Stock projection, rebuilt from the ledger before serving
	agg := stock.NewAggregator(st.ledger, keylock.New(cfg.LockTimeout), log)
	if err := agg.Warm(ctx); err != nil {
		return fmt.Errorf("warm stock projection: %w", err)
	}
	log.Info("stock projection warmed", zap.Int("skus", len(agg.Snapshot())))

	// Kafka producer
	var pub events.Publisher = events.NopPublisher{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, 1024, log)
		prod.Start(ctx)
		pub = &kafkax.Publisher{P: prod}
	} else {
		log.Warn("KAFKA_BROKERS not set, events are not published")
	}

	// Redis
	var cache redisx.Cache = redisx.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		cache = &redisx.Client{R: rdb}
	}

	// Services
	eng := inventory.New(st.ledger, agg, pub, log, cfg.ServiceName)
	proj := &alerts.Projection{
		Catalog: st.catalog,
		Stock:   agg,
		OnError: func(err error) { log.Warn("low-stock projection", zap.Error(err)) },
	}
	svc := sales.NewService(sales.Deps{
		Engine:      eng,
		Catalog:     st.catalog,
		Repo:        st.sales,
		Alerts:      proj,
		Publisher:   pub,
		Logger:      log,
		Producer:    cfg.ServiceName,
		LockTimeout: cfg.LockTimeout,
	})

	router := httpx.NewRouter(log)
	(&httpx.ProductsHandler{Catalog: st.catalog, Engine: eng}).Register(router)
	(&httpx.SalesHandler{Sales: svc, Cache: cache, Logger: log}).Register(router)
	(&httpx.ReportsHandler{Alerts: proj, Sales: svc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})
	if len(cfg.KafkaBrokers) > 0 {
		h := &restock.Handler{Engine: eng, Cache: cache, Logger: log, Name: cfg.ConsumerGroup}
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, events.TopicGoodsReceived, cfg.ConsumerWorkers, log)
		g.Go(func() error {
			log.Info("restock consumer started",
				zap.String("group", cfg.ConsumerGroup),
				zap.String("topic", events.TopicGoodsReceived),
				zap.Int("workers", cfg.ConsumerWorkers),
			)
			return cons.Start(gctx, h.HandleGoodsReceived)
		})
	}

	err = g.Wait()
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	return err
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.LedgerBackend == config.BackendMemory {
		log.Warn("using in-memory stores, nothing survives a restart")
		return &stores{
			ledger:  ledger.NewMemoryStore(),
			catalog: catalog.NewMemoryStore(),
			sales:   sales.NewMemoryRepository(),
			close:   func() {},
		}, nil
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &stores{
		ledger:  &postgres.LedgerStore{DB: db},
		catalog: &postgres.CatalogStore{DB: db},
		sales:   &postgres.SaleRepository{DB: db},
		close:   db.Close,
	}, nil
}
