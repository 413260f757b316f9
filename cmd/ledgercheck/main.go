// ledgercheck audits the durable ledger: every SKU's history is replayed and
// checked, and its on-hand quantity printed. It exits 1 when any finding is
// reported.
package main

import (
	"context"
	"flag"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/config"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"github.com/ariefcatur/stockledger/internal/observability"
	"github.com/ariefcatur/stockledger/internal/postgres"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
)

func main() {
	verbose := flag.Bool("v", false, "print the quantity of every SKU")
	workers := flag.Int("workers", 8, "SKUs audited in parallel")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.PostgresDSN == "" {
		fmt.Fprintln(os.Stderr, "config: POSTGRES_DSN is required")
		os.Exit(2)
	}
	log, err := observability.NewLogger(cfg.LogEnv, cfg.ServiceName+"-check")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	findings, quantities, err := check(ctx, cfg.PostgresDSN, *workers, log)
	if err != nil {
		log.Error("ledger check failed", zap.Error(err))
		os.Exit(1)
	}
	if *verbose {
		skus := make([]string, 0, len(quantities))
		for sku := range quantities {
			skus = append(skus, sku)
		}
		sort.Strings(skus)
		for _, sku := range skus {
			fmt.Printf("%-24s %d\n", sku, quantities[sku])
		}
	}
	for _, f := range findings {
		fmt.Println(f)
	}
	log.Info("ledger check done", zap.Int("skus", len(quantities)), zap.Int("findings", len(findings)))
	if len(findings) > 0 {
		os.Exit(1)
	}
}

func check(ctx context.Context, dsn string, workers int, log *zap.Logger) ([]ledger.Finding, map[string]int, error) {
	db, err := postgres.Connect(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	store := &postgres.LedgerStore{DB: db}

	skus, err := store.SKUs(ctx)
	if err != nil {
		return nil, nil, err
	}

	var (
		mu         sync.Mutex
		findings   []ledger.Finding
		quantities = make(map[string]int, len(skus))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, sku := range skus {
		g.Go(func() error {
			entries, err := store.EntriesFor(gctx, sku)
			if err != nil {
				return err
			}
			found := ledger.Audit(entries)
			mu.Lock()
			quantities[sku] = ledger.Sum(entries)
			findings = append(findings, found...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].SKU != findings[j].SKU {
			return findings[i].SKU < findings[j].SKU
		}
		return findings[i].Seq < findings[j].Seq
	})
	log.Debug("ledger audited", zap.Int("skus", len(skus)))
	return findings, quantities, nil
}
