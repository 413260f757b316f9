// Package stock holds the on-hand quantity projection derived from the ledger.
package stock

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/stockledger/internal/keylock"
	"github.com/ariefcatur/stockledger/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sync"
)

// InvariantViolationError means the cached quantity and the ledger disagree.
// It signals a bug or corruption and is never repaired automatically.
type InvariantViolationError struct {
	SKU        string
	Cached     int
	Recomputed int
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("stock invariant violated for %s: cached=%d ledger=%d", e.SKU, e.Cached, e.Recomputed)
}

// Aggregator caches quantity per SKU. Callers that mutate it (Apply) must
// hold the per-SKU lock for that SKU in the shared Locker.
type Aggregator struct {
	store ledger.Store
	locks *keylock.Locker
	log   *zap.Logger

	mu  sync.RWMutex
	qty map[string]int
}

// NewAggregator builds an empty projection over store. locks must be the
// Locker the commit path uses; Rebuild takes the SKU lock through it so a
// concurrent commit cannot be mistaken for drift. A nil locks is only safe
// when nothing else mutates the store.
func NewAggregator(store ledger.Store, locks *keylock.Locker, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{store: store, locks: locks, log: log, qty: map[string]int{}}
}

// Locks returns the Locker shared with the commit path.
func (a *Aggregator) Locks() *keylock.Locker { return a.locks }

// QuantityOf returns the cached on-hand quantity; unknown SKUs are 0.
func (a *Aggregator) QuantityOf(sku string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.qty[sku]
}

// Apply folds an appended entry into the projection.
func (a *Aggregator) Apply(e ledger.Entry) {
	a.mu.Lock()
	a.qty[e.SKU] += e.Delta
	a.mu.Unlock()
}

// Rebuild recomputes sku from the ledger. A SKU without a cached value is
// loaded; a cached value that disagrees yields *InvariantViolationError and
// is left untouched.
func (a *Aggregator) Rebuild(ctx context.Context, sku string) (int, error) {
	if a.locks != nil {
		release, err := a.locks.Acquire(ctx, sku)
		if err != nil {
			return 0, err
		}
		defer release()
	}
	return a.rebuildLocked(ctx, sku)
}

func (a *Aggregator) rebuildLocked(ctx context.Context, sku string) (int, error) {
	entries, err := a.store.EntriesFor(ctx, sku)
	if err != nil {
		return 0, err
	}
	sum := ledger.Sum(entries)

	a.mu.Lock()
	defer a.mu.Unlock()
	cached, ok := a.qty[sku]
	if !ok {
		a.qty[sku] = sum
		return sum, nil
	}
	if cached != sum {
		a.log.Error("stock invariant violated",
			zap.String("sku", sku), zap.Int("cached", cached), zap.Int("ledger", sum))
		return cached, &InvariantViolationError{SKU: sku, Cached: cached, Recomputed: sum}
	}
	return sum, nil
}

// Reset drops the cached value for sku so the next Rebuild reloads it.
// This is the operator path after an InvariantViolationError was investigated.
func (a *Aggregator) Reset(sku string) {
	a.mu.Lock()
	delete(a.qty, sku)
	a.mu.Unlock()
}

// Warm loads every SKU known to the ledger. Used at startup.
func (a *Aggregator) Warm(ctx context.Context) error {
	errs := a.Verify(ctx)
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Verify rebuilds every SKU and returns all failures (invariant violations
// and storage errors alike).
func (a *Aggregator) Verify(ctx context.Context) []error {
	skus, err := a.store.SKUs(ctx)
	if err != nil {
		return []error{err}
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, sku := range skus {
		g.Go(func() error {
			if _, err := a.Rebuild(gctx, sku); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// Snapshot copies the current projection.
func (a *Aggregator) Snapshot() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]int, len(a.qty))
	for k, v := range a.qty {
		out[k] = v
	}
	return out
}
