// Package keylock serializes work per key (SKU, sale number) with a fixed
// acquisition order so multi-key callers never deadlock each other.
package keylock

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/sync/semaphore"
	"slices"
	"sync"
	"time"
)

// TimeoutError is returned when a key could not be locked within the
// configured wait. It is transient; the caller may retry.
type TimeoutError struct {
	Key  string
	Wait time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired within %s", e.Key, e.Wait)
}

// Locker hands out one binary semaphore per key. The zero value is not
// usable; build it with New.
type Locker struct {
	mu      sync.Mutex
	keys    map[string]*semaphore.Weighted
	timeout time.Duration
}

// New returns a Locker whose per-key wait is bounded by timeout.
// A non-positive timeout waits until ctx is done.
func New(timeout time.Duration) *Locker {
	return &Locker{keys: map[string]*semaphore.Weighted{}, timeout: timeout}
}

// Acquire locks every distinct key in ascending lexicographic order.
// The returned release func unlocks them in reverse order and must be
// called exactly once. On failure nothing stays locked.
func (l *Locker) Acquire(ctx context.Context, keys ...string) (release func(), err error) {
	ordered := Order(keys)
	held := make([]*semaphore.Weighted, 0, len(ordered))
	release = func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(1)
		}
		held = held[:0]
	}

	for _, k := range ordered {
		sem := l.sem(k)
		if err := l.acquireOne(ctx, sem); err != nil {
			release()
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, &TimeoutError{Key: k, Wait: l.timeout}
			}
			return nil, err
		}
		held = append(held, sem)
	}
	return release, nil
}

func (l *Locker) acquireOne(ctx context.Context, sem *semaphore.Weighted) error {
	if sem.TryAcquire(1) {
		return nil
	}
	if l.timeout <= 0 {
		return sem.Acquire(ctx, 1)
	}
	wctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return sem.Acquire(wctx, 1)
}

// sem returns the semaphore for key, creating it on first use.
// Entries are never evicted; the key space is bounded by the catalog.
func (l *Locker) sem(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.keys[key]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.keys[key] = s
	}
	return s
}

// Order returns the distinct keys sorted ascending: the global acquisition order.
func Order(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}
