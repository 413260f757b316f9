package ledger

import (
	"context"
	"github.com/google/uuid"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps the ledger in process. Used for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	seq    int64
	all    []Entry
	bySKU  map[string][]int // indexes into all
	bySale map[string][]int

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bySKU:  map[string][]int{},
		bySale: map[string][]int{},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Append(ctx context.Context, entries ...Entry) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StorageError{Op: "append", Err: err}
	}
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ts := m.now()
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		m.seq++
		e.ID = uuid.NewString()
		e.Seq = m.seq
		e.CreatedAt = ts

		idx := len(m.all)
		m.all = append(m.all, e)
		m.bySKU[e.SKU] = append(m.bySKU[e.SKU], idx)
		if e.SaleRef != "" {
			m.bySale[e.SaleRef] = append(m.bySale[e.SaleRef], idx)
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) EntriesFor(_ context.Context, sku string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.bySKU[sku]), nil
}

func (m *MemoryStore) EntriesForSale(_ context.Context, saleRef string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(m.bySale[saleRef]), nil
}

func (m *MemoryStore) SKUs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bySKU))
	for sku := range m.bySKU {
		out = append(out, sku)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) collect(idx []int) []Entry {
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, m.all[i])
	}
	return out
}
