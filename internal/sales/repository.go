package sales

import (
	"context"
	"sync"
	"sync/atomic"
)

type Repository interface {
	// NextNumber reserves a unique sale number. Numbers of sales that are
	// never saved are simply skipped.
	NextNumber(ctx context.Context) (string, error)
	Save(ctx context.Context, s *Sale) error
	Get(ctx context.Context, number string) (*Sale, error)
	// List returns the sales f selects, newest first.
	List(ctx context.Context, f Filter) ([]*Sale, error)
}

type MemoryRepository struct {
	seq   atomic.Int64
	mu    sync.RWMutex
	sales map[string]Sale
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sales: map[string]Sale{}}
}

func (m *MemoryRepository) NextNumber(context.Context) (string, error) {
	return FormatNumber(m.seq.Add(1)), nil
}

func (m *MemoryRepository) Save(_ context.Context, s *Sale) error {
	cp := *s
	cp.Lines = append([]LineItem(nil), s.Lines...)
	m.mu.Lock()
	m.sales[s.Number] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, number string) (*Sale, error) {
	m.mu.RLock()
	s, ok := m.sales[number]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Lines = append([]LineItem(nil), s.Lines...)
	return &s, nil
}

func (m *MemoryRepository) List(_ context.Context, f Filter) ([]*Sale, error) {
	m.mu.RLock()
	out := make([]*Sale, 0, len(m.sales))
	for _, s := range m.sales {
		if f.Match(&s) {
			s.Lines = append([]LineItem(nil), s.Lines...)
			out = append(out, &s)
		}
	}
	m.mu.RUnlock()
	newestFirst(out)
	return f.Page(out), nil
}
