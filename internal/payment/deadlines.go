package payment

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DeadlineQueue schedules confirmation deadlines. Due removes and returns
// the order ids whose deadline is at or before now, so each id is handed
// out once.
type DeadlineQueue interface {
	Schedule(ctx context.Context, orderID string, at time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]string, error)
	Remove(ctx context.Context, orderID string) error
}

// Dedup remembers payment references that were already applied.
type Dedup interface {
	Seen(ctx context.Context, reference string) (bool, error)
	Mark(ctx context.Context, reference string) error
}

type MemoryDeadlines struct {
	mu sync.Mutex
	at map[string]time.Time
}

func NewMemoryDeadlines() *MemoryDeadlines {
	return &MemoryDeadlines{at: map[string]time.Time{}}
}

func (m *MemoryDeadlines) Schedule(_ context.Context, orderID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at[orderID] = at
	return nil
}

func (m *MemoryDeadlines) Due(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []string
	for id, at := range m.at {
		if !at.After(now) {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return m.at[due[i]].Before(m.at[due[j]]) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, id := range due {
		delete(m.at, id)
	}
	return due, nil
}

func (m *MemoryDeadlines) Remove(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.at, orderID)
	return nil
}

func (m *MemoryDeadlines) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.at)
}
