package slots

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-mango-store/internal/keylock"
	"github.com/google/uuid"
)

type MemoryStore struct {
	locks *keylock.Arena
	mu    sync.RWMutex
	slots map[string]*Slot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: keylock.New(), slots: make(map[string]*Slot)}
}

func (m *MemoryStore) lookup(id string) *Slot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slots[id]
}

func (m *MemoryStore) Create(_ context.Context, s Slot) (Slot, error) {
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Current = 0
	cp := s
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[s.ID]; ok {
		return Slot{}, ErrExists
	}
	m.slots[s.ID] = &cp
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Slot, error) {
	unlock := m.locks.Lock(id)
	defer unlock()
	s := m.lookup(id)
	if s == nil {
		return Slot{}, ErrNotFound
	}
	return *s, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Slot, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.slots))
	for id := range m.slots {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]Slot, 0, len(ids))
	for _, id := range ids {
		if s, err := m.Get(ctx, id); err == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, in Slot) (Slot, error) {
	if !in.EndsAt.After(in.StartsAt) {
		return Slot{}, ErrInvalidWindow
	}
	unlock := m.locks.Lock(in.ID)
	defer unlock()
	s := m.lookup(in.ID)
	if s == nil {
		return Slot{}, ErrNotFound
	}
	s.Label, s.StartsAt, s.EndsAt = in.Label, in.StartsAt, in.EndsAt
	return *s, nil
}

func (m *MemoryStore) SetCapacity(_ context.Context, id string, max int) (Slot, error) {
	if max < 0 {
		return Slot{}, ErrInvalidCapacity
	}
	unlock := m.locks.Lock(id)
	defer unlock()
	s := m.lookup(id)
	if s == nil {
		return Slot{}, ErrNotFound
	}
	s.Max = max
	return *s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	unlock := m.locks.Lock(id)
	defer unlock()
	s := m.lookup(id)
	if s == nil {
		return ErrNotFound
	}
	if s.Current > 0 {
		return ErrInUse
	}
	m.mu.Lock()
	delete(m.slots, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Reserve(_ context.Context, id string) (Slot, error) {
	unlock := m.locks.Lock(id)
	defer unlock()
	s := m.lookup(id)
	if s == nil {
		return Slot{}, ErrNotFound
	}
	if s.Current >= s.Max {
		return *s, ErrSlotFull
	}
	s.Current++
	return *s, nil
}

func (m *MemoryStore) Release(_ context.Context, id string) (Slot, error) {
	unlock := m.locks.Lock(id)
	defer unlock()
	s := m.lookup(id)
	if s == nil {
		return Slot{}, ErrNotFound
	}
	if s.Current > 0 {
		s.Current--
	}
	return *s, nil
}
