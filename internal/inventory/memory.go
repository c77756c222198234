package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-mango-store/internal/keylock"
)

// MemoryStore keeps items in a map. The map itself is guarded by mu; every
// read-modify-write of a single item additionally holds that item's arena lock.
type MemoryStore struct {
	locks *keylock.Arena
	mu    sync.RWMutex
	items map[string]*Item
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: keylock.New(),
		items: make(map[string]*Item),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) lookup(id string) *Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[id]
}

func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	unlock := s.locks.Lock(id)
	defer unlock()
	it := s.lookup(id)
	if it == nil {
		return Item{}, ErrNotFound
	}
	return *it, nil
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Item, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		unlock := s.locks.Lock(id)
		if it := s.lookup(id); it != nil {
			out = append(out, *it)
		}
		unlock()
	}
	return out, nil
}

func (s *MemoryStore) Put(_ context.Context, in Item) (Item, error) {
	if err := in.Validate(); err != nil {
		return Item{}, err
	}
	unlock := s.locks.Lock(in.ID)
	defer unlock()

	in.UpdatedAt = s.now()
	if cur := s.lookup(in.ID); cur != nil {
		in.Quantity = cur.Quantity
		*cur = in
		return in, nil
	}
	cp := in
	s.mu.Lock()
	s.items[in.ID] = &cp
	s.mu.Unlock()
	return in, nil
}

func (s *MemoryStore) Reserve(_ context.Context, id string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	it := s.lookup(id)
	switch {
	case it == nil:
		return Item{}, ErrNotFound
	case !it.Active:
		return *it, ErrInactive
	case it.Quantity < qty:
		return *it, ErrInsufficientStock
	}
	it.Quantity -= qty
	it.UpdatedAt = s.now()
	return *it, nil
}

func (s *MemoryStore) Release(_ context.Context, id string, qty int) (Item, error) {
	if qty <= 0 {
		return Item{}, ErrInvalidQuantity
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	it := s.lookup(id)
	if it == nil {
		return Item{}, ErrNotFound
	}
	it.Quantity += qty
	it.UpdatedAt = s.now()
	return *it, nil
}

func (s *MemoryStore) Adjust(_ context.Context, id string, qty int) (int, error) {
	if qty < 0 {
		return 0, ErrInvalidQuantity
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	it := s.lookup(id)
	if it == nil {
		return 0, ErrNotFound
	}
	prev := it.Quantity
	it.Quantity = qty
	it.UpdatedAt = s.now()
	return prev, nil
}

func (s *MemoryStore) SetActive(_ context.Context, id string, active bool) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	it := s.lookup(id)
	if it == nil {
		return ErrNotFound
	}
	it.Active = active
	it.UpdatedAt = s.now()
	return nil
}
