package stalls

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRegistry struct {
	mu     sync.RWMutex
	stalls map[string]Stall
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{stalls: map[string]Stall{}}
}

func (m *MemoryRegistry) Create(_ context.Context, s Stall) (Stall, error) {
	if s.Name == "" || s.OwnerID == "" {
		return Stall{}, ErrInvalid
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.CreatedAt = time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stalls[s.ID]; ok {
		return Stall{}, ErrExists
	}
	m.stalls[s.ID] = s
	return s, nil
}

func (m *MemoryRegistry) Get(_ context.Context, id string) (Stall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stalls[id]
	if !ok {
		return Stall{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryRegistry) List(_ context.Context) ([]Stall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Stall, 0, len(m.stalls))
	for _, s := range m.stalls {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRegistry) SetLocked(_ context.Context, id string, locked bool) (Stall, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stalls[id]
	if !ok {
		return Stall{}, ErrNotFound
	}
	s.Locked = locked
	m.stalls[id] = s
	return s, nil
}

func (m *MemoryRegistry) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stalls[id]; !ok {
		return ErrNotFound
	}
	delete(m.stalls, id)
	return nil
}

func (m *MemoryRegistry) LiveIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]struct{}, len(m.stalls))
	for id := range m.stalls {
		out[id] = struct{}{}
	}
	return out, nil
}
