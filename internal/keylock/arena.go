package keylock

import "sync"

// Arena hands out one mutex per key, created on first use. Keys are item or
// slot ids, so the arena grows with the catalog and is never pruned.
type Arena struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Arena {
	return &Arena{locks: make(map[string]*sync.Mutex)}
}

func (a *Arena) mutex(key string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.locks[key]
	if !ok {
		m = &sync.Mutex{}
		a.locks[key] = m
	}
	return m
}

// Lock blocks until key is held and returns its unlock func.
func (a *Arena) Lock(key string) (unlock func()) {
	m := a.mutex(key)
	m.Lock()
	return m.Unlock
}

// Len reports how many keys have been locked at least once.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
