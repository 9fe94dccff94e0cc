package store

import "sync"

// lockTable hands out one RWMutex per store name. Entries are never removed;
// the set of store names is small and long-lived.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*sync.RWMutex)}
}

func (t *lockTable) get(name string) *sync.RWMutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		t.locks[name] = l
	}
	return l
}

// Lock takes the write lock for name and returns its release func.
func (t *lockTable) Lock(name string) func() {
	l := t.get(name)
	l.Lock()
	return l.Unlock
}

// RLock takes the read lock for name and returns its release func.
func (t *lockTable) RLock(name string) func() {
	l := t.get(name)
	l.RLock()
	return l.RUnlock
}
