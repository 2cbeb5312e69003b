package generic

import (
	"context"
	"sync"
)

// Locker serializes work per key. KeyedMutex covers one process; a store
// shared by several processes supplies a Locker that spans them.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// KeyedMutex serializes work per key (employee ID, slip key) without a
// global lock. Entries are reference counted and dropped when idle.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release func.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Acquire implements Locker. It never fails.
func (k *KeyedMutex) Acquire(_ context.Context, key string) (func(), error) {
	return k.Lock(key), nil
}

// With runs fn while holding the lock for key.
func (k *KeyedMutex) With(key string, fn func() error) error {
	unlock := k.Lock(key)
	defer unlock()
	return fn()
}
