// Package lock provides keyed locking for serializing operations that
// share mutable state, such as the moves of one game session or the
// wallet of one user.
package lock

import "sync"

// keyMutex wraps a mutex with reference counting for cleanup.
type keyMutex struct {
	mu   sync.Mutex
	refs int
}

// KeyLock provides per-key mutual exclusion. Locks for distinct keys
// are independent; two goroutines contending on the same key
// serialize. A key's mutex is dropped from the table once its last
// holder or waiter releases it, so the table does not grow with the
// number of keys ever locked.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*keyMutex
	pool  sync.Pool
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{
		locks: make(map[string]*keyMutex),
		pool: sync.Pool{
			New: func() any {
				return &keyMutex{}
			},
		},
	}
}

// acquire registers interest in a key's mutex before locking it, so a
// concurrent Unlock cannot drop the mutex out from under a waiter.
func (kl *KeyLock) acquire(key string) *keyMutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	m, ok := kl.locks[key]
	if !ok {
		m = kl.pool.Get().(*keyMutex)
		kl.locks[key] = m
	}
	m.refs++
	return m
}

// Lock acquires the lock for a key.
func (kl *KeyLock) Lock(key string) {
	kl.acquire(key).mu.Lock()
}

// Unlock releases the lock for a key. When no holder or waiter remains
// the mutex is removed from the table and recycled.
func (kl *KeyLock) Unlock(key string) {
	kl.mu.Lock()
	m, ok := kl.locks[key]
	if !ok {
		kl.mu.Unlock()
		return
	}
	m.refs--
	recycle := m.refs == 0
	if recycle {
		delete(kl.locks, key)
	}
	kl.mu.Unlock()

	m.mu.Unlock()
	if recycle {
		kl.pool.Put(m)
	}
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false otherwise.
func (kl *KeyLock) TryLock(key string) bool {
	m := kl.acquire(key)
	if m.mu.TryLock() {
		return true
	}

	kl.mu.Lock()
	m.refs--
	if m.refs == 0 {
		// The holder is mid-Unlock; the mutex may still be held for an
		// instant, so it goes to the GC rather than back to the pool.
		delete(kl.locks, key)
	}
	kl.mu.Unlock()
	return false
}

// WithLock executes a function while holding the key's lock.
func (kl *KeyLock) WithLock(key string, fn func() error) error {
	kl.Lock(key)
	defer kl.Unlock(key)
	return fn()
}

// size reports the number of keys currently tracked.
func (kl *KeyLock) size() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.locks)
}
