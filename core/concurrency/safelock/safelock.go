// Package safelock provides mutexes whose acquisition can be abandoned
// through a context.
package safelock

import (
	"context"
	"sync"
)

// Mutex is a mutual exclusion lock backed by a one-slot channel so that
// waiters can select on ctx.Done().
type Mutex struct {
	ch chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx is done. On ctx expiry the lock
// is not held and ctx.Err() is returned.
func (m *Mutex) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m *Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
		panic("safelock: unlock of unlocked mutex")
	}
}

type keyedEntry struct {
	mu   *Mutex
	refs int
}

// KeyedMutex hands out one Mutex per key. Entries are created on first use
// and released once no caller holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key. The returned function releases it and must
// be called exactly once when err is nil.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	entry := k.acquire(key)
	if err := entry.mu.Lock(ctx); err != nil {
		k.release(key)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			k.release(key)
		})
	}, nil
}

// TryLock acquires the lock for key without waiting.
func (k *KeyedMutex) TryLock(key string) (func(), bool) {
	entry := k.acquire(key)
	if !entry.mu.TryLock() {
		k.release(key)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.mu.Unlock()
			k.release(key)
		})
	}, true
}

// Len reports the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

func (k *KeyedMutex) acquire(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{mu: NewMutex()}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(k.entries, key)
	}
}
