package database

import (
	"context"
	"sync"
)

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex serializes work per key inside one process.
// Entries are dropped once nobody holds or waits for them.
type KeyedMutex struct {
	mu sync.Mutex
	m  map[string]*keyedEntry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{m: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free or ctx is done.
// The returned function releases the key.
func (km *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	km.mu.Lock()
	e, ok := km.m[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		km.m[key] = e
	}
	e.refs++
	km.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		km.drop(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			km.drop(key, e)
		})
	}, nil
}

// TryLock takes key only if it is free right now.
func (km *KeyedMutex) TryLock(key string) (func(), bool) {
	km.mu.Lock()
	e, ok := km.m[key]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		km.m[key] = e
	}
	e.refs++
	km.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	default:
		km.drop(key, e)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			km.drop(key, e)
		})
	}, true
}

func (km *KeyedMutex) drop(key string, e *keyedEntry) {
	km.mu.Lock()
	defer km.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(km.m, key)
	}
}

// Len is the number of keys currently held or waited on.
func (km *KeyedMutex) Len() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.m)
}
