package services

import "sync"

// keyedMutex serializes work per game id. Entries are dropped once no
// goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
