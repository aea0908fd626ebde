package service

import "sync"

// templateLocks serializes operations on the same template inside one
// process. Different templates never wait on each other.
type templateLocks struct {
	mu    sync.Mutex
	locks map[uint]*templateLock
}

type templateLock struct {
	mu      sync.Mutex
	waiters int
}

func newTemplateLocks() *templateLocks {
	return &templateLocks{locks: make(map[uint]*templateLock)}
}

// Lock blocks until the template is free and returns the release func.
func (l *templateLocks) Lock(id uint) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &templateLock{}
		l.locks[id] = lock
	}
	lock.waiters++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.waiters--
		if lock.waiters == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
