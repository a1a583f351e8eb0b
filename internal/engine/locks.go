package engine

import "sync"

// BoardLocks serializes refreshes per board. Refreshes of different boards
// do not block each other.
//
// The zero value is ready to use.
type BoardLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock blocks until the board is free and returns the matching unlock.
func (l *BoardLocks) Lock(board string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[board]
	if !ok {
		m = &sync.Mutex{}
		l.locks[board] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// TryLock acquires the board lock only if it is free.
func (l *BoardLocks) TryLock(board string) (unlock func(), ok bool) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, exists := l.locks[board]
	if !exists {
		m = &sync.Mutex{}
		l.locks[board] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
