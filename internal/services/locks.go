package services

import "sync"

// BookLocks serializes lifecycle transitions per book id, guaranteeing at
// most one transition in flight per book across concurrent requests.
// Mutexes are created on first use and never released; the map grows with
// the catalog, which is bounded and small.
type BookLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewBookLocks creates an empty lock set.
func NewBookLocks() *BookLocks {
	return &BookLocks{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for a book and returns the unlock function.
func (l *BookLocks) Lock(bookID int64) func() {
	l.mu.Lock()
	m, ok := l.locks[bookID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[bookID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
