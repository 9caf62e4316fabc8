package flow

import "sync"

// SessionLocks serializes work per conversation id. Entries are removed once
// no caller holds or waits for them.
type SessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionLocks creates an empty lock registry.
func NewSessionLocks() *SessionLocks {
	return &SessionLocks{locks: make(map[string]*sessionLock)}
}

// Lock blocks until the lock for id is held and returns its release function.
func (s *SessionLocks) Lock(id string) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of ids currently locked or awaited.
func (s *SessionLocks) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
