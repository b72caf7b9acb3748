package checkout

import (
	"sync"

	"github.com/google/uuid"
)

// listener is the single subscription a session holds while it waits for the
// processor. It keeps the caller's backend token for the finalizing call.
type listener struct {
	owner    string
	apiToken string
}

type listenerRegistry struct {
	mu sync.Mutex
	m  map[uuid.UUID]listener
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{m: make(map[uuid.UUID]listener)}
}

func (r *listenerRegistry) register(id uuid.UUID, l listener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; ok {
		return ErrListenerExists
	}
	r.m[id] = l
	return nil
}

func (r *listenerRegistry) lookup(id uuid.UUID) (listener, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.m[id]
	return l, ok
}

func (r *listenerRegistry) release(id uuid.UUID) {
	r.mu.Lock()
	delete(r.m, id)
	r.mu.Unlock()
}

func (r *listenerRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// sessionLocks serializes work on one session. Entries are dropped once no
// caller holds or waits for them.
type sessionLocks struct {
	mu sync.Mutex
	m  map[uuid.UUID]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{m: make(map[uuid.UUID]*refLock)}
}

func (s *sessionLocks) lock(id uuid.UUID) (unlock func()) {
	s.mu.Lock()
	l, ok := s.m[id]
	if !ok {
		l = &refLock{}
		s.m[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.m, id)
		}
		s.mu.Unlock()
	}
}
