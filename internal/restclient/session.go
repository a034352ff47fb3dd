package restclient

import (
	"sync"

	"github.com/perplbot/perplbot/pkg/types"
)

// sessionStore guards the REST session under a mutex; mutated only from
// authenticate and clearAuth, matching spec.md §5 ("REST session state is
// mutated only in authenticate and clearAuth").
type sessionStore struct {
	mu      sync.RWMutex
	session types.Session
}

func (s *sessionStore) get() types.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionStore) set(sess types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
}

func (s *sessionStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = types.Session{}
}
