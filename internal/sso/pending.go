package sso

import (
	"sync"
	"time"
)

// defaultPendingTTL bounds how long an authorization flow may stay open
// between AuthorizationURL and the code exchange.
const defaultPendingTTL = 15 * time.Minute

type pendingFlow struct {
	verifier  string
	createdAt time.Time
}

// pendingStore maps OAuth state values to their PKCE code verifiers while
// an authorization flow is in progress. Entries are single-use: Take
// removes them so a replayed state cannot complete a second exchange.
type pendingStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	flows map[string]pendingFlow
	now   func() time.Time
}

func newPendingStore(ttl time.Duration) *pendingStore {
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &pendingStore{
		ttl:   ttl,
		flows: make(map[string]pendingFlow),
		now:   time.Now,
	}
}

// Put registers the verifier for a state, purging expired flows as it goes.
func (s *pendingStore) Put(state, verifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, flow := range s.flows {
		if now.Sub(flow.createdAt) > s.ttl {
			delete(s.flows, key)
		}
	}

	s.flows[state] = pendingFlow{verifier: verifier, createdAt: now}
}

// Take retrieves and immediately deletes the verifier for a state.
// Returns false for unknown or expired states.
func (s *pendingStore) Take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[state]
	if !ok {
		return "", false
	}

	delete(s.flows, state)

	if s.now().Sub(flow.createdAt) > s.ttl {
		return "", false
	}
	return flow.verifier, true
}

// Len reports how many flows are currently pending.
func (s *pendingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}
