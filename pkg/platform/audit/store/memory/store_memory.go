package memory

import (
	"context"
	"slices"
	"sync"

	id "kycverify/pkg/domain"
	audit "kycverify/pkg/platform/audit"
)

// InMemoryStore keeps audit events per verification for development and tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.VerificationID][]audit.Event
	order  []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.VerificationID][]audit.Event)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.VerificationID][]audit.Event)
	s.order = nil
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.VerificationID] = append(s.events[event.VerificationID], event)
	s.order = append(s.order, event)
	return nil
}

// ListByVerification returns the events of one verification in append order.
func (s *InMemoryStore) ListByVerification(_ context.Context, verificationID id.VerificationID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events[verificationID]), nil
}

// ListRecent returns up to limit events, newest first.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := max(len(s.order)-limit, 0)
	recent := slices.Clone(s.order[start:])
	slices.Reverse(recent)
	return recent, nil
}
