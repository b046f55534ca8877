package storage

import (
	"context"
	"sync"
	"time"
)

// Ensure MemoryFlowStore implements FlowStore
var _ FlowStore = (*MemoryFlowStore)(nil)

// MemoryFlowStore keeps pending flows in process memory. Flows are lost on
// restart, which is acceptable for a single instance.
type MemoryFlowStore struct {
	mu    sync.Mutex
	flows map[string]PendingFlow
	now   func() time.Time
}

// NewMemoryFlowStore creates an empty in-memory flow store
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: make(map[string]PendingFlow),
		now:   time.Now,
	}
}

// Save stores a copy of flow under its state, replacing any previous entry
func (s *MemoryFlowStore) Save(_ context.Context, flow *PendingFlow) error {
	if err := validateFlow(flow); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.State] = *flow
	return nil
}

// GetAndDelete removes and returns the flow for state (one-time use)
func (s *MemoryFlowStore) GetAndDelete(_ context.Context, state string) (*PendingFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flow, ok := s.flows[state]
	if !ok {
		return nil, ErrFlowNotFound
	}
	delete(s.flows, state)

	if flow.IsExpired(s.now()) {
		return nil, ErrFlowNotFound
	}
	return &flow, nil
}

// CleanupExpired drops every expired flow
func (s *MemoryFlowStore) CleanupExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for state, flow := range s.flows {
		if flow.IsExpired(now) {
			delete(s.flows, state)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored flows, expired or not
func (s *MemoryFlowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}

// Close is a no-op
func (s *MemoryFlowStore) Close() error {
	return nil
}
