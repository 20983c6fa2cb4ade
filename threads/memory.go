package threads

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justLukaBB/glaeubiger-sync/outreach"
)

// MemoryStore is an in-process ThreadStore for tests and dry runs.
// Outbound messages are recorded; inbound replies are injected with
// AddInbound.
type MemoryStore struct {
	mu        sync.Mutex
	parents   map[string]bool
	subParent map[string]string
	messages  map[string][]outreach.Message
	Notes     []string
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		parents:   make(map[string]bool),
		subParent: make(map[string]string),
		messages:  make(map[string][]outreach.Message),
		now:       time.Now,
	}
}

// SetNow overrides the clock; tests use it to control message
// timestamps.
func (s *MemoryStore) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) CreateParentThread(ctx context.Context, subject, participant string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.parents[id] = true
	return id, nil
}

func (s *MemoryStore) CreateSubThread(ctx context.Context, parentThreadID, recipient, subject, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.parents[parentThreadID] {
		return "", fmt.Errorf("threads: unknown parent thread %s", parentThreadID)
	}
	id := uuid.NewString()
	s.subParent[id] = parentThreadID
	s.messages[id] = append(s.messages[id], outreach.Message{
		ID:        uuid.NewString(),
		Body:      body,
		CreatedAt: s.now(),
		Direction: outreach.DirectionOutbound,
	})
	return id, nil
}

func (s *MemoryStore) PostMessage(ctx context.Context, subThreadID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subParent[subThreadID]; !ok {
		return fmt.Errorf("threads: unknown sub-thread %s", subThreadID)
	}
	s.messages[subThreadID] = append(s.messages[subThreadID], outreach.Message{
		ID:        uuid.NewString(),
		Body:      body,
		CreatedAt: s.now(),
		Direction: outreach.DirectionOutbound,
	})
	return nil
}

// AddInbound injects a creditor reply and returns its message id.
func (s *MemoryStore) AddInbound(subThreadID, body, fromAddress string, at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.messages[subThreadID] = append(s.messages[subThreadID], outreach.Message{
		ID:          id,
		Body:        body,
		CreatedAt:   at,
		Direction:   outreach.DirectionInbound,
		FromAddress: fromAddress,
	})
	return id
}

func (s *MemoryStore) FetchEvents(ctx context.Context, parentThreadID, subThreadID string, since time.Time) ([]outreach.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subParent[subThreadID] != parentThreadID {
		return nil, fmt.Errorf("threads: sub-thread %s not under %s", subThreadID, parentThreadID)
	}
	var out []outreach.Message
	for _, m := range s.messages[subThreadID] {
		if m.CreatedAt.After(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) PostInternalNote(ctx context.Context, parentThreadID, body string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.parents[parentThreadID] {
		return fmt.Errorf("threads: unknown parent thread %s", parentThreadID)
	}
	s.Notes = append(s.Notes, body)
	return nil
}
