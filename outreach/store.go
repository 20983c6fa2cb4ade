package outreach

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrRecordNotFound = errors.New("outreach: record not found")

// RecordStore persists contact records. The SQLite implementation is
// the production one; MemoryStore backs tests.
type RecordStore interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListByClient(ctx context.Context, clientID string) ([]Record, error)
	// ListStaleMessageSent returns records still in MessageSent whose
	// message was sent before the cutoff.
	ListStaleMessageSent(ctx context.Context, cutoff time.Time) ([]Record, error)
	// FindByReference locates a client's record by creditor reference
	// code, case-insensitively.
	FindByReference(ctx context.Context, clientID, referenceCode string) (Record, error)
}

// MemoryStore is a mutex-guarded in-memory RecordStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Put(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("outreach: record id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListByClient(ctx context.Context, clientID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.ClientID == clientID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListStaleMessageSent(ctx context.Context, cutoff time.Time) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.State != StateMessageSent || rec.MessageSentAt == nil {
			continue
		}
		if rec.MessageSentAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FindByReference(ctx context.Context, clientID, referenceCode string) (Record, error) {
	ref := strings.ToLower(strings.TrimSpace(referenceCode))
	if ref == "" {
		return Record{}, ErrRecordNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.ClientID == clientID && strings.ToLower(rec.ReferenceCode) == ref {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}
