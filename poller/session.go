// Package poller schedules periodic scans of every actively monitored
// client's sub-threads, feeds new inbound replies through extraction
// and writes the reconciled outcome back through the state
// synchronizer.
package poller

import (
	"context"
	"sync"
	"time"
)

// SubThreadRef is the slice of a contact record the poller needs to
// scan a sub-thread.
type SubThreadRef struct {
	SubThreadID   string `json:"sub_thread_id"`
	ReferenceCode string `json:"reference_code,omitempty"`
	CreditorName  string `json:"creditor_name"`
}

// Session is the monitoring state for one client.
type Session struct {
	ClientID       string        `json:"client_id"`
	ParentThreadID string        `json:"parent_thread_id"`
	SubThreads     []SubThreadRef `json:"sub_threads"`
	Interval       time.Duration `json:"interval"`
	StartedAt      time.Time     `json:"started_at"`
	LastCheck      time.Time     `json:"last_check"`
	Active         bool          `json:"active"`
	ResponsesFound int           `json:"responses_found"`
}

// SessionRepository holds active monitoring sessions. The in-memory
// implementation loses sessions on restart; callers that need
// durability can back this with a persistent store.
type SessionRepository interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, clientID string) (Session, bool, error)
	List(ctx context.Context) ([]Session, error)
	Delete(ctx context.Context, clientID string) error
}

// ProcessedMessageLedger remembers which (sub-thread, message) pairs
// were already reconciled. Same durability caveat as the session
// repository.
type ProcessedMessageLedger interface {
	Seen(ctx context.Context, subThreadID, messageID string) (bool, error)
	Mark(ctx context.Context, subThreadID, messageID string) error
}

// MemorySessions is the default SessionRepository.
type MemorySessions struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]Session)}
}

func (r *MemorySessions) Put(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ClientID] = s
	return nil
}

func (r *MemorySessions) Get(ctx context.Context, clientID string) (Session, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[clientID]
	return s, ok, nil
}

func (r *MemorySessions) List(ctx context.Context) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out, nil
}

func (r *MemorySessions) Delete(ctx context.Context, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, clientID)
	return nil
}

// MemoryLedger is the default ProcessedMessageLedger.
type MemoryLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{seen: make(map[string]struct{})}
}

func ledgerKey(subThreadID, messageID string) string {
	return subThreadID + "/" + messageID
}

func (l *MemoryLedger) Seen(ctx context.Context, subThreadID, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[ledgerKey(subThreadID, messageID)]
	return ok, nil
}

func (l *MemoryLedger) Mark(ctx context.Context, subThreadID, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[ledgerKey(subThreadID, messageID)] = struct{}{}
	return nil
}
