package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/justLukaBB/glaeubiger-sync/clients"
	"github.com/justLukaBB/glaeubiger-sync/extraction"
	"github.com/justLukaBB/glaeubiger-sync/outreach"
)

// ErrNoSubThreads means a client has no monitorable sub-threads, so a
// session would never find anything.
var ErrNoSubThreads = errors.New("poller: client has no active sub-threads")

// DefaultInterval is the per-session polling interval.
const DefaultInterval = time.Minute

// DefaultConfidenceThreshold gates whether an extracted amount counts
// as a clear creditor response.
const DefaultConfidenceThreshold = 0.6

type Options struct {
	Logger              *slog.Logger
	Sessions            SessionRepository
	Ledger              ProcessedMessageLedger
	ConfidenceThreshold float64
	Now                 func() time.Time
}

// Poller drives the scan loop. One instance serves all clients.
type Poller struct {
	threads   outreach.ThreadStore
	records   outreach.RecordStore
	extractor *extraction.Extractor
	syn       *clients.Synchronizer
	sessions  SessionRepository
	ledger    ProcessedMessageLedger
	logger    *slog.Logger
	threshold float64
	now       func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func New(threads outreach.ThreadStore, records outreach.RecordStore, extractor *extraction.Extractor, syn *clients.Synchronizer, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewMemorySessions()
	}
	ledger := opts.Ledger
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	threshold := opts.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Poller{
		threads:   threads,
		records:   records,
		extractor: extractor,
		syn:       syn,
		sessions:  sessions,
		ledger:    ledger,
		logger:    logger,
		threshold: threshold,
		now:       now,
		running:   make(map[string]bool),
	}
}

// StartSession begins monitoring a client. The session's sub-thread
// list is built from the client's contact records that actually got a
// message out.
func (p *Poller) StartSession(ctx context.Context, clientID string, interval time.Duration) (Session, error) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	recs, err := p.records.ListByClient(ctx, clientID)
	if err != nil {
		return Session{}, fmt.Errorf("loading records for %s: %w", clientID, err)
	}

	var parentID string
	var refs []SubThreadRef
	for _, rec := range recs {
		if rec.SubThreadID == "" {
			continue
		}
		switch rec.State {
		case outreach.StateMessageSent, outreach.StateResponded, outreach.StateResponseUnclear:
		default:
			continue
		}
		parentID = rec.ParentThreadID
		refs = append(refs, SubThreadRef{
			SubThreadID:   rec.SubThreadID,
			ReferenceCode: rec.ReferenceCode,
			CreditorName:  rec.CreditorName,
		})
	}
	if len(refs) == 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrNoSubThreads, clientID)
	}

	s := Session{
		ClientID:       clientID,
		ParentThreadID: parentID,
		SubThreads:     refs,
		Interval:       interval,
		StartedAt:      p.now(),
		Active:         true,
	}
	if err := p.sessions.Put(ctx, s); err != nil {
		return Session{}, fmt.Errorf("storing session for %s: %w", clientID, err)
	}
	p.logger.Info("poll_session_started",
		"client_id", clientID,
		"sub_threads", len(refs),
		"interval", interval.String())
	return s, nil
}

// StopSession removes a client from monitoring. An in-flight scan for
// that client finishes on its own; future ticks skip it.
func (p *Poller) StopSession(ctx context.Context, clientID string) error {
	if err := p.sessions.Delete(ctx, clientID); err != nil {
		return fmt.Errorf("removing session for %s: %w", clientID, err)
	}
	p.logger.Info("poll_session_stopped", "client_id", clientID)
	return nil
}

// Tick scans every active session once. Sessions run sequentially; a
// failing scan is logged and the loop moves on. A client whose
// previous scan is still in flight is skipped this tick.
func (p *Poller) Tick(ctx context.Context) {
	sessions, err := p.sessions.List(ctx)
	if err != nil {
		p.logger.Error("poll_tick_list_failed", "error", err.Error())
		return
	}

	scanned := 0
	for _, s := range sessions {
		if !s.Active {
			continue
		}
		if !p.tryAcquire(s.ClientID) {
			p.logger.Debug("poll_scan_skipped_running", "client_id", s.ClientID)
			continue
		}
		if err := p.scanClient(ctx, s.ClientID); err != nil {
			p.logger.Warn("poll_scan_failed", "client_id", s.ClientID, "error", err.Error())
		}
		p.release(s.ClientID)
		scanned++
	}
	p.logger.Debug("poll_tick_done", "sessions", len(sessions), "scanned", scanned)
}

func (p *Poller) tryAcquire(clientID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running[clientID] {
		return false
	}
	p.running[clientID] = true
	return true
}

func (p *Poller) release(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, clientID)
}

// scanClient fetches each sub-thread's events since session start and
// reconciles the new, inbound, debt-relevant ones. Bookkeeping is
// updated even when nothing matched.
func (p *Poller) scanClient(ctx context.Context, clientID string) error {
	s, ok, err := p.sessions.Get(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading session for %s: %w", clientID, err)
	}
	if !ok {
		return fmt.Errorf("poller: no session for %s", clientID)
	}

	found := 0
	var scanErr error
	for _, ref := range s.SubThreads {
		msgs, err := p.threads.FetchEvents(ctx, s.ParentThreadID, ref.SubThreadID, s.StartedAt)
		if err != nil {
			// One unreachable sub-thread aborts this client's scan for
			// this tick only; the next tick retries naturally.
			scanErr = fmt.Errorf("fetching events for %s: %w", ref.SubThreadID, err)
			break
		}
		for _, msg := range msgs {
			if !msg.CreatedAt.After(s.StartedAt) || msg.Direction != outreach.DirectionInbound {
				continue
			}
			seen, err := p.ledger.Seen(ctx, ref.SubThreadID, msg.ID)
			if err != nil {
				return fmt.Errorf("checking ledger: %w", err)
			}
			if seen || !p.extractor.IsDebtRelevant(msg.Body) {
				continue
			}
			// Marked before reconciliation: a failing downstream step
			// must not cause a second state transition on retry.
			if err := p.ledger.Mark(ctx, ref.SubThreadID, msg.ID); err != nil {
				return fmt.Errorf("marking message processed: %w", err)
			}
			found++
			if err := p.reconcile(ctx, s, ref, msg); err != nil {
				p.logger.Warn("reconcile_failed",
					"client_id", clientID,
					"sub_thread_id", ref.SubThreadID,
					"message_id", msg.ID,
					"error", err.Error())
			}
		}
	}

	s.LastCheck = p.now()
	s.ResponsesFound += found
	if err := p.sessions.Put(ctx, s); err != nil {
		return fmt.Errorf("updating session for %s: %w", clientID, err)
	}
	if found > 0 {
		p.logger.Info("poll_responses_found", "client_id", clientID, "count", found)
	}
	return scanErr
}
