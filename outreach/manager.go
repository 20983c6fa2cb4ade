package outreach

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/justLukaBB/glaeubiger-sync/creditors"
)

// ErrParentThreadFailed aborts a whole batch; without the parent
// thread there is nowhere to attach sub-threads.
var ErrParentThreadFailed = fmt.Errorf("outreach: parent thread creation failed")

// DefaultSendDelay paces successive sub-thread sends within a batch.
const DefaultSendDelay = 3 * time.Second

// Manager owns contact records and their lifecycle.
type Manager struct {
	threads   ThreadStore
	records   RecordStore
	logger    *slog.Logger
	sendDelay time.Duration
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

type ManagerOptions struct {
	Logger    *slog.Logger
	SendDelay time.Duration
	// Now and Sleep are test seams; nil means real time.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(threads ThreadStore, records RecordStore, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	delay := opts.SendDelay
	if delay < 0 {
		delay = 0
	} else if delay == 0 {
		delay = DefaultSendDelay
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Manager{
		threads:   threads,
		records:   records,
		logger:    logger,
		sendDelay: delay,
		now:       now,
		sleep:     sleep,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Outcome is the per-identity result of a batch.
type Outcome struct {
	RecordID     string `json:"record_id"`
	CreditorName string `json:"creditor_name"`
	State        State  `json:"state"`
	Error        string `json:"error,omitempty"`
}

// BatchResult summarizes one InitiateContact invocation.
type BatchResult struct {
	ParentThreadID string    `json:"parent_thread_id"`
	Outcomes       []Outcome `json:"outcomes"`
	Sent           int       `json:"sent"`
	Failed         int       `json:"failed"`
}

// InitiateContact opens one parent thread for the client and then, per
// identity, a sub-thread with the initial outbound message. A failing
// identity is marked Failed and the batch continues; only a failing
// parent thread aborts everything.
func (m *Manager) InitiateContact(ctx context.Context, client ClientInfo, identities []creditors.Identity) (BatchResult, error) {
	subject := fmt.Sprintf("Gläubigerkorrespondenz %s", client.Name)
	parentID, err := m.threads.CreateParentThread(ctx, subject, client.Email)
	if err != nil {
		m.logger.Error("parent_thread_create_failed", "client_id", client.ID, "error", err.Error())
		return BatchResult{}, fmt.Errorf("%w: %v", ErrParentThreadFailed, err)
	}
	m.logger.Info("parent_thread_created", "client_id", client.ID, "parent_thread_id", parentID)

	result := BatchResult{ParentThreadID: parentID}
	for i, identity := range identities {
		if i > 0 && m.sendDelay > 0 {
			if err := m.sleep(ctx, m.sendDelay); err != nil {
				return result, err
			}
		}
		outcome := m.contactOne(ctx, client, parentID, identity)
		result.Outcomes = append(result.Outcomes, outcome)
		if outcome.State == StateMessageSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	m.logger.Info("contact_batch_done",
		"client_id", client.ID,
		"parent_thread_id", parentID,
		"sent", result.Sent,
		"failed", result.Failed)
	return result, nil
}

func (m *Manager) contactOne(ctx context.Context, client ClientInfo, parentID string, identity creditors.Identity) Outcome {
	now := m.now()
	rec := Record{
		ID:             uuid.NewString(),
		ClientID:       client.ID,
		CreditorName:   identity.Name,
		ReferenceCode:  identity.ReferenceCode,
		Email:          identity.Email,
		ParentThreadID: parentID,
		State:          StateCreated,
		OriginalAmount: identity.Amount,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.records.Put(ctx, rec); err != nil {
		return Outcome{RecordID: rec.ID, CreditorName: rec.CreditorName, State: StateFailed, Error: err.Error()}
	}

	subject := fmt.Sprintf("Forderungsanfrage: %s", identity.Name)
	body := buildOutboundBody(client, identity)
	subThreadID, err := m.threads.CreateSubThread(ctx, parentID, identity.Email, subject, body)
	if err != nil {
		m.failRecord(ctx, &rec, err)
		return Outcome{RecordID: rec.ID, CreditorName: rec.CreditorName, State: rec.State, Error: rec.LastError}
	}

	rec.SubThreadID = subThreadID
	sentAt := m.now()
	rec.MessageSentAt = &sentAt
	if err := m.transition(ctx, &rec, StateMessageSent); err != nil {
		return Outcome{RecordID: rec.ID, CreditorName: rec.CreditorName, State: rec.State, Error: err.Error()}
	}
	m.logger.Info("outreach_sent",
		"client_id", client.ID,
		"creditor", identity.Name,
		"sub_thread_id", subThreadID)
	return Outcome{RecordID: rec.ID, CreditorName: rec.CreditorName, State: StateMessageSent}
}

func (m *Manager) failRecord(ctx context.Context, rec *Record, cause error) {
	rec.LastError = cause.Error()
	if err := m.transition(ctx, rec, StateFailed); err != nil {
		m.logger.Error("record_fail_transition", "record_id", rec.ID, "error", err.Error())
		return
	}
	m.logger.Warn("outreach_failed",
		"client_id", rec.ClientID,
		"creditor", rec.CreditorName,
		"error", cause.Error())
}

// transition applies the state table and persists the record.
func (m *Manager) transition(ctx context.Context, rec *Record, to State) error {
	if !CanTransition(rec.State, to) {
		return fmt.Errorf("outreach: illegal transition %s -> %s for record %s", rec.State, to, rec.ID)
	}
	rec.State = to
	rec.UpdatedAt = m.now()
	if err := m.records.Put(ctx, *rec); err != nil {
		return fmt.Errorf("persisting record %s: %w", rec.ID, err)
	}
	return nil
}

func buildOutboundBody(client ClientInfo, identity creditors.Identity) string {
	var b strings.Builder
	b.WriteString("Sehr geehrte Damen und Herren,\n\n")
	fmt.Fprintf(&b, "wir vertreten %s in einem außergerichtlichen Schuldenbereinigungsverfahren.\n", client.Name)
	if identity.ReferenceCode != "" {
		fmt.Fprintf(&b, "Ihr Aktenzeichen: %s\n", identity.ReferenceCode)
	}
	b.WriteString("\nBitte teilen Sie uns die aktuelle Gesamtforderung gegen unseren Mandanten mit, ")
	b.WriteString("aufgeschlüsselt nach Hauptforderung, Zinsen und Kosten.\n")
	if identity.Amount > 0 {
		fmt.Fprintf(&b, "Nach unseren Unterlagen beträgt die Forderung %.2f EUR.\n", identity.Amount)
	}
	b.WriteString("\nMit freundlichen Grüßen\nIhre Schuldnerberatung")
	return b.String()
}
