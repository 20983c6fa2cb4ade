// Package outreach drives the per-creditor contact lifecycle: one
// parent thread per client batch, one sub-thread per canonical
// creditor identity, and a tracked contact record moving through a
// closed set of states.
package outreach

import "time"

// State is a contact record's lifecycle position.
type State string

const (
	StateCreated         State = "created"
	StateMessageSent     State = "message_sent"
	StateResponded       State = "responded"
	StateResponseUnclear State = "response_unclear"
	StateTimedOut        State = "timed_out"
	StateFailed          State = "failed"
)

// allowedTransitions encodes forward-only movement. Responded and
// ResponseUnclear may be re-entered on later replies; a clear response
// is never downgraded to unclear.
var allowedTransitions = map[State][]State{
	StateCreated:         {StateMessageSent, StateFailed},
	StateMessageSent:     {StateResponded, StateResponseUnclear, StateTimedOut, StateFailed},
	StateResponded:       {StateResponded},
	StateResponseUnclear: {StateResponded, StateResponseUnclear},
	StateTimedOut:        {},
	StateFailed:          {},
}

// CanTransition reports whether moving from one state to another is
// legal.
func CanTransition(from, to State) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AmountSource names where a record's final amount came from.
type AmountSource string

const (
	SourceCreditorResponse AmountSource = "creditor_response"
	SourceOriginalDocument AmountSource = "original_document"
	SourceFallback         AmountSource = "fallback"
)

// FallbackAmount is applied when neither a creditor reply nor an
// original document amount is available.
const FallbackAmount = 100.0

// Record tracks one creditor's outreach within one client's batch.
type Record struct {
	ID             string `json:"id"`
	ClientID       string `json:"client_id"`
	CreditorName   string `json:"creditor_name"`
	ReferenceCode  string `json:"reference_code,omitempty"`
	Email          string `json:"email,omitempty"`
	ParentThreadID string `json:"parent_thread_id"`
	SubThreadID    string `json:"sub_thread_id,omitempty"`
	State          State  `json:"state"`

	OriginalAmount  float64      `json:"original_amount"`
	ExtractedAmount *float64     `json:"extracted_amount,omitempty"`
	FinalAmount     float64      `json:"final_amount"`
	AmountSource    AmountSource `json:"amount_source,omitempty"`
	ResponseText    string       `json:"response_text,omitempty"`
	Confidence      *float64     `json:"confidence,omitempty"`
	LastError       string       `json:"last_error,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	MessageSentAt      *time.Time `json:"message_sent_at,omitempty"`
	ResponseReceivedAt *time.Time `json:"response_received_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ClientInfo is the slice of the client the manager needs to address
// threads.
type ClientInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
