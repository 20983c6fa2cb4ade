package outreach

import (
	"context"
	"time"
)

// Direction distinguishes who authored a thread message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one event in a communication thread.
type Message struct {
	ID          string    `json:"id"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
	Direction   Direction `json:"direction"`
	FromAddress string    `json:"from_address,omitempty"`
}

// ThreadStore is the communication backend: a parent thread per client
// batch with one sub-thread per creditor. Implemented over a REST
// ticketing API in production and in memory for tests.
type ThreadStore interface {
	CreateParentThread(ctx context.Context, subject, participant string) (string, error)
	CreateSubThread(ctx context.Context, parentThreadID, recipient, subject, body string) (string, error)
	PostMessage(ctx context.Context, subThreadID, body string) error
	FetchEvents(ctx context.Context, parentThreadID, subThreadID string, since time.Time) ([]Message, error)
	PostInternalNote(ctx context.Context, parentThreadID, body string, tags []string) error
}
