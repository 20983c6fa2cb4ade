package outreach

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeoutDays is the response window before a contact is given
// up on.
const DefaultTimeoutDays = 14

// SweepResult summarizes one timeout sweep.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	TimedOut int `json:"timed_out"`
}

// ProcessTimeoutSweep moves MessageSent records older than the window
// to TimedOut and resolves their final amount: the original document
// amount when one exists, the fixed fallback otherwise.
func (m *Manager) ProcessTimeoutSweep(ctx context.Context, timeoutDays int) (SweepResult, error) {
	if timeoutDays <= 0 {
		timeoutDays = DefaultTimeoutDays
	}
	cutoff := m.now().Add(-time.Duration(timeoutDays) * 24 * time.Hour)

	stale, err := m.records.ListStaleMessageSent(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("listing stale records: %w", err)
	}

	result := SweepResult{Scanned: len(stale)}
	for _, rec := range stale {
		rec := rec
		if rec.OriginalAmount > 0 {
			rec.FinalAmount = rec.OriginalAmount
			rec.AmountSource = SourceOriginalDocument
		} else {
			rec.FinalAmount = FallbackAmount
			rec.AmountSource = SourceFallback
		}
		if err := m.transition(ctx, &rec, StateTimedOut); err != nil {
			m.logger.Error("sweep_transition_failed", "record_id", rec.ID, "error", err.Error())
			continue
		}
		result.TimedOut++
		m.logger.Info("outreach_timed_out",
			"record_id", rec.ID,
			"client_id", rec.ClientID,
			"creditor", rec.CreditorName,
			"final_amount", rec.FinalAmount,
			"amount_source", string(rec.AmountSource))
	}
	return result, nil
}
