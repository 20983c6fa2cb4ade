package poller

import (
	"context"
	"errors"
	"fmt"

	"github.com/justLukaBB/glaeubiger-sync/clients"
	"github.com/justLukaBB/glaeubiger-sync/extraction"
	"github.com/justLukaBB/glaeubiger-sync/internal/retryutil"
	"github.com/justLukaBB/glaeubiger-sync/outreach"
)

// ErrReferenceNotFound means a reply could not be tied to any contact
// record. The message stays marked as processed; an operator resolves
// it via the internal note.
var ErrReferenceNotFound = errors.New("poller: reference code matches no contact record")

// reconcile ties one inbound message to its contact record, extracts
// an amount and writes record plus aggregate through the synchronizer
// in one ordered step.
func (p *Poller) reconcile(ctx context.Context, s Session, ref SubThreadRef, msg outreach.Message) error {
	rec, err := p.locateRecord(ctx, s.ClientID, ref, msg)
	if err != nil {
		return err
	}

	res := p.extractor.Extract(ctx, msg.Body, extraction.Context{
		CreditorName:   rec.CreditorName,
		ReferenceCode:  rec.ReferenceCode,
		OriginalAmount: rec.OriginalAmount,
	})

	now := p.now()
	var final float64
	var source outreach.AmountSource
	var next outreach.State
	switch {
	case res.Amount > 0 && res.Confidence >= p.threshold:
		final = res.Amount
		source = outreach.SourceCreditorResponse
		next = outreach.StateResponded
	case rec.OriginalAmount > 0:
		final = rec.OriginalAmount
		source = outreach.SourceOriginalDocument
		next = outreach.StateResponseUnclear
	default:
		final = outreach.FallbackAmount
		source = outreach.SourceFallback
		next = outreach.StateResponseUnclear
	}
	// A later unclear reply never downgrades a clear response; the
	// latest reply's amount still wins.
	if !outreach.CanTransition(rec.State, next) {
		next = rec.State
	}

	if res.Amount > 0 {
		amount := res.Amount
		rec.ExtractedAmount = &amount
	}
	confidence := res.Confidence
	rec.Confidence = &confidence
	rec.FinalAmount = final
	rec.AmountSource = source
	rec.ResponseText = msg.Body
	rec.ResponseReceivedAt = &now
	rec.State = next
	rec.UpdatedAt = now

	err = p.syn.Update(ctx, s.ClientID, func(agg *clients.Aggregate) error {
		if err := p.records.Put(ctx, rec); err != nil {
			return fmt.Errorf("persisting record %s: %w", rec.ID, err)
		}
		matched := agg.ApplyResolvedAmount(clients.ResolvedAmount{
			CreditorName:    rec.CreditorName,
			ReferenceCode:   rec.ReferenceCode,
			Email:           rec.Email,
			Amount:          final,
			Source:          string(source),
			ResponseExcerpt: res.SourceSnippet,
			ResolvedAt:      now,
		})
		if !matched {
			p.logger.Warn("aggregate_entry_not_found",
				"client_id", s.ClientID,
				"creditor", rec.CreditorName)
		}
		return nil
	})
	if err != nil {
		return err
	}

	p.logger.Info("response_reconciled",
		"client_id", s.ClientID,
		"creditor", rec.CreditorName,
		"state", string(next),
		"final_amount", final,
		"amount_source", string(source),
		"confidence", res.Confidence,
		"method", string(res.Method))

	note := fmt.Sprintf("Antwort von %s verarbeitet: %.2f EUR (%s, Konfidenz %.2f)",
		rec.CreditorName, final, source, res.Confidence)
	parentID := s.ParentThreadID
	if err := p.threads.PostInternalNote(ctx, parentID, note, []string{"glaeubiger-sync"}); err != nil {
		p.logger.Warn("internal_note_failed", "client_id", s.ClientID, "error", err.Error())
		retryutil.AsyncRetry(p.logger, "internal_note", 0, 0, func(ctx context.Context) error {
			return p.threads.PostInternalNote(ctx, parentID, note, []string{"glaeubiger-sync"})
		})
	}
	return nil
}

// locateRecord resolves the contact record for a reply: by a reference
// code scanned out of the message first, then by the sub-thread's own
// reference, then by the sub-thread id itself.
func (p *Poller) locateRecord(ctx context.Context, clientID string, ref SubThreadRef, msg outreach.Message) (outreach.Record, error) {
	candidates := []string{}
	if code := p.extractor.ScanReferenceCode("", msg.Body); code != "" {
		candidates = append(candidates, code)
	}
	if ref.ReferenceCode != "" {
		candidates = append(candidates, ref.ReferenceCode)
	}
	for _, code := range candidates {
		rec, err := p.records.FindByReference(ctx, clientID, code)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, outreach.ErrRecordNotFound) {
			return outreach.Record{}, fmt.Errorf("looking up reference %q: %w", code, err)
		}
	}

	// Last resort: the sub-thread the reply arrived on identifies the
	// creditor even when no reference code matches.
	recs, err := p.records.ListByClient(ctx, clientID)
	if err != nil {
		return outreach.Record{}, fmt.Errorf("listing records for %s: %w", clientID, err)
	}
	for _, rec := range recs {
		if rec.SubThreadID == ref.SubThreadID {
			return rec, nil
		}
	}
	return outreach.Record{}, fmt.Errorf("%w: sub-thread %s", ErrReferenceNotFound, ref.SubThreadID)
}
