// Package creditors turns raw per-document creditor mentions into
// canonical, deduplicated creditor identities.
package creditors

import "time"

// Mention is one creditor occurrence extracted from a single source
// document. Mentions are ephemeral; only identities survive.
type Mention struct {
	Name             string    `json:"name"`
	IsRepresentative bool      `json:"is_representative,omitempty"`
	ActualCreditor   string    `json:"actual_creditor,omitempty"`
	ReferenceCode    string    `json:"reference_code,omitempty"`
	Email            string    `json:"email,omitempty"`
	Address          string    `json:"address,omitempty"`
	ClaimAmount      float64   `json:"claim_amount,omitempty"`
	DocumentID       string    `json:"document_id,omitempty"`
	ExtractedAt      time.Time `json:"extracted_at,omitempty"`
}

// Identity is the canonical representation of one creditor within one
// client's batch. Key = (effective name, reference code).
type Identity struct {
	Name          string    `json:"name"`
	ReferenceCode string    `json:"reference_code,omitempty"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	Amount        float64   `json:"amount"`
	DocumentIDs   []string  `json:"document_ids,omitempty"`
	AmountSeenAt  time.Time `json:"amount_seen_at,omitempty"`
}

// EffectiveName resolves the grouping name of a mention: the principal
// when the mention is only a representative, the mention name itself
// otherwise.
func (m Mention) EffectiveName() string {
	if m.IsRepresentative && m.ActualCreditor != "" {
		return m.ActualCreditor
	}
	return m.Name
}
