// Package clients holds the shared per-client aggregate: the client's
// canonical creditor list plus the resolved amounts reconciliation
// writes back. Every mutation goes through the Synchronizer so
// concurrent triggers (polling, sweeps, operator actions) cannot lose
// updates.
package clients

import (
	"strings"
	"time"

	"github.com/justLukaBB/glaeubiger-sync/creditors"
)

// CreditorEntry is one canonical creditor inside the aggregate,
// enriched with the reconciliation outcome once a reply arrived.
type CreditorEntry struct {
	Identity        creditors.Identity `json:"identity"`
	FinalAmount     *float64           `json:"final_amount,omitempty"`
	AmountSource    string             `json:"amount_source,omitempty"`
	ResponseExcerpt string             `json:"response_excerpt,omitempty"`
	RespondedAt     *time.Time         `json:"responded_at,omitempty"`
}

// Aggregate is the shared mutable client record.
type Aggregate struct {
	ClientID  string          `json:"client_id"`
	Name      string          `json:"name,omitempty"`
	Email     string          `json:"email,omitempty"`
	Creditors []CreditorEntry `json:"creditors"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MergeIdentities folds freshly deduplicated identities into the
// aggregate's creditor list, preserving any reconciliation outcome
// already attached to a matching entry.
func (a *Aggregate) MergeIdentities(identities []creditors.Identity, strategy creditors.MergeStrategy) {
	existing := make([]creditors.Identity, 0, len(a.Creditors))
	for _, e := range a.Creditors {
		existing = append(existing, e.Identity)
	}
	var mentions []creditors.Mention
	for _, id := range identities {
		mentions = append(mentions, creditors.Mention{
			Name:          id.Name,
			ReferenceCode: id.ReferenceCode,
			Email:         id.Email,
			Address:       id.Address,
			ClaimAmount:   id.Amount,
			ExtractedAt:   id.AmountSeenAt,
		})
	}
	merged := creditors.MergeInto(existing, mentions, strategy)

	byKey := make(map[string]CreditorEntry, len(a.Creditors))
	for _, e := range a.Creditors {
		byKey[entryKey(e.Identity)] = e
	}
	out := make([]CreditorEntry, 0, len(merged))
	for _, id := range merged {
		entry := CreditorEntry{Identity: id}
		if prev, ok := byKey[entryKey(id)]; ok {
			entry.FinalAmount = prev.FinalAmount
			entry.AmountSource = prev.AmountSource
			entry.ResponseExcerpt = prev.ResponseExcerpt
			entry.RespondedAt = prev.RespondedAt
		}
		out = append(out, entry)
	}
	a.Creditors = out
}

// ResolvedAmount is what reconciliation writes back for one creditor.
type ResolvedAmount struct {
	CreditorName    string
	ReferenceCode   string
	Email           string
	Amount          float64
	Source          string
	ResponseExcerpt string
	ResolvedAt      time.Time
}

// ApplyResolvedAmount attaches a reconciled amount to the matching
// creditor entry, matched by reference code, then email, then name.
// It reports whether an entry matched.
func (a *Aggregate) ApplyResolvedAmount(res ResolvedAmount) bool {
	idx := a.findEntry(res)
	if idx < 0 {
		return false
	}
	amount := res.Amount
	at := res.ResolvedAt
	entry := &a.Creditors[idx]
	entry.FinalAmount = &amount
	entry.AmountSource = res.Source
	entry.ResponseExcerpt = res.ResponseExcerpt
	entry.RespondedAt = &at
	a.UpdatedAt = at
	return true
}

func (a *Aggregate) findEntry(res ResolvedAmount) int {
	ref := normalize(res.ReferenceCode)
	if ref != "" {
		for i, e := range a.Creditors {
			if normalize(e.Identity.ReferenceCode) == ref {
				return i
			}
		}
	}
	email := normalize(res.Email)
	if email != "" {
		for i, e := range a.Creditors {
			if normalize(e.Identity.Email) == email {
				return i
			}
		}
	}
	name := normalize(res.CreditorName)
	if name != "" {
		for i, e := range a.Creditors {
			if normalize(e.Identity.Name) == name {
				return i
			}
		}
	}
	return -1
}

func entryKey(id creditors.Identity) string {
	ref := normalize(id.ReferenceCode)
	if ref == "" {
		ref = "no_ref"
	}
	return normalize(id.Name) + "|" + ref
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
