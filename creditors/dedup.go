package creditors

import (
	"sort"
	"strings"
)

// noRefSentinel stands in for an absent reference code so that
// same-name mentions without references still group together.
const noRefSentinel = "no_ref"

// MergeStrategy decides which claim amount wins when a group holds
// more than one.
type MergeStrategy interface {
	Name() string
	// Merge returns the winning amount given the current winner and a
	// challenger. Zero amounts never win over non-zero ones.
	Merge(current, challenger Identity) Identity
}

// HighestAmount keeps the highest observed claim. Default strategy.
type HighestAmount struct{}

func (HighestAmount) Name() string { return "highest_amount" }

func (HighestAmount) Merge(current, challenger Identity) Identity {
	if challenger.Amount > current.Amount {
		current.Amount = challenger.Amount
		current.AmountSeenAt = challenger.AmountSeenAt
	}
	return current
}

// MostRecent keeps the amount from the most recently extracted
// mention, falling back to highest when timestamps are missing.
type MostRecent struct{}

func (MostRecent) Name() string { return "most_recent" }

func (MostRecent) Merge(current, challenger Identity) Identity {
	if challenger.Amount == 0 {
		return current
	}
	if current.Amount == 0 {
		current.Amount = challenger.Amount
		current.AmountSeenAt = challenger.AmountSeenAt
		return current
	}
	switch {
	case current.AmountSeenAt.IsZero() && challenger.AmountSeenAt.IsZero():
		if challenger.Amount > current.Amount {
			current.Amount = challenger.Amount
		}
	case challenger.AmountSeenAt.After(current.AmountSeenAt):
		current.Amount = challenger.Amount
		current.AmountSeenAt = challenger.AmountSeenAt
	}
	return current
}

// Deduplicate groups mentions by (effective name, reference code) and
// resolves each group to one identity. A group with no claim amounts
// gets amount zero; the timeout sweep resolves it later.
//
// Two different representatives reporting the same principal with no
// reference code do merge here. That is intentional but worth
// validating against real data before trusting blindly.
func Deduplicate(mentions []Mention, strategy MergeStrategy) []Identity {
	return MergeInto(nil, mentions, strategy)
}

// MergeInto folds a new mention batch into an existing canonical list.
// Same key updates in place via the strategy; new keys append. Running
// the same batch twice is idempotent.
func MergeInto(existing []Identity, mentions []Mention, strategy MergeStrategy) []Identity {
	if strategy == nil {
		strategy = HighestAmount{}
	}

	out := make([]Identity, len(existing))
	copy(out, existing)
	index := make(map[string]int, len(out))
	for i, id := range out {
		index[identityKey(id.Name, id.ReferenceCode)] = i
	}

	for _, m := range mentions {
		name := strings.TrimSpace(m.EffectiveName())
		if name == "" {
			continue
		}
		key := identityKey(name, m.ReferenceCode)
		candidate := Identity{
			Name:          name,
			ReferenceCode: strings.TrimSpace(m.ReferenceCode),
			Email:         strings.TrimSpace(m.Email),
			Address:       strings.TrimSpace(m.Address),
			Amount:        m.ClaimAmount,
			AmountSeenAt:  m.ExtractedAt,
		}
		if docID := strings.TrimSpace(m.DocumentID); docID != "" {
			candidate.DocumentIDs = []string{docID}
		}

		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, candidate)
			continue
		}
		merged := strategy.Merge(out[i], candidate)
		merged.DocumentIDs = mergeDocumentIDs(out[i].DocumentIDs, candidate.DocumentIDs)
		if merged.Email == "" {
			merged.Email = candidate.Email
		}
		if merged.Address == "" {
			merged.Address = candidate.Address
		}
		out[i] = merged
	}
	return out
}

func identityKey(name, referenceCode string) string {
	ref := strings.ToLower(strings.TrimSpace(referenceCode))
	if ref == "" {
		ref = noRefSentinel
	}
	return strings.ToLower(strings.TrimSpace(name)) + "|" + ref
}

func mergeDocumentIDs(base, extra []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(base)+len(extra))
	for _, id := range append(append([]string(nil), base...), extra...) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
