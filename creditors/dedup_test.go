package creditors

import (
	"testing"
	"time"
)

func TestDeduplicateGroupsByNameAndReference(t *testing.T) {
	mentions := []Mention{
		{Name: "Sparkasse Köln", ReferenceCode: "KTO-123", ClaimAmount: 1200, DocumentID: "doc-1"},
		{Name: "sparkasse köln", ReferenceCode: "kto-123", ClaimAmount: 900, DocumentID: "doc-2"},
		{Name: "Sparkasse Köln", ReferenceCode: "KTO-999", ClaimAmount: 300, DocumentID: "doc-3"},
		{Name: "Telekom", ClaimAmount: 80, DocumentID: "doc-4"},
		{Name: "Telekom", ClaimAmount: 95, DocumentID: "doc-5"},
	}

	identities := Deduplicate(mentions, HighestAmount{})
	if len(identities) != 3 {
		t.Fatalf("identity count mismatch: got %d want 3", len(identities))
	}

	byKey := map[string]Identity{}
	for _, id := range identities {
		byKey[identityKey(id.Name, id.ReferenceCode)] = id
	}

	sparkasse := byKey[identityKey("Sparkasse Köln", "KTO-123")]
	if sparkasse.Amount != 1200 {
		t.Fatalf("highest amount not kept: got %v want 1200", sparkasse.Amount)
	}
	if len(sparkasse.DocumentIDs) != 2 {
		t.Fatalf("document ids not aggregated: got %v", sparkasse.DocumentIDs)
	}

	telekom := byKey[identityKey("Telekom", "")]
	if telekom.Amount != 95 {
		t.Fatalf("no-reference group merge mismatch: got %v want 95", telekom.Amount)
	}
}

func TestDeduplicateRepresentativeGroupsUnderPrincipal(t *testing.T) {
	mentions := []Mention{
		{Name: "Inkasso Moskowitz", IsRepresentative: true, ActualCreditor: "Vodafone GmbH", ClaimAmount: 450, DocumentID: "doc-1"},
		{Name: "Vodafone GmbH", ClaimAmount: 400, DocumentID: "doc-2"},
	}
	identities := Deduplicate(mentions, HighestAmount{})
	if len(identities) != 1 {
		t.Fatalf("identity count mismatch: got %d want 1", len(identities))
	}
	if identities[0].Name != "Vodafone GmbH" {
		t.Fatalf("effective name mismatch: got %q", identities[0].Name)
	}
	if identities[0].Amount != 450 {
		t.Fatalf("amount mismatch: got %v want 450", identities[0].Amount)
	}
}

func TestDeduplicateNoAmountYieldsZero(t *testing.T) {
	identities := Deduplicate([]Mention{
		{Name: "Stadtwerke", DocumentID: "doc-1"},
		{Name: "Stadtwerke", DocumentID: "doc-2"},
	}, nil)
	if len(identities) != 1 {
		t.Fatalf("identity count mismatch: got %d want 1", len(identities))
	}
	if identities[0].Amount != 0 {
		t.Fatalf("expected zero amount, got %v", identities[0].Amount)
	}
}

func TestMergeIntoIsIdempotent(t *testing.T) {
	batch := []Mention{
		{Name: "Sparkasse", ReferenceCode: "A-1", ClaimAmount: 100, DocumentID: "d1"},
		{Name: "Telekom", ReferenceCode: "B-2", ClaimAmount: 50, DocumentID: "d2"},
	}

	// Dedup twice and merge vs dedup of concatenation once.
	twice := MergeInto(Deduplicate(batch, HighestAmount{}), batch, HighestAmount{})
	once := Deduplicate(append(append([]Mention(nil), batch...), batch...), HighestAmount{})

	if len(twice) != len(once) {
		t.Fatalf("cardinality mismatch: twice=%d once=%d", len(twice), len(once))
	}
	amounts := func(ids []Identity) map[string]float64 {
		m := map[string]float64{}
		for _, id := range ids {
			m[identityKey(id.Name, id.ReferenceCode)] = id.Amount
		}
		return m
	}
	a, b := amounts(twice), amounts(once)
	for k, v := range a {
		if b[k] != v {
			t.Fatalf("amount mismatch for %s: %v vs %v", k, v, b[k])
		}
	}
}

func TestMostRecentStrategy(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	identities := Deduplicate([]Mention{
		{Name: "Sparkasse", ClaimAmount: 900, ExtractedAt: newer, DocumentID: "d1"},
		{Name: "Sparkasse", ClaimAmount: 1500, ExtractedAt: older, DocumentID: "d2"},
	}, MostRecent{})
	if len(identities) != 1 {
		t.Fatalf("identity count mismatch: got %d want 1", len(identities))
	}
	if identities[0].Amount != 900 {
		t.Fatalf("most recent amount not kept: got %v want 900", identities[0].Amount)
	}
}
