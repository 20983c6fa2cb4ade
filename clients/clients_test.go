package clients

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/justLukaBB/glaeubiger-sync/creditors"
)

func sampleIdentities() []creditors.Identity {
	return []creditors.Identity{
		{Name: "Sparkasse Köln", ReferenceCode: "SPK-001", Email: "inkasso@sparkasse.example", Amount: 500},
		{Name: "Telekom GmbH", ReferenceCode: "TK-002", Amount: 89.90},
	}
}

func TestMergeIdentitiesPreservesOutcomes(t *testing.T) {
	agg := Aggregate{ClientID: "client-1"}
	agg.MergeIdentities(sampleIdentities(), nil)
	if len(agg.Creditors) != 2 {
		t.Fatalf("creditor count mismatch: got %d want 2", len(agg.Creditors))
	}

	amount := 1234.56
	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	agg.Creditors[0].FinalAmount = &amount
	agg.Creditors[0].AmountSource = "creditor_response"
	agg.Creditors[0].RespondedAt = &at

	// Re-merging the same list (plus a newcomer) must not drop the
	// reconciliation outcome already attached.
	next := append(sampleIdentities(), creditors.Identity{Name: "Stadtwerke", Amount: 42})
	agg.MergeIdentities(next, nil)
	if len(agg.Creditors) != 3 {
		t.Fatalf("creditor count mismatch after re-merge: got %d want 3", len(agg.Creditors))
	}
	var spk *CreditorEntry
	for i := range agg.Creditors {
		if agg.Creditors[i].Identity.ReferenceCode == "SPK-001" {
			spk = &agg.Creditors[i]
		}
	}
	if spk == nil || spk.FinalAmount == nil || *spk.FinalAmount != amount {
		t.Fatalf("reconciliation outcome lost on re-merge: %+v", spk)
	}
}

func TestApplyResolvedAmountMatchPrecedence(t *testing.T) {
	agg := Aggregate{ClientID: "client-1"}
	agg.MergeIdentities(sampleIdentities(), nil)

	at := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	ok := agg.ApplyResolvedAmount(ResolvedAmount{
		CreditorName:  "completely different name",
		ReferenceCode: "spk-001",
		Amount:        750,
		Source:        "creditor_response",
		ResolvedAt:    at,
	})
	if !ok {
		t.Fatalf("expected reference match")
	}
	if agg.Creditors[0].FinalAmount == nil || *agg.Creditors[0].FinalAmount != 750 {
		t.Fatalf("amount not applied: %+v", agg.Creditors[0])
	}

	// Falls back to name when neither reference nor email match.
	if !agg.ApplyResolvedAmount(ResolvedAmount{CreditorName: "telekom gmbh", Amount: 95, Source: "creditor_response", ResolvedAt: at}) {
		t.Fatalf("expected name match")
	}
	if *agg.Creditors[1].FinalAmount != 95 {
		t.Fatalf("name match applied to wrong entry: %+v", agg.Creditors)
	}

	if agg.ApplyResolvedAmount(ResolvedAmount{CreditorName: "Unbekannt", Amount: 1, ResolvedAt: at}) {
		t.Fatalf("unknown creditor must not match")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx := context.Background()

	agg, err := store.Load(ctx, "client-1")
	if err != nil {
		t.Fatalf("Load() on missing client error = %v", err)
	}
	if agg.ClientID != "client-1" || len(agg.Creditors) != 0 {
		t.Fatalf("empty aggregate mismatch: %+v", agg)
	}

	agg.Name = "Max Mustermann"
	agg.MergeIdentities(sampleIdentities(), nil)
	if err := store.Save(ctx, agg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "client-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Name != "Max Mustermann" || len(got.Creditors) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := store.Load(ctx, "../escape"); err == nil {
		t.Fatalf("path traversal must be rejected")
	}
}

func TestSynchronizerNoLostUpdates(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	syn := NewSynchronizer(store, nil)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := syn.Update(ctx, "client-1", func(agg *Aggregate) error {
				agg.Creditors = append(agg.Creditors, CreditorEntry{
					Identity: creditors.Identity{Name: "creditor", Amount: float64(n)},
				})
				return nil
			})
			if err != nil {
				t.Errorf("Update() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := syn.Read(ctx, "client-1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.Creditors) != workers {
		t.Fatalf("lost updates: got %d entries want %d", len(got.Creditors), workers)
	}
}
