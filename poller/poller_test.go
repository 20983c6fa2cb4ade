package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/justLukaBB/glaeubiger-sync/clients"
	"github.com/justLukaBB/glaeubiger-sync/creditors"
	"github.com/justLukaBB/glaeubiger-sync/extraction"
	"github.com/justLukaBB/glaeubiger-sync/outreach"
	"github.com/justLukaBB/glaeubiger-sync/threads"
)

type fixture struct {
	t       *testing.T
	now     time.Time
	threads *threads.MemoryStore
	records *outreach.MemoryStore
	manager *outreach.Manager
	syn     *clients.Synchronizer
	poller  *Poller
	client  outreach.ClientInfo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		now:     time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		threads: threads.NewMemoryStore(),
		records: outreach.NewMemoryStore(),
		client:  outreach.ClientInfo{ID: "client-1", Name: "Max Mustermann", Email: "max@example.com"},
	}
	nowFn := func() time.Time { return f.now }
	f.threads.SetNow(nowFn)
	f.manager = outreach.NewManager(f.threads, f.records, outreach.ManagerOptions{
		Now:   nowFn,
		Sleep: func(ctx context.Context, d time.Duration) error { return nil },
	})
	store, err := clients.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	f.syn = clients.NewSynchronizer(store, nil)
	extractor := extraction.NewExtractor(nil, extraction.Options{})
	f.poller = New(f.threads, f.records, extractor, f.syn, Options{Now: nowFn})
	return f
}

func (f *fixture) identities() []creditors.Identity {
	return []creditors.Identity{
		{Name: "Sparkasse Köln", ReferenceCode: "SPK-001", Email: "inkasso@sparkasse.example", Amount: 500},
		{Name: "Telekom GmbH", ReferenceCode: "TK-002", Email: "forderung@telekom.example", Amount: 89.90},
	}
}

// initiate opens the batch and seeds the client aggregate, the way the
// initiate command wires it.
func (f *fixture) initiate(ctx context.Context) outreach.BatchResult {
	f.t.Helper()
	ids := f.identities()
	res, err := f.manager.InitiateContact(ctx, f.client, ids)
	if err != nil {
		f.t.Fatalf("InitiateContact() error = %v", err)
	}
	err = f.syn.Update(ctx, f.client.ID, func(agg *clients.Aggregate) error {
		agg.Name = f.client.Name
		agg.Email = f.client.Email
		agg.MergeIdentities(ids, nil)
		return nil
	})
	if err != nil {
		f.t.Fatalf("seeding aggregate: %v", err)
	}
	return res
}

func (f *fixture) recordByReference(ctx context.Context, ref string) outreach.Record {
	f.t.Helper()
	rec, err := f.records.FindByReference(ctx, f.client.ID, ref)
	if err != nil {
		f.t.Fatalf("FindByReference(%s) error = %v", ref, err)
	}
	return rec
}

func TestEndToEndReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.initiate(ctx)
	if res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("batch mismatch: sent %d failed %d", res.Sent, res.Failed)
	}

	f.now = f.now.Add(time.Minute)
	session, err := f.poller.StartSession(ctx, f.client.ID, time.Minute)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if len(session.SubThreads) != 2 {
		t.Fatalf("sub-thread count mismatch: %d", len(session.SubThreads))
	}

	spk := f.recordByReference(ctx, "SPK-001")
	f.now = f.now.Add(time.Minute)
	f.threads.AddInbound(spk.SubThreadID,
		"Sehr geehrte Damen und Herren, Aktenzeichen SPK-001 - Zu zahlen: 1.234,56 Euro",
		"inkasso@sparkasse.example", f.now)

	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	spk = f.recordByReference(ctx, "SPK-001")
	if spk.State != outreach.StateResponded {
		t.Fatalf("state mismatch: got %s want %s", spk.State, outreach.StateResponded)
	}
	if spk.FinalAmount != 1234.56 || spk.AmountSource != outreach.SourceCreditorResponse {
		t.Fatalf("final amount mismatch: %v / %s", spk.FinalAmount, spk.AmountSource)
	}
	if spk.ResponseReceivedAt == nil || spk.Confidence == nil {
		t.Fatalf("response metadata missing: %+v", spk)
	}

	agg, err := f.syn.Read(ctx, f.client.ID)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var entry *clients.CreditorEntry
	for i := range agg.Creditors {
		if agg.Creditors[i].Identity.ReferenceCode == "SPK-001" {
			entry = &agg.Creditors[i]
		}
	}
	if entry == nil || entry.FinalAmount == nil || *entry.FinalAmount != 1234.56 {
		t.Fatalf("aggregate not updated: %+v", entry)
	}

	// The second creditor never answers and times out with its
	// original document amount.
	tk := f.recordByReference(ctx, "TK-002")
	if tk.State != outreach.StateMessageSent {
		t.Fatalf("untouched record state mismatch: %s", tk.State)
	}
	f.now = f.now.Add(15 * 24 * time.Hour)
	sweep, err := f.manager.ProcessTimeoutSweep(ctx, 14)
	if err != nil {
		t.Fatalf("ProcessTimeoutSweep() error = %v", err)
	}
	if sweep.TimedOut != 1 {
		t.Fatalf("sweep count mismatch: %d", sweep.TimedOut)
	}
	tk = f.recordByReference(ctx, "TK-002")
	if tk.State != outreach.StateTimedOut || tk.FinalAmount != 89.90 || tk.AmountSource != outreach.SourceOriginalDocument {
		t.Fatalf("timed out record mismatch: %+v", tk)
	}
}

func TestMessageIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initiate(ctx)

	f.now = f.now.Add(time.Minute)
	if _, err := f.poller.StartSession(ctx, f.client.ID, time.Minute); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	spk := f.recordByReference(ctx, "SPK-001")
	f.now = f.now.Add(time.Minute)
	f.threads.AddInbound(spk.SubThreadID, "Aktenzeichen SPK-001 - Gesamtforderung: 2.450,00 EUR",
		"inkasso@sparkasse.example", f.now)

	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)
	firstSeen := f.recordByReference(ctx, "SPK-001")

	// The same message must not be reconciled a second time.
	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	s, ok, err := f.poller.sessions.Get(ctx, f.client.ID)
	if err != nil || !ok {
		t.Fatalf("session lookup failed: %v %v", ok, err)
	}
	if s.ResponsesFound != 1 {
		t.Fatalf("responses found = %d want 1", s.ResponsesFound)
	}
	again := f.recordByReference(ctx, "SPK-001")
	if !again.UpdatedAt.Equal(firstSeen.UpdatedAt) {
		t.Fatalf("record was touched twice: %v vs %v", again.UpdatedAt, firstSeen.UpdatedAt)
	}
	if again.FinalAmount != 2450.00 || again.State != outreach.StateResponded {
		t.Fatalf("reconciled record mismatch: %+v", again)
	}
}

func TestUnclearResponseFallsBackToOriginalAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initiate(ctx)

	f.now = f.now.Add(time.Minute)
	if _, err := f.poller.StartSession(ctx, f.client.ID, time.Minute); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}

	spk := f.recordByReference(ctx, "SPK-001")
	f.now = f.now.Add(time.Minute)
	f.threads.AddInbound(spk.SubThreadID, "Wir prüfen Ihre Forderung und melden uns.",
		"inkasso@sparkasse.example", f.now)

	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	spk = f.recordByReference(ctx, "SPK-001")
	if spk.State != outreach.StateResponseUnclear {
		t.Fatalf("state mismatch: got %s want %s", spk.State, outreach.StateResponseUnclear)
	}
	if spk.FinalAmount != 500 || spk.AmountSource != outreach.SourceOriginalDocument {
		t.Fatalf("fallback mismatch: %v / %s", spk.FinalAmount, spk.AmountSource)
	}

	// A clear reply afterwards upgrades the record.
	f.now = f.now.Add(time.Minute)
	f.threads.AddInbound(spk.SubThreadID, "Aktenzeichen SPK-001 - Gesamtforderung: 610,00 EUR",
		"inkasso@sparkasse.example", f.now)
	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	spk = f.recordByReference(ctx, "SPK-001")
	if spk.State != outreach.StateResponded || spk.FinalAmount != 610.00 {
		t.Fatalf("upgrade mismatch: %+v", spk)
	}

	// A later unclear reply keeps the Responded state but the latest
	// reconciled amount wins.
	f.now = f.now.Add(time.Minute)
	f.threads.AddInbound(spk.SubThreadID, "Wir prüfen Ihre Forderung erneut.",
		"inkasso@sparkasse.example", f.now)
	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	spk = f.recordByReference(ctx, "SPK-001")
	if spk.State != outreach.StateResponded {
		t.Fatalf("clear response must not regress: %s", spk.State)
	}
	if spk.FinalAmount != 500 || spk.AmountSource != outreach.SourceOriginalDocument {
		t.Fatalf("latest reply's amount must win: %+v", spk)
	}
}

func TestStartSessionWithoutSubThreads(t *testing.T) {
	f := newFixture(t)
	if _, err := f.poller.StartSession(context.Background(), "unknown-client", time.Minute); !errors.Is(err, ErrNoSubThreads) {
		t.Fatalf("error mismatch: got %v want ErrNoSubThreads", err)
	}
}

func TestTickIsolatesFailingSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initiate(ctx)

	f.now = f.now.Add(time.Minute)
	if _, err := f.poller.StartSession(ctx, f.client.ID, time.Minute); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	// A broken session: its sub-thread does not exist in the store.
	broken := Session{
		ClientID:       "client-broken",
		ParentThreadID: "missing-parent",
		SubThreads:     []SubThreadRef{{SubThreadID: "ghost", CreditorName: "Niemand"}},
		StartedAt:      f.now,
		Active:         true,
	}
	if err := f.poller.sessions.Put(ctx, broken); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	f.now = f.now.Add(time.Minute)
	f.poller.Tick(ctx)

	healthy, ok, _ := f.poller.sessions.Get(ctx, f.client.ID)
	if !ok || !healthy.LastCheck.Equal(f.now) {
		t.Fatalf("healthy session must still be scanned: %+v", healthy)
	}
}

func TestStopSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.initiate(ctx)
	f.now = f.now.Add(time.Minute)
	if _, err := f.poller.StartSession(ctx, f.client.ID, time.Minute); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if err := f.poller.StopSession(ctx, f.client.ID); err != nil {
		t.Fatalf("StopSession() error = %v", err)
	}
	if _, ok, _ := f.poller.sessions.Get(ctx, f.client.ID); ok {
		t.Fatalf("session must be gone after stop")
	}
}
