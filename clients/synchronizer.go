package clients

import (
	"context"
	"log/slog"

	"github.com/justLukaBB/glaeubiger-sync/internal/serialexec"
)

// Synchronizer serializes every mutation of a client aggregate behind
// a per-client queue. Each Update loads fresh state, applies fn and
// persists the result before the next queued update may run, so
// concurrent triggers never observe or overwrite each other's
// half-applied state.
type Synchronizer struct {
	store  Store
	exec   *serialexec.Executor
	logger *slog.Logger
}

func NewSynchronizer(store Store, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{store: store, exec: serialexec.New(), logger: logger}
}

// Update runs fn against the client's freshly loaded aggregate and
// persists the result. It returns after the write is durable. Updates
// for the same client run in call order; different clients do not
// block each other.
func (s *Synchronizer) Update(ctx context.Context, clientID string, fn func(agg *Aggregate) error) error {
	return s.exec.Do(ctx, clientID, func(ctx context.Context) error {
		agg, err := s.store.Load(ctx, clientID)
		if err != nil {
			return err
		}
		if err := fn(&agg); err != nil {
			return err
		}
		if err := s.store.Save(ctx, agg); err != nil {
			return err
		}
		s.logger.Debug("client_aggregate_saved", "client_id", clientID, "creditors", len(agg.Creditors))
		return nil
	})
}

// Read loads the aggregate through the same queue, so a caller sees a
// state with no update in flight for that client.
func (s *Synchronizer) Read(ctx context.Context, clientID string) (Aggregate, error) {
	var out Aggregate
	err := s.exec.Do(ctx, clientID, func(ctx context.Context) error {
		agg, err := s.store.Load(ctx, clientID)
		if err != nil {
			return err
		}
		out = agg
		return nil
	})
	return out, err
}
