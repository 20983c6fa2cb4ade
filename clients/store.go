package clients

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/justLukaBB/glaeubiger-sync/internal/fsstore"
)

// Store loads and saves client aggregates. Load on an unknown client
// returns an empty aggregate carrying just the id.
type Store interface {
	Load(ctx context.Context, clientID string) (Aggregate, error)
	Save(ctx context.Context, agg Aggregate) error
}

// FileStore keeps one JSON document per client under a root directory.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := fsstore.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("preparing client store: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(clientID string) (string, error) {
	id := strings.TrimSpace(clientID)
	if id == "" || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("clients: invalid client id %q", clientID)
	}
	return filepath.Join(s.root, id+".json"), nil
}

func (s *FileStore) Load(ctx context.Context, clientID string) (Aggregate, error) {
	path, err := s.path(clientID)
	if err != nil {
		return Aggregate{}, err
	}
	var agg Aggregate
	found, err := fsstore.ReadJSON(path, &agg)
	if err != nil {
		return Aggregate{}, fmt.Errorf("loading client %s: %w", clientID, err)
	}
	if !found {
		return Aggregate{ClientID: clientID}, nil
	}
	agg.ClientID = clientID
	return agg, nil
}

func (s *FileStore) Save(ctx context.Context, agg Aggregate) error {
	path, err := s.path(agg.ClientID)
	if err != nil {
		return err
	}
	if err := fsstore.WriteJSONAtomic(path, agg); err != nil {
		return fmt.Errorf("saving client %s: %w", agg.ClientID, err)
	}
	return nil
}
