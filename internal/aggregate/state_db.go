package aggregate

import (
	"context"

	"pairScope/internal/model"
)

// StateBackend is the indexer_state access DBStateStore needs.
type StateBackend interface {
	LoadState(ctx context.Context, name string) (model.ReplayPosition, bool, error)
	SaveState(ctx context.Context, name string, pos model.ReplayPosition) error
}

// DBStateStore stores state in the indexer_state table.
type DBStateStore struct {
	Store StateBackend
	Name  string
}

func (s *DBStateStore) Load(ctx context.Context) (model.ReplayPosition, bool, error) {
	if s == nil || s.Store == nil {
		return model.ReplayPosition{}, false, nil
	}
	return s.Store.LoadState(ctx, s.Name)
}

func (s *DBStateStore) Save(ctx context.Context, pos model.ReplayPosition) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveState(ctx, s.Name, pos)
}

// StateName makes the sink write the position under Name in the same
// transaction as the checkpoint rows. The sink and Store must share a
// database.
func (s *DBStateStore) StateName() string {
	if s == nil {
		return ""
	}
	return s.Name
}
