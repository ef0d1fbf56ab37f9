package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pairScope/internal/model"
)

// StateStore persists the position of the last applied event.
type StateStore interface {
	Load(ctx context.Context) (model.ReplayPosition, bool, error)
	Save(ctx context.Context, pos model.ReplayPosition) error
}

// FileStateStore stores state in a local JSON file.
type FileStateStore struct {
	Path string
}

type stateRecord struct {
	model.ReplayPosition
	UpdatedAt string `json:"updated_at"`
}

func (s *FileStateStore) Load(ctx context.Context) (model.ReplayPosition, bool, error) {
	if s == nil || s.Path == "" {
		return model.ReplayPosition{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.ReplayPosition{}, false, nil
		}
		return model.ReplayPosition{}, false, fmt.Errorf("read state: %w", err)
	}

	var rec stateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.ReplayPosition{}, false, fmt.Errorf("parse state: %w", err)
	}
	return rec.ReplayPosition, true, nil
}

// Save replaces the state file through a temp file and rename.
func (s *FileStateStore) Save(ctx context.Context, pos model.ReplayPosition) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	rec := stateRecord{
		ReplayPosition: pos,
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}
