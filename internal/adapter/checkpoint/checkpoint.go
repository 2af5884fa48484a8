// Package checkpoint persists bulk re-embedding progress as one JSON file per
// model so an interrupted job can resume.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"storefront/internal/domain"
)

// FileStore keeps checkpoints under a directory as
// {model}-embedding-progress.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path returns the checkpoint file of a model.
func (s *FileStore) Path(model string) string {
	return filepath.Join(s.dir, model+"-embedding-progress.json")
}

func (s *FileStore) Load(model string) (domain.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(model))
	if os.IsNotExist(err) {
		return domain.Progress{ProcessedIDs: []int64{}}, nil
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("read checkpoint: %w", err)
	}

	var p domain.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Progress{}, fmt.Errorf("parse checkpoint %s: %w", s.Path(model), err)
	}
	if p.ProcessedIDs == nil {
		p.ProcessedIDs = []int64{}
	}
	return p, nil
}

// Save writes the checkpoint through a temp file and rename, so a crash
// mid-write leaves the previous checkpoint intact.
func (s *FileStore) Save(model string, p domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, model+"-progress-*.tmp")
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path(model)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Reset(model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(model)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}
