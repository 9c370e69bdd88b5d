package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Backend names the physical store a dataset is served from.
type Backend string

const (
	BackendModern Backend = "modern"
	BackendLegacy Backend = "legacy"
)

// ActivationState records which physical database is authoritative for one
// dataset. Other processes read it to open the same file.
type ActivationState struct {
	ActiveDBName string `yaml:"active_db_name"`
	IsModern     bool   `yaml:"is_modern"`
}

// Backend returns the backend the state points at.
func (s ActivationState) Backend() Backend {
	if s.IsModern {
		return BackendModern
	}
	return BackendLegacy
}

// StateStore persists ActivationState per namespace in a small YAML file
// kept outside the databases.
//
// Writes replace the file atomically (temp file + rename). StateStore is
// safe for concurrent use within one process.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore returns a store backed by the YAML file at path. The file is
// created on first Save.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the backing file path.
func (s *StateStore) Path() string {
	return s.path
}

// Load returns the state for namespace. ok is false when nothing was saved.
func (s *StateStore) Load(namespace string) (ActivationState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked()
	if err != nil {
		return ActivationState{}, false, err
	}
	st, ok := all[namespace]
	return st, ok, nil
}

// Save writes the state for namespace, keeping other namespaces intact.
func (s *StateStore) Save(namespace string, st ActivationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readLocked()
	if err != nil {
		return err
	}
	all[namespace] = st

	data, err := yaml.Marshal(all)
	if err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.yaml")
	if err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("save activation state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("save activation state: %w", err)
	}
	return nil
}

func (s *StateStore) readLocked() (map[string]ActivationState, error) {
	all := map[string]ActivationState{}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return all, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read activation state: %w", err)
	}
	if err := yaml.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse activation state %s: %w", s.path, err)
	}
	if all == nil {
		all = map[string]ActivationState{}
	}
	return all, nil
}
