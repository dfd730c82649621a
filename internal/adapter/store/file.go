package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/berfenger/sib2mqtt/internal/core/domain"
)

const (
	fileStoreVersion      = 1
	fileStoreMinorVersion = 1
)

// FileStore keeps entries in a single JSON document laid out like the
// Home Assistant .storage files.
type FileStore struct {
	mu   sync.Mutex
	path string
}

type fileEnvelope struct {
	Version      int         `json:"version"`
	MinorVersion int         `json:"minor_version"`
	Key          string      `json:"key"`
	Data         fileEntries `json:"data"`
}

type fileEntries struct {
	Entries []domain.ConfigurationEntry `json:"entries"`
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(_ context.Context) ([]domain.ConfigurationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.ConfigurationEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var envelope fileEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	if envelope.Key != STORAGE_KEY {
		return nil, fmt.Errorf("decode %s: unexpected key %q", s.path, envelope.Key)
	}
	if envelope.Version > fileStoreVersion {
		return nil, fmt.Errorf("decode %s: unsupported version %d", s.path, envelope.Version)
	}
	entries := envelope.Data.Entries
	for i := range entries {
		entries[i].Sensors = domain.CloneSensors(entries[i].Sensors)
	}
	if entries == nil {
		entries = []domain.ConfigurationEntry{}
	}
	return entries, nil
}

// Save writes to a temporary file in the same directory and renames it over
// the previous document.
func (s *FileStore) Save(_ context.Context, entries []domain.ConfigurationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	envelope := fileEnvelope{
		Version:      fileStoreVersion,
		MinorVersion: fileStoreMinorVersion,
		Key:          STORAGE_KEY,
		Data:         fileEntries{Entries: cloneEntries(entries)},
	}
	raw, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Close() error {
	return nil
}
