package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"TWSignal/internal/domain/models"
	applogger "TWSignal/pkg/logger"
)

// FileUniverseStore keeps the scan universe in <data>/universe.parquet and the
// name lookup table in a JSON file shared with the listing tools.
type FileUniverseStore struct {
	universePath string
	namesPath    string

	mu    sync.RWMutex
	names map[string]string
	l     *applogger.Logger
}

// NewFileUniverseStore loads the name table eagerly. A missing table leaves
// name lookups empty.
func NewFileUniverseStore(dataDir, namesPath string, l *applogger.Logger) *FileUniverseStore {
	if l == nil {
		l = applogger.Nop()
	}
	s := &FileUniverseStore{
		universePath: filepath.Join(dataDir, "universe"+parquetExt),
		namesPath:    namesPath,
		names:        map[string]string{},
		l:            l,
	}
	if err := s.loadNames(); err != nil {
		l.Warn("name table not loaded", applogger.String("path", namesPath), applogger.Error(err))
	}
	return s
}

func (s *FileUniverseStore) Load() ([]models.UniverseEntry, error) {
	return readParquet[models.UniverseEntry](s.universePath)
}

func (s *FileUniverseStore) Save(entries []models.UniverseEntry) error {
	return writeParquet(s.universePath, entries)
}

// Names returns a snapshot of the display name to code table.
func (s *FileUniverseStore) Names() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

func (s *FileUniverseStore) SaveNames(names map[string]string) error {
	b, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("encode names: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.namesPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	tmp := s.namesPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write names: %w", err)
	}
	if err := os.Rename(tmp, s.namesPath); err != nil {
		return fmt.Errorf("rename names: %w", err)
	}

	s.mu.Lock()
	s.names = make(map[string]string, len(names))
	for k, v := range names {
		s.names[k] = v
	}
	s.mu.Unlock()
	return nil
}

// loadNames reads the table. Reverse entries (code to name) written by older
// tools are dropped.
func (s *FileUniverseStore) loadNames() error {
	b, err := os.ReadFile(s.namesPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	raw := map[string]string{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(s.namesPath), err)
	}
	names := make(map[string]string, len(raw))
	for k, v := range raw {
		if models.IsCode(k) {
			continue
		}
		names[k] = v
	}
	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
	s.l.Info("name table loaded", applogger.Int("names", len(names)))
	return nil
}
