package ml

import (
	"fmt"
	"os"
	"sync"
	"time"

	"TWSignal/pkg/logger"
)

// Registry owns the single loaded artifact and reloads it when the path or file mtime changes.
// Returned artifacts are shared and must be treated as read-only.
type Registry struct {
	mu      sync.RWMutex
	path    string
	modTime time.Time
	art     *Artifact
	log     *logger.Logger
}

func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{log: log}
}

// Get returns the artifact at path, loading it on first use or after it changed on disk.
func (r *Registry) Get(path string) (*Artifact, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", path, err)
	}

	r.mu.RLock()
	if r.art != nil && r.path == path && r.modTime.Equal(st.ModTime()) {
		art := r.art
		r.mu.RUnlock()
		return art, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.art != nil && r.path == path && r.modTime.Equal(st.ModTime()) {
		return r.art, nil
	}
	art, err := Load(path)
	if err != nil {
		return nil, err
	}
	r.art, r.path, r.modTime = art, path, st.ModTime()
	r.log.Info("model loaded",
		logger.String("path", path),
		logger.Int("trees", len(art.Forest.Trees)),
		logger.String("schema", art.Schema.Version),
		logger.Int("features", len(art.Schema.Columns)),
	)
	return art, nil
}

// Invalidate drops the loaded artifact, e.g. after training wrote a new one.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.art, r.path, r.modTime = nil, "", time.Time{}
	r.mu.Unlock()
}
