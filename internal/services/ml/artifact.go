package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/config"
)

// Meta records how an artifact was produced.
type Meta struct {
	TrainedAt      time.Time          `json:"trained_at"`
	Rows           int                `json:"rows"`
	TrainRows      int                `json:"train_rows"`
	TestRows       int                `json:"test_rows"`
	Cutoff         time.Time          `json:"cutoff"`
	LabelHorizon   int                `json:"label_horizon"`
	LabelThreshold float64            `json:"label_threshold"`
	Params         config.Forest      `json:"params"`
	Seed           int64              `json:"seed"`
	Metrics        map[string]float64 `json:"metrics"`
	Tickers        []string           `json:"tickers"`
}

// Artifact is the persisted classifier together with the schema it was trained on.
type Artifact struct {
	Schema models.FeatureSchema `json:"schema"`
	Forest *Forest              `json:"forest"`
	Meta   Meta                 `json:"meta"`
}

// PredictProba makes Artifact a domain Classifier.
func (a *Artifact) PredictProba(x []float64) float64 {
	return a.Forest.PredictProba(x)
}

// Check returns a ModelMismatchError when the artifact was trained on another schema.
func (a *Artifact) Check(schema models.FeatureSchema) error {
	if !a.Schema.Equal(schema) {
		return &models.ModelMismatchError{Want: schema, Got: a.Schema}
	}
	return nil
}

// Save writes the artifact as JSON through a temp file and rename.
func Save(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	enc := json.NewEncoder(tmp)
	if err := enc.Encode(a); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("encode model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename model: %w", err)
	}
	return nil
}

// Load reads an artifact written by Save.
func Load(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model: %w", err)
	}
	defer f.Close()

	var a Artifact
	if err := json.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return nil, errors.New("decode model: no trees")
	}
	if a.Forest.NumFeatures != len(a.Schema.Columns) {
		return nil, fmt.Errorf("decode model: forest has %d features, schema %d", a.Forest.NumFeatures, len(a.Schema.Columns))
	}
	return &a, nil
}
