package models

import (
	"slices"
	"time"
)

// FeatureSchemaVersion identifies the feature pipeline generation.
const FeatureSchemaVersion = "v1"

// FeatureSchema names the columns of every FeatureRow produced under one configuration.
type FeatureSchema struct {
	Version string   `json:"version"`
	Columns []string `json:"columns"`
}

// Equal reports whether two schemas have the same version and column order.
func (s FeatureSchema) Equal(o FeatureSchema) bool {
	return s.Version == o.Version && slices.Equal(s.Columns, o.Columns)
}

// Index returns the position of column name, or -1.
func (s FeatureSchema) Index(name string) int { return slices.Index(s.Columns, name) }

// FeatureRow is the feature vector for one trading day.
type FeatureRow struct {
	Date   time.Time `json:"date"`
	Values []float64 `json:"values"`
}
