package repository

import (
	"context"

	"TWSignal/internal/domain/models"
)

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string, string)         {}
func (NopMetrics) RecordCacheLookup(string, bool)     {}
func (NopMetrics) RecordSkip(string, string)          {}
func (NopMetrics) RecordError(string)                 {}
func (NopMetrics) RecordLastClose(string, float64)    {}
func (NopMetrics) RecordLatency(string, float64)      {}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishScan(context.Context, *models.ScanResult) error         { return nil }
func (NopPublisher) PublishBacktest(context.Context, *models.BacktestResult) error { return nil }
func (NopPublisher) Close() error                                                  { return nil }
