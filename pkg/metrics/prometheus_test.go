package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordFetch("yahoo", "ok")
	r.RecordFetch("yahoo", "ok")
	r.RecordCacheLookup("ohlcv", true)
	r.RecordSkip("scan", "data_unavailable")
	r.RecordLastClose("2330.TW", 1005)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.fetches.WithLabelValues("yahoo", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cacheLookups.WithLabelValues("ohlcv", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.skips.WithLabelValues("scan", "data_unavailable")))
	assert.Equal(t, 1005.0, testutil.ToFloat64(r.lastClose.WithLabelValues("2330.TW")))
}
