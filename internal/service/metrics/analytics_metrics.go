package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ModelScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "twsignal",
			Subsystem: "model",
			Name:      "evaluation",
			Help:      "Hold-out metrics of the last trained model",
		},
		[]string{"metric"},
	)

	BacktestSummary = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "twsignal",
			Subsystem: "backtest",
			Name:      "summary",
			Help:      "Aggregate figures of the last backtest run",
		},
		[]string{"strategy", "figure"},
	)

	ScanLabels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "twsignal",
			Subsystem: "scan",
			Name:      "labels",
			Help:      "Recommendation label counts of the last scan",
		},
		[]string{"universe", "horizon", "label"},
	)
)

// Register adds the pipeline gauges to the default registry once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(ModelScore, BacktestSummary, ScanLabels)
	})
}
