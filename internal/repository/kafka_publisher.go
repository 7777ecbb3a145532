package repository

import (
	"context"
	"time"

	"TWSignal/internal/domain/models"
	"TWSignal/pkg/kafka"
)

// messagePublisher is the part of pkg/kafka.Producer the signal publisher uses.
type messagePublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
	Close() error
}

// Event types carried in the type header.
const (
	EventScan     = "scan.completed"
	EventBacktest = "backtest.completed"
)

// SignalEvent is the envelope written to the signals topic.
type SignalEvent struct {
	Type      string      `json:"type"`
	Key       string      `json:"key"`
	EmittedAt time.Time   `json:"emitted_at"`
	Payload   interface{} `json:"payload"`
}

// KafkaSignalPublisher implements SignalPublisher on a Kafka topic.
// Scans are keyed by universe, backtests by run id.
type KafkaSignalPublisher struct {
	p     messagePublisher
	topic string
	now   func() time.Time
}

func NewKafkaSignalPublisher(p *kafka.Producer, topic string) *KafkaSignalPublisher {
	return &KafkaSignalPublisher{p: p, topic: topic, now: time.Now}
}

func (k *KafkaSignalPublisher) PublishScan(ctx context.Context, res *models.ScanResult) error {
	key := res.Universe + ":" + string(res.Horizon)
	return k.publish(ctx, EventScan, key, res)
}

// PublishBacktest sends the summary and per-ticker summaries; day logs stay local.
func (k *KafkaSignalPublisher) PublishBacktest(ctx context.Context, res *models.BacktestResult) error {
	slim := *res
	slim.Tickers = make([]models.TickerBacktest, len(res.Tickers))
	for i, t := range res.Tickers {
		t.Days = nil
		slim.Tickers[i] = t
	}
	return k.publish(ctx, EventBacktest, res.RunID, &slim)
}

func (k *KafkaSignalPublisher) publish(ctx context.Context, typ, key string, payload interface{}) error {
	ev := SignalEvent{Type: typ, Key: key, EmittedAt: k.now().UTC(), Payload: payload}
	return k.p.PublishBatch(ctx, k.topic, []kafka.Message{{
		Key:     []byte(key),
		Value:   ev,
		Headers: map[string]string{"type": typ},
	}})
}

func (k *KafkaSignalPublisher) Close() error { return k.p.Close() }
