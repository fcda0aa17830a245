package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"lethe/internal/platform/kafka/producer"
)

// KafkaSink publishes alerts as JSON events to a Kafka topic, keyed by kind
// so consumers can compact per condition.
type KafkaSink struct {
	producer *producer.Producer
	topic    string
}

// NewKafkaSink constructs a sink over an existing producer.
func NewKafkaSink(p *producer.Producer, topic string) (*KafkaSink, error) {
	if p == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("alert topic is required")
	}
	return &KafkaSink{producer: p, topic: topic}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return s.producer.Produce(ctx, &producer.Message{
		Topic: s.topic,
		Key:   []byte(alert.Kind),
		Value: payload,
		Headers: map[string]string{
			"severity": string(alert.Severity),
		},
	})
}

// LogSink writes alerts to the structured log. It is the fallback when no
// broker is configured, and the default in development.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a sink that emits alerts as log records.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, alert Alert) error {
	s.logger.WarnContext(ctx, "compliance alert",
		"kind", alert.Kind,
		"severity", alert.Severity,
		"message", alert.Message,
		"count", alert.Count,
	)
	return nil
}

// CaptureSink records published alerts in memory. Tests use it to assert on
// alert content without a broker.
type CaptureSink struct {
	mu     sync.Mutex
	alerts []Alert
}

// NewCaptureSink constructs an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

func (s *CaptureSink) Publish(_ context.Context, alert Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

// Alerts returns a copy of everything published so far.
func (s *CaptureSink) Alerts() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}
