// Package alerts raises compliance alerts when deletion deadlines are
// missed or about to be missed. Alerts are advisory signals for operators;
// failing to deliver one never blocks the engine.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lethe/internal/erasure/metrics"
)

// Severity classifies how urgently an alert needs attention.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert kind values.
const (
	KindDeadlineOverdue     = "deadline_overdue"
	KindDeadlineApproaching = "deadline_approaching"
	KindVerificationFailed  = "verification_failed"
)

// Alert is a single compliance notification.
type Alert struct {
	Kind     string    `json:"kind"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Count    int       `json:"count"`
	RaisedAt time.Time `json:"raised_at"`
}

// Sink delivers alerts to wherever operators are watching.
type Sink interface {
	Publish(ctx context.Context, alert Alert) error
}

// defaultEscalationThreshold is the overdue-request count at which a
// warning becomes critical.
const defaultEscalationThreshold = 10

// Notifier decides when an alert is warranted and at what severity, then
// hands it to the sink. Delivery failures are logged and swallowed.
type Notifier struct {
	sink                Sink
	logger              *slog.Logger
	metrics             *metrics.Metrics
	escalationThreshold int
	now                 func() time.Time
}

// Option configures the Notifier.
type Option func(*Notifier)

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// WithEscalationThreshold overrides the overdue count at which deadline
// alerts escalate from warning to critical.
func WithEscalationThreshold(count int) Option {
	return func(n *Notifier) {
		if count > 0 {
			n.escalationThreshold = count
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

// New constructs a Notifier over the given sink.
func New(sink Sink, opts ...Option) (*Notifier, error) {
	if sink == nil {
		return nil, fmt.Errorf("alert sink is required")
	}
	n := &Notifier{
		sink:                sink,
		logger:              slog.Default(),
		escalationThreshold: defaultEscalationThreshold,
		now:                 time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

// DeadlineAlerts raises alerts for the current deadline posture: one per
// condition that holds. Zero counts raise nothing.
func (n *Notifier) DeadlineAlerts(ctx context.Context, overdue, approaching int) {
	if overdue > 0 {
		severity := SeverityWarning
		if overdue >= n.escalationThreshold {
			severity = SeverityCritical
		}
		n.raise(ctx, Alert{
			Kind:     KindDeadlineOverdue,
			Severity: severity,
			Message:  fmt.Sprintf("%d deletion request(s) past their compliance deadline", overdue),
			Count:    overdue,
		})
	}
	if approaching > 0 {
		n.raise(ctx, Alert{
			Kind:     KindDeadlineApproaching,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("%d deletion request(s) approaching their compliance deadline", approaching),
			Count:    approaching,
		})
	}
}

// VerificationFailed raises a warning that a request completed execution but
// did not verify as compliant.
func (n *Notifier) VerificationFailed(ctx context.Context, requestID string, score float64) {
	n.raise(ctx, Alert{
		Kind:     KindVerificationFailed,
		Severity: SeverityWarning,
		Message:  fmt.Sprintf("request %s failed compliance verification (score %.1f%%)", requestID, score),
		Count:    1,
	})
}

func (n *Notifier) raise(ctx context.Context, alert Alert) {
	alert.RaisedAt = n.now()
	if err := n.sink.Publish(ctx, alert); err != nil {
		n.logger.ErrorContext(ctx, "alert delivery failed",
			"kind", alert.Kind,
			"severity", alert.Severity,
			"error", err,
		)
		return
	}
	if n.metrics != nil {
		n.metrics.AlertsRaised.WithLabelValues(string(alert.Severity)).Inc()
	}
	n.logger.WarnContext(ctx, "compliance alert raised",
		"kind", alert.Kind,
		"severity", alert.Severity,
		"count", alert.Count,
	)
}
