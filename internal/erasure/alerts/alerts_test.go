package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSink struct {
	calls int
}

func (s *failingSink) Publish(context.Context, Alert) error {
	s.calls++
	return errors.New("broker unreachable")
}

func TestDeadlineAlertsQuietWhenNothingPending(t *testing.T) {
	sink := NewCaptureSink()
	notifier, err := New(sink)
	require.NoError(t, err)

	notifier.DeadlineAlerts(context.Background(), 0, 0)

	assert.Empty(t, sink.Alerts())
}

func TestDeadlineAlertsSeverityLadder(t *testing.T) {
	raisedAt := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	sink := NewCaptureSink()
	notifier, err := New(sink,
		WithEscalationThreshold(5),
		WithClock(func() time.Time { return raisedAt }),
	)
	require.NoError(t, err)

	notifier.DeadlineAlerts(context.Background(), 3, 7)

	alerts := sink.Alerts()
	require.Len(t, alerts, 2)

	overdue := alerts[0]
	assert.Equal(t, KindDeadlineOverdue, overdue.Kind)
	assert.Equal(t, SeverityWarning, overdue.Severity)
	assert.Equal(t, 3, overdue.Count)
	assert.Equal(t, raisedAt, overdue.RaisedAt)

	approaching := alerts[1]
	assert.Equal(t, KindDeadlineApproaching, approaching.Kind)
	assert.Equal(t, SeverityInfo, approaching.Severity)
	assert.Equal(t, 7, approaching.Count)
}

func TestDeadlineAlertsEscalateAtThreshold(t *testing.T) {
	sink := NewCaptureSink()
	notifier, err := New(sink, WithEscalationThreshold(5))
	require.NoError(t, err)

	notifier.DeadlineAlerts(context.Background(), 5, 0)

	alerts := sink.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityCritical, alerts[0].Severity)
}

func TestVerificationFailedAlert(t *testing.T) {
	sink := NewCaptureSink()
	notifier, err := New(sink)
	require.NoError(t, err)

	notifier.VerificationFailed(context.Background(), "req-123", 66.7)

	alerts := sink.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, KindVerificationFailed, alerts[0].Kind)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "req-123")
	assert.Contains(t, alerts[0].Message, "66.7")
}

// Alert delivery is advisory: a broken sink must never surface as an error
// to the engine.
func TestDeliveryFailureIsSwallowed(t *testing.T) {
	sink := &failingSink{}
	notifier, err := New(sink)
	require.NoError(t, err)

	notifier.DeadlineAlerts(context.Background(), 2, 1)

	assert.Equal(t, 2, sink.calls)
}

func TestNewRequiresSink(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
