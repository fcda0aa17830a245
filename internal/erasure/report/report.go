// Package report produces compliance reporting over the request store: the
// windowed report a data-protection officer files, and the unwindowed
// operational snapshot dashboards poll.
package report

import (
	"context"
	"fmt"
	"time"

	"lethe/internal/erasure/auditlog"
	"lethe/internal/erasure/models"
	"lethe/internal/erasure/store"
)

// ComplianceReport summarizes deletion activity inside a reporting window.
type ComplianceReport struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalRequests  int                   `json:"total_requests"`
	ByStatus       map[models.Status]int `json:"by_status"`
	UserInitiated  int                   `json:"user_initiated"`
	AdminInitiated int                   `json:"admin_initiated"`

	// Overdue counts requests in the window past deadline and still not in a
	// terminal state at report time. A request completed late does not count:
	// the obligation was met, however slowly.
	Overdue int `json:"overdue"`

	// AvgCompletionTime averages deadline-to-done latency over completed
	// requests, measured from request creation. Zero when none completed.
	AvgCompletionTime time.Duration `json:"avg_completion_time"`

	// ComplianceScore is 100 minus fifty times the overdue rate, floored at
	// zero: a window where every request ran late still scores 50 if half
	// were eventually handled, and an empty window scores a clean 100.
	ComplianceScore float64 `json:"compliance_score"`
}

// OperationalMetrics is the unwindowed live snapshot.
type OperationalMetrics struct {
	ByStatus          map[models.Status]int `json:"by_status"`
	Overdue           int                   `json:"overdue"`
	TotalAuditEntries int                   `json:"total_audit_entries"`
}

// Reporter reads the request store and audit ledger; it never writes.
type Reporter struct {
	store store.Store
	audit auditlog.Store
	now   func() time.Time
}

// Option configures the Reporter.
type Option func(*Reporter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// New constructs a Reporter.
func New(st store.Store, audit auditlog.Store, opts ...Option) (*Reporter, error) {
	if st == nil || audit == nil {
		return nil, fmt.Errorf("request store and audit store are required")
	}
	r := &Reporter{store: st, audit: audit, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Compliance builds the report for requests created inside [start, end).
func (r *Reporter) Compliance(ctx context.Context, start, end time.Time) (*ComplianceReport, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("reporting window end must follow start")
	}
	requests, err := r.store.ListRequestedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("list requests in window: %w", err)
	}

	report := &ComplianceReport{
		PeriodStart: start,
		PeriodEnd:   end,
		ByStatus:    make(map[models.Status]int),
	}
	now := r.now()
	var completedLatency time.Duration
	completed := 0
	for _, request := range requests {
		report.TotalRequests++
		report.ByStatus[request.Status]++
		if request.InitiatedByUser {
			report.UserInitiated++
		} else {
			report.AdminInitiated++
		}
		if !request.Status.IsTerminal() && request.IsOverdue(now) {
			report.Overdue++
		}
		if request.Status == models.StatusCompleted && request.CompletedAt != nil {
			completedLatency += request.CompletedAt.Sub(request.RequestedAt)
			completed++
		}
	}
	if completed > 0 {
		report.AvgCompletionTime = completedLatency / time.Duration(completed)
	}
	report.ComplianceScore = complianceScore(report.Overdue, report.TotalRequests)
	return report, nil
}

// Operational builds the live snapshot across all time.
func (r *Reporter) Operational(ctx context.Context) (*OperationalMetrics, error) {
	byStatus, err := r.store.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count requests by status: %w", err)
	}
	overdue, err := r.store.CountOverdue(ctx, r.now())
	if err != nil {
		return nil, fmt.Errorf("count overdue requests: %w", err)
	}
	auditEntries, err := r.audit.CountAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("count audit entries: %w", err)
	}
	return &OperationalMetrics{
		ByStatus:          byStatus,
		Overdue:           overdue,
		TotalAuditEntries: auditEntries,
	}, nil
}

func complianceScore(overdue, total int) float64 {
	if total == 0 {
		return 100
	}
	score := 100 - (float64(overdue)/float64(total))*50
	if score < 0 {
		return 0
	}
	return score
}
