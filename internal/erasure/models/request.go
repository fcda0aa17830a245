package models

import (
	"time"

	id "lethe/pkg/domain"
)

// Status is the lifecycle state of a deletion request. The state machine
// only moves forward: Completed and Cancelled are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsValid reports whether the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition may leave this state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive reports whether the request still counts against the
// one-active-request-per-subject invariant.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// CanTransitionTo encodes the legal state machine edges:
// Pending -> InProgress | Cancelled; InProgress -> Completed | Failed;
// Failed -> InProgress (bounded retry).
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusInProgress
	}
	return false
}

// Priority orders requests for operator attention. The scheduler executes
// by deadline regardless; priority is reporting/filtering metadata.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// IsValid reports whether the priority is a known level.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// DeletionRequest is the durable record of one erasure demand.
// Requests are never physically deleted: a terminal request is itself part
// of the audit record and is retained indefinitely.
type DeletionRequest struct {
	ID              id.RequestID
	SubjectID       id.SubjectID
	Status          Status
	InitiatedByUser bool
	AdminActorID    *id.ActorID
	Reason          string
	Priority        Priority

	RequestedAt time.Time
	// Deadline = RequestedAt + retention window. Immutable once set.
	Deadline      time.Time
	ScheduledAt   *time.Time
	CompletedAt   *time.Time
	CertificateID *id.CertificateID
	LastError     string

	// Attempts counts executions (initial run plus retries).
	Attempts int
	// UpdatedAt tracks the last state mutation; the scheduler uses it to
	// detect InProgress requests stuck past the staleness timeout.
	UpdatedAt time.Time
}

// IsOverdue reports whether the request's legal deadline has passed.
func (r *DeletionRequest) IsOverdue(now time.Time) bool {
	return !r.Deadline.After(now)
}

// RequestFilter narrows listing queries. Nil fields match everything.
type RequestFilter struct {
	Status   *Status
	Priority *Priority
	// OverdueOnly restricts results to pending requests past their deadline.
	OverdueOnly bool
}
