// Package store persists deletion requests and enforces the lifecycle
// invariants: at most one active request per subject, forward-only status
// transitions, and conditional (compare-and-swap) updates that make
// concurrent scheduler runs safe without a distributed lock.
package store

import (
	"context"
	"time"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// Error Contract:
// All store methods follow this pattern:
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return sentinel.ErrConflict when an active request already exists for the subject
// - Return sentinel.ErrStale when a conditional transition lost the race
// - Return sentinel.ErrInvalidState when the requested edge is not in the state machine
// - Return wrapped errors with context for infrastructure failures

// TransitionUpdate carries the optional field updates applied together with
// a status transition. The deadline is deliberately absent: it is immutable.
type TransitionUpdate struct {
	ScheduledAt       *time.Time
	CompletedAt       *time.Time
	CertificateID     *id.CertificateID
	LastError         *string
	IncrementAttempts bool
}

// Store is the authoritative record of deletion requests. Its conditional
// Transition is the sole mutual-exclusion point in the engine.
type Store interface {
	// Create persists a new request. It fails with sentinel.ErrConflict when
	// an active (Pending or InProgress) request already exists for the subject.
	Create(ctx context.Context, request *models.DeletionRequest) error

	FindByID(ctx context.Context, requestID id.RequestID) (*models.DeletionRequest, error)

	// FindOverdue returns pending requests whose deadline has passed,
	// ordered by deadline ascending so the oldest legal exposure is
	// handled first. limit <= 0 means no limit.
	FindOverdue(ctx context.Context, now time.Time, limit int) ([]*models.DeletionRequest, error)

	// FindStaleInProgress returns in-progress requests untouched since the
	// cutoff. These are crash leftovers eligible for explicit recovery.
	FindStaleInProgress(ctx context.Context, cutoff time.Time, limit int) ([]*models.DeletionRequest, error)

	// FindRetryable returns failed requests with fewer than maxAttempts
	// executions, ordered by deadline ascending.
	FindRetryable(ctx context.Context, maxAttempts int, limit int) ([]*models.DeletionRequest, error)

	// List returns requests matching the filter, newest first.
	List(ctx context.Context, filter *models.RequestFilter, now time.Time) ([]*models.DeletionRequest, error)

	// ListRequestedBetween returns requests with RequestedAt in [start, end).
	ListRequestedBetween(ctx context.Context, start, end time.Time) ([]*models.DeletionRequest, error)

	// Transition conditionally moves a request from expected to next.
	// It returns sentinel.ErrStale when the stored status no longer matches
	// expected — the caller lost the claim race and must skip silently.
	Transition(ctx context.Context, requestID id.RequestID, expected, next models.Status, update TransitionUpdate) error

	// CountByStatus returns request counts grouped by lifecycle state.
	CountByStatus(ctx context.Context) (map[models.Status]int, error)

	// CountOverdue counts pending requests past their deadline.
	CountOverdue(ctx context.Context, now time.Time) (int, error)

	// CountApproachingDeadline counts pending requests due within the lead window.
	CountApproachingDeadline(ctx context.Context, now time.Time, lead time.Duration) (int, error)
}
