package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
)

// InMemoryStore keeps deletion requests in memory. It backs unit tests and
// dev mode and enforces the same invariants as the postgres store: the
// one-active-request-per-subject check and the conditional transition both
// run under the store mutex, so it is safe for concurrent scheduler runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.DeletionRequest
}

// NewInMemory constructs an empty in-memory request store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.DeletionRequest)}
}

func (s *InMemoryStore) Create(_ context.Context, request *models.DeletionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.SubjectID == request.SubjectID && existing.Status.IsActive() {
			return sentinel.ErrConflict
		}
	}
	copyRequest := *request
	s.requests[request.ID] = &copyRequest
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRequest := *request
	return &copyRequest, nil
}

func (s *InMemoryStore) FindOverdue(_ context.Context, now time.Time, limit int) ([]*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var overdue []*models.DeletionRequest
	for _, request := range s.requests {
		if request.Status == models.StatusPending && request.IsOverdue(now) {
			copyRequest := *request
			overdue = append(overdue, &copyRequest)
		}
	}
	sortByDeadline(overdue)
	return truncate(overdue, limit), nil
}

func (s *InMemoryStore) FindStaleInProgress(_ context.Context, cutoff time.Time, limit int) ([]*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stale []*models.DeletionRequest
	for _, request := range s.requests {
		if request.Status == models.StatusInProgress && request.UpdatedAt.Before(cutoff) {
			copyRequest := *request
			stale = append(stale, &copyRequest)
		}
	}
	sortByDeadline(stale)
	return truncate(stale, limit), nil
}

func (s *InMemoryStore) FindRetryable(_ context.Context, maxAttempts int, limit int) ([]*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var retryable []*models.DeletionRequest
	for _, request := range s.requests {
		if request.Status == models.StatusFailed && request.Attempts < maxAttempts {
			copyRequest := *request
			retryable = append(retryable, &copyRequest)
		}
	}
	sortByDeadline(retryable)
	return truncate(retryable, limit), nil
}

func (s *InMemoryStore) List(_ context.Context, filter *models.RequestFilter, now time.Time) ([]*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.DeletionRequest
	for _, request := range s.requests {
		if filter != nil {
			if filter.Status != nil && request.Status != *filter.Status {
				continue
			}
			if filter.Priority != nil && request.Priority != *filter.Priority {
				continue
			}
			if filter.OverdueOnly && !(request.Status == models.StatusPending && request.IsOverdue(now)) {
				continue
			}
		}
		copyRequest := *request
		matched = append(matched, &copyRequest)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RequestedAt.After(matched[j].RequestedAt)
	})
	return matched, nil
}

func (s *InMemoryStore) ListRequestedBetween(_ context.Context, start, end time.Time) ([]*models.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.DeletionRequest
	for _, request := range s.requests {
		if !request.RequestedAt.Before(start) && request.RequestedAt.Before(end) {
			copyRequest := *request
			matched = append(matched, &copyRequest)
		}
	}
	sortByDeadline(matched)
	return matched, nil
}

// Transition applies the compare-and-swap that serializes concurrent
// claimers: the check of the stored status and the write happen under one
// lock acquisition, mirroring the single conditional UPDATE in postgres.
func (s *InMemoryStore) Transition(_ context.Context, requestID id.RequestID, expected, next models.Status, update TransitionUpdate) error {
	if !expected.CanTransitionTo(next) {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[requestID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if request.Status != expected {
		return sentinel.ErrStale
	}
	request.Status = next
	request.UpdatedAt = time.Now()
	if update.ScheduledAt != nil {
		request.ScheduledAt = update.ScheduledAt
	}
	if update.CompletedAt != nil {
		request.CompletedAt = update.CompletedAt
	}
	if update.CertificateID != nil {
		request.CertificateID = update.CertificateID
	}
	if update.LastError != nil {
		request.LastError = *update.LastError
	}
	if update.IncrementAttempts {
		request.Attempts++
	}
	return nil
}

func (s *InMemoryStore) CountByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.Status]int)
	for _, request := range s.requests {
		counts[request.Status]++
	}
	return counts, nil
}

func (s *InMemoryStore) CountOverdue(_ context.Context, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, request := range s.requests {
		if request.Status == models.StatusPending && request.IsOverdue(now) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) CountApproachingDeadline(_ context.Context, now time.Time, lead time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	horizon := now.Add(lead)
	count := 0
	for _, request := range s.requests {
		if request.Status == models.StatusPending && request.Deadline.After(now) && !request.Deadline.After(horizon) {
			count++
		}
	}
	return count, nil
}

func sortByDeadline(requests []*models.DeletionRequest) {
	sort.Slice(requests, func(i, j int) bool {
		return requests[i].Deadline.Before(requests[j].Deadline)
	})
}

func truncate(requests []*models.DeletionRequest, limit int) []*models.DeletionRequest {
	if limit > 0 && len(requests) > limit {
		return requests[:limit]
	}
	return requests
}
