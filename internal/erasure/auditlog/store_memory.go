package auditlog

import (
	"context"
	"sync"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// InMemoryStore keeps audit entries in memory for tests and dev mode.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*models.AuditLogEntry
	nextID  int64
}

// NewInMemory constructs an empty in-memory audit store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{nextID: 1}
}

func (s *InMemoryStore) Append(_ context.Context, entry *models.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyEntry := *entry
	copyEntry.ID = s.nextID
	s.nextID++
	s.entries = append(s.entries, &copyEntry)
	return nil
}

func (s *InMemoryStore) ListByRequest(_ context.Context, requestID id.RequestID) ([]*models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.AuditLogEntry
	for _, entry := range s.entries {
		if entry.RequestID == requestID {
			copyEntry := *entry
			matched = append(matched, &copyEntry)
		}
	}
	return matched, nil
}

func (s *InMemoryStore) CountRawRefs(_ context.Context, subjectID id.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.entries {
		if !entry.Anonymized && entry.SubjectRef == string(subjectID) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) AnonymizeByRequest(_ context.Context, requestID id.RequestID, anonymizedRef string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.entries {
		if entry.RequestID != requestID || entry.Anonymized {
			continue
		}
		entry.SubjectRef = anonymizedRef
		entry.Anonymized = true
		entry.IntegrityHash = entry.ComputeIntegrityHash()
		count++
	}
	return count, nil
}

func (s *InMemoryStore) CountAll(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
