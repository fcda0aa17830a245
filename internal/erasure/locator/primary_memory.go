package locator

import (
	"context"
	"sync"

	id "lethe/pkg/domain"
)

// InMemoryPrimaryStore simulates the primary relational store for tests and
// dev mode: a count of raw and anonymized rows per table per subject.
type InMemoryPrimaryStore struct {
	mu sync.RWMutex
	// raw[table][subject] = rows still carrying the raw subject reference
	raw map[string]map[id.SubjectID]int
	// anonymized[table][subject] = rows retained with identifying fields scrubbed
	anonymized map[string]map[id.SubjectID]int
}

// NewInMemoryPrimary constructs an empty in-memory primary store.
func NewInMemoryPrimary() *InMemoryPrimaryStore {
	return &InMemoryPrimaryStore{
		raw:        make(map[string]map[id.SubjectID]int),
		anonymized: make(map[string]map[id.SubjectID]int),
	}
}

// Seed inserts n raw rows for the subject in the given table.
func (s *InMemoryPrimaryStore) Seed(table string, subjectID id.SubjectID, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raw[table] == nil {
		s.raw[table] = make(map[id.SubjectID]int)
	}
	s.raw[table][subjectID] += n
}

func (s *InMemoryPrimaryStore) CountBySubject(_ context.Context, table string, subjectID id.SubjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.raw[table][subjectID], nil
}

// DeleteBySubject removes the subject's rows. Deleting an already-absent
// record is a no-op success with zero rows affected.
func (s *InMemoryPrimaryStore) DeleteBySubject(_ context.Context, table string, subjectID id.SubjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.raw[table][subjectID]
	if count > 0 {
		delete(s.raw[table], subjectID)
	}
	return count, nil
}

// AnonymizeBySubject scrubs identifying fields while retaining row counts.
func (s *InMemoryPrimaryStore) AnonymizeBySubject(_ context.Context, table string, subjectID id.SubjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := s.raw[table][subjectID]
	if count > 0 {
		delete(s.raw[table], subjectID)
		if s.anonymized[table] == nil {
			s.anonymized[table] = make(map[id.SubjectID]int)
		}
		s.anonymized[table][subjectID] += count
	}
	return count, nil
}

// AnonymizedCount reports retained-but-scrubbed rows, for test assertions.
func (s *InMemoryPrimaryStore) AnonymizedCount(table string, subjectID id.SubjectID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anonymized[table][subjectID]
}
