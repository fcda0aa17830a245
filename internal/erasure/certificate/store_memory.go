package certificate

import (
	"context"
	"sync"

	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
)

// InMemoryStore is the development and test implementation of Store.
type InMemoryStore struct {
	mu        sync.RWMutex
	byID      map[id.CertificateID]*models.DeletionCertificate
	byRequest map[id.RequestID]id.CertificateID
}

// NewInMemory constructs an empty in-memory certificate store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byID:      make(map[id.CertificateID]*models.DeletionCertificate),
		byRequest: make(map[id.RequestID]id.CertificateID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, cert *models.DeletionCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byRequest[cert.RequestID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byID[cert.ID]; exists {
		return sentinel.ErrConflict
	}

	copied := *cert
	s.byID[cert.ID] = &copied
	s.byRequest[cert.RequestID] = cert.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, certID id.CertificateID) (*models.DeletionCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cert, ok := s.byID[certID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *cert
	return &copied, nil
}

func (s *InMemoryStore) FindByRequest(_ context.Context, requestID id.RequestID) (*models.DeletionCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	certID, ok := s.byRequest[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.byID[certID]
	return &copied, nil
}
