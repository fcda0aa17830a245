package certificate

import (
	"context"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// Store persists issued certificates. Certificates are write-once: there is
// no update or delete operation by design of the domain, not as a gap.
type Store interface {
	// Create persists a new certificate. It returns sentinel.ErrConflict
	// when a certificate already exists for the same request.
	Create(ctx context.Context, cert *models.DeletionCertificate) error

	// FindByID returns the certificate or sentinel.ErrNotFound.
	FindByID(ctx context.Context, certID id.CertificateID) (*models.DeletionCertificate, error)

	// FindByRequest returns the certificate issued for a request, or
	// sentinel.ErrNotFound when none has been issued yet.
	FindByRequest(ctx context.Context, requestID id.RequestID) (*models.DeletionCertificate, error)
}
