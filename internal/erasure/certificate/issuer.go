// Package certificate issues the immutable attestation that closes out a
// deletion request. The pipeline only mints a certificate for a passing
// verification; the non-compliant rendering exists for operator-driven
// remediation reports, where auditors need to see what remains dirty.
package certificate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lethe/internal/erasure/metrics"
	"lethe/internal/erasure/models"
	"lethe/internal/sentinel"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

const defaultIssuer = "lethe-deletion-engine"

// Issuer mints and persists deletion certificates.
type Issuer struct {
	store   Store
	issuer  string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

// WithIssuerName overrides the issuing authority recorded on certificates.
func WithIssuerName(name string) Option {
	return func(i *Issuer) {
		if name != "" {
			i.issuer = name
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// WithClock overrides the time source. Tests use this to pin IssuedAt.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// New constructs an Issuer backed by the given store.
func New(store Store, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, fmt.Errorf("certificate store is required")
	}
	i := &Issuer{
		store:  store,
		issuer: defaultIssuer,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i, nil
}

// Issue mints a certificate binding the request to the verification result
// and persists it. Issuing a second certificate for the same request returns
// CodeConflict: the first attestation is the attestation.
func (i *Issuer) Issue(ctx context.Context, request *models.DeletionRequest, verification *models.VerificationResult) (*models.DeletionCertificate, error) {
	if request == nil || verification == nil {
		return nil, domainerr.New(domainerr.CodeInvalidInput, "request and verification are required")
	}

	cert := &models.DeletionCertificate{
		ID:                   id.NewCertificateID(),
		RequestID:            request.ID,
		SubjectID:            request.SubjectID,
		IsCompleteDeletion:   verification.IsFullyErased,
		ComplianceAttested:   verification.IsCompliant,
		IssuedAt:             i.now(),
		Issuer:               i.issuer,
		VerificationSnapshot: *verification,
	}
	cert.BodyText = renderBody(cert)
	cert.Signature = models.ComputeSignature(cert.ID, cert.SubjectID, verification.VerifiedAt, verification.OverallScore)

	if err := i.store.Create(ctx, cert); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, domainerr.Wrap(err, domainerr.CodeConflict, "certificate already issued for this request")
		}
		return nil, domainerr.Wrap(err, domainerr.CodeInternal, "persist certificate")
	}

	if i.metrics != nil {
		i.metrics.CertificatesIssued.WithLabelValues(fmt.Sprintf("%t", cert.ComplianceAttested)).Inc()
	}
	i.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", cert.ID,
		"request_id", cert.RequestID,
		"compliant", cert.ComplianceAttested,
	)
	return cert, nil
}

// ByID fetches a previously issued certificate.
func (i *Issuer) ByID(ctx context.Context, certID id.CertificateID) (*models.DeletionCertificate, error) {
	return i.store.FindByID(ctx, certID)
}

// ByRequest fetches the certificate issued for a request, if any.
func (i *Issuer) ByRequest(ctx context.Context, requestID id.RequestID) (*models.DeletionCertificate, error) {
	return i.store.FindByRequest(ctx, requestID)
}

// renderBody produces the human-readable attestation text. The compliant and
// non-compliant variants differ deliberately: a non-compliant certificate
// names every failing system so remediation work can start from the
// certificate alone.
func renderBody(cert *models.DeletionCertificate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CERTIFICATE OF DELETION\n\n")
	fmt.Fprintf(&b, "Certificate ID: %s\n", cert.ID)
	fmt.Fprintf(&b, "Request ID:     %s\n", cert.RequestID)
	fmt.Fprintf(&b, "Issued at:      %s\n", cert.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Issued by:      %s\n\n", cert.Issuer)

	snapshot := cert.VerificationSnapshot
	if cert.ComplianceAttested {
		fmt.Fprintf(&b, "This certifies that all personal data associated with the request\n")
		fmt.Fprintf(&b, "above has been erased or irreversibly anonymized across all systems\n")
		fmt.Fprintf(&b, "of record, and that independent verification confirmed erasure with\n")
		fmt.Fprintf(&b, "an overall score of %.1f%%.\n", snapshot.OverallScore)
	} else {
		fmt.Fprintf(&b, "INCOMPLETE — action required.\n\n")
		fmt.Fprintf(&b, "Independent verification found residual data. Overall score: %.1f%%.\n", snapshot.OverallScore)
		fmt.Fprintf(&b, "Systems below their compliance threshold:\n")
		for _, check := range snapshot.FailingSystems() {
			fmt.Fprintf(&b, "  - %s: %s\n", check.SystemName, check.Details)
		}
	}

	fmt.Fprintf(&b, "\nVerified at: %s\n", snapshot.VerifiedAt.UTC().Format(time.RFC3339))
	return b.String()
}
