// Package systems adapts every non-primary data holder (cache, logs,
// backups, the external payment processor) to one capability interface so
// the orchestrator and verifier iterate them polymorphically instead of
// importing each client ad hoc.
package systems

import (
	"context"
	"fmt"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// SecondarySystem is the narrow contract the engine requires per system.
// Erase is the write path (each system decides whether that means key
// deletion, in-place anonymization, or an external API call) and must be
// idempotent: erasing an already-absent subject succeeds with count zero.
// ExistsForSubject and ResidualCount are the independent read-only checks
// the verifier uses; they must not trust any state cached by Erase.
type SecondarySystem interface {
	Type() models.SystemType
	Erase(ctx context.Context, subjectID id.SubjectID) (int, error)
	ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error)
	ResidualCount(ctx context.Context, subjectID id.SubjectID) (int, error)
}

// KeyPattern is the cache key namespace convention for a subject. Every
// service on the platform writes subject-scoped cache entries under it.
func KeyPattern(subjectID id.SubjectID) string {
	return fmt.Sprintf("subject:%s:*", subjectID)
}
