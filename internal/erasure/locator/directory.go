package locator

import (
	"context"
	"fmt"

	id "lethe/pkg/domain"
)

// Directory adapts the primary store into the subject-existence lookup the
// intake path needs. A subject whose identity row has already been erased or
// anonymized reads as absent.
type Directory struct {
	primary PrimaryStore
}

// NewDirectory constructs a Directory over the primary store.
func NewDirectory(primary PrimaryStore) (*Directory, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	return &Directory{primary: primary}, nil
}

// SubjectExists reports whether the subjects table still holds a raw row for
// the subject.
func (d *Directory) SubjectExists(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	count, err := d.primary.CountBySubject(ctx, "subjects", subjectID)
	if err != nil {
		return false, fmt.Errorf("look up subject: %w", err)
	}
	return count > 0, nil
}
