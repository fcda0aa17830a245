// Package locator enumerates every record a subject owns in the primary
// relational store and fixes the order in which the orchestrator may touch
// it: child tables before the parent identity row, audit-bearing tables
// anonymized in place rather than deleted.
package locator

import (
	"context"
	"fmt"

	id "lethe/pkg/domain"
)

// Resource describes one primary-store table holding subject data.
type Resource struct {
	Table string
	// PreserveForAudit marks tables whose rows must survive erasure for
	// legal or statistical integrity; identifying fields are anonymized in
	// place instead of the row being hard-deleted.
	PreserveForAudit bool
}

// Location is one resource together with the subject's current record count.
type Location struct {
	Resource
	RecordCount int
}

// PrimaryStore is the narrow capability set the locator and orchestrator
// need from the relational store. Counts consider only rows still carrying
// the raw subject reference, so anonymized rows read as zero.
type PrimaryStore interface {
	CountBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error)
	DeleteBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error)
	AnonymizeBySubject(ctx context.Context, table string, subjectID id.SubjectID) (int, error)
}

// DefaultPlan is the fixed dependency-ordered deletion plan for the
// platform's schema. Child records come strictly before the subjects
// identity row so referential constraints hold mid-cascade.
func DefaultPlan() []Resource {
	return []Resource{
		{Table: "sessions"},
		{Table: "activity_events"},
		{Table: "user_preferences"},
		{Table: "support_tickets", PreserveForAudit: true},
		{Table: "invoices", PreserveForAudit: true},
		{Table: "subjects"},
	}
}

// Locator walks the deletion plan against the primary store.
type Locator struct {
	primary PrimaryStore
	plan    []Resource
}

// New constructs a Locator. An empty plan falls back to DefaultPlan.
func New(primary PrimaryStore, plan []Resource) (*Locator, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if len(plan) == 0 {
		plan = DefaultPlan()
	}
	return &Locator{primary: primary, plan: plan}, nil
}

// Plan returns the dependency-ordered resource list.
func (l *Locator) Plan() []Resource {
	return l.plan
}

// Locate enumerates the subject's records per resource, in plan order.
func (l *Locator) Locate(ctx context.Context, subjectID id.SubjectID) ([]Location, error) {
	locations := make([]Location, 0, len(l.plan))
	for _, resource := range l.plan {
		count, err := l.primary.CountBySubject(ctx, resource.Table, subjectID)
		if err != nil {
			return nil, fmt.Errorf("count %s records: %w", resource.Table, err)
		}
		locations = append(locations, Location{Resource: resource, RecordCount: count})
	}
	return locations, nil
}

// CountResidual totals the subject's remaining raw references across every
// planned table. The verifier uses it; zero means the primary store is clean.
func (l *Locator) CountResidual(ctx context.Context, subjectID id.SubjectID) (int, error) {
	total := 0
	for _, resource := range l.plan {
		count, err := l.primary.CountBySubject(ctx, resource.Table, subjectID)
		if err != nil {
			return 0, fmt.Errorf("count %s residue: %w", resource.Table, err)
		}
		total += count
	}
	return total, nil
}

// Primary exposes the underlying store for the orchestrator's delete and
// anonymize steps.
func (l *Locator) Primary() PrimaryStore {
	return l.primary
}
