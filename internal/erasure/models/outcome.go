package models

import "fmt"

// StepStatus tags the outcome of one orchestrator step.
type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepOutcome is the tagged result of a single system-level deletion or
// anonymization step. Consumers switch on Status exhaustively instead of
// probing optional fields.
type StepOutcome struct {
	Status          StepStatus
	RecordsAffected int
	// Reason explains a skip (e.g. system not linked to the subject).
	Reason string
	Err    error
}

// Success builds a successful outcome. Deleting an already-absent record is
// a success with zero records affected, never an error.
func Success(recordsAffected int) StepOutcome {
	return StepOutcome{Status: StepSuccess, RecordsAffected: recordsAffected}
}

// Skipped builds an outcome for a step that had nothing to do.
func Skipped(reason string) StepOutcome {
	return StepOutcome{Status: StepSkipped, Reason: reason}
}

// Failed builds an outcome carrying the step error.
func Failed(err error) StepOutcome {
	return StepOutcome{Status: StepFailed, Err: err}
}

// Succeeded reports whether the step left the system clean: both genuine
// successes and skips count, only failures do not.
func (o StepOutcome) Succeeded() bool {
	return o.Status != StepFailed
}

// ErrorMessage renders the step error for audit entries, empty on success.
func (o StepOutcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// DeletionResult reports the orchestrator's cascade over all systems.
// Partial failure still names exactly which systems succeeded so a retry
// can skip already-clean work.
type DeletionResult struct {
	RequestID string
	SubjectID string
	Outcomes  map[SystemType]StepOutcome
}

// Succeeded reports whether every system step completed cleanly.
func (r *DeletionResult) Succeeded() bool {
	for _, outcome := range r.Outcomes {
		if !outcome.Succeeded() {
			return false
		}
	}
	return true
}

// SucceededSystems lists the systems whose steps completed cleanly.
func (r *DeletionResult) SucceededSystems() []SystemType {
	var systems []SystemType
	for _, sys := range AllSystems() {
		if outcome, ok := r.Outcomes[sys]; ok && outcome.Succeeded() {
			systems = append(systems, sys)
		}
	}
	return systems
}

// FirstError returns a representative failure for the request's LastError
// field, nil when the cascade succeeded.
func (r *DeletionResult) FirstError() error {
	for _, sys := range AllSystems() {
		if outcome, ok := r.Outcomes[sys]; ok && outcome.Status == StepFailed {
			return fmt.Errorf("%s: %w", sys, outcome.Err)
		}
	}
	return nil
}
