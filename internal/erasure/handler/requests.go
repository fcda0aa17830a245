package handler

import (
	"lethe/internal/erasure/engine"
	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
)

// createRequestBody is the intake payload.
type createRequestBody struct {
	SubjectID       string `json:"subject_id"`
	InitiatedByUser bool   `json:"initiated_by_user"`
	AdminActorID    string `json:"admin_actor_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
	Priority        string `json:"priority,omitempty"`
}

func (b createRequestBody) toParams() (engine.CreateRequestParams, error) {
	subjectID, err := id.ParseSubjectID(b.SubjectID)
	if err != nil {
		return engine.CreateRequestParams{}, err
	}
	params := engine.CreateRequestParams{
		SubjectID:       subjectID,
		InitiatedByUser: b.InitiatedByUser,
		Reason:          b.Reason,
		Priority:        models.Priority(b.Priority),
	}
	if b.AdminActorID != "" {
		actorID, err := id.ParseActorID(b.AdminActorID)
		if err != nil {
			return engine.CreateRequestParams{}, err
		}
		params.AdminActorID = &actorID
	}
	return params, nil
}

// parseFilter builds a RequestFilter from query parameters.
func parseFilter(status, priority, overdue string) (*models.RequestFilter, error) {
	filter := &models.RequestFilter{}
	if status != "" {
		s := models.Status(status)
		if !s.IsValid() {
			return nil, domainerr.New(domainerr.CodeInvalidInput, "unknown status filter")
		}
		filter.Status = &s
	}
	if priority != "" {
		p := models.Priority(priority)
		if !p.IsValid() {
			return nil, domainerr.New(domainerr.CodeInvalidInput, "unknown priority filter")
		}
		filter.Priority = &p
	}
	filter.OverdueOnly = overdue == "true"
	return filter, nil
}
