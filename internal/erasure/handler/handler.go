// Package handler exposes the deletion lifecycle over HTTP. It is a thin
// translation layer: parse and validate input, call the engine, render the
// result. All policy lives in the engine and below.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"lethe/internal/erasure/engine"
	id "lethe/pkg/domain"
	domainerr "lethe/pkg/domain-errors"
	httpErrors "lethe/pkg/http-errors"
	"lethe/pkg/platform/httputil"
)

const defaultReportDays = 30

// Handler serves the deletion lifecycle API.
type Handler struct {
	engine       *engine.Engine
	deadlineLead time.Duration
}

// New constructs a Handler. deadlineLead is the default window used by the
// deadline-compliance endpoint.
func New(eng *engine.Engine, deadlineLead time.Duration) *Handler {
	return &Handler{engine: eng, deadlineLead: deadlineLead}
}

// Register mounts the API routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/deletion-requests", func(r chi.Router) {
			r.Post("/", h.handleCreate)
			r.Get("/", h.handleList)
			r.Post("/run", h.handleRun)
			r.Route("/{requestID}", func(r chi.Router) {
				r.Get("/", h.handleGet)
				r.Delete("/", h.handleCancel)
				r.Get("/certificate", h.handleCertificate)
				r.Get("/audit-trail", h.handleAuditTrail)
			})
		})
		r.Get("/subjects/{subjectID}/verification", h.handleVerify)
		r.Get("/reports/compliance", h.handleComplianceReport)
		r.Get("/reports/operational", h.handleOperationalMetrics)
		r.Get("/compliance/deadlines", h.handleDeadlineCompliance)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpErrors.WriteError(w, domainerr.New(domainerr.CodeBadRequest, "malformed request body"))
		return
	}
	params, err := body.toParams()
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	request, err := h.engine.CreateRequest(r.Context(), params)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRequestResponse(request))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter, err := parseFilter(query.Get("status"), query.Get("priority"), query.Get("overdue"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	requests, err := h.engine.ListRequests(r.Context(), filter)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponses(requests))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	request, err := h.engine.GetStatus(r.Context(), requestID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	if err := h.engine.CancelRequest(r.Context(), requestID); err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRun triggers one scheduler pass immediately instead of waiting for
// the next tick. Operators use it after fixing a downstream outage.
func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.ExecuteOverdue(r.Context())
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleCertificate(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	cert, err := h.engine.GetCertificate(r.Context(), requestID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	entries, err := h.engine.AuditTrail(r.Context(), requestID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toAuditEntryResponses(entries))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	subjectID, err := id.ParseSubjectID(chi.URLParam(r, "subjectID"))
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	result, err := h.engine.Verify(r.Context(), subjectID)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	days := defaultReportDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpErrors.WriteError(w, domainerr.New(domainerr.CodeInvalidInput, "days must be an integer"))
			return
		}
		days = parsed
	}
	report, err := h.engine.GenerateComplianceReport(r.Context(), days)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleOperationalMetrics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.engine.GetMetrics(r.Context())
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleDeadlineCompliance(w http.ResponseWriter, r *http.Request) {
	lead := h.deadlineLead
	if raw := r.URL.Query().Get("lead"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			httpErrors.WriteError(w, domainerr.New(domainerr.CodeInvalidInput, "lead must be a positive duration"))
			return
		}
		lead = parsed
	}
	posture, err := h.engine.CheckDeadlineCompliance(r.Context(), lead)
	if err != nil {
		httpErrors.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, posture)
}
