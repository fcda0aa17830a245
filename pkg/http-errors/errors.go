// Package httpErrors maps domain error codes onto HTTP statuses and a
// stable JSON error body, so handlers never invent status codes ad hoc.
package httpErrors

import (
	"errors"
	"net/http"

	domainerr "lethe/pkg/domain-errors"
	"lethe/pkg/platform/httputil"
)

// ErrorResponse is the wire shape of every error the API returns.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToHTTPStatus maps a domain error code to its HTTP status.
func ToHTTPStatus(code domainerr.Code) int {
	switch code {
	case domainerr.CodeInvalidInput, domainerr.CodeBadRequest, domainerr.CodeValidation:
		return http.StatusBadRequest
	case domainerr.CodeNotFound:
		return http.StatusNotFound
	case domainerr.CodeConflict, domainerr.CodeStale:
		return http.StatusConflict
	case domainerr.CodeTimeout, domainerr.CodeTransientSystem:
		return http.StatusGatewayTimeout
	case domainerr.CodeInvariantViolation, domainerr.CodeIrrecoverable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders any error as the standard JSON body. Non-domain errors
// surface as opaque internal errors so infrastructure detail never leaks.
func WriteError(w http.ResponseWriter, err error) {
	var domainError *domainerr.Error
	if errors.As(err, &domainError) {
		httputil.WriteJSON(w, ToHTTPStatus(domainError.Code), ErrorResponse{
			Code:    string(domainError.Code),
			Message: domainError.Message,
		})
		return
	}
	httputil.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Code:    string(domainerr.CodeInternal),
		Message: "internal error",
	})
}
