// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "lethe/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a SubjectID where a RequestID is expected.
type (
	RequestID     uuid.UUID
	CertificateID uuid.UUID
	ActorID       uuid.UUID
)

// SubjectID identifies the data owner whose records are to be erased.
// Subject identifiers come from the upstream identity store and are treated
// as opaque strings so tenants with non-UUID identity schemes still work.
type SubjectID string

// NewRequestID generates a fresh request identifier.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewCertificateID generates a fresh certificate identifier.
func NewCertificateID() CertificateID { return CertificateID(uuid.New()) }

// NewActorID generates a fresh actor identifier.
func NewActorID() ActorID { return ActorID(uuid.New()) }

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseRequestID(s string) (RequestID, error) {
	id, err := parseUUID(s, "request ID")
	return RequestID(id), err
}

func ParseCertificateID(s string) (CertificateID, error) {
	id, err := parseUUID(s, "certificate ID")
	return CertificateID(id), err
}

func ParseActorID(s string) (ActorID, error) {
	id, err := parseUUID(s, "actor ID")
	return ActorID(id), err
}

func ParseSubjectID(s string) (SubjectID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject ID cannot be empty")
	}
	return SubjectID(s), nil
}

// String methods - for logging and debugging.

func (id RequestID) String() string     { return uuid.UUID(id).String() }
func (id CertificateID) String() string { return uuid.UUID(id).String() }
func (id ActorID) String() string       { return uuid.UUID(id).String() }
func (id SubjectID) String() string     { return string(id) }

// IsNil checks - used for service-layer validation.

func (id RequestID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CertificateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ActorID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id SubjectID) IsNil() bool     { return id == "" }

// parseUUID is the shared validation logic for uuid-backed identifiers.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "malformed "+label)
	}
	return id, nil
}
