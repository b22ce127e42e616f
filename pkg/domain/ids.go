// Package domain holds typed identifiers shared across modules.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "kycverify/pkg/domain-errors"
)

// VerificationID identifies a single verification attempt.
type VerificationID uuid.UUID

// ProjectID identifies the API consumer (channel) a verification belongs to.
type ProjectID uuid.UUID

func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }
func NewProjectID() ProjectID           { return ProjectID(uuid.New()) }

func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id VerificationID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ProjectID) String() string      { return uuid.UUID(id).String() }
func (id ProjectID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// ParseVerificationID parses a caller-supplied verification id.
func ParseVerificationID(s string) (VerificationID, error) {
	u, err := parseUUID(s, "verification ID")
	return VerificationID(u), err
}

// ParseProjectID parses a project id.
func ParseProjectID(s string) (ProjectID, error) {
	u, err := parseUUID(s, "project ID")
	return ProjectID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}
