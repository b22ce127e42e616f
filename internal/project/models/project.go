// Package models holds the project aggregate: an API consumer that submits
// verifications and receives webhooks.
package models

import (
	"strings"
	"time"

	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
)

const maxNameLength = 128

// Project owns verifications. Keys and secrets are stored hashed or as issued
// and are never returned by queries.
//
// Invariants:
//   - Name is non-empty and at most 128 characters
//   - KeyPrefix identifies exactly one project
//   - an inactive project authenticates no requests
type Project struct {
	ID            id.ProjectID
	Name          string
	KeyPrefix     string
	KeyHash       string
	WebhookURL    string
	WebhookSecret string
	Active        bool
	CreatedAt     time.Time
}

// NewProject validates and builds an active project.
func NewProject(projectID id.ProjectID, name, keyPrefix, keyHash string, now time.Time) (*Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "project name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "project name must be 128 characters or less")
	}
	if keyPrefix == "" || keyHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "api key is required")
	}
	return &Project{
		ID:        projectID,
		Name:      name,
		KeyPrefix: keyPrefix,
		KeyHash:   keyHash,
		Active:    true,
		CreatedAt: now,
	}, nil
}

// SetWebhook configures the endpoint. Both values are required together.
func (p *Project) SetWebhook(url, secret string) error {
	url, secret = strings.TrimSpace(url), strings.TrimSpace(secret)
	if (url == "") != (secret == "") {
		return dErrors.New(dErrors.CodeValidation, "webhook url and secret must be set together")
	}
	if url != "" && !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return dErrors.New(dErrors.CodeValidation, "webhook url must be http(s)")
	}
	p.WebhookURL, p.WebhookSecret = url, secret
	return nil
}

func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
