// Package service authenticates projects and resolves their webhook targets.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kycverify/internal/project/models"
	"kycverify/internal/project/secrets"
	"kycverify/internal/webhook"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/platform/sentinel"
)

type Store interface {
	Create(ctx context.Context, p *models.Project) error
	FindByID(ctx context.Context, projectID id.ProjectID) (*models.Project, error)
	FindByKeyPrefix(ctx context.Context, prefix string) (*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(store Store, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Created carries the plaintext credentials of a new project. They are not
// recoverable afterwards.
type Created struct {
	Project       *models.Project
	APIKey        string
	WebhookSecret string
}

// CreateCommand describes a new project. An empty APIKey or WebhookSecret is
// generated; WebhookURL is optional.
type CreateCommand struct {
	Name          string
	APIKey        string
	WebhookURL    string
	WebhookSecret string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Created, error) {
	key := cmd.APIKey
	if key == "" {
		generated, err := secrets.GenerateAPIKey()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate api key")
		}
		key = generated
	}
	prefix := secrets.LookupPrefix(key)
	if prefix == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "api key must start with "+secrets.APIKeyPrefix)
	}
	hash, err := secrets.Hash(key)
	if err != nil {
		return nil, err
	}

	p, err := models.NewProject(id.NewProjectID(), cmd.Name, prefix, hash, s.now().UTC())
	if err != nil {
		return nil, err
	}
	secret := cmd.WebhookSecret
	if cmd.WebhookURL != "" && secret == "" {
		if secret, err = secrets.GenerateWebhookSecret(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate webhook secret")
		}
	}
	if err := p.SetWebhook(cmd.WebhookURL, secret); err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "api key already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create project")
	}
	s.logger.InfoContext(ctx, "project created",
		"project_id", p.ID.String(),
		"webhook_enabled", p.WebhookURL != "",
	)
	return &Created{Project: p, APIKey: key, WebhookSecret: secret}, nil
}

// Authenticate resolves a presented API key to its active project. Every
// failure is reported as the same unauthorized error.
func (s *Service) Authenticate(ctx context.Context, apiKey string) (id.ProjectID, error) {
	unauthorized := dErrors.New(dErrors.CodeUnauthorized, "invalid API key")

	prefix := secrets.LookupPrefix(apiKey)
	if prefix == "" {
		return id.ProjectID{}, unauthorized
	}
	p, err := s.store.FindByKeyPrefix(ctx, prefix)
	if errors.Is(err, sentinel.ErrNotFound) {
		return id.ProjectID{}, unauthorized
	}
	if err != nil {
		return id.ProjectID{}, dErrors.Wrap(err, dErrors.CodeInternal, "load project")
	}
	if !p.Active {
		return id.ProjectID{}, unauthorized
	}
	if err := secrets.Verify(apiKey, p.KeyHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			return id.ProjectID{}, unauthorized
		}
		return id.ProjectID{}, dErrors.Wrap(err, dErrors.CodeInternal, "verify api key")
	}
	return p.ID, nil
}

// WebhookTarget returns the project's endpoint. A project without one yields
// a disabled target.
func (s *Service) WebhookTarget(ctx context.Context, projectID id.ProjectID) (webhook.Target, error) {
	p, err := s.store.FindByID(ctx, projectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return webhook.Target{}, nil
	}
	if err != nil {
		return webhook.Target{}, dErrors.Wrap(err, dErrors.CodeInternal, "load project")
	}
	return webhook.Target{URL: p.WebhookURL, Secret: p.WebhookSecret}, nil
}

// Deactivate stops a project from authenticating.
func (s *Service) Deactivate(ctx context.Context, projectID id.ProjectID) error {
	p, err := s.store.FindByID(ctx, projectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "project not found")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load project")
	}
	if !p.Active {
		return nil
	}
	p.Active = false
	if err := s.store.Update(ctx, p); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "deactivate project")
	}
	s.logger.InfoContext(ctx, "project deactivated", "project_id", projectID.String())
	return nil
}

// Bootstrap registers the configured project unless its key already exists.
// An empty key is a no-op.
func (s *Service) Bootstrap(ctx context.Context, cmd CreateCommand) (id.ProjectID, error) {
	if cmd.APIKey == "" {
		return id.ProjectID{}, nil
	}
	if prefix := secrets.LookupPrefix(cmd.APIKey); prefix != "" {
		if existing, err := s.store.FindByKeyPrefix(ctx, prefix); err == nil {
			return existing.ID, nil
		}
	}
	created, err := s.Create(ctx, cmd)
	if err != nil {
		return id.ProjectID{}, err
	}
	return created.Project.ID, nil
}
