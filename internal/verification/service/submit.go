package service

import (
	"context"
	"fmt"
	"strings"

	"kycverify/internal/decision"
	"kycverify/internal/enrichment"
	"kycverify/internal/verification/models"
	"kycverify/internal/verification/worker"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/email"
	audit "kycverify/pkg/platform/audit"
	"kycverify/pkg/requestcontext"
)

// Upload is one submitted image.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u *Upload) empty() bool { return u == nil || len(u.Data) == 0 }

// Uploads are the images of one submission. Back is optional.
type Uploads struct {
	Front  *Upload
	Back   *Upload
	Selfie *Upload
}

type SubmitCommand struct {
	ProjectID  id.ProjectID
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
	Uploads    Uploads
	IPAddress  string
	UserAgent  string
}

type SubmitResult struct {
	ID     id.VerificationID
	Status decision.Status
	// Duplicate is set when the submission collapsed into one already processing.
	Duplicate bool
}

// Validate checks the command shape before anything is stored.
func (c *SubmitCommand) Validate() error {
	if c.ProjectID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "project required")
	}
	if c.Uploads.Front.empty() || c.Uploads.Selfie.empty() {
		return dErrors.New(dErrors.CodeValidation, "Document front and selfie are required")
	}
	if c.Email != "" {
		normalized, err := email.Normalize(c.Email)
		if err != nil {
			return dErrors.New(dErrors.CodeValidation, "invalid email")
		}
		c.Email = normalized
	}
	return nil
}

func (c *SubmitCommand) normalize() {
	c.ExternalID = strings.TrimSpace(c.ExternalID)
	c.FirstName = strings.TrimSpace(c.FirstName)
	c.LastName = strings.TrimSpace(c.LastName)
	c.Email = strings.TrimSpace(c.Email)
}

// Submit creates a PROCESSING verification, or returns the one this project
// already has processing inside the dedup window, and queues the pipeline.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*SubmitResult, error) {
	cmd.normalize()
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	v := &models.Verification{
		ID:         id.NewVerificationID(),
		ProjectID:  cmd.ProjectID,
		ExternalID: cmd.ExternalID,
		Status:     decision.StatusProcessing,
		Hints: models.Hints{
			FirstName: cmd.FirstName,
			LastName:  cmd.LastName,
			Email:     cmd.Email,
		},
		Client: models.ClientInfo{
			IPAddress:  cmd.IPAddress,
			UserAgent:  cmd.UserAgent,
			DeviceInfo: enrichment.ParseUserAgent(cmd.UserAgent),
		},
		SessionEvents: []models.SessionEvent{
			models.NewSessionEvent(models.EventStarted, "", now),
		},
		CreatedAt: now,
	}

	stored, created, err := s.dedup.Create(ctx, v)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create verification")
	}
	s.metrics.IncrementSubmission()
	if !created {
		s.logger.InfoContext(ctx, "submission collapsed into processing verification",
			"verification_id", stored.ID.String(),
			"project_id", cmd.ProjectID.String(),
		)
		return &SubmitResult{ID: stored.ID, Status: stored.Status, Duplicate: true}, nil
	}

	s.emit(ctx, audit.Event{
		Action:         audit.ActionVerificationCreated,
		ProjectID:      stored.ProjectID,
		VerificationID: stored.ID,
		RequestID:      requestcontext.RequestID(ctx),
	})
	s.logger.InfoContext(ctx, "verification created",
		"verification_id", stored.ID.String(),
		"project_id", cmd.ProjectID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)

	// The pipeline owns the record from here on and must not inherit the
	// request deadline.
	jobCtx := context.WithoutCancel(ctx)
	job := worker.Job{
		Name: "process",
		Key:  stored.ID.String(),
		Run: func(ctx context.Context) error {
			s.Process(ctx, stored.ID, cmd.Uploads)
			return nil
		},
	}
	if err := s.queue.Submit(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "pipeline enqueue failed",
			"verification_id", stored.ID.String(),
			"error", err,
		)
		s.fail(jobCtx, stored, fmt.Errorf("enqueue: %w", err))
		return &SubmitResult{ID: stored.ID, Status: decision.StatusRejected}, nil
	}

	s.enqueueGeolocation(ctx, stored.ID, cmd.IPAddress)
	return &SubmitResult{ID: stored.ID, Status: stored.Status}, nil
}
