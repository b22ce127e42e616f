package service

import (
	"context"
	"errors"

	"kycverify/internal/verification/models"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/platform/sentinel"
)

// Get returns a verification owned by projectID. Records of other projects
// are reported as not found. Get never mutates state.
func (s *Service) Get(ctx context.Context, projectID id.ProjectID, vid id.VerificationID) (*models.Verification, error) {
	v, err := s.store.FindByID(ctx, vid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "Verification not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load verification")
	}
	if v.ProjectID != projectID {
		return nil, dErrors.New(dErrors.CodeNotFound, "Verification not found")
	}
	return v, nil
}

// List pages through a project's verifications, newest first.
func (s *Service) List(ctx context.Context, projectID id.ProjectID, filter models.ListFilter) (models.Page, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return models.Page{}, dErrors.New(dErrors.CodeValidation, "invalid status filter")
	}
	filter = filter.Normalize()
	page, err := s.store.ListByProject(ctx, projectID, filter)
	if err != nil {
		return models.Page{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list verifications")
	}
	return page, nil
}
