package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kycverify/internal/decision"
	"kycverify/internal/evidence"
	"kycverify/internal/fraud"
	"kycverify/internal/liveness"
	"kycverify/internal/verification/models"
	"kycverify/internal/webhook"
	id "kycverify/pkg/domain"
	audit "kycverify/pkg/platform/audit"
)

// Process runs the detached pipeline for one verification. Every path ends
// in a terminal state: internal failures become the generic rejection.
// A verification that is already terminal is left untouched.
func (s *Service) Process(ctx context.Context, vid id.VerificationID, uploads Uploads) {
	ctx, span := s.tracer.Start(ctx, "verification.process")
	span.SetAttributes(attribute.String("verification.id", vid.String()))
	defer span.End()

	v, err := s.store.FindByID(ctx, vid)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.ErrorContext(ctx, "verification not loaded for processing",
			"verification_id", vid.String(),
			"error", err,
		)
		return
	}
	if v.IsTerminal() {
		s.logger.InfoContext(ctx, "verification already decided",
			"verification_id", vid.String(),
			"status", v.Status,
		)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			span.SetStatus(codes.Error, "panic")
			s.fail(ctx, v, fmt.Errorf("panic: %v", r))
		}
	}()

	result, err := s.evaluate(ctx, v, uploads)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.fail(ctx, v, err)
		return
	}
	span.SetAttributes(attribute.String("verification.status", result.Outcome.Status.String()))
	s.finish(ctx, v, result)
}

func (s *Service) evaluate(ctx context.Context, v *models.Verification, uploads Uploads) (models.Result, error) {
	imgs, err := s.storeUploads(ctx, v.ID, uploads)
	if err != nil {
		return models.Result{}, err
	}
	if err := s.store.SetDocuments(ctx, v.ID, imgs.documents()); err != nil {
		return models.Result{}, fmt.Errorf("record documents: %w", err)
	}
	s.appendEvent(ctx, v.ID, models.EventDocumentUploaded, "")

	bundle, err := s.gather(ctx, imgs)
	if err != nil {
		return models.Result{}, err
	}
	s.appendEvent(ctx, v.ID, models.EventEvidenceGathered, "")

	canonical := s.normalizer.Normalize(ctx, bundle.Items())
	identity := models.Identity{
		FirstName:      canonical.FirstName,
		LastName:       canonical.LastName,
		DateOfBirth:    canonical.DateOfBirth,
		DocumentNumber: canonical.DocumentNumber,
		Nationality:    canonical.Nationality,
	}

	var livenessScore *int
	if face := bundle.PrimaryFace(); face != nil {
		score := liveness.Score(face)
		livenessScore = &score
	}
	var faceMatch *float64
	if bundle.Comparison != nil {
		similarity := bundle.Comparison.Similarity
		faceMatch = &similarity
	}

	assessment := s.assessor.Assess(ctx, s.signals(v, identity, faceMatch, livenessScore))
	outcome := decision.Evaluate(decision.Input{
		FaceCount:  bundle.FaceCount(),
		Comparison: bundle.Comparison,
		RiskLevel:  assessment.RiskLevel,
	})

	return models.Result{
		Outcome:        outcome,
		Identity:       identity,
		FaceMatchScore: faceMatch,
		LivenessScore:  livenessScore,
		Fraud:          &assessment,
		CompletedAt:    s.now(),
	}, nil
}

// signals prefers what the document says and falls back to caller hints.
func (s *Service) signals(v *models.Verification, identity models.Identity, faceMatch *float64, livenessScore *int) fraud.Signals {
	return fraud.Signals{
		VerificationID: v.ID.String(),
		FaceMatchScore: faceMatch,
		LivenessScore:  livenessScore,
		IPAddress:      v.Client.IPAddress,
		Email:          v.Hints.Email,
		DocumentNumber: identity.DocumentNumber,
		FirstName:      firstNonEmpty(identity.FirstName, v.Hints.FirstName),
		LastName:       firstNonEmpty(identity.LastName, v.Hints.LastName),
		DateOfBirth:    identity.DateOfBirth,
	}
}

// fail records the generic rejection. The cause is logged, never exposed.
func (s *Service) fail(ctx context.Context, v *models.Verification, cause error) {
	s.logger.ErrorContext(ctx, "verification processing failed",
		"verification_id", v.ID.String(),
		"project_id", v.ProjectID.String(),
		"error_category", evidence.CategoryOf(cause),
		"error", cause,
	)
	s.finish(ctx, v, models.Result{
		Outcome:     decision.Failure(),
		CompletedAt: s.now(),
	})
}

// finish performs the single terminal transition. Side effects run only for
// the caller that actually moved the record.
func (s *Service) finish(ctx context.Context, v *models.Verification, result models.Result) {
	changed, err := s.store.Complete(ctx, v.ID, result)
	if err != nil {
		s.logger.ErrorContext(ctx, "terminal transition not persisted",
			"verification_id", v.ID.String(),
			"error", err,
		)
		return
	}
	if !changed {
		s.logger.InfoContext(ctx, "verification already decided, result discarded",
			"verification_id", v.ID.String(),
			"status", result.Outcome.Status,
		)
		return
	}

	failed := result.Fraud == nil
	status := result.Outcome.Status
	if failed {
		s.appendEvent(ctx, v.ID, models.EventFailed, result.Outcome.RejectionReason)
	} else {
		s.appendEvent(ctx, v.ID, models.EventDecisionRecorded, status.String())
	}

	s.decisionMetrics.IncrementOutcome(status.String())
	s.decisionMetrics.ObservePipeline(result.CompletedAt.Sub(v.CreatedAt))
	s.logger.InfoContext(ctx, "verification decided",
		"verification_id", v.ID.String(),
		"project_id", v.ProjectID.String(),
		"status", status,
		"duration_ms", result.CompletedAt.Sub(v.CreatedAt).Milliseconds(),
	)

	event := audit.Event{
		Action:         audit.ActionVerificationDecided,
		ProjectID:      v.ProjectID,
		VerificationID: v.ID,
		Decision:       status.String(),
		Reason:         result.Outcome.RejectionReason,
	}
	if failed {
		event.Action = audit.ActionVerificationFailed
	} else {
		event.Details = map[string]string{
			"fraud_score":      fmt.Sprint(result.Fraud.Score),
			"fraud_risk_level": string(result.Fraud.RiskLevel),
			"fraud_source":     string(result.Fraud.Source),
		}
	}
	s.emit(ctx, event)

	s.notify(ctx, v, result, failed)
}

func (s *Service) notify(ctx context.Context, v *models.Verification, result models.Result, failed bool) {
	if s.projects == nil || s.notifier == nil {
		return
	}
	target, err := s.projects.WebhookTarget(ctx, v.ProjectID)
	if err != nil {
		s.logger.WarnContext(ctx, "webhook target lookup failed",
			"project_id", v.ProjectID.String(),
			"error", err,
		)
		return
	}

	status := result.Outcome.Status.String()
	var payload webhook.Payload
	if failed {
		payload = webhook.Failed(v.ID.String(), status, result.Outcome.RejectionReason, s.now())
	} else {
		data := webhook.Data{
			FaceMatchScore: result.FaceMatchScore,
			FraudScore:     &result.Fraud.Score,
			FraudRiskLevel: string(result.Fraud.RiskLevel),
		}
		if v.ExternalID != "" {
			data.ExternalID = &v.ExternalID
		}
		payload = webhook.Completed(v.ID.String(), status, data, s.now())
	}

	if delivered := s.notifier.Notify(ctx, target, payload); !delivered && target.Enabled() {
		s.emit(ctx, audit.Event{
			Action:         audit.ActionWebhookDeliveryFailed,
			ProjectID:      v.ProjectID,
			VerificationID: v.ID,
			Reason:         payload.Event,
		})
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
