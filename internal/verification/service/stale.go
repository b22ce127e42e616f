package service

import (
	"context"
	"errors"
	"time"

	"kycverify/internal/decision"
	"kycverify/internal/verification/models"
	audit "kycverify/pkg/platform/audit"
)

// FailStale rejects verifications that have been PROCESSING for longer than
// olderThan, which happens when the process died mid-pipeline. It returns how
// many records it moved.
func (s *Service) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, errors.New("stale threshold must be positive")
	}
	cutoff := s.now().Add(-olderThan)

	var failed int
	for {
		ids, err := s.store.ListStale(ctx, cutoff, staleBatchSize)
		if err != nil {
			return failed, err
		}
		for _, vid := range ids {
			changed, err := s.store.Complete(ctx, vid, models.Result{
				Outcome:     decision.Failure(),
				CompletedAt: s.now(),
			})
			if err != nil {
				return failed, err
			}
			if !changed {
				continue
			}
			failed++
			s.appendEvent(ctx, vid, models.EventFailed, "processing timed out")
			s.decisionMetrics.IncrementOutcome(decision.StatusRejected.String())

			v, err := s.store.FindByID(ctx, vid)
			if err != nil {
				s.logger.WarnContext(ctx, "stale verification rejected but not reloaded; audit and webhook skipped",
					"verification_id", vid.String(),
					"error", err,
				)
				continue
			}
			s.emit(ctx, audit.Event{
				Action:         audit.ActionVerificationStale,
				ProjectID:      v.ProjectID,
				VerificationID: vid,
				Decision:       decision.StatusRejected.String(),
				Reason:         decision.ReasonProcessingFailed,
			})
			s.notify(ctx, v, models.Result{Outcome: decision.Failure()}, true)
		}
		if len(ids) < staleBatchSize {
			break
		}
	}

	s.metrics.AddStaleFailed(failed)
	if failed > 0 {
		s.logger.WarnContext(ctx, "failed stale verifications",
			"count", failed,
			"cutoff", cutoff,
		)
	}
	return failed, nil
}
