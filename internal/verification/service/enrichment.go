package service

import (
	"context"
	"errors"
	"net/netip"

	"kycverify/internal/verification/models"
	"kycverify/internal/verification/worker"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/platform/sentinel"
)

// ApplyEnrichment patches device and geolocation data. Decision fields are
// never touched, so it is safe before or after the terminal transition.
func (s *Service) ApplyEnrichment(ctx context.Context, vid id.VerificationID, patch models.Enrichment) error {
	if patch.Empty() {
		return nil
	}
	if err := s.store.PatchEnrichment(ctx, vid, patch); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "Verification not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to enrich verification")
	}
	return nil
}

// enqueueGeolocation looks the client IP up in the background. Local and
// unparsable addresses are skipped.
func (s *Service) enqueueGeolocation(ctx context.Context, vid id.VerificationID, ip string) {
	if s.geo == nil || !routable(ip) {
		return
	}
	job := worker.Job{
		Name: "geolocate",
		Key:  vid.String(),
		Run: func(ctx context.Context) error {
			geo, err := s.geo.Lookup(ctx, ip)
			if err != nil {
				return err
			}
			if geo == nil {
				return nil
			}
			return s.ApplyEnrichment(ctx, vid, models.Enrichment{Geolocation: geo})
		},
	}
	if err := s.queue.Submit(ctx, job); err != nil {
		s.logger.WarnContext(ctx, "geolocation enrichment not queued",
			"verification_id", vid.String(),
			"error", err,
		)
	}
}

func routable(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return !addr.IsLoopback() && !addr.IsPrivate() && !addr.IsUnspecified() && !addr.IsLinkLocalUnicast()
}
