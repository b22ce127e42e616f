package models

import (
	"time"

	"kycverify/internal/decision"
	"kycverify/internal/fraud"
	platformstrings "kycverify/pkg/platform/strings"
)

// Result is everything persisted by the single terminal transition.
type Result struct {
	Outcome        decision.Outcome
	Identity       Identity
	FaceMatchScore *float64
	LivenessScore  *int
	// Fraud is nil when processing failed before scoring.
	Fraud       *fraud.Assessment
	CompletedAt time.Time
}

// Reasons lists the explanations stored on the verification: fraud reasons
// followed by the rejection reason when it adds something.
func (r Result) Reasons() []string {
	var out []string
	if r.Fraud != nil {
		out = append(out, r.Fraud.Reasons...)
	}
	out = append(out, r.Outcome.RejectionReason)
	out = platformstrings.DedupeAndTrim(out)
	if out == nil {
		out = []string{}
	}
	return out
}

// Apply copies the result onto v. Callers must have checked the transition.
func (r Result) Apply(v *Verification) {
	v.Status = r.Outcome.Status
	v.RejectionReason = r.Outcome.RejectionReason
	v.Identity = r.Identity
	v.FaceMatchScore = r.FaceMatchScore
	v.LivenessScore = r.LivenessScore
	if r.Fraud != nil {
		score := r.Fraud.Score
		v.FraudScore = &score
		v.FraudRiskLevel = r.Fraud.RiskLevel
	}
	v.Reasons = r.Reasons()
	at := r.CompletedAt
	v.CompletedAt = &at
}
