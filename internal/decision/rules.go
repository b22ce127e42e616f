package decision

import (
	"kycverify/internal/evidence"
	"kycverify/internal/fraud"
)

// Rejection reasons. Internal failures always surface the generic reason.
const (
	ReasonNoFace           = "no face detected"
	ReasonMultipleFaces    = "multiple faces detected"
	ReasonFaceMismatch     = "face mismatch"
	ReasonHighFraudRisk    = "high fraud risk"
	ReasonProcessingFailed = "verification processing failed"
)

// ReviewBelowSimilarity sends low-confidence matches to a human even when fraud risk is LOW.
const ReviewBelowSimilarity = 90.0

// Input is everything the decision needs once evidence is complete.
type Input struct {
	FaceCount  int
	Comparison *evidence.FaceComparison
	RiskLevel  fraud.RiskLevel
}

// Outcome is the terminal decision for one verification.
type Outcome struct {
	Status          Status
	RejectionReason string
}

// Evaluate applies the rule chain. The first matching rule wins. A missing
// face comparison counts as a mismatch.
func Evaluate(in Input) Outcome {
	switch {
	case in.FaceCount == 0:
		return reject(ReasonNoFace)
	case in.FaceCount > 1:
		return reject(ReasonMultipleFaces)
	case in.Comparison == nil || !in.Comparison.IsMatch:
		return reject(ReasonFaceMismatch)
	case in.RiskLevel == fraud.RiskHigh:
		return reject(ReasonHighFraudRisk)
	case in.RiskLevel == fraud.RiskMedium:
		return Outcome{Status: StatusManualReview}
	case in.Comparison.Similarity < ReviewBelowSimilarity:
		return Outcome{Status: StatusManualReview}
	}
	return Outcome{Status: StatusApproved}
}

// Failure is the fail-closed outcome for any internal error during processing.
func Failure() Outcome {
	return reject(ReasonProcessingFailed)
}

func reject(reason string) Outcome {
	return Outcome{Status: StatusRejected, RejectionReason: reason}
}
