package fraud

import "fmt"

// RiskLevel is the coarse bucket derived from a fraud score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ParseRiskLevel validates a stored or remote risk level.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("invalid risk level: %q", s)
}

// Signals are the normalized inputs to fraud scoring. Nil scores and empty
// strings are missing values.
type Signals struct {
	VerificationID string
	FaceMatchScore *float64
	LivenessScore  *int
	IPAddress      string
	Email          string
	DocumentNumber string
	FirstName      string
	LastName       string
	DateOfBirth    string
}

// Source identifies which scorer produced an assessment.
type Source string

const (
	SourceRules Source = "rules"
	SourceModel Source = "model"
)

// Assessment is the fraud result recorded on a verification.
type Assessment struct {
	Score       int
	RiskLevel   RiskLevel
	Reasons     []string
	Source      Source
	ModelScores map[string]float64
}

func clamp(score int) int {
	return max(0, min(score, 100))
}
