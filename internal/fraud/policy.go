package fraud

// Policy holds the rule weights and lists. The defaults are hand-tuned
// heuristics without a calibration source; deployments may substitute their own.
type Policy struct {
	FaceMatchMissing   int
	FaceMatchBelow60   int
	FaceMatchBelow70   int
	FaceMatchBelow80   int
	FaceMatchBelow90   int
	LivenessMissing    int
	LivenessBelow60    int
	LivenessBelow70    int
	LivenessBelow85    int
	IPPrivate          int
	IPTor              int
	IPMissing          int
	EmailDisposable    int
	EmailSuspiciousTLD int
	EmailMissing       int
	DocumentInvalid    int
	MinDocumentLength  int
	NameMissing        int
	NamePlaceholder    int
	Underage           int
	ImplausibleAge     int
	DOBUnparsable      int

	// MediumAt and HighAt are the inclusive lower bounds of the MEDIUM and HIGH buckets.
	MediumAt int
	HighAt   int

	DisposableDomains []string
	SuspiciousTLDs    []string
	PlaceholderTokens []string
	AnonymizerMarkers []string
}

// DefaultPolicy returns the production rule weights.
func DefaultPolicy() Policy {
	return Policy{
		FaceMatchMissing:   45,
		FaceMatchBelow60:   50,
		FaceMatchBelow70:   40,
		FaceMatchBelow80:   25,
		FaceMatchBelow90:   10,
		LivenessMissing:    20,
		LivenessBelow60:    35,
		LivenessBelow70:    25,
		LivenessBelow85:    15,
		IPPrivate:          15,
		IPTor:              30,
		IPMissing:          10,
		EmailDisposable:    30,
		EmailSuspiciousTLD: 20,
		EmailMissing:       15,
		DocumentInvalid:    10,
		MinDocumentLength:  5,
		NameMissing:        15,
		NamePlaceholder:    20,
		Underage:           25,
		ImplausibleAge:     30,
		DOBUnparsable:      10,
		MediumAt:           30,
		HighAt:             60,
		DisposableDomains: []string{
			"tempmail.com", "10minutemail.com", "guerrillamail.com", "mailinator.com",
			"throwaway.email", "temp-mail.org", "trashmail.com", "dispostable.com",
		},
		SuspiciousTLDs:    []string{".tk", ".ml", ".ga", ".cf", ".gq"},
		PlaceholderTokens: []string{"test", "admin", "user", "demo", "xxx", "123"},
		AnonymizerMarkers: []string{"onion", "tor"},
	}
}

// LevelFor buckets a score.
func (p Policy) LevelFor(score int) RiskLevel {
	switch {
	case score < p.MediumAt:
		return RiskLow
	case score < p.HighAt:
		return RiskMedium
	default:
		return RiskHigh
	}
}
