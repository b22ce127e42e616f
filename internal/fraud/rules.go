package fraud

import (
	"net/netip"
	"strings"
	"time"

	"kycverify/internal/evidence/normalizer"
	"kycverify/pkg/email"
)

// NoRiskReason is reported when no rule fires.
const NoRiskReason = "no risk factors identified"

// finding is one fired rule: its weight and the reason shown to reviewers.
type finding struct {
	points int
	reason string
}

// rule inspects one signal family. Rules are independent and additive.
type rule func(p Policy, s Signals, now time.Time) []finding

var rules = []rule{
	faceMatchRule,
	livenessRule,
	ipRule,
	emailRule,
	documentRule,
	nameRule,
	dateOfBirthRule,
}

// Scorer is the local rule-based fraud scorer.
type Scorer struct {
	policy Policy
	now    func() time.Time
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithClock sets the time source used for age checks.
func WithClock(now func() time.Time) ScorerOption {
	return func(s *Scorer) { s.now = now }
}

func NewScorer(policy Policy, opts ...ScorerOption) *Scorer {
	s := &Scorer{policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active policy.
func (s *Scorer) Policy() Policy { return s.policy }

// Score evaluates every rule once. Each fired rule contributes both its
// points and its reason, so the score and the reasons always agree.
func (s *Scorer) Score(sig Signals) Assessment {
	now := s.now()
	total := 0
	var reasons []string
	for _, r := range rules {
		for _, f := range r(s.policy, sig, now) {
			total += f.points
			reasons = append(reasons, f.reason)
		}
	}
	if len(reasons) == 0 {
		reasons = []string{NoRiskReason}
	}
	score := clamp(total)
	return Assessment{
		Score:       score,
		RiskLevel:   s.policy.LevelFor(score),
		Reasons:     reasons,
		Source:      SourceRules,
		ModelScores: map[string]float64{"rule_based": float64(score)},
	}
}

func one(points int, reason string) []finding {
	return []finding{{points: points, reason: reason}}
}

func faceMatchRule(p Policy, s Signals, _ time.Time) []finding {
	if s.FaceMatchScore == nil {
		return one(p.FaceMatchMissing, "face comparison not performed")
	}
	switch v := *s.FaceMatchScore; {
	case v < 60:
		return one(p.FaceMatchBelow60, "critically low face match")
	case v < 70:
		return one(p.FaceMatchBelow70, "low face match confidence")
	case v < 80:
		return one(p.FaceMatchBelow80, "below-average face match confidence")
	case v < 90:
		return one(p.FaceMatchBelow90, "moderate face match confidence")
	}
	return nil
}

func livenessRule(p Policy, s Signals, _ time.Time) []finding {
	if s.LivenessScore == nil || *s.LivenessScore == 0 {
		return one(p.LivenessMissing, "liveness could not be assessed")
	}
	switch v := *s.LivenessScore; {
	case v < 60:
		return one(p.LivenessBelow60, "low liveness score, possible photo of a screen or print")
	case v < 70:
		return one(p.LivenessBelow70, "weak liveness signals")
	case v < 85:
		return one(p.LivenessBelow85, "liveness concerns")
	}
	return nil
}

func ipRule(p Policy, s Signals, _ time.Time) []finding {
	ip := strings.TrimSpace(s.IPAddress)
	if ip == "" || strings.EqualFold(ip, "unknown") {
		return one(p.IPMissing, "IP address not determined")
	}
	var out []finding
	lower := strings.ToLower(ip)
	for _, marker := range p.AnonymizerMarkers {
		if strings.Contains(lower, marker) {
			out = append(out, finding{p.IPTor, "Tor or anonymizing network detected"})
			break
		}
	}
	if addr, err := netip.ParseAddr(ip); err == nil && (addr.IsPrivate() || addr.IsLoopback()) {
		out = append(out, finding{p.IPPrivate, "private or loopback IP address"})
	}
	return out
}

func emailRule(p Policy, s Signals, _ time.Time) []finding {
	if strings.TrimSpace(s.Email) == "" {
		return one(p.EmailMissing, "email address missing")
	}
	domain := email.Domain(s.Email)
	if domain == "" {
		return nil
	}
	var out []finding
	for _, d := range p.DisposableDomains {
		if strings.Contains(domain, d) {
			out = append(out, finding{p.EmailDisposable, "temporary or disposable email address"})
			break
		}
	}
	for _, tld := range p.SuspiciousTLDs {
		if strings.HasSuffix(domain, tld) {
			out = append(out, finding{p.EmailSuspiciousTLD, "suspicious email domain"})
			break
		}
	}
	return out
}

func documentRule(p Policy, s Signals, _ time.Time) []finding {
	if len([]rune(strings.TrimSpace(s.DocumentNumber))) < p.MinDocumentLength {
		return one(p.DocumentInvalid, "missing or invalid document number")
	}
	return nil
}

func nameRule(p Policy, s Signals, _ time.Time) []finding {
	first, last := strings.TrimSpace(s.FirstName), strings.TrimSpace(s.LastName)
	if first == "" || last == "" {
		return one(p.NameMissing, "incomplete name information")
	}
	full := strings.ToLower(first + last)
	for _, token := range p.PlaceholderTokens {
		if strings.Contains(full, token) {
			return one(p.NamePlaceholder, "placeholder or test data in name")
		}
	}
	return nil
}

const daysPerYear = 365

func dateOfBirthRule(p Policy, s Signals, now time.Time) []finding {
	raw := strings.TrimSpace(s.DateOfBirth)
	if raw == "" {
		return nil
	}
	iso, ok := normalizer.ParseDate(raw)
	if !ok {
		return one(p.DOBUnparsable, "invalid date of birth format")
	}
	dob, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return one(p.DOBUnparsable, "invalid date of birth format")
	}
	age := now.Sub(dob).Hours() / 24 / daysPerYear
	switch {
	case age < 18:
		return one(p.Underage, "applicant under 18")
	case age > 100:
		return one(p.ImplausibleAge, "implausible date of birth")
	}
	return nil
}
