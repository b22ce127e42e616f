package fraud

import (
	"context"
	"log/slog"
	"strings"
	"time"

	fraudmetrics "kycverify/internal/fraud/metrics"
	"kycverify/pkg/platform/circuit"
)

//go:generate mockgen -source=assessor.go -destination=mocks/model_mock.go -package=mocks

// ModelResult is an external model's verdict. Outcomes follow the
// approve/review/block convention.
type ModelResult struct {
	Score       float64
	RiskLevel   string
	Outcomes    []string
	Reasons     []string
	ModelScores map[string]float64
}

// Model is an optional external probabilistic scorer. A nil result with a
// nil error means the model had no opinion.
type Model interface {
	Predict(ctx context.Context, signals Signals) (*ModelResult, error)
}

// Assessor runs the rule scorer and lets an external model override it.
// Any model failure falls back to the rule result.
type Assessor struct {
	rules   *Scorer
	model   Model
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *fraudmetrics.Metrics
}

// AssessorOption configures an Assessor.
type AssessorOption func(*Assessor)

// WithModel enables the external model behind a circuit breaker.
func WithModel(model Model, breaker *circuit.Breaker) AssessorOption {
	return func(a *Assessor) {
		a.model = model
		a.breaker = breaker
	}
}

func WithMetrics(m *fraudmetrics.Metrics) AssessorOption {
	return func(a *Assessor) { a.metrics = m }
}

func NewAssessor(rules *Scorer, logger *slog.Logger, opts ...AssessorOption) *Assessor {
	a := &Assessor{rules: rules, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	if a.model != nil && a.breaker == nil {
		a.breaker = circuit.New("fraud-model")
	}
	return a
}

// Assess never fails: without a usable model verdict it returns the rule result.
func (a *Assessor) Assess(ctx context.Context, sig Signals) Assessment {
	local := a.rules.Score(sig)
	result := a.override(ctx, sig, local)
	a.metrics.IncrementAssessment(string(result.Source), string(result.RiskLevel))
	return result
}

func (a *Assessor) override(ctx context.Context, sig Signals, local Assessment) Assessment {
	if a.model == nil {
		return local
	}
	if !a.breaker.Allow() {
		a.metrics.IncrementFallback("circuit_open")
		return local
	}

	start := time.Now()
	res, err := a.model.Predict(ctx, sig)
	a.metrics.ObserveModelLatency(time.Since(start).Seconds())
	if err != nil {
		_, change := a.breaker.RecordFailure()
		if change.Opened {
			a.logger.WarnContext(ctx, "fraud model circuit opened", "breaker", a.breaker.Name())
		}
		a.logger.WarnContext(ctx, "fraud model failed, using rule-based score",
			"verification_id", sig.VerificationID,
			"error", err,
		)
		a.metrics.IncrementFallback("error")
		return local
	}
	if _, change := a.breaker.RecordSuccess(); change.Closed {
		a.logger.InfoContext(ctx, "fraud model circuit closed", "breaker", a.breaker.Name())
	}
	if res == nil {
		a.metrics.IncrementFallback("no_result")
		return local
	}

	score := clamp(int(res.Score + 0.5))
	level := a.modelLevel(res, score)
	reasons := res.Reasons
	if len(reasons) == 0 {
		reasons = local.Reasons
	}
	scores := make(map[string]float64, len(res.ModelScores)+1)
	for k, v := range res.ModelScores {
		scores[k] = v
	}
	scores["rule_based"] = float64(local.Score)

	return Assessment{
		Score:       score,
		RiskLevel:   level,
		Reasons:     reasons,
		Source:      SourceModel,
		ModelScores: scores,
	}
}

// modelLevel prefers an explicit level, then rule outcomes, then the score bucket.
func (a *Assessor) modelLevel(res *ModelResult, score int) RiskLevel {
	if lvl, err := ParseRiskLevel(strings.ToUpper(res.RiskLevel)); err == nil {
		return lvl
	}
	outcomes := make(map[string]bool, len(res.Outcomes))
	for _, o := range res.Outcomes {
		outcomes[strings.ToLower(o)] = true
	}
	switch {
	case outcomes["approve"]:
		return RiskLow
	case outcomes["review"]:
		return RiskMedium
	case outcomes["block"]:
		return RiskHigh
	}
	return a.rules.Policy().LevelFor(score)
}
