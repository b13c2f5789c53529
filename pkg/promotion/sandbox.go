package promotion

import (
	"context"
	"fmt"

	"github.com/adjudex/adjudex/pkg/aggregate"
	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/evaluator"
	"github.com/adjudex/adjudex/pkg/evidence"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/portfolio"
	"github.com/adjudex/adjudex/pkg/stabilize"
)

// PortfolioStatus is the verdict for one portfolio in a sandbox run.
type PortfolioStatus string

const (
	PortfolioPass    PortfolioStatus = "PASS"
	PortfolioFail    PortfolioStatus = "FAIL"
	PortfolioAbstain PortfolioStatus = "ABSTAIN"
)

// Portfolio roles in a sandbox run.
const (
	RoleTarget       = "target"
	RoleNoRegression = "no-regression"
)

// PortfolioOutcome is the per-portfolio breakdown of a sandbox run.
type PortfolioOutcome struct {
	Portfolio string              `json:"portfolio"`
	Role      string              `json:"role"`
	Status    PortfolioStatus     `json:"status"`
	Deltas    map[string]*float64 `json:"deltas"`
}

// SandboxResult is the outcome of exercising one candidate against one
// evidence snapshot.
type SandboxResult struct {
	RunID       string              `json:"run_id"`
	CandidateID string              `json:"candidate_id"`
	Before      aggregate.Summary   `json:"before"`
	After       aggregate.Summary   `json:"after"`
	Deltas      map[string]*float64 `json:"deltas"`
	Criteria    map[string]bool     `json:"criteria"`
	Pass        bool                `json:"pass"`
	Portfolios  []PortfolioOutcome  `json:"portfolios"`
}

// Report is the machine-readable sandbox/promotion report.
type Report struct {
	PassGate   bool               `json:"pass_gate"`
	Portfolios []PortfolioOutcome `json:"portfolios"`
}

// Report renders the result in the external report shape.
func (r *SandboxResult) Report() Report {
	return Report{PassGate: r.Pass, Portfolios: r.Portfolios}
}

// Appender is the ledger surface sandbox runs and promotions write to.
type Appender interface {
	Append(entryType string, payload map[string]interface{}) (*ledger.Entry, error)
}

// ResultStore persists sandbox results.
type ResultStore interface {
	SaveSandboxResult(ctx context.Context, r *SandboxResult) error
}

// Runner executes sandbox evaluations of candidates.
type Runner struct {
	ledger  Appender
	tracker *stabilize.Tracker
	store   ResultStore
}

// NewRunner creates a sandbox runner. ledger and store may be nil.
func NewRunner(led Appender, tracker *stabilize.Tracker, store ResultStore) *Runner {
	return &Runner{ledger: led, tracker: tracker, store: store}
}

// Run evaluates every target and no-regression portfolio under baseline and
// candidate-modified conditions, appends the result to the ledger, and folds
// it into the candidate's stabilization window. Results must be run in
// chronological order.
func (r *Runner) Run(ctx context.Context, runID string, c *Candidate, targets, noRegression []*portfolio.Portfolio, cases []*casespec.EvaluationCase, snap *evidence.Snapshot) (*SandboxResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, fmt.Errorf("promotion: sandbox run id is required")
	}

	modified, err := applyCandidate(c, cases)
	if err != nil {
		return nil, err
	}

	result := &SandboxResult{
		RunID:       runID,
		CandidateID: c.ID,
		Criteria:    make(map[string]bool),
	}

	var beforeAll, afterAll []evaluator.Result
	pass := true

	for _, pf := range targets {
		before, after := evaluatePortfolio(pf, cases, modified, snap)
		beforeAll = append(beforeAll, before...)
		afterAll = append(afterAll, after...)

		deltas := aggregate.Deltas(aggregate.Aggregate(before), aggregate.Aggregate(after))
		status := targetStatus(c, deltas)
		result.Portfolios = append(result.Portfolios, PortfolioOutcome{
			Portfolio: pf.Name, Role: RoleTarget, Status: status, Deltas: deltas,
		})
		ok := status == PortfolioPass
		result.Criteria["target:"+pf.Name] = ok
		pass = pass && ok
	}

	for _, pf := range noRegression {
		before, after := evaluatePortfolio(pf, cases, modified, snap)
		deltas := aggregate.Deltas(aggregate.Aggregate(before), aggregate.Aggregate(after))
		status := noRegressionStatus(deltas)
		result.Portfolios = append(result.Portfolios, PortfolioOutcome{
			Portfolio: pf.Name, Role: RoleNoRegression, Status: status, Deltas: deltas,
		})
		ok := status == PortfolioPass
		result.Criteria["no-regression:"+pf.Name] = ok
		pass = pass && ok
	}

	result.Before = aggregate.Aggregate(beforeAll)
	result.After = aggregate.Aggregate(afterAll)
	result.Deltas = aggregate.Deltas(result.Before, result.After)
	result.Pass = pass

	if r.store != nil {
		if err := r.store.SaveSandboxResult(ctx, result); err != nil {
			return nil, fmt.Errorf("promotion: persist sandbox result %s: %w", runID, err)
		}
	}
	if r.ledger != nil {
		payload := map[string]interface{}{
			"run_id":       runID,
			"candidate_id": c.ID,
			"pass":         result.Pass,
			"deltas":       result.Deltas,
			"criteria":     result.Criteria,
		}
		if _, err := r.ledger.Append("sandbox_result", payload); err != nil {
			return nil, fmt.Errorf("promotion: ledger append for sandbox run %s: %w", runID, err)
		}
	}
	if r.tracker != nil {
		if _, err := r.tracker.RecordRun(c.ID, runID, result.Pass); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func evaluatePortfolio(pf *portfolio.Portfolio, baseline, modified []*casespec.EvaluationCase, snap *evidence.Snapshot) (before, after []evaluator.Result) {
	for _, c := range pf.Select(baseline) {
		before = append(before, evaluator.Evaluate(c, snap))
	}
	for _, c := range pf.Select(modified) {
		after = append(after, evaluator.Evaluate(c, snap))
	}
	return before, after
}

// targetStatus checks the candidate's targeted metrics against its
// improvement thresholds. An uncomputable delta is ABSTAIN, not FAIL.
func targetStatus(c *Candidate, deltas map[string]*float64) PortfolioStatus {
	metrics := c.TargetMetrics
	if len(metrics) == 0 {
		metrics = []string{aggregate.MetricScoreMean}
	}
	for _, key := range metrics {
		d, ok := deltas[key]
		if !ok || d == nil {
			return PortfolioAbstain
		}
		if *d < c.ImprovementThresholds[key] {
			return PortfolioFail
		}
	}
	return PortfolioPass
}

// noRegressionStatus requires that no computed metric moved in the worse
// direction.
func noRegressionStatus(deltas map[string]*float64) PortfolioStatus {
	sawAny := false
	for _, d := range deltas {
		if d == nil {
			continue
		}
		sawAny = true
		if *d < 0 {
			return PortfolioFail
		}
	}
	if !sawAny {
		return PortfolioAbstain
	}
	return PortfolioPass
}

// applyCandidate produces modified copies of the cases with the candidate's
// change applied. New-metric and new-operator candidates do not alter case
// evaluation; their sandbox compares like for like.
func applyCandidate(c *Candidate, cases []*casespec.EvaluationCase) ([]*casespec.EvaluationCase, error) {
	if c.Kind != KindParameterTweak {
		return cases, nil
	}
	value, ok := numeric(c.Value)
	if !ok {
		return nil, fmt.Errorf("promotion: candidate %s: parameter-tweak value must be numeric, got %T", c.ID, c.Value)
	}

	out := make([]*casespec.EvaluationCase, len(cases))
	for i, orig := range cases {
		cp := *orig
		switch c.ParamPath {
		case "scoring.trigger_weight":
			cp.Scoring.TriggerWeight = value
		case "scoring.abstain_weight":
			cp.Scoring.AbstainWeight = value
		case "guardrails.min_signal_count":
			cp.Guardrails.MinSignalCount = int(value)
		case "guardrails.min_completeness":
			cp.Guardrails.MinCompleteness = value
		case "guardrails.max_integrity_risk":
			cp.Guardrails.MaxIntegrityRisk = value
		default:
			return nil, fmt.Errorf("promotion: candidate %s: unsupported parameter path %q", c.ID, c.ParamPath)
		}
		out[i] = &cp
	}
	return out, nil
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
