package promotion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/evidence"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/portfolio"
	"github.com/adjudex/adjudex/pkg/stabilize"
)

type memResultStore struct {
	saved []*SandboxResult
}

func (s *memResultStore) SaveSandboxResult(_ context.Context, r *SandboxResult) error {
	s.saved = append(s.saved, r)
	return nil
}

// sandboxFixture builds one hitting case in the H2-2026 horizon with two
// quantum signal events.
func sandboxFixture() ([]*casespec.EvaluationCase, *evidence.Snapshot, []*portfolio.Portfolio) {
	cases := []*casespec.EvaluationCase{
		{
			ID:    "case-quantum",
			AnyOf: []casespec.Trigger{casespec.TermSeen{Term: "quantum", MinCount: 2}},
			Selector: casespec.Selector{
				Horizon: "H2-2026",
			},
		},
	}
	snap := &evidence.Snapshot{SignalEvents: []evidence.SignalEvent{
		{ID: "ev-1", Source: "wire", Text: "quantum one"},
		{ID: "ev-2", Source: "wire", Text: "quantum two"},
	}}
	targets := []*portfolio.Portfolio{{Name: "h2", Horizon: "H2-2026"}}
	return cases, snap, targets
}

func tweakCandidate(paramPath string, value interface{}) *Candidate {
	return &Candidate{
		ID:               "cand-1",
		Kind:             KindParameterTweak,
		Version:          "1.0.0",
		ParamPath:        paramPath,
		Value:            value,
		TargetPortfolios: []string{"h2"},
		TargetMetrics:    []string{"score_mean"},
		Enabled:          true,
	}
}

func TestRunAppliesParameterTweak(t *testing.T) {
	cases, snap, targets := sandboxFixture()
	tracker := stabilize.NewTracker(3)
	chain := ledger.NewChain()
	store := &memResultStore{}
	runner := NewRunner(chain, tracker, store)

	// Raising trigger_weight improves score_mean for hitting cases.
	c := tweakCandidate("scoring.trigger_weight", 1.0)
	cases[0].Scoring.TriggerWeight = 0.5

	result, err := runner.Run(context.Background(), "run-1", c, targets, nil, cases, snap)
	require.NoError(t, err)

	require.NotNil(t, result.Before.ScoreMean)
	assert.Equal(t, 0.5, *result.Before.ScoreMean)
	require.NotNil(t, result.After.ScoreMean)
	assert.Equal(t, 1.0, *result.After.ScoreMean)
	assert.True(t, result.Pass)
	require.Len(t, result.Portfolios, 1)
	assert.Equal(t, PortfolioPass, result.Portfolios[0].Status)
	assert.Equal(t, RoleTarget, result.Portfolios[0].Role)

	// Original cases stay untouched; the tweak applies to copies.
	assert.Equal(t, 0.5, cases[0].Scoring.TriggerWeight)

	require.Len(t, store.saved, 1)
	entries := chain.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "sandbox_result", entries[0].EntryType)

	w, ok := tracker.State("cand-1")
	require.True(t, ok)
	assert.Equal(t, 1, w.ConsecutivePass)
}

func TestRunFailsWhenDeltaBelowThreshold(t *testing.T) {
	cases, snap, targets := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	c := tweakCandidate("scoring.trigger_weight", 0.5)
	c.ImprovementThresholds = map[string]float64{"score_mean": 0.1}
	// Lowering the weight makes score_mean worse.
	result, err := runner.Run(context.Background(), "run-1", c, targets, nil, cases, snap)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, PortfolioFail, result.Portfolios[0].Status)
}

func TestNoRegressionPortfolioFailsOnWorseMetric(t *testing.T) {
	cases, snap, _ := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	c := tweakCandidate("scoring.trigger_weight", 0.5)
	c.TargetPortfolios = nil
	c.NoRegressionPortfolios = []string{"guard"}
	guard := []*portfolio.Portfolio{{Name: "guard", Horizon: "H2-2026"}}

	result, err := runner.Run(context.Background(), "run-1", c, nil, guard, cases, snap)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Portfolios, 1)
	assert.Equal(t, RoleNoRegression, result.Portfolios[0].Role)
	assert.Equal(t, PortfolioFail, result.Portfolios[0].Status)
}

func TestEmptyTargetPortfolioAbstains(t *testing.T) {
	_, snap, _ := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	c := tweakCandidate("scoring.trigger_weight", 1.0)
	// The portfolio selects no cases, so the metric is uncomputable.
	empty := []*portfolio.Portfolio{{Name: "h2", Horizon: "H2-2026"}}
	result, err := runner.Run(context.Background(), "run-1", c, empty, nil, nil, snap)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, PortfolioAbstain, result.Portfolios[0].Status)
}

func TestRunRejectsUnsupportedParamPath(t *testing.T) {
	cases, snap, targets := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	c := tweakCandidate("scoring.unheard_of", 1.0)
	_, err := runner.Run(context.Background(), "run-1", c, targets, nil, cases, snap)
	assert.Error(t, err)
}

func TestRunRejectsNonNumericTweakValue(t *testing.T) {
	cases, snap, targets := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	c := tweakCandidate("scoring.trigger_weight", "high")
	_, err := runner.Run(context.Background(), "run-1", c, targets, nil, cases, snap)
	assert.Error(t, err)
}

func TestGuardrailTweakChangesOutcome(t *testing.T) {
	cases, snap, targets := sandboxFixture()
	runner := NewRunner(nil, nil, nil)

	// Tightening min_signal_count flips the case from HIT to ABSTAIN.
	c := tweakCandidate("guardrails.min_signal_count", 10)
	result, err := runner.Run(context.Background(), "run-1", c, targets, nil, cases, snap)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Before.StatusCounts["HIT"])
	assert.Equal(t, 1, result.After.StatusCounts["ABSTAIN"])
}

func TestCandidateValidation(t *testing.T) {
	c := &Candidate{Kind: KindParameterTweak}
	assert.Error(t, c.Validate(), "id required")

	c = &Candidate{ID: "x", Kind: "mystery"}
	assert.Error(t, c.Validate(), "kind must be known")

	c = &Candidate{ID: "x", Kind: KindNewMetric, Version: "not-semver"}
	assert.Error(t, c.Validate(), "version must parse as semver")

	c = &Candidate{ID: "x", Kind: KindNewMetric, Version: "2.1.0"}
	assert.NoError(t, c.Validate())
}

func TestLoadCandidateYAML(t *testing.T) {
	c, err := LoadCandidate([]byte(`
id: cand-weights
kind: parameter-tweak
version: 1.2.0
param_path: scoring.trigger_weight
value: 0.9
target_portfolios: [h2]
target_metrics: [score_mean]
improvement_thresholds:
  score_mean: 0.05
enabled: true
rationale: raise reward for confirmed hits
`))
	require.NoError(t, err)
	assert.Equal(t, "cand-weights", c.ID)
	assert.Equal(t, KindParameterTweak, c.Kind)
	assert.Equal(t, "scoring.trigger_weight", c.ParamPath)
	assert.Equal(t, 0.05, c.ImprovementThresholds["score_mean"])
	assert.True(t, c.Enabled)
}
