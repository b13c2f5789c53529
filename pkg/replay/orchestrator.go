package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/adjudex/adjudex/pkg/aggregate"
	"github.com/adjudex/adjudex/pkg/canonicalize"
	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/evaluator"
	"github.com/adjudex/adjudex/pkg/evidence"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/portfolio"
)

// InfluenceProvider supplies the attributable influences of one case's
// evaluation. Influences are consumed only by the mask engine.
type InfluenceProvider interface {
	Influences(caseID string, snap *evidence.Snapshot) []evidence.Influence
}

// MapProvider is an explicitly constructed, explicitly owned influence
// source keyed by case id.
type MapProvider map[string][]evidence.Influence

func (p MapProvider) Influences(caseID string, _ *evidence.Snapshot) []evidence.Influence {
	return p[caseID]
}

// Appender is the ledger surface the orchestrator writes to.
type Appender interface {
	Append(entryType string, payload map[string]interface{}) (*ledger.Entry, error)
}

// ReportStore persists counterfactual reports.
type ReportStore interface {
	SaveReport(ctx context.Context, r *Report) error
}

// Report is the persisted outcome of one counterfactual replay.
//
// Deltas are masked − baseline, sign-adjusted so positive always means
// "improved". A nil delta means the metric was uncomputable on at least one
// side.
type Report struct {
	ReportKey   string                   `json:"report_key"`
	RunID       string                   `json:"run_id"`
	PortfolioID string                   `json:"portfolio_id"`
	MaskSpecs   []map[string]interface{} `json:"mask_specs"`
	CaseIDs     []string                 `json:"case_ids"`
	Baseline    aggregate.Summary        `json:"baseline"`
	Masked      aggregate.Summary        `json:"masked"`
	Deltas      map[string]*float64      `json:"deltas"`
}

// Orchestrator re-runs evaluation under baseline and masked conditions.
type Orchestrator struct {
	provider InfluenceProvider
	ledger   Appender
	store    ReportStore
}

// NewOrchestrator creates an orchestrator. ledger and store may be nil when
// the caller only wants the in-memory report.
func NewOrchestrator(provider InfluenceProvider, led Appender, store ReportStore) *Orchestrator {
	return &Orchestrator{provider: provider, ledger: led, store: store}
}

// Run evaluates the portfolio's cases unmasked and masked, computes
// per-metric deltas, and persists the report.
//
// Case selection is deterministic (stable sort by case id inside the
// portfolio), so a replay with identical inputs always produces an identical
// report key.
func (o *Orchestrator) Run(ctx context.Context, runID string, pf *portfolio.Portfolio, cases []*casespec.EvaluationCase, snap *evidence.Snapshot, masks []Mask) (*Report, error) {
	if runID == "" {
		return nil, fmt.Errorf("replay: run id is required")
	}
	selected := pf.Select(cases)

	caseIDs := make([]string, len(selected))
	baselineResults := make([]evaluator.Result, len(selected))
	maskedResults := make([]evaluator.Result, len(selected))

	for i, c := range selected {
		caseIDs[i] = c.ID
		baselineResults[i] = evaluator.Evaluate(c, snap)

		var influences []evidence.Influence
		if o.provider != nil {
			influences = o.provider.Influences(c.ID, snap)
		}
		masked := ApplyAll(influences, masks)
		maskedSnap := maskSnapshot(snap, influences, masked)
		maskedResults[i] = evaluator.Evaluate(c, maskedSnap)
	}

	baseline := aggregate.Aggregate(baselineResults)
	maskedAgg := aggregate.Aggregate(maskedResults)

	report := &Report{
		RunID:       runID,
		PortfolioID: pf.Name,
		MaskSpecs:   maskSpecs(masks),
		CaseIDs:     caseIDs,
		Baseline:    baseline,
		Masked:      maskedAgg,
		Deltas:      aggregate.Deltas(baseline, maskedAgg),
	}

	key, err := reportKey(runID, pf.Name, masks)
	if err != nil {
		return nil, err
	}
	report.ReportKey = key

	if o.store != nil {
		if err := o.store.SaveReport(ctx, report); err != nil {
			return nil, fmt.Errorf("replay: persist report %s: %w", key, err)
		}
	}
	if o.ledger != nil {
		payload := map[string]interface{}{
			"report_key":   report.ReportKey,
			"run_id":       runID,
			"portfolio_id": pf.Name,
			"mask_specs":   report.MaskSpecs,
			"deltas":       report.Deltas,
		}
		if _, err := o.ledger.Append("counterfactual_report", payload); err != nil {
			return nil, fmt.Errorf("replay: ledger append for report %s: %w", key, err)
		}
	}
	return report, nil
}

// maskSnapshot rebuilds the snapshot for masked evaluation: signal events
// attributed by an influence that the masks removed are dropped; events with
// no influence attribution survive untouched.
func maskSnapshot(snap *evidence.Snapshot, before, after []evidence.Influence) *evidence.Snapshot {
	attributed := make(map[string]bool) // event id -> had an influence
	surviving := make(map[string]bool)  // event id -> influence survived masking
	for _, inf := range before {
		if inf.EventID != "" {
			attributed[inf.EventID] = true
		}
	}
	for _, inf := range after {
		if inf.EventID != "" {
			surviving[inf.EventID] = true
		}
	}

	out := &evidence.Snapshot{DomainLedgers: snap.DomainLedgers}
	for _, ev := range snap.SignalEvents {
		if attributed[ev.ID] && !surviving[ev.ID] {
			continue
		}
		out.SignalEvents = append(out.SignalEvents, ev)
	}
	return out
}

func maskSpecs(masks []Mask) []map[string]interface{} {
	specs := make([]map[string]interface{}, len(masks))
	for i, m := range masks {
		specs[i] = m.Spec()
	}
	return specs
}

// reportKey hashes (run id, portfolio id, sorted mask specs) into the
// report's identity.
func reportKey(runID, portfolioID string, masks []Mask) (string, error) {
	specs := make([]string, 0, len(masks))
	for _, m := range masks {
		s, err := canonicalize.JCSString(m.Spec())
		if err != nil {
			return "", fmt.Errorf("replay: hash mask spec: %w", err)
		}
		specs = append(specs, s)
	}
	sort.Strings(specs)
	return canonicalize.CanonicalHash(map[string]interface{}{
		"run_id":       runID,
		"portfolio_id": portfolioID,
		"mask_specs":   specs,
	})
}
