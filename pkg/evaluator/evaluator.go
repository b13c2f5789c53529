// Package evaluator decides whether a stated case was confirmed or refuted
// by an evidence snapshot. Evaluation is a pure function of (case, snapshot):
// identical inputs always produce identical results, and no intermediate
// state is persisted.
//
// Guardrails run before any trigger is considered; a satisfied falsifier
// overrides any satisfied trigger. Evidentiary insufficiency is a first-class
// outcome (ABSTAIN/UNKNOWN), not an error.
package evaluator

import (
	"fmt"

	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/evidence"
)

// Status is the terminal state of one evaluation.
type Status string

const (
	StatusHit     Status = "HIT"
	StatusMiss    Status = "MISS"
	StatusAbstain Status = "ABSTAIN"
	StatusUnknown Status = "UNKNOWN"
)

// Confidence grades how firmly the verdict is held.
type Confidence string

const (
	ConfidenceLow  Confidence = "LOW"
	ConfidenceMed  Confidence = "MED"
	ConfidenceHigh Confidence = "HIGH"
)

// Provenance records what evidence the verdict was based on.
type Provenance struct {
	EvidenceExamined   int     `json:"evidence_examined"`
	LedgerCompleteness float64 `json:"ledger_completeness"`
	WorstIntegrityRisk float64 `json:"worst_integrity_risk"`
}

// CalibrationBin is one bucket of forecast-vs-observed frequency used by the
// aggregator's calibration error.
type CalibrationBin struct {
	Forecast float64 `json:"forecast"`
	Observed float64 `json:"observed"`
	Count    int     `json:"count"`
}

// Result is the immutable outcome of evaluating one case against one
// snapshot.
type Result struct {
	CaseID              string             `json:"case_id"`
	Status              Status             `json:"status"`
	Score               float64            `json:"score"`
	Confidence          Confidence         `json:"confidence"`
	SatisfiedTriggers   []string           `json:"satisfied_triggers,omitempty"`
	SatisfiedFalsifiers []string           `json:"satisfied_falsifiers,omitempty"`
	TriggerMatches      map[string]int     `json:"trigger_matches,omitempty"`
	Notes               []string           `json:"notes,omitempty"`
	Provenance          Provenance         `json:"provenance"`
	Metrics             map[string]float64 `json:"metrics,omitempty"`
	CalibrationBins     []CalibrationBin   `json:"calibration_bins,omitempty"`
	CalibrationError    *float64           `json:"calibration_error,omitempty"`
	SampleSize          int                `json:"sample_size,omitempty"`
}

// Evaluate runs the guardrail and trigger pipeline for one case against one
// snapshot.
func Evaluate(c *casespec.EvaluationCase, snap *evidence.Snapshot) Result {
	res := Result{
		CaseID:         c.ID,
		TriggerMatches: make(map[string]int),
		Provenance: Provenance{
			EvidenceExamined: snap.SignalCount(),
		},
	}

	// Guardrail 1: minimum evidence count. Triggers are not evaluated.
	if snap.SignalCount() < c.Guardrails.MinSignalCount {
		res.Status = StatusAbstain
		res.Score = c.AbstainWeight()
		res.Confidence = ConfidenceLow
		res.Notes = append(res.Notes, fmt.Sprintf(
			"insufficient evidence: %d signal events, need %d",
			snap.SignalCount(), c.Guardrails.MinSignalCount))
		res.Provenance.LedgerCompleteness = snap.Completeness(c.Guardrails.RequiredLedgers)
		return res
	}

	// Guardrail 2: required domain ledger completeness.
	completeness := snap.Completeness(c.Guardrails.RequiredLedgers)
	res.Provenance.LedgerCompleteness = completeness
	if completeness < c.Guardrails.MinCompleteness {
		res.Status = StatusUnknown
		res.Score = 0.0
		res.Confidence = ConfidenceLow
		res.Notes = append(res.Notes, fmt.Sprintf(
			"ledger completeness %.2f below required %.2f",
			completeness, c.Guardrails.MinCompleteness))
		return res
	}

	// Guardrail 3: integrity risk ceiling.
	if risk, seen := snap.MaxIntegrityRisk(); seen {
		res.Provenance.WorstIntegrityRisk = risk
		if c.Guardrails.MaxIntegrityRisk > 0 && risk > c.Guardrails.MaxIntegrityRisk {
			res.Status = StatusAbstain
			res.Score = c.AbstainWeight()
			res.Confidence = ConfidenceLow
			res.Notes = append(res.Notes, fmt.Sprintf(
				"integrity risk %.2f exceeds ceiling %.2f",
				risk, c.Guardrails.MaxIntegrityRisk))
			return res
		}
	}

	// Evaluate every condition; record match counts for provenance.
	allOfSatisfied := true
	for _, t := range c.AllOf {
		out := t.Evaluate(snap)
		res.TriggerMatches[t.Describe()] = out.MatchCount
		if out.Note != "" {
			res.Notes = append(res.Notes, out.Note)
		}
		if out.Satisfied {
			res.SatisfiedTriggers = append(res.SatisfiedTriggers, t.Describe())
		} else {
			allOfSatisfied = false
		}
	}

	anyOfSatisfied := len(c.AnyOf) == 0 // vacuously true when empty
	for _, t := range c.AnyOf {
		out := t.Evaluate(snap)
		res.TriggerMatches[t.Describe()] = out.MatchCount
		if out.Note != "" {
			res.Notes = append(res.Notes, out.Note)
		}
		if out.Satisfied {
			anyOfSatisfied = true
			res.SatisfiedTriggers = append(res.SatisfiedTriggers, t.Describe())
		}
	}

	falsified := false
	for _, f := range c.Falsifiers {
		out := f.Evaluate(snap)
		res.TriggerMatches[f.Describe()] = out.MatchCount
		if out.Note != "" {
			res.Notes = append(res.Notes, out.Note)
		}
		if out.Satisfied {
			falsified = true
			res.SatisfiedFalsifiers = append(res.SatisfiedFalsifiers, f.Describe())
		}
	}

	// Decision order: falsifiers override triggers.
	switch {
	case falsified:
		res.Status = StatusMiss
		res.Score = 0.0
		res.Confidence = ConfidenceHigh
	case allOfSatisfied && anyOfSatisfied:
		res.Status = StatusHit
		res.Score = c.TriggerWeight()
		res.Confidence = ConfidenceHigh
	default:
		res.Status = StatusMiss
		res.Score = 0.0
		res.Confidence = ConfidenceMed
	}
	return res
}
