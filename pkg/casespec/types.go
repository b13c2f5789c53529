// Package casespec defines the immutable EvaluationCase: a falsifiable,
// time-boxed prediction with declared trigger and falsifier conditions,
// guardrail thresholds, and scoring configuration. Cases are authored as
// YAML and re-evaluated against many evidence snapshots.
package casespec

import (
	"fmt"
	"time"
)

// Default scoring weights.
const (
	DefaultTriggerWeight = 1.0
	DefaultAbstainWeight = 0.2
)

// Window is the time window the case is evaluated over.
type Window struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Guardrails are evidence-sufficiency preconditions checked before any
// trigger is considered.
type Guardrails struct {
	MinSignalCount   int      `json:"min_signal_count" yaml:"min_signal_count"`
	MinCompleteness  float64  `json:"min_completeness" yaml:"min_completeness"`
	MaxIntegrityRisk float64  `json:"max_integrity_risk" yaml:"max_integrity_risk"`
	RequiredLedgers  []string `json:"required_ledgers,omitempty" yaml:"required_ledgers,omitempty"`
}

// Scoring holds the configured result weights.
type Scoring struct {
	TriggerWeight float64 `json:"trigger_weight" yaml:"trigger_weight"`
	AbstainWeight float64 `json:"abstain_weight" yaml:"abstain_weight"`
}

// Selector metadata used by portfolio selection.
type Selector struct {
	Horizon           string `json:"horizon,omitempty" yaml:"horizon,omitempty"`
	Segment           string `json:"segment,omitempty" yaml:"segment,omitempty"`
	Narrative         string `json:"narrative,omitempty" yaml:"narrative,omitempty"`
	TopicKey          string `json:"topic_key,omitempty" yaml:"topic_key,omitempty"`
	ForecastBranchRef string `json:"forecast_branch_ref,omitempty" yaml:"forecast_branch_ref,omitempty"`
	RegimeOutcomeRef  string `json:"regime_outcome_ref,omitempty" yaml:"regime_outcome_ref,omitempty"`
}

// EvaluationCase is an immutable, declared prediction.
//
// AnyOf triggers form a disjunction, AllOf a conjunction; any satisfied
// falsifier overrides both.
type EvaluationCase struct {
	ID         string     `json:"id"`
	Window     Window     `json:"window"`
	AnyOf      []Trigger  `json:"-"`
	AllOf      []Trigger  `json:"-"`
	Falsifiers []Trigger  `json:"-"`
	Guardrails Guardrails `json:"guardrails"`
	Scoring    Scoring    `json:"scoring"`
	Selector   Selector   `json:"selector"`
}

// TriggerKinds returns the set of trigger kinds declared by the case, used
// by the trigger-kind-in portfolio predicate.
func (c *EvaluationCase) TriggerKinds() []string {
	seen := make(map[string]bool)
	var kinds []string
	for _, group := range [][]Trigger{c.AnyOf, c.AllOf, c.Falsifiers} {
		for _, t := range group {
			if !seen[t.Kind()] {
				seen[t.Kind()] = true
				kinds = append(kinds, t.Kind())
			}
		}
	}
	return kinds
}

// TriggerWeight returns the configured hit score, defaulted.
func (c *EvaluationCase) TriggerWeight() float64 {
	if c.Scoring.TriggerWeight == 0 {
		return DefaultTriggerWeight
	}
	return c.Scoring.TriggerWeight
}

// AbstainWeight returns the configured abstain score, defaulted.
func (c *EvaluationCase) AbstainWeight() float64 {
	if c.Scoring.AbstainWeight == 0 {
		return DefaultAbstainWeight
	}
	return c.Scoring.AbstainWeight
}

// Validate fails fast on a structurally invalid case. A case that fails
// validation is never partially applied.
func (c *EvaluationCase) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("casespec: case id is required")
	}
	if !c.Window.End.IsZero() && !c.Window.Start.IsZero() && c.Window.End.Before(c.Window.Start) {
		return fmt.Errorf("casespec: case %s: window end precedes start", c.ID)
	}
	if c.Guardrails.MinSignalCount < 0 {
		return fmt.Errorf("casespec: case %s: min_signal_count must be >= 0", c.ID)
	}
	if c.Guardrails.MinCompleteness < 0 || c.Guardrails.MinCompleteness > 1 {
		return fmt.Errorf("casespec: case %s: min_completeness must be in [0,1]", c.ID)
	}
	if c.Scoring.TriggerWeight < 0 || c.Scoring.AbstainWeight < 0 {
		return fmt.Errorf("casespec: case %s: scoring weights must be >= 0", c.ID)
	}
	return nil
}
