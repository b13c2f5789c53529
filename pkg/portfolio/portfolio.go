// Package portfolio implements named, declaratively selected case subsets
// used for aggregate reporting and regression gating. Selection is
// deterministic: the selected cases are always stable-sorted by case id.
package portfolio

import (
	"fmt"
	"sort"

	"github.com/adjudex/adjudex/pkg/casespec"
)

// Predicate kind names as they appear in portfolio specifications.
const (
	KindHasForecastBranchRef = "has-forecast-branch-ref"
	KindHasRegimeOutcomeRef  = "has-regime-outcome-ref"
	KindTopicKeyIn           = "topic-key-in"
	KindTriggerKindIn        = "trigger-kind-in"
)

// Predicate is a closed union of typed case predicates.
type Predicate interface {
	Kind() string
	Matches(c *casespec.EvaluationCase) bool
}

// HasForecastBranchRef matches cases bound to a forecast branch.
type HasForecastBranchRef struct{}

func (HasForecastBranchRef) Kind() string { return KindHasForecastBranchRef }

func (HasForecastBranchRef) Matches(c *casespec.EvaluationCase) bool {
	return c.Selector.ForecastBranchRef != ""
}

// HasRegimeOutcomeRef matches cases bound to a regime outcome.
type HasRegimeOutcomeRef struct{}

func (HasRegimeOutcomeRef) Kind() string { return KindHasRegimeOutcomeRef }

func (HasRegimeOutcomeRef) Matches(c *casespec.EvaluationCase) bool {
	return c.Selector.RegimeOutcomeRef != ""
}

// TopicKeyIn matches cases whose topic key is one of the given keys.
type TopicKeyIn struct {
	Keys []string
}

func (TopicKeyIn) Kind() string { return KindTopicKeyIn }

func (p TopicKeyIn) Matches(c *casespec.EvaluationCase) bool {
	for _, k := range p.Keys {
		if c.Selector.TopicKey == k {
			return true
		}
	}
	return false
}

// TriggerKindIn matches cases declaring at least one trigger of the given
// kinds.
type TriggerKindIn struct {
	Kinds []string
}

func (TriggerKindIn) Kind() string { return KindTriggerKindIn }

func (p TriggerKindIn) Matches(c *casespec.EvaluationCase) bool {
	for _, declared := range c.TriggerKinds() {
		for _, k := range p.Kinds {
			if declared == k {
				return true
			}
		}
	}
	return false
}

// UnknownPredicate matches nothing. Like unknown trigger kinds, unknown
// predicate kinds degrade conservatively instead of raising.
type UnknownPredicate struct {
	RawKind string
}

func (p UnknownPredicate) Kind() string { return p.RawKind }

func (UnknownPredicate) Matches(*casespec.EvaluationCase) bool { return false }

// Portfolio is a named selector over horizon/segment/narrative plus typed
// predicates. Empty selector fields are wildcards; predicates are ANDed.
type Portfolio struct {
	Name       string
	Horizon    string
	Segment    string
	Narrative  string
	Predicates []Predicate
}

// Contains reports whether a case belongs to the portfolio.
func (p *Portfolio) Contains(c *casespec.EvaluationCase) bool {
	if p.Horizon != "" && c.Selector.Horizon != p.Horizon {
		return false
	}
	if p.Segment != "" && c.Selector.Segment != p.Segment {
		return false
	}
	if p.Narrative != "" && c.Selector.Narrative != p.Narrative {
		return false
	}
	for _, pred := range p.Predicates {
		if !pred.Matches(c) {
			return false
		}
	}
	return true
}

// Select returns the portfolio's cases, stable-sorted by case id.
func (p *Portfolio) Select(cases []*casespec.EvaluationCase) []*casespec.EvaluationCase {
	var out []*casespec.EvaluationCase
	for _, c := range cases {
		if p.Contains(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PredicateSpec is the declarative YAML form of a predicate.
type PredicateSpec struct {
	Kind  string   `yaml:"kind" json:"kind"`
	Keys  []string `yaml:"keys,omitempty" json:"keys,omitempty"`
	Kinds []string `yaml:"kinds,omitempty" json:"kinds,omitempty"`
}

// BuildPredicate converts a declarative spec into the typed union. Unknown
// kinds are a load-time error.
func BuildPredicate(spec PredicateSpec) (Predicate, error) {
	switch spec.Kind {
	case KindHasForecastBranchRef:
		return HasForecastBranchRef{}, nil
	case KindHasRegimeOutcomeRef:
		return HasRegimeOutcomeRef{}, nil
	case KindTopicKeyIn:
		if len(spec.Keys) == 0 {
			return nil, fmt.Errorf("portfolio: topic-key-in requires keys")
		}
		return TopicKeyIn{Keys: spec.Keys}, nil
	case KindTriggerKindIn:
		if len(spec.Kinds) == 0 {
			return nil, fmt.Errorf("portfolio: trigger-kind-in requires kinds")
		}
		return TriggerKindIn{Kinds: spec.Kinds}, nil
	default:
		return nil, fmt.Errorf("portfolio: unknown predicate kind %q", spec.Kind)
	}
}
