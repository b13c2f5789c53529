package casespec

import (
	"fmt"
	"strings"

	"github.com/adjudex/adjudex/pkg/evidence"
)

// Direction compares an observed value against a threshold.
type Direction string

const (
	DirectionGTE Direction = "gte"
	DirectionLTE Direction = "lte"
)

// Trigger kind names as they appear in case specifications.
const (
	KindTermSeen        = "term-seen"
	KindWeightedShift   = "weighted-shift"
	KindVelocityShift   = "velocity-shift"
	KindIntegrityVector = "integrity-vector"
	KindIndexThreshold  = "index-threshold"
)

// Outcome is the result of evaluating one trigger against a snapshot.
type Outcome struct {
	Satisfied  bool   `json:"satisfied"`
	MatchCount int    `json:"match_count"`
	Note       string `json:"note,omitempty"`
}

// Trigger is a closed union over the declared condition kinds. Each variant
// is stateless and evaluates purely against a snapshot.
type Trigger interface {
	Kind() string
	Describe() string
	Evaluate(snap *evidence.Snapshot) Outcome
}

// TermSeen counts case-insensitive substring occurrences of a term in
// signal event text, optionally restricted to given sources.
type TermSeen struct {
	Term     string   `json:"term"`
	Sources  []string `json:"sources,omitempty"`
	MinCount int      `json:"min_count"`
}

func (t TermSeen) Kind() string { return KindTermSeen }

func (t TermSeen) Describe() string {
	return fmt.Sprintf("%s(%q, min_count=%d)", KindTermSeen, t.Term, t.MinCount)
}

func (t TermSeen) Evaluate(snap *evidence.Snapshot) Outcome {
	term := strings.ToLower(t.Term)
	count := 0
	for _, ev := range snap.SignalEvents {
		if len(t.Sources) > 0 && !containsString(t.Sources, ev.Source) {
			continue
		}
		count += strings.Count(strings.ToLower(ev.Text), term)
	}
	min := t.MinCount
	if min <= 0 {
		min = 1
	}
	return Outcome{Satisfied: count >= min, MatchCount: count}
}

// crossingParams are the shared parameters of the domain-ledger scanning
// kinds: a named ledger, a numeric field, a threshold with a direction, and
// a minimum crossing count.
type crossingParams struct {
	Ledger       string    `json:"ledger"`
	Field        string    `json:"field"`
	Threshold    float64   `json:"threshold"`
	Direction    Direction `json:"direction"`
	MinCrossings int       `json:"min_crossings"`
}

func (p crossingParams) countCrossings(snap *evidence.Snapshot, category string, categoryField string) int {
	count := 0
	for _, entry := range snap.Domain(p.Ledger) {
		if category != "" {
			got, ok := entry.StringField(categoryField)
			if !ok || got != category {
				continue
			}
		}
		v, ok := entry.NumericField(p.Field)
		if !ok {
			continue
		}
		switch p.Direction {
		case DirectionLTE:
			if v <= p.Threshold {
				count++
			}
		default: // gte
			if v >= p.Threshold {
				count++
			}
		}
	}
	return count
}

func (p crossingParams) satisfied(count int) bool {
	min := p.MinCrossings
	if min <= 0 {
		min = 1
	}
	return count >= min
}

// WeightedShift detects weighted-average shifts past a threshold in a named
// domain ledger.
type WeightedShift struct {
	crossingParams
}

func (t WeightedShift) Kind() string { return KindWeightedShift }

func (t WeightedShift) Describe() string {
	return fmt.Sprintf("%s(%s.%s %s %g)", KindWeightedShift, t.Ledger, t.Field, t.Direction, t.Threshold)
}

func (t WeightedShift) Evaluate(snap *evidence.Snapshot) Outcome {
	count := t.countCrossings(snap, "", "")
	return Outcome{Satisfied: t.satisfied(count), MatchCount: count}
}

// VelocityShift detects rate-of-change crossings in a named domain ledger.
type VelocityShift struct {
	crossingParams
}

func (t VelocityShift) Kind() string { return KindVelocityShift }

func (t VelocityShift) Describe() string {
	return fmt.Sprintf("%s(%s.%s %s %g)", KindVelocityShift, t.Ledger, t.Field, t.Direction, t.Threshold)
}

func (t VelocityShift) Evaluate(snap *evidence.Snapshot) Outcome {
	count := t.countCrossings(snap, "", "")
	return Outcome{Satisfied: t.satisfied(count), MatchCount: count}
}

// IndexThreshold detects a named index crossing a threshold.
type IndexThreshold struct {
	crossingParams
}

func (t IndexThreshold) Kind() string { return KindIndexThreshold }

func (t IndexThreshold) Describe() string {
	return fmt.Sprintf("%s(%s.%s %s %g)", KindIndexThreshold, t.Ledger, t.Field, t.Direction, t.Threshold)
}

func (t IndexThreshold) Evaluate(snap *evidence.Snapshot) Outcome {
	count := t.countCrossings(snap, "", "")
	return Outcome{Satisfied: t.satisfied(count), MatchCount: count}
}

// IntegrityVector scans a domain ledger for crossings that additionally
// match a named category.
type IntegrityVector struct {
	crossingParams
	Category      string `json:"category"`
	CategoryField string `json:"category_field,omitempty"`
}

func (t IntegrityVector) Kind() string { return KindIntegrityVector }

func (t IntegrityVector) Describe() string {
	return fmt.Sprintf("%s(%s.%s %s %g, category=%q)", KindIntegrityVector, t.Ledger, t.Field, t.Direction, t.Threshold, t.Category)
}

func (t IntegrityVector) Evaluate(snap *evidence.Snapshot) Outcome {
	field := t.CategoryField
	if field == "" {
		field = "category"
	}
	count := t.countCrossings(snap, t.Category, field)
	return Outcome{Satisfied: t.satisfied(count), MatchCount: count}
}

// UnknownTrigger is the fail-safe variant for kinds this build does not
// understand. It never satisfies: an ABSTAIN or MISS is preferred over a
// false HIT.
type UnknownTrigger struct {
	RawKind string `json:"kind"`
}

func (t UnknownTrigger) Kind() string { return t.RawKind }

func (t UnknownTrigger) Describe() string {
	return fmt.Sprintf("unknown(%q)", t.RawKind)
}

func (t UnknownTrigger) Evaluate(snap *evidence.Snapshot) Outcome {
	return Outcome{
		Satisfied: false,
		Note:      fmt.Sprintf("unknown trigger kind %q: treated as not satisfied", t.RawKind),
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
