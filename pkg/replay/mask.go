// Package replay implements what-if evaluation: masks filter or clamp
// evidentiary influences, and the counterfactual orchestrator re-runs
// evaluation under baseline and masked conditions to measure how sensitive
// a verdict is to specific evidence.
package replay

import (
	"fmt"

	"github.com/adjudex/adjudex/pkg/evidence"
)

// Mask kind names as they appear in replay specifications.
const (
	KindExcludeSourceLabels = "exclude-source-labels"
	KindExcludeQuarantined  = "exclude-quarantined"
	KindClampWeightMax      = "clamp-weight-max"
	KindOnlyEvidencePack    = "only-evidence-pack"
	KindExcludeDomain       = "exclude-domain"
)

// Mask is a closed union of pure influence filters and clamps. A list of
// masks composes by sequential application: the order matters.
type Mask interface {
	Kind() string
	// Spec returns the declarative form of the mask, used when hashing a
	// replay's identity key.
	Spec() map[string]interface{}
	Apply(in []evidence.Influence) []evidence.Influence
}

// ExcludeSourceLabels drops influences whose source label is in the set.
type ExcludeSourceLabels struct {
	Labels []string
}

func (ExcludeSourceLabels) Kind() string { return KindExcludeSourceLabels }

func (m ExcludeSourceLabels) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.Kind(), "labels": m.Labels}
}

func (m ExcludeSourceLabels) Apply(in []evidence.Influence) []evidence.Influence {
	excluded := make(map[string]bool, len(m.Labels))
	for _, l := range m.Labels {
		excluded[l] = true
	}
	var out []evidence.Influence
	for _, inf := range in {
		if !excluded[inf.SourceLabel] {
			out = append(out, inf)
		}
	}
	return out
}

// ExcludeQuarantined drops quarantined influences.
type ExcludeQuarantined struct{}

func (ExcludeQuarantined) Kind() string { return KindExcludeQuarantined }

func (m ExcludeQuarantined) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.Kind()}
}

func (ExcludeQuarantined) Apply(in []evidence.Influence) []evidence.Influence {
	var out []evidence.Influence
	for _, inf := range in {
		if !inf.Quarantined {
			out = append(out, inf)
		}
	}
	return out
}

// ClampWeightMax caps influence weights at a maximum, preserving all other
// fields.
type ClampWeightMax struct {
	Max float64
}

func (ClampWeightMax) Kind() string { return KindClampWeightMax }

func (m ClampWeightMax) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.Kind(), "max": m.Max}
}

func (m ClampWeightMax) Apply(in []evidence.Influence) []evidence.Influence {
	var out []evidence.Influence
	for _, inf := range in {
		if inf.Weight > m.Max {
			inf.Weight = m.Max
		}
		out = append(out, inf)
	}
	return out
}

// OnlyEvidencePack keeps only influences of a given source class.
type OnlyEvidencePack struct {
	SourceClass string
}

func (OnlyEvidencePack) Kind() string { return KindOnlyEvidencePack }

func (m OnlyEvidencePack) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.Kind(), "source_class": m.SourceClass}
}

func (m OnlyEvidencePack) Apply(in []evidence.Influence) []evidence.Influence {
	var out []evidence.Influence
	for _, inf := range in {
		if inf.SourceClass == m.SourceClass {
			out = append(out, inf)
		}
	}
	return out
}

// ExcludeDomain drops influences of a given domain.
type ExcludeDomain struct {
	Domain string
}

func (ExcludeDomain) Kind() string { return KindExcludeDomain }

func (m ExcludeDomain) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.Kind(), "domain": m.Domain}
}

func (m ExcludeDomain) Apply(in []evidence.Influence) []evidence.Influence {
	var out []evidence.Influence
	for _, inf := range in {
		if inf.Domain != m.Domain {
			out = append(out, inf)
		}
	}
	return out
}

// UnknownMask passes influences through unchanged. Masking supports
// sensitivity analysis, not access control, so unknown kinds fail open.
type UnknownMask struct {
	RawKind string
}

func (m UnknownMask) Kind() string { return m.RawKind }

func (m UnknownMask) Spec() map[string]interface{} {
	return map[string]interface{}{"kind": m.RawKind}
}

func (UnknownMask) Apply(in []evidence.Influence) []evidence.Influence { return in }

// ApplyAll composes masks as a left fold over the influence list.
func ApplyAll(in []evidence.Influence, masks []Mask) []evidence.Influence {
	out := in
	for _, m := range masks {
		out = m.Apply(out)
	}
	return out
}

// MaskSpec is the declarative form of a mask.
type MaskSpec struct {
	Kind        string   `yaml:"kind" json:"kind"`
	Labels      []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Max         float64  `yaml:"max,omitempty" json:"max,omitempty"`
	SourceClass string   `yaml:"source_class,omitempty" json:"source_class,omitempty"`
	Domain      string   `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// BuildMask converts a declarative spec into the typed union. Unknown kinds
// are rejected at load time; UnknownMask exists for payloads constructed
// programmatically.
func BuildMask(spec MaskSpec) (Mask, error) {
	switch spec.Kind {
	case KindExcludeSourceLabels:
		if len(spec.Labels) == 0 {
			return nil, fmt.Errorf("replay: exclude-source-labels requires labels")
		}
		return ExcludeSourceLabels{Labels: spec.Labels}, nil
	case KindExcludeQuarantined:
		return ExcludeQuarantined{}, nil
	case KindClampWeightMax:
		if spec.Max < 0 || spec.Max > 1 {
			return nil, fmt.Errorf("replay: clamp-weight-max must be in [0,1], got %g", spec.Max)
		}
		return ClampWeightMax{Max: spec.Max}, nil
	case KindOnlyEvidencePack:
		if spec.SourceClass == "" {
			return nil, fmt.Errorf("replay: only-evidence-pack requires a source class")
		}
		return OnlyEvidencePack{SourceClass: spec.SourceClass}, nil
	case KindExcludeDomain:
		if spec.Domain == "" {
			return nil, fmt.Errorf("replay: exclude-domain requires a domain")
		}
		return ExcludeDomain{Domain: spec.Domain}, nil
	default:
		return nil, fmt.Errorf("replay: unknown mask kind %q", spec.Kind)
	}
}
