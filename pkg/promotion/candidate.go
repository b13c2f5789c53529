// Package promotion governs whether a proposed change to evaluation rules
// may be adopted. Candidates are exercised in a sandbox, their outcomes fold
// into a stabilization window, and the promotion gate is the single
// authority allowed to make a candidate effective.
package promotion

import (
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// CandidateKind classifies the proposed change.
type CandidateKind string

const (
	KindParameterTweak CandidateKind = "parameter-tweak"
	KindNewMetric      CandidateKind = "new-metric"
	KindNewOperator    CandidateKind = "new-operator"
)

// Candidate is a proposed change to evaluation rules.
type Candidate struct {
	ID          string        `json:"id" yaml:"id"`
	Kind        CandidateKind `json:"kind" yaml:"kind"`
	Version     string        `json:"version" yaml:"version"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`

	// Parameter-tweak binding.
	ParamPath string      `json:"param_path,omitempty" yaml:"param_path,omitempty"`
	Value     interface{} `json:"value,omitempty" yaml:"value,omitempty"`

	// New-metric / new-operator binding.
	ImplementationSpec string `json:"implementation_spec,omitempty" yaml:"implementation_spec,omitempty"`

	// Target binding.
	TargetPortfolios       []string           `json:"target_portfolios,omitempty" yaml:"target_portfolios,omitempty"`
	TargetHorizons         []string           `json:"target_horizons,omitempty" yaml:"target_horizons,omitempty"`
	TargetMetrics          []string           `json:"target_metrics,omitempty" yaml:"target_metrics,omitempty"`
	ImprovementThresholds  map[string]float64 `json:"improvement_thresholds,omitempty" yaml:"improvement_thresholds,omitempty"`
	NoRegressionPortfolios []string           `json:"no_regression_portfolios,omitempty" yaml:"no_regression_portfolios,omitempty"`

	Priority  int    `json:"priority" yaml:"priority"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
}

// Validate fails fast on a structurally invalid candidate.
func (c *Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("promotion: candidate id is required")
	}
	switch c.Kind {
	case KindParameterTweak, KindNewMetric, KindNewOperator:
	default:
		return fmt.Errorf("promotion: candidate %s: unknown kind %q", c.ID, c.Kind)
	}
	if c.Version != "" {
		if _, err := semver.NewVersion(c.Version); err != nil {
			return fmt.Errorf("promotion: candidate %s: invalid version %q: %w", c.ID, c.Version, err)
		}
	}
	return nil
}

// LoadCandidate parses and validates a candidate specification from YAML.
func LoadCandidate(data []byte) (*Candidate, error) {
	var c Candidate
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("promotion: parse candidate: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCandidateFile loads one candidate specification from a YAML file.
func LoadCandidateFile(path string) (*Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("promotion: read %s: %w", path, err)
	}
	c, err := LoadCandidate(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return c, nil
}
