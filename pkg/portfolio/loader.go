package portfolio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type portfolioDoc struct {
	Name       string          `yaml:"name"`
	Horizon    string          `yaml:"horizon"`
	Segment    string          `yaml:"segment"`
	Narrative  string          `yaml:"narrative"`
	Predicates []PredicateSpec `yaml:"predicates"`
}

// Load parses a portfolio specification from raw YAML, failing fast on
// malformed or unknown predicate specs.
func Load(data []byte) (*Portfolio, error) {
	var doc portfolioDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("portfolio: parse: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("portfolio: name is required")
	}

	p := &Portfolio{
		Name:      doc.Name,
		Horizon:   doc.Horizon,
		Segment:   doc.Segment,
		Narrative: doc.Narrative,
	}
	for _, spec := range doc.Predicates {
		pred, err := BuildPredicate(spec)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", doc.Name, err)
		}
		p.Predicates = append(p.Predicates, pred)
	}
	return p, nil
}

// LoadFile loads one portfolio specification from a YAML file.
func LoadFile(path string) (*Portfolio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("portfolio: read %s: %w", path, err)
	}
	p, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return p, nil
}
