package casespec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// caseSchema validates the structural shape of a case file before any typed
// decoding happens. Malformed specs fail fast and are never partially
// applied.
const caseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "window": {"type": "object"},
    "any_of": {"type": "array", "items": {"$ref": "#/$defs/trigger"}},
    "all_of": {"type": "array", "items": {"$ref": "#/$defs/trigger"}},
    "falsifiers": {"type": "array", "items": {"$ref": "#/$defs/trigger"}},
    "guardrails": {
      "type": "object",
      "properties": {
        "min_signal_count": {"type": "integer", "minimum": 0},
        "min_completeness": {"type": "number", "minimum": 0, "maximum": 1},
        "max_integrity_risk": {"type": "number", "minimum": 0},
        "required_ledgers": {"type": "array", "items": {"type": "string"}}
      }
    },
    "scoring": {
      "type": "object",
      "properties": {
        "trigger_weight": {"type": "number", "minimum": 0},
        "abstain_weight": {"type": "number", "minimum": 0}
      }
    },
    "selector": {"type": "object"}
  },
  "$defs": {
    "trigger": {
      "type": "object",
      "required": ["kind"],
      "properties": {
        "kind": {"type": "string", "minLength": 1},
        "direction": {"enum": ["gte", "lte"]}
      }
    }
  }
}`

var compiledCaseSchema = jsonschema.MustCompileString("case.schema.json", caseSchema)

// TriggerSpec is the declarative form of a trigger condition as authored in
// YAML. BuildTrigger converts it into the closed union.
type TriggerSpec struct {
	Kind          string   `yaml:"kind" json:"kind"`
	Term          string   `yaml:"term,omitempty" json:"term,omitempty"`
	Sources       []string `yaml:"sources,omitempty" json:"sources,omitempty"`
	MinCount      int      `yaml:"min_count,omitempty" json:"min_count,omitempty"`
	Ledger        string   `yaml:"ledger,omitempty" json:"ledger,omitempty"`
	Field         string   `yaml:"field,omitempty" json:"field,omitempty"`
	Threshold     float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Direction     string   `yaml:"direction,omitempty" json:"direction,omitempty"`
	MinCrossings  int      `yaml:"min_crossings,omitempty" json:"min_crossings,omitempty"`
	Category      string   `yaml:"category,omitempty" json:"category,omitempty"`
	CategoryField string   `yaml:"category_field,omitempty" json:"category_field,omitempty"`
}

type caseDoc struct {
	ID         string        `yaml:"id"`
	Window     Window        `yaml:"window"`
	AnyOf      []TriggerSpec `yaml:"any_of"`
	AllOf      []TriggerSpec `yaml:"all_of"`
	Falsifiers []TriggerSpec `yaml:"falsifiers"`
	Guardrails Guardrails    `yaml:"guardrails"`
	Scoring    Scoring       `yaml:"scoring"`
	Selector   Selector      `yaml:"selector"`
}

// BuildTrigger converts a declarative spec into the typed union. Unknown
// kinds are rejected here: the loader fails fast, while the evaluation path
// keeps its fail-open handling for payloads constructed programmatically.
func BuildTrigger(spec TriggerSpec) (Trigger, error) {
	cp := crossingParams{
		Ledger:       spec.Ledger,
		Field:        spec.Field,
		Threshold:    spec.Threshold,
		Direction:    Direction(spec.Direction),
		MinCrossings: spec.MinCrossings,
	}
	if cp.Direction == "" {
		cp.Direction = DirectionGTE
	}

	switch spec.Kind {
	case KindTermSeen:
		if spec.Term == "" {
			return nil, fmt.Errorf("casespec: term-seen requires a term")
		}
		return TermSeen{Term: spec.Term, Sources: spec.Sources, MinCount: spec.MinCount}, nil
	case KindWeightedShift:
		if err := validateCrossing(spec); err != nil {
			return nil, err
		}
		return WeightedShift{cp}, nil
	case KindVelocityShift:
		if err := validateCrossing(spec); err != nil {
			return nil, err
		}
		return VelocityShift{cp}, nil
	case KindIndexThreshold:
		if err := validateCrossing(spec); err != nil {
			return nil, err
		}
		return IndexThreshold{cp}, nil
	case KindIntegrityVector:
		if err := validateCrossing(spec); err != nil {
			return nil, err
		}
		if spec.Category == "" {
			return nil, fmt.Errorf("casespec: integrity-vector requires a category")
		}
		return IntegrityVector{crossingParams: cp, Category: spec.Category, CategoryField: spec.CategoryField}, nil
	default:
		return nil, fmt.Errorf("casespec: unknown trigger kind %q", spec.Kind)
	}
}

func validateCrossing(spec TriggerSpec) error {
	if spec.Ledger == "" {
		return fmt.Errorf("casespec: %s requires a ledger name", spec.Kind)
	}
	if spec.Field == "" {
		return fmt.Errorf("casespec: %s requires a field name", spec.Kind)
	}
	if spec.Direction != "" && spec.Direction != string(DirectionGTE) && spec.Direction != string(DirectionLTE) {
		return fmt.Errorf("casespec: %s direction must be gte or lte, got %q", spec.Kind, spec.Direction)
	}
	return nil
}

// Load parses and validates a case specification from raw YAML.
func Load(data []byte) (*EvaluationCase, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	var doc caseDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("casespec: parse: %w", err)
	}

	c := &EvaluationCase{
		ID:         doc.ID,
		Window:     doc.Window,
		Guardrails: doc.Guardrails,
		Scoring:    doc.Scoring,
		Selector:   doc.Selector,
	}

	var err error
	if c.AnyOf, err = buildTriggers(doc.AnyOf); err != nil {
		return nil, fmt.Errorf("casespec: case %s any_of: %w", doc.ID, err)
	}
	if c.AllOf, err = buildTriggers(doc.AllOf); err != nil {
		return nil, fmt.Errorf("casespec: case %s all_of: %w", doc.ID, err)
	}
	if c.Falsifiers, err = buildTriggers(doc.Falsifiers); err != nil {
		return nil, fmt.Errorf("casespec: case %s falsifiers: %w", doc.ID, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile loads one case specification from a YAML file.
func LoadFile(path string) (*EvaluationCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("casespec: read %s: %w", path, err)
	}
	c, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return c, nil
}

// LoadDir loads every *.yaml case file in a directory, sorted by case id.
// Any malformed file aborts the whole load.
func LoadDir(dir string) ([]*EvaluationCase, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	cases := make([]*EvaluationCase, 0, len(matches))
	for _, path := range matches {
		c, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func buildTriggers(specs []TriggerSpec) ([]Trigger, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]Trigger, 0, len(specs))
	for _, spec := range specs {
		t, err := BuildTrigger(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func validateAgainstSchema(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("casespec: parse: %w", err)
	}
	// Round-trip through JSON so the schema validator sees pure JSON types.
	jsonBytes, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("casespec: normalize for validation: %w", err)
	}
	var jsonVal interface{}
	if err := json.Unmarshal(jsonBytes, &jsonVal); err != nil {
		return fmt.Errorf("casespec: normalize for validation: %w", err)
	}
	if err := compiledCaseSchema.Validate(jsonVal); err != nil {
		return fmt.Errorf("casespec: schema violation: %w", err)
	}
	return nil
}
