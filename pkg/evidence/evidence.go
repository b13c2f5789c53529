// Package evidence defines the read-only view of observed evidence that
// cases are evaluated against: ordered signal events inside the case window
// and named domain ledgers of structured entries. Snapshots are supplied by
// the ingestion layer and never mutated here.
package evidence

import "time"

// IntegrityDomain is the domain ledger scanned for integrity risk.
const IntegrityDomain = "integrity"

// RiskField is the numeric field carrying integrity risk in integrity
// domain entries.
const RiskField = "risk"

// SignalEvent is one observed, in-window signal.
type SignalEvent struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// DomainEntry is one structured entry in a named domain ledger. Fields are
// free-form; triggers scan them for numeric crossings and category matches.
type DomainEntry struct {
	Fields map[string]interface{} `json:"fields"`
}

// NumericField extracts a numeric field, tolerating the integer/float
// ambiguity of decoded JSON and YAML.
func (d DomainEntry) NumericField(name string) (float64, bool) {
	v, ok := d.Fields[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// StringField extracts a string field.
func (d DomainEntry) StringField(name string) (string, bool) {
	v, ok := d.Fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Snapshot is a read-only view of evidence at evaluation time.
type Snapshot struct {
	SignalEvents  []SignalEvent            `json:"signal_events"`
	DomainLedgers map[string][]DomainEntry `json:"domain_ledgers"`
}

// SignalCount returns the number of in-window signal events.
func (s *Snapshot) SignalCount() int {
	return len(s.SignalEvents)
}

// Domain returns the entries of a named domain ledger, nil if absent.
func (s *Snapshot) Domain(name string) []DomainEntry {
	return s.DomainLedgers[name]
}

// Completeness returns |required ledgers present| / |required ledgers|,
// or 1.0 when none are required.
func (s *Snapshot) Completeness(required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	present := 0
	for _, name := range required {
		if _, ok := s.DomainLedgers[name]; ok {
			present++
		}
	}
	return float64(present) / float64(len(required))
}

// MaxIntegrityRisk returns the worst risk value seen in the integrity
// domain ledger. The second return is false when no risk values exist.
func (s *Snapshot) MaxIntegrityRisk() (float64, bool) {
	max := 0.0
	seen := false
	for _, entry := range s.Domain(IntegrityDomain) {
		if risk, ok := entry.NumericField(RiskField); ok {
			if !seen || risk > max {
				max = risk
			}
			seen = true
		}
	}
	return max, seen
}

// Influence is one attributable evidentiary contribution to a result.
// EventID links the influence to the signal event it attributes, which is
// how masked replay knows which events to drop.
type Influence struct {
	ID          string  `json:"id"`
	SourceLabel string  `json:"source_label"`
	Quarantined bool    `json:"quarantined"`
	Weight      float64 `json:"weight"` // in [0,1]
	SourceClass string  `json:"source_class"`
	Domain      string  `json:"domain"`
	EventID     string  `json:"event_id,omitempty"`
}
