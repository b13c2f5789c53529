package promotion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adjudex/adjudex/pkg/stabilize"
)

// OverrideRecord is one append-only entry in the parameter override file,
// written only by the promotion gate.
type OverrideRecord struct {
	ParamPath     string      `json:"param_path"`
	Value         interface{} `json:"value"`
	PreviousValue interface{} `json:"previous_value"`
	PromotedAt    time.Time   `json:"promoted_at"`
	CandidateID   string      `json:"candidate_id"`
	Rationale     string      `json:"rationale"`
}

// PromotionRecord is the one-time audited act of making a candidate
// effective. Written once, only by the gate, only into the ledger.
type PromotionRecord struct {
	CandidateID     string                 `json:"candidate_id"`
	Action          string                 `json:"action"`
	Stabilization   stabilize.Window       `json:"stabilization"`
	EvidenceSummary map[string]interface{} `json:"evidence_summary"`
	PromotedAt      time.Time              `json:"promoted_at"`
}

// Promotion actions.
const (
	ActionOverrideWritten = "parameter-override-written"
	ActionTicketCreated   = "implementation-ticket-created"
)

// RejectionError carries every unmet promotion criterion, not just the
// first.
type RejectionError struct {
	CandidateID string
	Failures    []string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("promotion of %s rejected: %s", e.CandidateID, strings.Join(e.Failures, "; "))
}

// Gate is the final authority over whether a candidate becomes effective.
type Gate struct {
	mu           sync.Mutex
	tracker      *stabilize.Tracker
	ledger       Appender
	overridePath string
	ticketDir    string
	clock        func() time.Time
	promoted     map[string]bool
}

// NewGate creates a promotion gate.
func NewGate(tracker *stabilize.Tracker, led Appender, overridePath, ticketDir string) *Gate {
	return &Gate{
		tracker:      tracker,
		ledger:       led,
		overridePath: overridePath,
		ticketDir:    ticketDir,
		clock:        time.Now,
		promoted:     make(map[string]bool),
	}
}

// WithClock overrides the clock for testing.
func (g *Gate) WithClock(clock func() time.Time) *Gate {
	g.clock = clock
	return g
}

// CanPromote checks every promotion criterion in order and returns all
// failures together. An empty slice means the candidate is eligible.
func (g *Gate) CanPromote(c *Candidate, results []SandboxResult) []string {
	var failures []string

	window, tracked := g.tracker.State(c.ID)
	if !tracked || !window.Stable() {
		failures = append(failures, fmt.Sprintf(
			"not stabilized: %d consecutive passes of %d required",
			window.ConsecutivePass, windowSizeOrDefault(window)))
	}

	passes := 0
	for _, r := range results {
		if r.Pass {
			passes++
		}
	}
	if passes == 0 {
		failures = append(failures, "no passing sandbox run exists")
	}

	if len(results) == 0 {
		failures = append(failures, "no sandbox results recorded")
	} else {
		latest := results[len(results)-1]
		if !latest.Pass {
			failures = append(failures, fmt.Sprintf("most recent sandbox run %s failed", latest.RunID))
		}
		for _, name := range c.TargetPortfolios {
			if status := portfolioStatus(latest, name); status != PortfolioPass {
				failures = append(failures, fmt.Sprintf("target portfolio %s reports %s", name, status))
			}
		}
		for _, name := range c.NoRegressionPortfolios {
			if status := portfolioStatus(latest, name); status != PortfolioPass {
				failures = append(failures, fmt.Sprintf("no-regression portfolio %s reports %s", name, status))
			}
		}
	}

	switch c.Kind {
	case KindParameterTweak:
		if c.ParamPath == "" {
			failures = append(failures, "parameter-tweak names no parameter path")
		}
	case KindNewMetric, KindNewOperator:
		if c.ImplementationSpec == "" {
			failures = append(failures, fmt.Sprintf("%s carries no implementation spec", c.Kind))
		}
	}

	if !c.Enabled {
		failures = append(failures, "candidate is disabled")
	}

	return failures
}

// Promote makes the candidate effective: exactly one externally visible
// side effect (a parameter override append, or an implementation ticket)
// and exactly one PromotionRecord ledger append. Never speculative; a
// candidate promotes at most once.
func (g *Gate) Promote(ctx context.Context, c *Candidate, results []SandboxResult) (*PromotionRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.promoted[c.ID] {
		return nil, fmt.Errorf("promotion: candidate %s already promoted", c.ID)
	}
	if failures := g.CanPromote(c, results); len(failures) > 0 {
		return nil, &RejectionError{CandidateID: c.ID, Failures: failures}
	}

	window, _ := g.tracker.State(c.ID)
	now := g.clock().UTC()

	var action string
	switch c.Kind {
	case KindParameterTweak:
		if err := g.appendOverride(c, now); err != nil {
			return nil, err
		}
		action = ActionOverrideWritten
	default:
		if err := g.writeTicket(c, now); err != nil {
			return nil, err
		}
		action = ActionTicketCreated
	}

	latest := results[len(results)-1]
	record := &PromotionRecord{
		CandidateID:   c.ID,
		Action:        action,
		Stabilization: window,
		EvidenceSummary: map[string]interface{}{
			"sandbox_runs":  len(results),
			"latest_run_id": latest.RunID,
			"latest_pass":   latest.Pass,
			"deltas":        latest.Deltas,
		},
		PromotedAt: now,
	}

	payload := map[string]interface{}{
		"candidate_id":     record.CandidateID,
		"action":           record.Action,
		"stabilization":    record.Stabilization,
		"evidence_summary": record.EvidenceSummary,
		"promoted_at":      now.Format(time.RFC3339Nano),
	}
	if _, err := g.ledger.Append("promotion_record", payload); err != nil {
		return nil, fmt.Errorf("promotion: ledger append for %s: %w", c.ID, err)
	}

	g.promoted[c.ID] = true
	return record, nil
}

// appendOverride appends one record to the parameter override file,
// carrying the previous value of the same path when one exists.
func (g *Gate) appendOverride(c *Candidate, now time.Time) error {
	previous, err := lastOverrideValue(g.overridePath, c.ParamPath)
	if err != nil {
		return err
	}
	rec := OverrideRecord{
		ParamPath:     c.ParamPath,
		Value:         c.Value,
		PreviousValue: previous,
		PromotedAt:    now,
		CandidateID:   c.ID,
		Rationale:     c.Rationale,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("promotion: marshal override for %s: %w", c.ID, err)
	}

	f, err := os.OpenFile(g.overridePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("promotion: open override file %s: %w", g.overridePath, err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("promotion: write override file %s: %w", g.overridePath, err)
	}
	return f.Sync()
}

// writeTicket creates the implementation ticket for a new-metric or
// new-operator candidate.
func (g *Gate) writeTicket(c *Candidate, now time.Time) error {
	if err := os.MkdirAll(g.ticketDir, 0o755); err != nil {
		return fmt.Errorf("promotion: create ticket dir %s: %w", g.ticketDir, err)
	}
	ticket := map[string]interface{}{
		"candidate_id":        c.ID,
		"kind":                string(c.Kind),
		"implementation_spec": c.ImplementationSpec,
		"created_at":          now.Format(time.RFC3339Nano),
		"rationale":           c.Rationale,
	}
	data, err := json.MarshalIndent(ticket, "", "  ")
	if err != nil {
		return fmt.Errorf("promotion: marshal ticket for %s: %w", c.ID, err)
	}
	path := filepath.Join(g.ticketDir, "ticket-"+c.ID+".json")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("promotion: ticket %s already exists", path)
	}
	return os.WriteFile(path, data, 0o644)
}

// lastOverrideValue scans the override file for the most recent value of a
// parameter path.
func lastOverrideValue(path, paramPath string) (interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("promotion: open override file %s: %w", path, err)
	}
	defer f.Close()

	var last interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec OverrideRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("promotion: override file %s corrupt: %w", path, err)
		}
		if rec.ParamPath == paramPath {
			last = rec.Value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return last, nil
}

func portfolioStatus(r SandboxResult, name string) PortfolioStatus {
	for _, p := range r.Portfolios {
		if p.Portfolio == name {
			return p.Status
		}
	}
	return PortfolioAbstain
}

func windowSizeOrDefault(w stabilize.Window) int {
	if w.Size <= 0 {
		return stabilize.DefaultWindowSize
	}
	return w.Size
}
