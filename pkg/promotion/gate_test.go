package promotion

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/stabilize"
)

func gateFixture(t *testing.T) (*Gate, *stabilize.Tracker, *ledger.Chain, string, string) {
	t.Helper()
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "overrides.jsonl")
	ticketDir := filepath.Join(dir, "tickets")
	tracker := stabilize.NewTracker(3)
	chain := ledger.NewChain()
	gate := NewGate(tracker, chain, overridePath, ticketDir).
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) })
	return gate, tracker, chain, overridePath, ticketDir
}

func passingResult(runID string, portfolios ...string) SandboxResult {
	r := SandboxResult{RunID: runID, CandidateID: "cand-1", Pass: true}
	for _, name := range portfolios {
		r.Portfolios = append(r.Portfolios, PortfolioOutcome{
			Portfolio: name, Role: RoleTarget, Status: PortfolioPass,
		})
	}
	return r
}

func recordPasses(t *testing.T, tracker *stabilize.Tracker, outcomes ...bool) []SandboxResult {
	t.Helper()
	var results []SandboxResult
	for i, pass := range outcomes {
		runID := "run-" + string(rune('a'+i))
		_, err := tracker.RecordRun("cand-1", runID, pass)
		require.NoError(t, err)
		r := passingResult(runID, "h2")
		r.Pass = pass
		if !pass {
			r.Portfolios[0].Status = PortfolioFail
		}
		results = append(results, r)
	}
	return results
}

func TestPromoteRejectsUnstabilized(t *testing.T) {
	gate, tracker, _, _, _ := gateFixture(t)
	c := tweakCandidate("scoring.trigger_weight", 0.9)

	// Two passes in a window of three.
	results := recordPasses(t, tracker, true, true)

	_, err := gate.Promote(context.Background(), c, results)
	require.Error(t, err)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "cand-1", rejection.CandidateID)

	joined := strings.Join(rejection.Failures, "; ")
	assert.Contains(t, joined, "not stabilized")
}

func TestPromoteCollectsAllFailures(t *testing.T) {
	gate, _, _, _, _ := gateFixture(t)
	c := tweakCandidate("scoring.trigger_weight", 0.9)
	c.Enabled = false

	failures := gate.CanPromote(c, nil)
	joined := strings.Join(failures, "; ")
	assert.Contains(t, joined, "not stabilized")
	assert.Contains(t, joined, "no passing sandbox run")
	assert.Contains(t, joined, "no sandbox results")
	assert.Contains(t, joined, "disabled")
}

func TestPromoteWritesOverrideOnce(t *testing.T) {
	gate, tracker, chain, overridePath, _ := gateFixture(t)
	c := tweakCandidate("scoring.trigger_weight", 0.9)
	c.Rationale = "confirmed improvement"

	results := recordPasses(t, tracker, true, true, true)

	record, err := gate.Promote(context.Background(), c, results)
	require.NoError(t, err)
	assert.Equal(t, ActionOverrideWritten, record.Action)
	assert.Equal(t, 3, record.Stabilization.ConsecutivePass)

	// The override file carries exactly one record, with no previous value.
	f, err := os.Open(overridePath)
	require.NoError(t, err)
	defer f.Close()
	var recs []OverrideRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec OverrideRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		recs = append(recs, rec)
	}
	require.Len(t, recs, 1)
	assert.Equal(t, "scoring.trigger_weight", recs[0].ParamPath)
	assert.Equal(t, 0.9, recs[0].Value)
	assert.Nil(t, recs[0].PreviousValue)
	assert.Equal(t, "confirmed improvement", recs[0].Rationale)

	// Exactly one promotion record on the ledger.
	entries := chain.ReadAll()
	require.Len(t, entries, 1)
	assert.Equal(t, "promotion_record", entries[0].EntryType)

	// A second promotion of the same candidate is refused.
	_, err = gate.Promote(context.Background(), c, results)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already promoted")
}

func TestOverrideCarriesPreviousValue(t *testing.T) {
	gate, tracker, _, overridePath, _ := gateFixture(t)

	seed := OverrideRecord{ParamPath: "scoring.trigger_weight", Value: 0.7}
	line, err := json.Marshal(seed)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(overridePath, append(line, '\n'), 0o644))

	c := tweakCandidate("scoring.trigger_weight", 0.9)
	results := recordPasses(t, tracker, true, true, true)

	_, err = gate.Promote(context.Background(), c, results)
	require.NoError(t, err)

	data, err := os.ReadFile(overridePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec OverrideRecord
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, 0.7, rec.PreviousValue)
}

func TestPromoteNewMetricCreatesTicket(t *testing.T) {
	gate, tracker, chain, overridePath, ticketDir := gateFixture(t)

	c := &Candidate{
		ID:                 "cand-1",
		Kind:               KindNewMetric,
		Version:            "1.0.0",
		ImplementationSpec: "add brier_score to the aggregate summary",
		TargetPortfolios:   []string{"h2"},
		Enabled:            true,
	}
	results := recordPasses(t, tracker, true, true, true)

	record, err := gate.Promote(context.Background(), c, results)
	require.NoError(t, err)
	assert.Equal(t, ActionTicketCreated, record.Action)

	ticketPath := filepath.Join(ticketDir, "ticket-cand-1.json")
	data, err := os.ReadFile(ticketPath)
	require.NoError(t, err)
	var ticket map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &ticket))
	assert.Equal(t, "new-metric", ticket["kind"])
	assert.Equal(t, "add brier_score to the aggregate summary", ticket["implementation_spec"])

	// Ticket promotion must not touch the override file.
	_, err = os.Stat(overridePath)
	assert.True(t, os.IsNotExist(err))

	require.Len(t, chain.ReadAll(), 1)
}

func TestPromoteRejectsWhenLatestRunFailed(t *testing.T) {
	gate, tracker, _, _, _ := gateFixture(t)
	c := tweakCandidate("scoring.trigger_weight", 0.9)

	results := recordPasses(t, tracker, true, true, true, false)

	_, err := gate.Promote(context.Background(), c, results)
	require.Error(t, err)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	joined := strings.Join(rejection.Failures, "; ")
	assert.Contains(t, joined, "most recent sandbox run")
}

func TestPromoteRejectsFailingTargetPortfolio(t *testing.T) {
	gate, tracker, _, _, _ := gateFixture(t)
	c := tweakCandidate("scoring.trigger_weight", 0.9)
	c.TargetPortfolios = []string{"h2", "missing"}

	results := recordPasses(t, tracker, true, true, true)

	_, err := gate.Promote(context.Background(), c, results)
	require.Error(t, err)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	joined := strings.Join(rejection.Failures, "; ")
	assert.Contains(t, joined, "missing")
}

func TestRejectionErrorMessage(t *testing.T) {
	err := &RejectionError{CandidateID: "cand-1", Failures: []string{"a", "b"}}
	assert.Equal(t, "promotion of cand-1 rejected: a; b", err.Error())
}
