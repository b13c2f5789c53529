package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adjudex/adjudex/pkg/promotion"
	"github.com/adjudex/adjudex/pkg/replay"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGetReport(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	mean := 0.5
	report := &replay.Report{
		ReportKey:   "abc123",
		RunID:       "run-1",
		PortfolioID: "h2",
		CaseIDs:     []string{"case-a"},
		Deltas:      map[string]*float64{"score_mean": &mean},
	}
	require.NoError(t, s.SaveReport(ctx, report))

	got, err := s.GetReport(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "h2", got.PortfolioID)
	assert.Equal(t, []string{"case-a"}, got.CaseIDs)
	require.NotNil(t, got.Deltas["score_mean"])
	assert.Equal(t, 0.5, *got.Deltas["score_mean"])
}

func TestGetReportNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.GetReport(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSaveReportIdempotentByKey(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	report := &replay.Report{ReportKey: "abc123", RunID: "run-1", PortfolioID: "h2"}
	require.NoError(t, s.SaveReport(ctx, report))
	report.RunID = "run-1-again"
	require.NoError(t, s.SaveReport(ctx, report))

	got, err := s.GetReport(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, "run-1-again", got.RunID)
}

func TestSandboxResultsChronological(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	outcomes := []bool{true, false, true}
	for i, pass := range outcomes {
		r := &promotion.SandboxResult{
			RunID:       "run-" + string(rune('a'+i)),
			CandidateID: "cand-1",
			Pass:        pass,
		}
		require.NoError(t, s.SaveSandboxResult(ctx, r))
	}
	// Another candidate's results must not bleed in.
	require.NoError(t, s.SaveSandboxResult(ctx, &promotion.SandboxResult{
		RunID: "other", CandidateID: "cand-2", Pass: true,
	}))

	results, err := s.ListSandboxResults(ctx, "cand-1")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "run-a", results[0].RunID)
	assert.Equal(t, "run-b", results[1].RunID)
	assert.Equal(t, "run-c", results[2].RunID)
	assert.True(t, results[0].Pass)
	assert.False(t, results[1].Pass)
}

func TestListSandboxResultsEmpty(t *testing.T) {
	s := openStore(t)
	results, err := s.ListSandboxResults(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, results)
}
