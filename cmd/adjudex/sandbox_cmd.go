package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adjudex/adjudex/pkg/audit"
	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/portfolio"
	"github.com/adjudex/adjudex/pkg/promotion"
	"github.com/adjudex/adjudex/pkg/stabilize"
	"github.com/adjudex/adjudex/pkg/store"
)

var (
	sandboxRunID         string
	sandboxCandidateFile string
	sandboxCasesDir      string
	sandboxEvidenceFile  string
	sandboxTargetFiles   []string
	sandboxNoRegFiles    []string
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Exercise a candidate change in the sandbox",
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := promotion.LoadCandidateFile(sandboxCandidateFile)
		if err != nil {
			return err
		}
		cases, err := casespec.LoadDir(sandboxCasesDir)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(sandboxEvidenceFile)
		if err != nil {
			return err
		}
		targets, err := loadPortfolios(sandboxTargetFiles)
		if err != nil {
			return err
		}
		noRegression, err := loadPortfolios(sandboxNoRegFiles)
		if err != nil {
			return err
		}

		led, err := ledger.OpenFile(cfg.SandboxLedgerPath())
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.StorePath())
		if err != nil {
			return err
		}
		defer st.Close()

		tracker := stabilize.NewTracker(cfg.StabilizationWindow)
		if err := replayStabilization(cmd, st, tracker, candidate.ID); err != nil {
			return err
		}

		runner := promotion.NewRunner(led, tracker, st)
		result, err := runner.Run(cmd.Context(), sandboxRunID, candidate, targets, noRegression, cases, snap)
		if err != nil {
			return err
		}

		window, _ := tracker.State(candidate.ID)
		_ = auditor.Record(audit.EventSandbox, "sandbox-run", candidate.ID, map[string]interface{}{
			"run_id": result.RunID,
			"pass":   result.Pass,
		})
		slog.Info("sandbox run complete",
			"run_id", result.RunID,
			"candidate", result.CandidateID,
			"pass", result.Pass,
			"consecutive_pass", window.ConsecutivePass,
			"stable", window.Stable(),
		)
		return printJSON(result.Report())
	},
}

func loadPortfolios(paths []string) ([]*portfolio.Portfolio, error) {
	out := make([]*portfolio.Portfolio, 0, len(paths))
	for _, path := range paths {
		pf, err := portfolio.LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, pf)
	}
	return out, nil
}

// replayStabilization rebuilds a candidate's stabilization window from its
// stored sandbox history, in chronological order.
func replayStabilization(cmd *cobra.Command, st *store.Store, tracker *stabilize.Tracker, candidateID string) error {
	history, err := st.ListSandboxResults(cmd.Context(), candidateID)
	if err != nil {
		return err
	}
	for _, past := range history {
		if _, err := tracker.RecordRun(candidateID, past.RunID, past.Pass); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	sandboxCmd.Flags().StringVar(&sandboxRunID, "run-id", "", "sandbox run identifier (required)")
	sandboxCmd.Flags().StringVar(&sandboxCandidateFile, "candidate", "", "candidate specification YAML (required)")
	sandboxCmd.Flags().StringVar(&sandboxCasesDir, "cases", "", "directory of case YAML files (required)")
	sandboxCmd.Flags().StringVar(&sandboxEvidenceFile, "evidence", "", "evidence snapshot JSON (required)")
	sandboxCmd.Flags().StringSliceVar(&sandboxTargetFiles, "target", nil, "target portfolio YAML (repeatable)")
	sandboxCmd.Flags().StringSliceVar(&sandboxNoRegFiles, "no-regression", nil, "no-regression portfolio YAML (repeatable)")
	_ = sandboxCmd.MarkFlagRequired("run-id")
	_ = sandboxCmd.MarkFlagRequired("candidate")
	_ = sandboxCmd.MarkFlagRequired("cases")
	_ = sandboxCmd.MarkFlagRequired("evidence")
}
