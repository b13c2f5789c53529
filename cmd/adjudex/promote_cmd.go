package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adjudex/adjudex/pkg/audit"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/promotion"
	"github.com/adjudex/adjudex/pkg/stabilize"
	"github.com/adjudex/adjudex/pkg/store"
)

var (
	promoteCandidateFile string
	promoteDryRun        bool
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Attempt to promote a stabilized candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := promotion.LoadCandidateFile(promoteCandidateFile)
		if err != nil {
			return err
		}

		st, err := store.Open(cfg.StorePath())
		if err != nil {
			return err
		}
		defer st.Close()

		history, err := st.ListSandboxResults(cmd.Context(), candidate.ID)
		if err != nil {
			return err
		}
		results := make([]promotion.SandboxResult, len(history))
		tracker := stabilize.NewTracker(cfg.StabilizationWindow)
		for i, past := range history {
			results[i] = *past
			if _, err := tracker.RecordRun(candidate.ID, past.RunID, past.Pass); err != nil {
				return err
			}
		}

		led, err := ledger.OpenFile(cfg.SandboxLedgerPath())
		if err != nil {
			return err
		}
		gate := promotion.NewGate(tracker, led, cfg.OverridePath(), cfg.TicketDir())

		if promoteDryRun {
			failures := gate.CanPromote(candidate, results)
			return printJSON(map[string]interface{}{
				"candidate_id": candidate.ID,
				"eligible":     len(failures) == 0,
				"failures":     failures,
			})
		}

		record, err := gate.Promote(cmd.Context(), candidate, results)
		if err != nil {
			var rejection *promotion.RejectionError
			if errors.As(err, &rejection) {
				// Rejection is a structured outcome: report every unmet
				// criterion and exit nonzero.
				_ = printJSON(map[string]interface{}{
					"candidate_id": rejection.CandidateID,
					"eligible":     false,
					"failures":     rejection.Failures,
				})
			}
			return err
		}

		_ = auditor.Record(audit.EventPromotion, "promote", record.CandidateID, map[string]interface{}{
			"action": record.Action,
		})
		slog.Info("candidate promoted",
			"candidate", record.CandidateID,
			"action", record.Action,
		)
		return printJSON(record)
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteCandidateFile, "candidate", "", "candidate specification YAML (required)")
	promoteCmd.Flags().BoolVar(&promoteDryRun, "dry-run", false, "report eligibility without side effects")
	_ = promoteCmd.MarkFlagRequired("candidate")
}
