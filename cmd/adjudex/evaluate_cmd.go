package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/adjudex/adjudex/pkg/audit"
	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/evaluator"
	"github.com/adjudex/adjudex/pkg/ledger"
)

var (
	evaluateCaseFile     string
	evaluateEvidenceFile string
	evaluateNoLedger     bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one case against an evidence snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := casespec.LoadFile(evaluateCaseFile)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(evaluateEvidenceFile)
		if err != nil {
			return err
		}

		result := evaluator.Evaluate(c, snap)
		_ = auditor.Record(audit.EventEvaluation, "evaluate", result.CaseID, map[string]interface{}{
			"status": string(result.Status),
			"score":  result.Score,
		})
		slog.Info("evaluated case",
			"case_id", result.CaseID,
			"status", result.Status,
			"score", result.Score,
		)

		if !evaluateNoLedger {
			led, err := ledger.OpenFile(cfg.RunLedgerPath())
			if err != nil {
				return err
			}
			payload, err := toPayload(result)
			if err != nil {
				return err
			}
			entry, err := led.Append("evaluation_result", payload)
			if err != nil {
				return err
			}
			_ = auditor.Record(audit.EventLedger, "append", led.Path(), map[string]interface{}{
				"entry_type": entry.EntryType,
				"sequence":   entry.Sequence,
				"step_hash":  entry.StepHash,
			})
		}

		return printJSON(result)
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluateCaseFile, "case", "", "case specification YAML (required)")
	evaluateCmd.Flags().StringVar(&evaluateEvidenceFile, "evidence", "", "evidence snapshot JSON (required)")
	evaluateCmd.Flags().BoolVar(&evaluateNoLedger, "no-ledger", false, "skip the run ledger append")
	_ = evaluateCmd.MarkFlagRequired("case")
	_ = evaluateCmd.MarkFlagRequired("evidence")
}
