package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adjudex/adjudex/pkg/audit"
	"github.com/adjudex/adjudex/pkg/casespec"
	"github.com/adjudex/adjudex/pkg/ledger"
	"github.com/adjudex/adjudex/pkg/portfolio"
	"github.com/adjudex/adjudex/pkg/replay"
	"github.com/adjudex/adjudex/pkg/store"
)

var (
	replayRunID          string
	replayPortfolioFile  string
	replayCasesDir       string
	replayEvidenceFile   string
	replayMasksFile      string
	replayInfluencesFile string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run a counterfactual replay over a portfolio under a mask list",
	RunE: func(cmd *cobra.Command, args []string) error {
		pf, err := portfolio.LoadFile(replayPortfolioFile)
		if err != nil {
			return err
		}
		cases, err := casespec.LoadDir(replayCasesDir)
		if err != nil {
			return err
		}
		snap, err := loadSnapshot(replayEvidenceFile)
		if err != nil {
			return err
		}
		masks, err := loadMasks(replayMasksFile)
		if err != nil {
			return err
		}
		influences, err := loadInfluences(replayInfluencesFile)
		if err != nil {
			return err
		}

		led, err := ledger.OpenFile(cfg.RunLedgerPath())
		if err != nil {
			return err
		}
		st, err := store.Open(cfg.StorePath())
		if err != nil {
			return err
		}
		defer st.Close()

		orch := replay.NewOrchestrator(replay.MapProvider(influences), led, st)
		report, err := orch.Run(cmd.Context(), replayRunID, pf, cases, snap, masks)
		if err != nil {
			return err
		}

		_ = auditor.Record(audit.EventReplay, "replay", report.ReportKey, map[string]interface{}{
			"run_id":       report.RunID,
			"portfolio_id": report.PortfolioID,
		})
		slog.Info("counterfactual replay complete",
			"report_key", report.ReportKey,
			"portfolio", report.PortfolioID,
			"cases", len(report.CaseIDs),
		)
		return printJSON(report)
	},
}

// loadMasks reads an ordered mask list from a YAML file.
func loadMasks(path string) ([]replay.Mask, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read masks %s: %w", path, err)
	}
	var specs []replay.MaskSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse masks %s: %w", path, err)
	}
	masks := make([]replay.Mask, 0, len(specs))
	for _, spec := range specs {
		m, err := replay.BuildMask(spec)
		if err != nil {
			return nil, err
		}
		masks = append(masks, m)
	}
	return masks, nil
}

func init() {
	replayCmd.Flags().StringVar(&replayRunID, "run-id", "", "run identifier (required)")
	replayCmd.Flags().StringVar(&replayPortfolioFile, "portfolio", "", "portfolio specification YAML (required)")
	replayCmd.Flags().StringVar(&replayCasesDir, "cases", "", "directory of case YAML files (required)")
	replayCmd.Flags().StringVar(&replayEvidenceFile, "evidence", "", "evidence snapshot JSON (required)")
	replayCmd.Flags().StringVar(&replayMasksFile, "masks", "", "ordered mask list YAML")
	replayCmd.Flags().StringVar(&replayInfluencesFile, "influences", "", "per-case influences JSON")
	_ = replayCmd.MarkFlagRequired("run-id")
	_ = replayCmd.MarkFlagRequired("portfolio")
	_ = replayCmd.MarkFlagRequired("cases")
	_ = replayCmd.MarkFlagRequired("evidence")
}
