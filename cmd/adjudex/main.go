// Command adjudex is the operator surface of the trust core: evaluate cases
// against evidence, verify ledgers, run counterfactual replays, exercise
// sandbox candidates, and promote them.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adjudex/adjudex/pkg/audit"
	"github.com/adjudex/adjudex/pkg/config"
)

var (
	cfg     *config.Config
	auditor audit.Logger = audit.Nop{}

	rootCmd = &cobra.Command{
		Use:   "adjudex",
		Short: "Deterministic case adjudication, counterfactual replay, and governed promotion",
		Long: `adjudex is the trust core of the forecasting platform. It decides,
reproducibly, whether a stated prediction was confirmed or refuted by
observed evidence, measures verdict sensitivity via counterfactual replay,
and governs rule changes through stabilization and a tamper-evident ledger.`,
		SilenceUsage: true,
	}
)

func main() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(sandboxCmd)
	rootCmd.AddCommand(promoteCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	cfg = config.Load()

	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Audit events go to stderr; stdout carries command output only.
	auditor = audit.NewLoggerWithWriter(os.Stderr)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "error: create data dir:", err)
		os.Exit(1)
	}
}
