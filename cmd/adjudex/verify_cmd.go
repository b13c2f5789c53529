package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adjudex/adjudex/pkg/ledger"
)

var verifyLedgerFile string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain of a ledger file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := verifyLedgerFile
		if path == "" {
			path = cfg.RunLedgerPath()
		}

		// Walk the raw file rather than OpenFile, which refuses corrupt
		// ledgers outright; verify must report the first bad entry.
		l := ledger.FileAt(path)
		result := l.VerifyChain()
		if err := printJSON(result); err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("ledger %s invalid from index %d: %s", path, result.FirstBadIndex, result.Reason)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyLedgerFile, "ledger", "", "ledger file to verify (default: run ledger)")
}
