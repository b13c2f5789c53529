// Package config holds runtime configuration for the trust core, loaded
// from environment variables with local-first defaults.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/adjudex/adjudex/pkg/stabilize"
)

// Config holds engine configuration.
type Config struct {
	// DataDir is the root for ledgers, the report store, override file,
	// and tickets.
	DataDir string
	// LogLevel is the slog level name for operational logging.
	LogLevel string
	// StabilizationWindow is the required consecutive-pass count before a
	// candidate may promote.
	StabilizationWindow int
}

// Load loads configuration from environment variables.
func Load() *Config {
	dataDir := os.Getenv("ADJUDEX_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	logLevel := os.Getenv("ADJUDEX_LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	window := stabilize.DefaultWindowSize
	if raw := os.Getenv("ADJUDEX_STABILIZATION_WINDOW"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			window = n
		}
	}

	return &Config{
		DataDir:             dataDir,
		LogLevel:            logLevel,
		StabilizationWindow: window,
	}
}

// RunLedgerPath is the evaluation/replay ledger file.
func (c *Config) RunLedgerPath() string {
	return filepath.Join(c.DataDir, "run_ledger.jsonl")
}

// SandboxLedgerPath is the sandbox/promotion ledger file.
func (c *Config) SandboxLedgerPath() string {
	return filepath.Join(c.DataDir, "sandbox_ledger.jsonl")
}

// StorePath is the SQLite report store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "reports.db")
}

// OverridePath is the append-only parameter override file.
func (c *Config) OverridePath() string {
	return filepath.Join(c.DataDir, "overrides.jsonl")
}

// TicketDir holds implementation tickets created by promotions.
func (c *Config) TicketDir() string {
	return filepath.Join(c.DataDir, "tickets")
}
