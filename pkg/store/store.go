// Package store persists counterfactual reports and sandbox results in a
// local SQLite database for later inspection. The ledger, not the store, is
// the source of truth; the store exists so reports can be queried without
// re-walking ledgers.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/adjudex/adjudex/pkg/promotion"
	"github.com/adjudex/adjudex/pkg/replay"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed report and sandbox-result store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the store at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing database handle.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS counterfactual_reports (
        report_key TEXT PRIMARY KEY,
        run_id TEXT NOT NULL,
        portfolio_id TEXT NOT NULL,
        payload JSON NOT NULL
    );
    CREATE TABLE IF NOT EXISTS sandbox_results (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        candidate_id TEXT NOT NULL,
        pass INTEGER NOT NULL,
        payload JSON NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// SaveReport persists a counterfactual report keyed by its report key.
func (s *Store) SaveReport(ctx context.Context, r *replay.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal report %s: %w", r.ReportKey, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO counterfactual_reports (report_key, run_id, portfolio_id, payload) VALUES (?, ?, ?, ?)`,
		r.ReportKey, r.RunID, r.PortfolioID, string(payload))
	if err != nil {
		return fmt.Errorf("store: insert report %s: %w", r.ReportKey, err)
	}
	return nil
}

// GetReport retrieves a counterfactual report by key.
func (s *Store) GetReport(ctx context.Context, reportKey string) (*replay.Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT payload FROM counterfactual_reports WHERE report_key = ?`, reportKey)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: report %s not found", reportKey)
		}
		return nil, err
	}
	var r replay.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("store: decode report %s: %w", reportKey, err)
	}
	return &r, nil
}

// SaveSandboxResult persists one sandbox result in insertion order.
func (s *Store) SaveSandboxResult(ctx context.Context, r *promotion.SandboxResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: marshal sandbox result %s: %w", r.RunID, err)
	}
	pass := 0
	if r.Pass {
		pass = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sandbox_results (run_id, candidate_id, pass, payload) VALUES (?, ?, ?, ?)`,
		r.RunID, r.CandidateID, pass, string(payload))
	if err != nil {
		return fmt.Errorf("store: insert sandbox result %s: %w", r.RunID, err)
	}
	return nil
}

// ListSandboxResults returns a candidate's sandbox results in chronological
// (insertion) order, which is the order the stabilization window consumed
// them in.
func (s *Store) ListSandboxResults(ctx context.Context, candidateID string) ([]*promotion.SandboxResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM sandbox_results WHERE candidate_id = ? ORDER BY seq ASC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []*promotion.SandboxResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var r promotion.SandboxResult
		if err := json.Unmarshal([]byte(payload), &r); err != nil {
			return nil, fmt.Errorf("store: decode sandbox result: %w", err)
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
