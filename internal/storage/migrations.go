package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version the application expects.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT NOT NULL,
					source TEXT NOT NULL,
					source_detail TEXT DEFAULT '',
					entity TEXT NOT NULL,
					date DATETIME NOT NULL,
					description TEXT NOT NULL,
					merchant TEXT DEFAULT '',
					amount_cents INTEGER NOT NULL,
					currency TEXT NOT NULL DEFAULT 'PHP',
					account_code TEXT DEFAULT '',
					account_name TEXT DEFAULT '',
					category TEXT DEFAULT '',
					method TEXT DEFAULT '',
					confidence REAL DEFAULT 0,
					duplicate INTEGER DEFAULT 0,
					duplicate_reason TEXT DEFAULT '',
					anomaly INTEGER DEFAULT 0,
					anomaly_reason TEXT DEFAULT '',
					anomaly_severity TEXT DEFAULT '',
					approved INTEGER DEFAULT 0,
					approver TEXT DEFAULT '',
					decided_at DATETIME,
					status TEXT NOT NULL DEFAULT 'created',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_entity_date ON transactions(entity, date)`,
				`CREATE INDEX idx_transactions_status ON transactions(status)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,

				`CREATE TABLE IF NOT EXISTS merchant_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					pattern TEXT NOT NULL,
					entity TEXT NOT NULL DEFAULT '',
					is_regex INTEGER NOT NULL DEFAULT 0,
					account_code TEXT NOT NULL,
					account_name TEXT NOT NULL,
					category TEXT NOT NULL,
					confidence REAL NOT NULL,
					provenance TEXT NOT NULL,
					use_count INTEGER NOT NULL DEFAULT 0,
					last_used_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(pattern, entity)
				)`,
				`CREATE INDEX idx_merchant_rules_entity ON merchant_rules(entity)`,

				`CREATE TABLE IF NOT EXISTS budget_entries (
					entity TEXT NOT NULL,
					account_code TEXT NOT NULL,
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					amount_cents INTEGER NOT NULL,
					PRIMARY KEY (entity, account_code, year, month)
				)`,

				`CREATE TABLE IF NOT EXISTS budget_actuals (
					entity TEXT NOT NULL,
					account_code TEXT NOT NULL,
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					amount_cents INTEGER NOT NULL DEFAULT 0,
					PRIMARY KEY (entity, account_code, year, month)
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Alerts and approvals",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS alerts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					entity TEXT NOT NULL,
					account_code TEXT NOT NULL,
					year INTEGER NOT NULL,
					month INTEGER NOT NULL,
					threshold_pct INTEGER NOT NULL,
					actual_cents INTEGER NOT NULL,
					budget_cents INTEGER NOT NULL,
					utilization REAL NOT NULL,
					triggered_at DATETIME NOT NULL,
					acknowledged INTEGER NOT NULL DEFAULT 0,
					UNIQUE(entity, account_code, year, month, threshold_pct)
				)`,

				`CREATE TABLE IF NOT EXISTS approvals (
					id TEXT PRIMARY KEY,
					request_type TEXT NOT NULL,
					reference_id TEXT NOT NULL,
					entity TEXT NOT NULL,
					amount_cents INTEGER NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					requester TEXT NOT NULL,
					decider TEXT DEFAULT '',
					notes TEXT DEFAULT '',
					reasons TEXT DEFAULT '',
					requested_at DATETIME NOT NULL,
					decided_at DATETIME
				)`,
				`CREATE INDEX idx_approvals_status ON approvals(status)`,
				`CREATE INDEX idx_approvals_entity ON approvals(entity)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
			m.Version, m.Description); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}

		slog.Info("Applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
