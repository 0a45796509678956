package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

// ExpectedSchemaVersion is the schema version Migrate leaves the database at.
const ExpectedSchemaVersion = 4

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT UNIQUE NOT NULL,
					account_id TEXT NOT NULL,
					posted_date TEXT NOT NULL,
					amount TEXT NOT NULL,
					raw_merchant TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_account_date ON transactions(account_id, posted_date)`,
				`CREATE TABLE IF NOT EXISTS classifications (
					transaction_id TEXT PRIMARY KEY REFERENCES transactions(id) ON DELETE CASCADE,
					run_id TEXT NOT NULL,
					normalized_merchant TEXT NOT NULL,
					category TEXT NOT NULL,
					source TEXT NOT NULL,
					reason TEXT NOT NULL DEFAULT '',
					confidence REAL NOT NULL DEFAULT 0,
					classified_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_classifications_category ON classifications(category)`,
				`CREATE INDEX IF NOT EXISTS idx_classifications_run ON classifications(run_id)`,
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
		Description: "Add category rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS category_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL DEFAULT '',
					pattern TEXT NOT NULL,
					match_type TEXT NOT NULL DEFAULT 'substring',
					category TEXT NOT NULL,
					priority INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(pattern, match_type, priority)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_category_rules_priority ON category_rules(priority DESC)`,
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
		Version:     3,
		Description: "Add recurring pattern snapshots",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS recurring_patterns (
					account_id TEXT NOT NULL,
					merchant TEXT NOT NULL,
					status TEXT NOT NULL,
					pattern_type TEXT NOT NULL,
					payload TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					PRIMARY KEY (account_id, merchant)
				)`,
				`CREATE INDEX IF NOT EXISTS idx_recurring_patterns_status ON recurring_patterns(status)`,
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
		Version:     4,
		Description: "Add rejected transactions",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE IF NOT EXISTS rejections (
				transaction_id TEXT PRIMARY KEY REFERENCES transactions(id) ON DELETE CASCADE,
				run_id TEXT NOT NULL,
				reason TEXT NOT NULL,
				rejected_at TEXT NOT NULL
			)`)
			if err != nil {
				return fmt.Errorf("failed to execute query: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}
	return nil
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
