package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// SavePatterns upserts recurring pattern snapshots keyed by account and
// merchant. Patterns absent from the slice are left untouched.
func (s *SQLiteStorage) SavePatterns(ctx context.Context, patterns []model.RecurringPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(patterns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO recurring_patterns (
			account_id, merchant, status, pattern_type, payload, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, p := range patterns {
		if err := validateString(p.Key.AccountID, "account_id"); err != nil {
			return err
		}
		if err := validateString(p.Key.Merchant, "merchant"); err != nil {
			return err
		}

		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to encode pattern %s: %w", p.Key, err)
		}
		if _, err := stmt.ExecContext(ctx,
			p.Key.AccountID,
			p.Key.Merchant,
			string(p.Status),
			string(p.PatternType),
			string(payload),
			p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to save pattern %s: %w", p.Key, err)
		}
	}

	return tx.Commit()
}

// LoadPatterns returns every stored pattern ordered by account and merchant.
func (s *SQLiteStorage) LoadPatterns(ctx context.Context) ([]model.RecurringPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM recurring_patterns ORDER BY account_id, merchant
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var patterns []model.RecurringPattern
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		var p model.RecurringPattern
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating patterns: %w", err)
	}
	return patterns, nil
}
