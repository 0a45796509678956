package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// SaveRejections records transactions the engine refused so later runs do
// not pick them up again. A rejection is cleared once the transaction is
// classified.
func (s *SQLiteStorage) SaveRejections(ctx context.Context, runID string, rejected []model.RejectedTransaction, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(rejected) == 0 {
		return nil
	}
	if err := validateString(runID, "run_id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO rejections (transaction_id, run_id, reason, rejected_at)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range rejected {
		if err := validateString(r.Transaction.ID, "transaction_id"); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			r.Transaction.ID,
			runID,
			r.Reason,
			at.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to save rejection for %s: %w", r.Transaction.ID, err)
		}
	}

	return tx.Commit()
}

// CountRejections reports how many stored transactions are marked rejected.
func (s *SQLiteStorage) CountRejections(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rejections").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rejections: %w", err)
	}
	return count, nil
}
