package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
)

// SaveClassifications records the latest classification of each
// transaction. A later run replaces an earlier one and clears any rejection.
func (s *SQLiteStorage) SaveClassifications(ctx context.Context, classified []model.CategorizedTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(classified) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO classifications (
			transaction_id, run_id, normalized_merchant, category,
			source, reason, confidence, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	clearStmt, err := tx.PrepareContext(ctx, `DELETE FROM rejections WHERE transaction_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = clearStmt.Close() }()

	for _, ct := range classified {
		if err := validateString(ct.ID, "transaction_id"); err != nil {
			return err
		}
		if _, err := clearStmt.ExecContext(ctx, ct.ID); err != nil {
			return fmt.Errorf("failed to clear rejection for %s: %w", ct.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			ct.ID,
			ct.RunID,
			ct.NormalizedMerchant,
			string(ct.Category),
			string(ct.Source),
			ct.Reason,
			ct.Confidence,
			ct.ClassifiedAt.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to save classification for %s: %w", ct.ID, err)
		}
	}

	return tx.Commit()
}

// GetClassifications returns classified transactions matching filter,
// ordered by posted date. The Unclassified flag is ignored.
func (s *SQLiteStorage) GetClassifications(ctx context.Context, filter service.TransactionFilter) ([]model.CategorizedTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	where, args, err := filterClauses(filter)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT t.id, t.account_id, t.posted_date, t.amount, t.raw_merchant,
			c.run_id, c.normalized_merchant, c.category, c.source, c.reason,
			c.confidence, c.classified_at
		FROM transactions t
		JOIN classifications c ON c.transaction_id = t.id`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	query += "\n\t\tORDER BY t.posted_date, t.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []model.CategorizedTransaction
	for rows.Next() {
		var (
			ct           model.CategorizedTransaction
			category     string
			source       string
			classifiedAt string
		)
		txn, scanErr := scanTransaction(rows,
			&ct.RunID, &ct.NormalizedMerchant, &category, &source, &ct.Reason,
			&ct.Confidence, &classifiedAt)
		if scanErr != nil {
			return nil, scanErr
		}
		ct.Transaction = txn
		ct.Category = model.Category(category)
		ct.Source = model.Source(source)
		if ct.ClassifiedAt, err = time.Parse(time.RFC3339Nano, classifiedAt); err != nil {
			return nil, fmt.Errorf("invalid classified_at for %s: %w", txn.ID, err)
		}
		results = append(results, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classifications: %w", err)
	}
	return results, nil
}

// ClassificationStats counts stored classifications per source.
func (s *SQLiteStorage) ClassificationStats(ctx context.Context) (map[model.Source]int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM classifications GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classification stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[model.Source]int)
	for rows.Next() {
		var (
			source string
			count  int
		)
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan classification stats: %w", err)
		}
		stats[model.Source(source)] = count
	}
	return stats, rows.Err()
}
