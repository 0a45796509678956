package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// SaveTransactions stores transactions, skipping any whose id or content
// hash is already present. It returns how many rows were inserted.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateTransactions(transactions); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, hash, account_id, posted_date, amount, raw_merchant
		) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, txn := range transactions {
		res, execErr := stmt.ExecContext(ctx,
			txn.ID,
			txn.GenerateHash(),
			txn.AccountID,
			txn.PostedDate.UTC().Format(dateLayout),
			txn.Amount.String(),
			txn.RawMerchant,
		)
		if execErr != nil {
			return 0, fmt.Errorf("failed to insert transaction %s: %w", txn.ID, execErr)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return inserted, nil
}

// GetTransactions returns stored transactions ordered by posted date. With
// Unclassified set, transactions that were classified or rejected are skipped.
func (s *SQLiteStorage) GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT t.id, t.account_id, t.posted_date, t.amount, t.raw_merchant
		FROM transactions t`
	if filter.Unclassified {
		query += `
		LEFT JOIN classifications c ON c.transaction_id = t.id
		LEFT JOIN rejections r ON r.transaction_id = t.id`
	}

	where, args, err := filterClauses(filter)
	if err != nil {
		return nil, err
	}
	if filter.Unclassified {
		where = append(where, "c.transaction_id IS NULL", "r.transaction_id IS NULL")
	}
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
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, scanErr := scanTransaction(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// CountTransactions reports how many transactions are stored.
func (s *SQLiteStorage) CountTransactions(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// filterClauses builds the WHERE terms shared by transaction and
// classification queries. Columns are addressed through the "t" alias.
func filterClauses(filter service.TransactionFilter) ([]string, []any, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, nil, ErrInvalidDateRange
	}

	var (
		where []string
		args  []any
	)
	if filter.AccountID != "" {
		where = append(where, "t.account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.StartDate != nil {
		where = append(where, "t.posted_date >= ?")
		args = append(args, filter.StartDate.UTC().Format(dateLayout))
	}
	if filter.EndDate != nil {
		where = append(where, "t.posted_date <= ?")
		args = append(args, filter.EndDate.UTC().Format(dateLayout))
	}
	return where, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner, extra ...any) (model.Transaction, error) {
	var (
		txn    model.Transaction
		posted string
		amount string
	)
	dest := append([]any{&txn.ID, &txn.AccountID, &posted, &amount, &txn.RawMerchant}, extra...)
	if err := row.Scan(dest...); err != nil {
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	var err error
	if txn.PostedDate, err = time.ParseInLocation(dateLayout, posted, time.UTC); err != nil {
		return model.Transaction{}, fmt.Errorf("invalid posted date for %s: %w", txn.ID, err)
	}
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount for %s: %w", txn.ID, err)
	}
	return txn, nil
}
