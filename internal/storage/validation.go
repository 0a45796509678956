// Package storage provides the SQLite persistence layer for the spice CLI.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidRule        = errors.New("invalid category rule")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateTransactions(transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}
	for i := range transactions {
		if err := validateTransaction(transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn model.Transaction) error {
	switch {
	case txn.ID == "":
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	case txn.PostedDate.IsZero():
		return fmt.Errorf("%w: missing posted date", ErrInvalidTransaction)
	case strings.TrimSpace(txn.RawMerchant) == "":
		return fmt.Errorf("%w: missing merchant", ErrInvalidTransaction)
	case txn.AccountID == "":
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	return nil
}

func validateRule(rule model.CategoryRule) error {
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if _, err := model.ParseMatchType(string(rule.MatchType)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if !rule.Category.IsValid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, rule.Category)
	}
	return nil
}
