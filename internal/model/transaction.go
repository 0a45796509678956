package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction represents a single financial transaction from any source.
// Transactions are immutable once ingested.
type Transaction struct {
	PostedDate  time.Time       `json:"posted_date" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	ID          string          `json:"id" validate:"required,max=128"`
	AccountID   string          `json:"account_id" validate:"required,max=128"`
	RawMerchant string          `json:"raw_merchant" validate:"merchant"`
}

// IsDebit reports whether the transaction moves money out of the account.
func (t Transaction) IsDebit() bool {
	return t.Amount.IsNegative()
}

// GenerateHash creates a stable hash for duplicate detection across imports.
func (t Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		t.PostedDate.Format("2006-01-02"),
		t.Amount.StringFixed(2),
		t.RawMerchant,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Source identifies which stage produced a transaction's category.
type Source string

// Classification sources.
const (
	SourceRule     Source = "rule"
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
)

// CategorizedTransaction is a transaction with exactly one category assigned.
type CategorizedTransaction struct {
	Transaction
	ClassifiedAt       time.Time `json:"classified_at"`
	NormalizedMerchant string    `json:"normalized_merchant"`
	Category           Category  `json:"category"`
	Source             Source    `json:"source"`
	Reason             string    `json:"reason,omitempty"`
	RunID              string    `json:"run_id,omitempty"`
	Confidence         float64   `json:"confidence"`
}

// Unclassified builds the source=none result for a transaction.
func Unclassified(txn Transaction, normalized, reason string) CategorizedTransaction {
	return CategorizedTransaction{
		Transaction:        txn,
		NormalizedMerchant: normalized,
		Category:           CategoryUncategorized,
		Confidence:         0,
		Source:             SourceNone,
		Reason:             reason,
	}
}

// RejectedTransaction records a malformed input that was excluded from a batch.
type RejectedTransaction struct {
	Err         error       `json:"-"`
	Transaction Transaction `json:"transaction"`
	Reason      string      `json:"reason"`
	Index       int         `json:"index"`
}
