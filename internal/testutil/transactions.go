package testutil

import (
	"fmt"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
)

// BaseDate anchors generated transaction dates.
var BaseDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TransactionBuilder assembles a model.Transaction with sensible defaults.
type TransactionBuilder struct {
	txn model.Transaction
}

// NewTransaction starts a debit of 10.00 at TEST MERCHANT on BaseDate.
func NewTransaction(id string) *TransactionBuilder {
	return &TransactionBuilder{txn: model.Transaction{
		ID:          id,
		AccountID:   "checking",
		PostedDate:  BaseDate,
		Amount:      decimal.RequireFromString("-10.00"),
		RawMerchant: "TEST MERCHANT",
	}}
}

// Account sets the account ID.
func (b *TransactionBuilder) Account(accountID string) *TransactionBuilder {
	b.txn.AccountID = accountID
	return b
}

// Merchant sets the raw merchant string.
func (b *TransactionBuilder) Merchant(raw string) *TransactionBuilder {
	b.txn.RawMerchant = raw
	return b
}

// Day sets the posted date to BaseDate plus n days.
func (b *TransactionBuilder) Day(n int) *TransactionBuilder {
	b.txn.PostedDate = BaseDate.AddDate(0, 0, n)
	return b
}

// Debit sets a negative amount from a decimal string such as "9.99".
func (b *TransactionBuilder) Debit(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount).Abs().Neg()
	return b
}

// Credit sets a positive amount from a decimal string.
func (b *TransactionBuilder) Credit(amount string) *TransactionBuilder {
	b.txn.Amount = decimal.RequireFromString(amount).Abs()
	return b
}

// Build returns the assembled transaction.
func (b *TransactionBuilder) Build() model.Transaction {
	return b.txn
}

// Monthly generates count debits at merchant spaced every interval days.
func Monthly(accountID, merchant, amount string, interval, count int) []model.Transaction {
	txns := make([]model.Transaction, 0, count)
	for i := range count {
		txns = append(txns, NewTransaction(fmt.Sprintf("%s-%s-%d", accountID, merchant, i)).
			Account(accountID).
			Merchant(merchant).
			Day(i*interval).
			Debit(amount).
			Build())
	}
	return txns
}

// FakeTransactions generates n reproducible one-off debits for accountID.
func FakeTransactions(seed uint64, accountID string, n int) []model.Transaction {
	faker := gofakeit.New(seed)
	txns := make([]model.Transaction, 0, n)
	for i := range n {
		cents := faker.Number(100, 25000)
		txns = append(txns, NewTransaction(fmt.Sprintf("fake-%d-%d", seed, i)).
			Account(accountID).
			Merchant(faker.Company()+" #"+faker.Numerify("####")).
			Day(faker.Number(0, 364)).
			Debit(decimal.New(int64(cents), -2).String()).
			Build())
	}
	return txns
}

func filterFor(accountID string) service.TransactionFilter {
	return service.TransactionFilter{AccountID: accountID}
}
