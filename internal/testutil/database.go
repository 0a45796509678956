// Package testutil provides shared fixtures for tests: an in-memory database
// and transaction builders.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
)

// TestDB wraps a migrated in-memory storage scoped to one test.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions seeds a test database after migration.
type TestDBOptions struct {
	CustomSetup  func(context.Context, *storage.SQLiteStorage) error
	Rules        []model.CategoryRule
	Transactions []model.Transaction
}

// SetupTestDB creates a migrated in-memory database that is closed when the
// test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database and applies the seeds in opts.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(storage.MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(opts.Rules) > 0 {
		if _, err := store.SeedRules(ctx, opts.Rules); err != nil {
			t.Fatalf("failed to seed rules: %v", err)
		}
	}
	if len(opts.Transactions) > 0 {
		if _, err := store.SaveTransactions(ctx, opts.Transactions); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}
	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Storage: store, t: t}
}

// MustTransactions returns every stored transaction or fails the test.
func (db *TestDB) MustTransactions(ctx context.Context, accountID string) []model.Transaction {
	db.t.Helper()
	txns, err := db.Storage.GetTransactions(ctx, filterFor(accountID))
	if err != nil {
		db.t.Fatalf("failed to load transactions: %v", err)
	}
	return txns
}

// MustClassifications returns every stored classification or fails the test.
func (db *TestDB) MustClassifications(ctx context.Context, accountID string) []model.CategorizedTransaction {
	db.t.Helper()
	classified, err := db.Storage.GetClassifications(ctx, filterFor(accountID))
	if err != nil {
		db.t.Fatalf("failed to load classifications: %v", err)
	}
	return classified
}
