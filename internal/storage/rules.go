package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
)

// LoadRules returns every stored category rule by priority.
func (s *SQLiteStorage) LoadRules(ctx context.Context) ([]model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, pattern, match_type, category, priority
		FROM category_rules
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []model.CategoryRule
	for rows.Next() {
		var (
			rule      model.CategoryRule
			matchType string
			category  string
		)
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Pattern, &matchType, &category, &rule.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan category rule: %w", err)
		}
		rule.MatchType = model.MatchType(matchType)
		rule.Category = model.Category(category)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category rules: %w", err)
	}
	return rules, nil
}

// AddRule stores a rule and returns its assigned ID. The rule's own ID is
// ignored.
func (s *SQLiteStorage) AddRule(ctx context.Context, rule model.CategoryRule) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateRule(rule); err != nil {
		return 0, err
	}
	matchType, _ := model.ParseMatchType(string(rule.MatchType))

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO category_rules (name, pattern, match_type, category, priority)
		VALUES (?, ?, ?, ?, ?)
	`, rule.Name, rule.Pattern, string(matchType), string(rule.Category), rule.Priority)
	if err != nil {
		return 0, fmt.Errorf("failed to add category rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, fmt.Errorf("%w: rule %s:%s at priority %d", common.ErrDuplicateEntry, matchType, rule.Pattern, rule.Priority)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rule id: %w", err)
	}
	return int(id), nil
}

// DeleteRule removes a rule by ID.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	return nil
}

// SeedRules stores rules only when the table is empty, returning how many
// were inserted.
func (s *SQLiteStorage) SeedRules(ctx context.Context, rules []model.CategoryRule) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM category_rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count category rules: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO category_rules (name, pattern, match_type, category, priority)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i, rule := range rules {
		if err := validateRule(rule); err != nil {
			return 0, fmt.Errorf("rule at index %d: %w", i, err)
		}
		matchType, _ := model.ParseMatchType(string(rule.MatchType))
		res, err := stmt.ExecContext(ctx, rule.Name, rule.Pattern, string(matchType), string(rule.Category), rule.Priority)
		if err != nil {
			return 0, fmt.Errorf("failed to seed rule %q: %w", rule.Pattern, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rules: %w", err)
	}
	return inserted, nil
}
