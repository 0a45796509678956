package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Veraticus/the-spice-must-recur/internal/cli"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/pattern"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage category rules",
		Long: `List, validate, add and delete the rules that map merchants to categories.

When rules.file is configured the file is the rule source and add/delete are
unavailable.`,
	}

	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesValidateCmd())
	cmd.AddCommand(rulesAddCmd())
	cmd.AddCommand(rulesDeleteCmd())
	return cmd
}

// withRuleStore opens the database for a rules subcommand.
func withRuleStore(cmd *cobra.Command, fn func(context.Context, *storage.SQLiteStorage) error) error {
	ctx := cmd.Context()
	store, err := openStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List rules in match order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuleStore(cmd, func(ctx context.Context, store *storage.SQLiteStorage) error {
				return listRules(ctx, ruleProvider(settings, store), cmd.OutOrStdout())
			})
		},
	}
}

func rulesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Report shadowed and conflicting rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuleStore(cmd, func(ctx context.Context, store *storage.SQLiteStorage) error {
				return validateRules(ctx, ruleProvider(settings, store), cmd.OutOrStdout())
			})
		},
	}
}

func rulesAddCmd() *cobra.Command {
	var (
		rule      model.CategoryRule
		category  string
		matchType string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a category rule",
		Example: `  spice rules add --pattern NETFLIX --category Entertainment
  spice rules add --pattern '^AMZN MKTP' --match regex --category Shopping --priority 10`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireDatabaseRules(); err != nil {
				return err
			}

			parsedCategory, err := model.ParseCategory(category)
			if err != nil {
				return common.NewUserError("invalid --category", err)
			}
			parsedMatch, err := model.ParseMatchType(matchType)
			if err != nil {
				return common.NewUserError("invalid --match", err)
			}
			rule.Category = parsedCategory
			rule.MatchType = parsedMatch

			return withRuleStore(cmd, func(ctx context.Context, store *storage.SQLiteStorage) error {
				return addRule(ctx, store, rule, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&rule.Pattern, "pattern", "", "Merchant pattern to match (required)")
	cmd.Flags().StringVar(&category, "category", "", "Category to assign (required)")
	cmd.Flags().StringVar(&matchType, "match", string(model.MatchSubstring), "Match type: exact, prefix, substring or regex")
	cmd.Flags().IntVar(&rule.Priority, "priority", 0, "Higher priority rules are tried first")
	cmd.Flags().StringVar(&rule.Name, "name", "", "Optional label for the rule")
	_ = cmd.MarkFlagRequired("pattern")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func rulesDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a category rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireDatabaseRules(); err != nil {
				return err
			}
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return common.NewUserError("rule id must be a number", err)
			}
			return withRuleStore(cmd, func(ctx context.Context, store *storage.SQLiteStorage) error {
				if err := store.DeleteRule(ctx, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted rule %d", id)))
				return nil
			})
		},
	}
}

func requireDatabaseRules() error {
	if settings.Rules.File != "" {
		return common.NewUserError("rules are read from "+settings.Rules.File+"; edit that file instead", nil)
	}
	return nil
}

// sessionRules returns the rules a classify run would use.
func sessionRules(ctx context.Context, provider service.RuleProvider) ([]model.CategoryRule, error) {
	rules, err := provider.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(rules) == 0 {
		return pattern.DefaultRules(), nil
	}
	return rules, nil
}

func listRules(ctx context.Context, provider service.RuleProvider, w io.Writer) error {
	rules, err := sessionRules(ctx, provider)
	if err != nil {
		return err
	}

	rs, issues, err := pattern.NewRuleSet(rules, nil)
	if err != nil {
		if errors.Is(err, common.ErrConflictingRules) {
			// Show what conflicts rather than nothing.
			return errors.Join(cli.RenderRules(w, rules, issues), err)
		}
		return err
	}
	return cli.RenderRules(w, rs.Rules(), issues)
}

func validateRules(ctx context.Context, provider service.RuleProvider, w io.Writer) error {
	rules, err := sessionRules(ctx, provider)
	if err != nil {
		return err
	}

	issues := pattern.Validate(rules)
	for _, issue := range issues {
		msg := fmt.Sprintf("%s: %s", issue.Kind, issue.Message)
		if issue.Kind == pattern.IssueConflict {
			fmt.Fprintln(w, cli.FormatError(msg))
			continue
		}
		fmt.Fprintln(w, cli.FormatWarning(msg))
	}
	if hasConflict(issues) {
		return fmt.Errorf("%w: run spice rules list to review", common.ErrConflictingRules)
	}

	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("%d rules loaded, %d warnings", len(rules), len(issues))))
	return nil
}

// addRule stores rule unless it would conflict with an existing one.
func addRule(ctx context.Context, store *storage.SQLiteStorage, rule model.CategoryRule, w io.Writer) error {
	existing, err := store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	candidate := append(existing, rule)
	if issues := pattern.Validate(candidate); hasConflict(issues) {
		for _, issue := range issues {
			if issue.Kind == pattern.IssueConflict {
				fmt.Fprintln(w, cli.FormatError(issue.Message))
			}
		}
		return fmt.Errorf("%w: rule %s:%s not added", common.ErrConflictingRules, rule.MatchType, rule.Pattern)
	}

	id, err := store.AddRule(ctx, rule)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, cli.FormatSuccess(fmt.Sprintf("Added rule %d: %s -> %s", id, rule.Pattern, rule.Category)))
	return nil
}

func hasConflict(issues []pattern.Issue) bool {
	for _, issue := range issues {
		if issue.Kind == pattern.IssueConflict {
			return true
		}
	}
	return false
}
