package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/cache"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/config"
	"github.com/Veraticus/the-spice-must-recur/internal/engine"
	"github.com/Veraticus/the-spice-must-recur/internal/insight"
	"github.com/Veraticus/the-spice-must-recur/internal/llm"
	"github.com/Veraticus/the-spice-must-recur/internal/metrics"
	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"github.com/Veraticus/the-spice-must-recur/internal/normalize"
	"github.com/Veraticus/the-spice-must-recur/internal/pattern"
	"github.com/Veraticus/the-spice-must-recur/internal/recurring"
	"github.com/Veraticus/the-spice-must-recur/internal/service"
	"github.com/Veraticus/the-spice-must-recur/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// app bundles the collaborators a command needs for one session.
type app struct {
	store    *storage.SQLiteStorage
	engine   *engine.Engine
	cache    *cache.CategoryCache
	rules    *pattern.RuleSet
	recorder *metrics.Recorder
	registry *prometheus.Registry
	logger   *slog.Logger
	now      func() time.Time
	settings config.Settings
}

// connectStorage opens the configured database without migrating it.
func connectStorage(s config.Settings) (*storage.SQLiteStorage, error) {
	dbPath := config.ExpandPath(s.Database.Path)
	if dbPath != storage.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// openStorage opens and migrates the configured database.
func openStorage(ctx context.Context, s config.Settings) (*storage.SQLiteStorage, error) {
	store, err := connectStorage(s)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// ruleProvider picks the rule source: an explicit rules file, else the
// database.
func ruleProvider(s config.Settings, store *storage.SQLiteStorage) service.RuleProvider {
	if s.Rules.File != "" {
		return pattern.FileProvider{Path: s.Rules.File}
	}
	return store
}

// loadRules compiles the session's rule set. An empty source falls back to
// the built-in rules.
func loadRules(ctx context.Context, provider service.RuleProvider, logger *slog.Logger) (*pattern.RuleSet, error) {
	rules, err := provider.LoadRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	if len(rules) == 0 {
		logger.Info("No category rules configured, using built-in rules")
		rules = pattern.DefaultRules()
	}

	rs, issues, err := pattern.NewRuleSet(rules, logger)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		logger.Warn("Rule validation issue", "kind", issue.Kind, "message", issue.Message)
	}
	return rs, nil
}

// newFallback returns nil unless a provider is configured with credentials.
func newFallback(s config.Settings, sink service.EventSink, logger *slog.Logger) (engine.Fallback, error) {
	if !s.FallbackEnabled() {
		logger.Debug("LLM fallback disabled")
		return nil, nil
	}
	client, err := llm.NewClient(s.Fallback)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return llm.NewFallback(client, s.Fallback, sink, logger, llm.WithCategories(model.AllCategories())), nil
}

// newApp opens the configured database and wires a session around it.
func newApp(ctx context.Context, s config.Settings, logger *slog.Logger) (*app, error) {
	store, err := openStorage(ctx, s)
	if err != nil {
		return nil, err
	}
	a, err := newAppWithStore(ctx, s, store, logger, time.Now)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

// newAppWithStore wires a session around an already migrated store. Saved
// recurring patterns are restored into the detector.
func newAppWithStore(ctx context.Context, s config.Settings, store *storage.SQLiteStorage, logger *slog.Logger, now func() time.Time) (*app, error) {
	rules, err := loadRules(ctx, ruleProvider(s, store), logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.New(registry)

	fallback, err := newFallback(s, llm.MultiSink{llm.NewLogSink(logger), recorder}, logger)
	if err != nil {
		return nil, err
	}

	detector := recurring.New(s.Recurring, logger, recurring.WithClock(now))
	saved, err := store.LoadPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load recurring patterns: %w", err)
	}
	detector.Restore(saved)
	common.LogDebug(logger, "Restored recurring patterns", common.Fields{"count": len(saved)})

	categoryCache := cache.New(s.Cache)
	eng := engine.New(engine.Deps{
		Normalizer: normalize.New(normalize.DefaultConfig()),
		Rules:      rules,
		Cache:      categoryCache,
		Fallback:   fallback,
		Detector:   detector,
		Insights:   insight.New(s.Insights, logger),
		Recorder:   recorder,
		Logger:     logger,
		Now:        now,
	}, s.Engine)

	return &app{
		store:    store,
		engine:   eng,
		cache:    categoryCache,
		rules:    rules,
		recorder: recorder,
		registry: registry,
		logger:   logger,
		now:      now,
		settings: s,
	}, nil
}

// savePatterns persists the detector's current state.
func (a *app) savePatterns(ctx context.Context) ([]model.RecurringPattern, error) {
	snapshot := a.engine.Detector().Snapshot()
	if err := a.store.SavePatterns(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save recurring patterns: %w", err)
	}
	return snapshot, nil
}

// Close releases the cache janitor and the database.
func (a *app) Close() error {
	a.cache.Close()
	return a.store.Close()
}
