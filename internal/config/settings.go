// Package config maps viper configuration onto the settings of every
// subsystem.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/the-spice-must-recur/internal/cache"
	"github.com/Veraticus/the-spice-must-recur/internal/common"
	"github.com/Veraticus/the-spice-must-recur/internal/engine"
	"github.com/Veraticus/the-spice-must-recur/internal/insight"
	"github.com/Veraticus/the-spice-must-recur/internal/llm"
	"github.com/Veraticus/the-spice-must-recur/internal/recurring"
	"github.com/spf13/viper"
)

// DefaultDatabasePath is where the SQLite database lives unless configured.
const DefaultDatabasePath = "~/.local/share/spice/spice.db"

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string `mapstructure:"path"`
}

// LoggingSettings selects the slog level and handler.
type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RulesSettings points at an optional YAML rule file.
type RulesSettings struct {
	File string `mapstructure:"file"`
}

// Settings groups every tunable.
type Settings struct {
	Database  DatabaseSettings `mapstructure:"database"`
	Logging   LoggingSettings  `mapstructure:"logging"`
	Rules     RulesSettings    `mapstructure:"rules"`
	Fallback  llm.Config       `mapstructure:"fallback"`
	Cache     cache.Options    `mapstructure:"cache"`
	Recurring recurring.Config `mapstructure:"recurring"`
	Insights  insight.Config   `mapstructure:"insights"`
	Engine    engine.Config    `mapstructure:"engine"`
}

// SetDefaults registers the documented default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("rules.file", "")

	fb := llm.DefaultConfig()
	v.SetDefault("fallback.provider", fb.Provider)
	v.SetDefault("fallback.api_key", "")
	v.SetDefault("fallback.model", "")
	v.SetDefault("fallback.base_url", "")
	v.SetDefault("fallback.temperature", fb.Temperature)
	v.SetDefault("fallback.max_tokens", fb.MaxTokens)
	v.SetDefault("fallback.timeout", fb.Timeout)
	v.SetDefault("fallback.max_concurrent", fb.MaxConcurrent)
	v.SetDefault("fallback.rate_limit", fb.RateLimit)
	v.SetDefault("fallback.max_retries", fb.MaxRetries)
	v.SetDefault("fallback.retry_delay", fb.RetryDelay)
	v.SetDefault("fallback.breaker_failures", fb.BreakerFailures)
	v.SetDefault("fallback.breaker_reset", fb.BreakerReset)
	v.SetDefault("fallback.cost_per_1k_prompt", fb.CostPer1KPrompt)
	v.SetDefault("fallback.cost_per_1k_completion", fb.CostPer1KCompletion)

	v.SetDefault("cache.ttl", cache.DefaultTTL)
	v.SetDefault("cache.negative_ttl", cache.DefaultNegativeTTL)
	v.SetDefault("cache.cleanup_interval", time.Duration(0))

	rc := recurring.DefaultConfig()
	v.SetDefault("recurring.window_size", rc.WindowSize)
	v.SetDefault("recurring.min_occurrences", rc.MinOccurrences)
	v.SetDefault("recurring.fixed_amount_cv", rc.FixedAmountCV)
	v.SetDefault("recurring.variable_amount_cv", rc.VariableAmountCV)
	v.SetDefault("recurring.interval_cv", rc.IntervalCV)
	v.SetDefault("recurring.min_interval_days", rc.MinIntervalDays)
	v.SetDefault("recurring.annual_interval_days", rc.AnnualIntervalDays)
	v.SetDefault("recurring.inactive_multiplier", rc.InactiveMultiplier)
	v.SetDefault("recurring.max_edit_distance", rc.MaxEditDistance)
	v.SetDefault("recurring.fuzzy_amount_tolerance", rc.FuzzyAmountTolerance)
	v.SetDefault("recurring.include_credits", rc.IncludeCredits)

	ic := insight.DefaultConfig()
	v.SetDefault("insights.price_increase_threshold", ic.PriceIncreaseThreshold)
	v.SetDefault("insights.missed_cycle_grace_days", ic.MissedCycleGraceDays)

	v.SetDefault("engine.workers", engine.DefaultConfig().Workers)
}

// Load decodes v into Settings and checks values that would otherwise fail
// deep inside a subsystem.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	s.Database.Path = ExpandPath(s.Database.Path)
	s.Rules.File = ExpandPath(s.Rules.File)
	s.Fallback.Provider = strings.ToLower(strings.TrimSpace(s.Fallback.Provider))

	if err := s.validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate() error {
	var problems []string

	if s.Database.Path == "" {
		problems = append(problems, "database.path is empty")
	}
	if _, err := common.ParseLevel(s.Logging.Level); err != nil {
		problems = append(problems, fmt.Sprintf("logging.level %q is not a level", s.Logging.Level))
	}
	switch s.Logging.Format {
	case "console", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", s.Logging.Format))
	}
	switch s.Fallback.Provider {
	case "", "none", "openai", "anthropic":
	default:
		problems = append(problems, fmt.Sprintf("fallback.provider %q is not supported", s.Fallback.Provider))
	}
	if s.Fallback.MaxConcurrent <= 0 {
		problems = append(problems, "fallback.max_concurrent must be positive")
	}
	if s.Fallback.Timeout <= 0 {
		problems = append(problems, "fallback.timeout must be positive")
	}
	if s.Recurring.FixedAmountCV >= s.Recurring.VariableAmountCV {
		problems = append(problems, "recurring.fixed_amount_cv must be below recurring.variable_amount_cv")
	}
	if s.Engine.Workers <= 0 {
		problems = append(problems, "engine.workers must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// FallbackEnabled reports whether a provider is configured with credentials.
func (s Settings) FallbackEnabled() bool {
	if s.Fallback.Provider == "" || s.Fallback.Provider == "none" {
		return false
	}
	return s.Fallback.APIKey != "" || s.Fallback.BaseURL != ""
}

// ExpandPath resolves a leading ~ and $VAR references in path.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return ""
	case path == "~", strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}
