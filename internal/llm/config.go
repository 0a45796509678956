package llm

import "time"

// Config holds provider credentials and the limits applied to every
// fallback call.
type Config struct {
	Provider            string        `mapstructure:"provider"`
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	BaseURL             string        `mapstructure:"base_url"`
	Temperature         float64       `mapstructure:"temperature"`
	CostPer1KPrompt     float64       `mapstructure:"cost_per_1k_prompt"`
	CostPer1KCompletion float64       `mapstructure:"cost_per_1k_completion"`
	Timeout             time.Duration `mapstructure:"timeout"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	BreakerReset        time.Duration `mapstructure:"breaker_reset"`
	MaxTokens           int           `mapstructure:"max_tokens"`
	MaxConcurrent       int           `mapstructure:"max_concurrent"`
	RateLimit           int           `mapstructure:"rate_limit"`
	MaxRetries          int           `mapstructure:"max_retries"`
	BreakerFailures     int           `mapstructure:"breaker_failures"`
}

// DefaultConfig returns the documented fallback limits.
func DefaultConfig() Config {
	return Config{
		Provider:        "openai",
		Temperature:     0.1,
		MaxTokens:       100,
		Timeout:         3 * time.Second,
		MaxConcurrent:   4,
		RateLimit:       60,
		MaxRetries:      2,
		RetryDelay:      200 * time.Millisecond,
		BreakerFailures: 5,
		BreakerReset:    30 * time.Second,
	}
}
