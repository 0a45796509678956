package recurring

// Config tunes pattern classification and merchant merging.
type Config struct {
	WindowSize           int     `mapstructure:"window_size"`
	MinOccurrences       int     `mapstructure:"min_occurrences"`
	FixedAmountCV        float64 `mapstructure:"fixed_amount_cv"`
	VariableAmountCV     float64 `mapstructure:"variable_amount_cv"`
	IntervalCV           float64 `mapstructure:"interval_cv"`
	MinIntervalDays      float64 `mapstructure:"min_interval_days"`
	AnnualIntervalDays   float64 `mapstructure:"annual_interval_days"`
	InactiveMultiplier   float64 `mapstructure:"inactive_multiplier"`
	MaxEditDistance      int     `mapstructure:"max_edit_distance"`
	FuzzyAmountTolerance float64 `mapstructure:"fuzzy_amount_tolerance"`
	IncludeCredits       bool    `mapstructure:"include_credits"`
}

// DefaultConfig returns the standard detection thresholds.
func DefaultConfig() Config {
	return Config{
		WindowSize:           12,
		MinOccurrences:       3,
		FixedAmountCV:        0.05,
		VariableAmountCV:     0.5,
		IntervalCV:           0.25,
		MinIntervalDays:      5,
		AnnualIntervalDays:   300,
		InactiveMultiplier:   2,
		MaxEditDistance:      2,
		FuzzyAmountTolerance: 0.25,
	}
}

// withDefaults fills zero-valued thresholds.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = def.WindowSize
	}
	if c.MinOccurrences <= 0 {
		c.MinOccurrences = def.MinOccurrences
	}
	if c.FixedAmountCV <= 0 {
		c.FixedAmountCV = def.FixedAmountCV
	}
	if c.VariableAmountCV <= 0 {
		c.VariableAmountCV = def.VariableAmountCV
	}
	if c.IntervalCV <= 0 {
		c.IntervalCV = def.IntervalCV
	}
	if c.MinIntervalDays <= 0 {
		c.MinIntervalDays = def.MinIntervalDays
	}
	if c.AnnualIntervalDays <= 0 {
		c.AnnualIntervalDays = def.AnnualIntervalDays
	}
	if c.InactiveMultiplier <= 0 {
		c.InactiveMultiplier = def.InactiveMultiplier
	}
	if c.FuzzyAmountTolerance <= 0 {
		c.FuzzyAmountTolerance = def.FuzzyAmountTolerance
	}
	return c
}
