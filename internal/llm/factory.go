package llm

import (
	"fmt"
	"strings"
)

// NewClient creates the provider client named by cfg.Provider. The provider
// is fixed for the lifetime of the client.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
