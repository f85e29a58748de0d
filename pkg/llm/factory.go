package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Providers accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// New creates the client for cfg.Provider. An empty provider means OpenAI.
func New(cfg *Config, logger *zap.Logger) (ChatModel, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
