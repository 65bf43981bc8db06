package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
)

// NewClient builds the LLMClient named by the configuration.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q, supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}
