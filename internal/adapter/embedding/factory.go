package embedding

import (
	"fmt"

	"docrag/config"
	"docrag/internal/port"
)

// FromConfig builds the base embedder for the configured provider.
func FromConfig(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case config.ProviderHash:
		return NewHashingEmbedder(cfg.Dimension), nil
	case config.ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		return e, nil
	case config.ProviderOllama:
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}
