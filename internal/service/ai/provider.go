package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/talking-therapist/backend/internal/config"
)

// NewChatModel builds the chat model for the resolved provider. ProviderNone
// yields a nil model, which leaves the service on local replies only.
func NewChatModel(ctx context.Context, cfg config.AIConfig) (model.BaseChatModel, config.Provider, error) {
	provider := cfg.ResolveProvider()

	switch provider {
	case config.ProviderGemini:
		m, err := NewGeminiChatModel(ctx, GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			BaseURL: cfg.GeminiBaseURL,
		})
		if err != nil {
			return nil, provider, fmt.Errorf("init gemini chat model: %w", err)
		}
		return m, provider, nil
	case config.ProviderArk:
		m, err := cfg.NewArkChatModel(ctx)
		if err != nil {
			return nil, provider, fmt.Errorf("init ark chat model: %w", err)
		}
		return m, provider, nil
	default:
		return nil, config.ProviderNone, nil
	}
}
