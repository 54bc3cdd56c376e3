package cmd

import (
	"log/slog"

	"github.com/mikann-OMO/bot/internal/config"
	"github.com/mikann-OMO/bot/internal/fallback"
	"github.com/mikann-OMO/bot/internal/providers"
)

// newAIProvider returns the chat-completion client, or nil when no API key
// is configured. A nil provider makes every AI reply the fixed apology.
func newAIProvider(cfg config.AIConfig) providers.Provider {
	if cfg.APIKey == "" {
		slog.Warn("no AI API key configured, AI replies disabled")
		return nil
	}

	retry := providers.DefaultRetryConfig()
	retry.Attempts = cfg.MaxRetries + 1

	p := providers.NewOpenAIProvider("ark", cfg.APIKey, cfg.APIBase, cfg.Model, cfg.Timeout()).WithRetry(retry)
	slog.Info("registered provider", "name", p.Name(), "model", cfg.Model, "api_base", cfg.APIBase)
	return p
}

func newFallback(cfg config.AIConfig) *fallback.Dispatcher {
	return fallback.New(newAIProvider(cfg), fallback.Config{
		SystemPrompt:        cfg.SystemPrompt,
		Model:               cfg.Model,
		MaxCompletionTokens: cfg.MaxCompletionTokens,
		ReasoningEffort:     cfg.ReasoningEffort,
		Timeout:             cfg.Timeout(),
	})
}
