package providers

import (
	"fmt"
	"net/http"
	"strings"

	"mediachat/internal/generation"
	"mediachat/internal/logger"
)

// Supported text providers.
const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// TextSettings selects and configures the text completion provider.
type TextSettings struct {
	Provider        string
	Model           string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	BaseURL         string
	Transport       http.RoundTripper
}

// NewTextCompleter returns the completer for settings.Provider. The Gemini
// completer reuses gemini when it is given.
func NewTextCompleter(settings TextSettings, gemini *GeminiClient) (generation.TextCompleter, error) {
	provider := strings.ToLower(strings.TrimSpace(settings.Provider))
	if provider == "" {
		provider = ProviderGemini
	}

	logger.ServiceOperation("providers", "text_completer", "provider", provider, "model", settings.Model)

	switch provider {
	case ProviderGemini:
		if gemini != nil && settings.Model == "" {
			return gemini, nil
		}
		return NewGeminiClient(GeminiConfig{
			APIKey:    settings.GeminiAPIKey,
			TextModel: settings.Model,
			BaseURL:   settings.BaseURL,
			Transport: settings.Transport,
		}), nil
	case ProviderOpenAI:
		return NewOpenAIClient(settings.OpenAIAPIKey, settings.Model, settings.BaseURL, settings.Transport), nil
	case ProviderAnthropic:
		return NewAnthropicClient(settings.AnthropicAPIKey, settings.Model, settings.BaseURL, settings.Transport), nil
	default:
		return nil, fmt.Errorf("unsupported text provider: %s", settings.Provider)
	}
}
