package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"mediachat/internal/generation"
	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// DefaultAnthropicModel is used when no text model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicClient implements generation.TextCompleter for Anthropic's API.
// It provides lazy initialization of the Anthropic client.
type AnthropicClient struct {
	apiKey    string
	model     string
	baseURL   string
	transport http.RoundTripper
	client    *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client with lazy initialization.
func NewAnthropicClient(apiKey, model, baseURL string, transport http.RoundTripper) *AnthropicClient {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicClient{
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		transport: transport,
	}
}

// GetProviderName returns the provider name for this client.
func (c *AnthropicClient) GetProviderName() string {
	return "anthropic"
}

// IsConfigured returns true if the client has a valid API key.
func (c *AnthropicClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the Anthropic client if it hasn't been initialized yet.
func (c *AnthropicClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return generation.NewError(generation.KindCredential, "anthropic.client", "anthropic API key not configured", nil)
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		options = append(options, option.WithBaseURL(c.baseURL))
	}
	if c.transport != nil {
		options = append(options, option.WithHTTPClient(&http.Client{Transport: c.transport}))
	}

	client := anthropic.NewClient(options...)
	c.client = &client

	logger.Debug("Anthropic client initialized", "provider", "anthropic")
	return nil
}

// CompleteText sends a message request to Anthropic.
func (c *AnthropicClient) CompleteText(ctx context.Context, prompt string, systemInstruction string, history []generation.Turn) (string, error) {
	logger.Debug("Anthropic CompleteText starting", "model", c.model, "history", len(history))

	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, turn := range history {
		switch turn.Role {
		case mediatypes.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Text)))
		case mediatypes.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Text)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		Messages:  messages,
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		logger.Error("Anthropic request failed", "error", err)
		return "", generation.Wrap("text.complete", fmt.Errorf("anthropic request failed: %w", err))
	}

	var content strings.Builder
	for _, block := range message.Content {
		content.WriteString(block.Text)
	}

	logger.Debug("Anthropic response received", "content_length", content.Len())
	return content.String(), nil
}
