package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"mediachat/internal/generation"
	"mediachat/internal/logger"
	"mediachat/pkg/mediatypes"
)

// DefaultOpenAIModel is used when no text model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient implements generation.TextCompleter for OpenAI's API.
// It provides lazy initialization of the OpenAI client.
type OpenAIClient struct {
	apiKey    string
	model     string
	baseURL   string
	transport http.RoundTripper
	client    *openai.Client
}

// NewOpenAIClient creates a new OpenAI client with lazy initialization.
func NewOpenAIClient(apiKey, model, baseURL string, transport http.RoundTripper) *OpenAIClient {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{
		apiKey:    apiKey,
		model:     model,
		baseURL:   baseURL,
		transport: transport,
	}
}

// GetProviderName returns the provider name for this client.
func (c *OpenAIClient) GetProviderName() string {
	return "openai"
}

// IsConfigured returns true if the client has a valid API key.
func (c *OpenAIClient) IsConfigured() bool {
	return c.apiKey != ""
}

// initializeClientIfNeeded initializes the OpenAI client if it hasn't been initialized yet.
func (c *OpenAIClient) initializeClientIfNeeded() error {
	if c.client != nil {
		return nil
	}

	if c.apiKey == "" {
		return generation.NewError(generation.KindCredential, "openai.client", "OpenAI API key not configured", nil)
	}

	options := []option.RequestOption{option.WithAPIKey(c.apiKey)}
	if c.baseURL != "" {
		options = append(options, option.WithBaseURL(c.baseURL))
	}
	if c.transport != nil {
		options = append(options, option.WithHTTPClient(&http.Client{Transport: c.transport}))
	}

	client := openai.NewClient(options...)
	c.client = &client

	logger.Debug("OpenAI client initialized", "provider", "openai")
	return nil
}

// CompleteText sends a chat completion request to OpenAI.
func (c *OpenAIClient) CompleteText(ctx context.Context, prompt string, systemInstruction string, history []generation.Turn) (string, error) {
	logger.Debug("OpenAI CompleteText starting", "model", c.model, "history", len(history))

	if err := c.initializeClientIfNeeded(); err != nil {
		return "", err
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if systemInstruction != "" {
		messages = append(messages, openai.SystemMessage(systemInstruction))
	}
	for _, turn := range history {
		switch turn.Role {
		case mediatypes.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Text))
		case mediatypes.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		}
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI request failed", "error", err)
		return "", generation.Wrap("text.complete", fmt.Errorf("openai request failed: %w", err))
	}

	if len(completion.Choices) == 0 {
		logger.Error("No response choices returned")
		return "", generation.NewError(generation.KindMalformed, "text.complete", "no response choices returned", nil)
	}

	content := completion.Choices[0].Message.Content
	logger.Debug("OpenAI response received", "content_length", len(content))
	return content, nil
}
