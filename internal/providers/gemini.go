// Package providers implements the remote generation capabilities on top of
// the Gemini, OpenAI and Anthropic SDKs.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"mediachat/internal/generation"
	"mediachat/internal/logger"
	"mediachat/internal/poller"
	"mediachat/pkg/mediatypes"
)

// Default Gemini models.
const (
	DefaultTextModel  = "gemini-3-flash-preview"
	DefaultImageModel = "gemini-2.5-flash-image"
	DefaultVideoModel = "veo-3.1-fast-generate-preview"
)

// maxAssetBytes caps a downloaded video.
const maxAssetBytes = 512 << 20

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	APIKey     string
	TextModel  string
	ImageModel string

	// BaseURL overrides the API endpoint.
	BaseURL string
	// Transport wraps outgoing requests. Nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// GeminiClient implements the text, image and video capabilities for the
// Gemini API. Clients are created lazily, one per credential, because the
// video credential can be renewed while the process runs.
type GeminiClient struct {
	config  GeminiConfig
	clients map[string]*genai.Client
	mutex   sync.RWMutex
}

// NewGeminiClient creates a new Gemini client with lazy initialization.
func NewGeminiClient(config GeminiConfig) *GeminiClient {
	if config.TextModel == "" {
		config.TextModel = DefaultTextModel
	}
	if config.ImageModel == "" {
		config.ImageModel = DefaultImageModel
	}
	return &GeminiClient{
		config:  config,
		clients: make(map[string]*genai.Client),
	}
}

// GetProviderName returns the provider name for this client.
func (c *GeminiClient) GetProviderName() string {
	return "gemini"
}

// IsConfigured returns true if the client has a default API key.
func (c *GeminiClient) IsConfigured() bool {
	return c.config.APIKey != ""
}

func (c *GeminiClient) httpClient() *http.Client {
	transport := c.config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{Transport: transport}
}

// clientFor returns the SDK client bound to apiKey, creating it if needed.
func (c *GeminiClient) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, generation.NewError(generation.KindCredential, "gemini.client", "google API key not configured", nil)
	}

	c.mutex.RLock()
	if client, exists := c.clients[apiKey]; exists {
		c.mutex.RUnlock()
		return client, nil
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern
	if client, exists := c.clients[apiKey]; exists {
		return client, nil
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient(),
	}
	if c.config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: c.config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, generation.NewError(generation.KindTransport, "gemini.client", "failed to create Gemini client", err)
	}

	c.clients[apiKey] = client
	logger.Debug("Gemini client initialized", "provider", "gemini", "clients", len(c.clients))
	return client, nil
}

// CompleteText sends a conversational completion request.
func (c *GeminiClient) CompleteText(ctx context.Context, prompt string, systemInstruction string, history []generation.Turn) (string, error) {
	logger.Debug("Gemini CompleteText starting", "model", c.config.TextModel, "history", len(history))

	client, err := c.clientFor(ctx, c.config.APIKey)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}

	result, err := client.Models.GenerateContent(ctx, c.config.TextModel, convertTurnsToGemini(history, prompt), config)
	if err != nil {
		logger.Error("Gemini request failed", "error", err)
		return "", generation.Wrap("text.complete", fmt.Errorf("gemini request failed: %w", err))
	}

	content := extractText(result)
	logger.Debug("Gemini response received", "content_length", len(content))
	return content, nil
}

// SynthesizeImage generates images for prompt. Imagen models go through the
// dedicated image endpoint; other models return inline image parts.
func (c *GeminiClient) SynthesizeImage(ctx context.Context, prompt string, aspectRatio string) ([]generation.InlineImage, error) {
	logger.Debug("Gemini SynthesizeImage starting", "model", c.config.ImageModel, "aspect_ratio", aspectRatio)

	client, err := c.clientFor(ctx, c.config.APIKey)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(c.config.ImageModel, "imagen") {
		return c.generateImages(ctx, client, prompt, aspectRatio)
	}

	config := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: aspectRatio},
	}
	result, err := client.Models.GenerateContent(ctx, c.config.ImageModel, genai.Text(prompt), config)
	if err != nil {
		logger.Error("Gemini image request failed", "error", err)
		return nil, generation.Wrap("image.synthesize", fmt.Errorf("gemini image request failed: %w", err))
	}

	images := make([]generation.InlineImage, 0)
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil {
				continue
			}
			images = append(images, generation.InlineImage{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}

	logger.Debug("Gemini image response received", "images", len(images))
	return images, nil
}

func (c *GeminiClient) generateImages(ctx context.Context, client *genai.Client, prompt string, aspectRatio string) ([]generation.InlineImage, error) {
	result, err := client.Models.GenerateImages(ctx, c.config.ImageModel, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		logger.Error("Imagen request failed", "error", err)
		return nil, generation.Wrap("image.synthesize", fmt.Errorf("imagen request failed: %w", err))
	}

	images := make([]generation.InlineImage, 0, len(result.GeneratedImages))
	for _, generated := range result.GeneratedImages {
		if generated == nil || generated.Image == nil {
			continue
		}
		images = append(images, generation.InlineImage{
			MIMEType: generated.Image.MIMEType,
			Data:     generated.Image.ImageBytes,
		})
	}
	return images, nil
}

// SubmitVideoJob starts a long-running video generation.
func (c *GeminiClient) SubmitVideoJob(ctx context.Context, credential string, prompt string, params poller.VideoParams) (*poller.Operation, error) {
	model := params.Model
	if model == "" {
		model = DefaultVideoModel
	}
	logger.Debug("Gemini SubmitVideoJob starting", "model", model, "resolution", params.Resolution)

	client, err := c.clientFor(ctx, credential)
	if err != nil {
		return nil, err
	}

	op, err := client.Models.GenerateVideos(ctx, model, prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     params.Resolution,
		AspectRatio:    params.AspectRatio,
	})
	if err != nil {
		logger.Error("Gemini video request failed", "error", err)
		return nil, mapVideoError("video.submit", err)
	}
	return convertOperation(op), nil
}

// PollVideoJob refreshes a video operation.
func (c *GeminiClient) PollVideoJob(ctx context.Context, credential string, op *poller.Operation) (*poller.Operation, error) {
	client, err := c.clientFor(ctx, credential)
	if err != nil {
		return nil, err
	}

	current, ok := op.Handle.(*genai.GenerateVideosOperation)
	if !ok || current == nil {
		current = &genai.GenerateVideosOperation{Name: op.Name}
	}

	next, err := client.Operations.GetVideosOperation(ctx, current, nil)
	if err != nil {
		logger.Debug("Gemini video poll failed", "operation", op.Name, "error", err)
		return nil, mapVideoError("video.poll", err)
	}
	return convertOperation(next), nil
}

// FetchAsset downloads a finished video. The remote URI requires the
// credential.
func (c *GeminiClient) FetchAsset(ctx context.Context, uri string, credential string) (*poller.Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, generation.NewError(generation.KindMalformed, "video.fetch", "invalid video URI", err)
	}
	req.Header.Set("x-goog-api-key", credential)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, generation.Wrap("video.fetch", fmt.Errorf("video download failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, generation.NewError(generation.KindCredential, "video.fetch", "video download failed", generation.ErrOperationNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, generation.NewError(generation.KindRemote, "video.fetch",
			fmt.Sprintf("video download failed with status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes))
	if err != nil {
		return nil, generation.Wrap("video.fetch", fmt.Errorf("failed to read video: %w", err))
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "video/mp4"
	}

	logger.Debug("Video downloaded", "bytes", len(data), "mime_type", mimeType)
	return &poller.Asset{MIMEType: mimeType, Data: data}, nil
}

// convertTurnsToGemini converts prior turns plus the new prompt to Gemini
// contents. Gemini uses "model" instead of "assistant".
func convertTurnsToGemini(history []generation.Turn, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role
		switch turn.Role {
		case mediatypes.RoleUser:
			role = genai.RoleUser
		case mediatypes.RoleAssistant:
			role = genai.RoleModel
		default:
			continue
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}

// extractText concatenates the non-thought text parts of a response.
func extractText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var content strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text == "" || part.Thought {
				continue
			}
			content.WriteString(part.Text)
		}
	}
	return content.String()
}

func convertOperation(op *genai.GenerateVideosOperation) *poller.Operation {
	if op == nil {
		return nil
	}
	converted := &poller.Operation{
		Name:   op.Name,
		Done:   op.Done,
		Handle: op,
	}
	if len(op.Error) > 0 {
		converted.ErrorMessage = operationErrorMessage(op.Error)
	}
	if op.Response != nil {
		for _, generated := range op.Response.GeneratedVideos {
			if generated != nil && generated.Video != nil && generated.Video.URI != "" {
				converted.VideoURI = generated.Video.URI
				break
			}
		}
	}
	return converted
}

func operationErrorMessage(opErr map[string]any) string {
	if message, ok := opErr["message"].(string); ok && message != "" {
		return message
	}
	return fmt.Sprintf("video generation failed: %v", opErr)
}

// mapVideoError marks expired-credential failures as recoverable.
func mapVideoError(op string, err error) error {
	if isNotFound(err) {
		return generation.NewError(generation.KindCredential, op, err.Error(), generation.ErrOperationNotFound)
	}
	return generation.Wrap(op, err)
}

// isNotFound reports whether err is the remote's "entity not found" reply,
// which the video service returns for operations created under an expired
// credential session.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound || apiErr.Status == "NOT_FOUND" {
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "Requested entity was not found") || strings.Contains(msg, "NOT_FOUND")
}
