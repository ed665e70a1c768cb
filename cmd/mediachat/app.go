package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"mediachat/internal/assets"
	"mediachat/internal/config"
	"mediachat/internal/conversation"
	"mediachat/internal/credential"
	"mediachat/internal/generation"
	"mediachat/internal/history"
	"mediachat/internal/logger"
	"mediachat/internal/poller"
	"mediachat/internal/providers"
	"mediachat/internal/telemetry"
	"mediachat/internal/testutils"
	"mediachat/internal/version"
	"mediachat/pkg/mediatypes"
)

// videoKeyVariables are consulted, in order, when a video credential is needed.
var videoKeyVariables = []string{
	"MEDIACHAT_GEMINI_VIDEO_API_KEY",
	"GEMINI_VIDEO_API_KEY",
	"MEDIACHAT_GEMINI_API_KEY",
	"GEMINI_API_KEY",
	"API_KEY",
}

// appOptions carries per-command wiring choices.
type appOptions struct {
	// Prompt asks the terminal user for a credential. Nil in server mode.
	Prompt credential.PasswordReader
	// PreferDisk keeps video assets on disk when no directory is configured.
	PreferDisk bool
	// Transport overrides the base HTTP transport, for tests.
	Transport http.RoundTripper
	TestMode  bool
}

// app is the wired application.
type app struct {
	config      *config.Config
	registry    *history.Registry
	assets      assets.Store
	credentials *credential.Manager
	telemetry   *telemetry.Provider
}

func buildApp(ctx context.Context, cfg *config.Config, paths config.Paths, opts appOptions) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	transport := providers.NewLoggingTransport(base)

	geminiConfig := providers.GeminiConfig{
		APIKey:     cfg.Gemini.APIKey,
		ImageModel: cfg.Image.Model,
		BaseURL:    cfg.Gemini.BaseURL,
		Transport:  transport,
	}
	textSettings := providers.TextSettings{
		Provider:        cfg.Text.Provider,
		Model:           cfg.Text.Model,
		GeminiAPIKey:    cfg.Gemini.APIKey,
		OpenAIAPIKey:    cfg.OpenAI.APIKey,
		AnthropicAPIKey: cfg.Anthropic.APIKey,
		Transport:       transport,
	}
	switch cfg.Text.Provider {
	case providers.ProviderGemini:
		geminiConfig.TextModel = cfg.Text.Model
		textSettings.Model = ""
	case providers.ProviderOpenAI:
		textSettings.BaseURL = cfg.OpenAI.BaseURL
	case providers.ProviderAnthropic:
		textSettings.BaseURL = cfg.Anthropic.BaseURL
	}
	gemini := providers.NewGeminiClient(geminiConfig)

	completer, err := providers.NewTextCompleter(textSettings, gemini)
	if err != nil {
		return nil, err
	}

	store, err := newAssetStore(cfg, opts.PreferDisk)
	if err != nil {
		return nil, err
	}

	credentials := newCredentialManager(cfg, paths, opts.Prompt)

	videoRunner := poller.New(gemini, gemini, credentials, store,
		poller.VideoParams{
			Model:       cfg.Video.Model,
			Resolution:  cfg.Video.Resolution,
			AspectRatio: cfg.Video.AspectRatio,
		},
		poller.WithPolicy(poller.Policy{
			Interval:            cfg.Video.PollInterval,
			MaxReauthorizations: cfg.Video.MaxReauthorizations,
			ReauthBackoff:       cfg.Video.ReauthBackoff,
			MaxBackoff:          cfg.Video.MaxBackoff,
		}))

	backends := conversation.Backends{
		mediatypes.GenerationText: generation.NewTextBackend(completer,
			generation.WithSystemInstruction(cfg.Text.SystemInstruction),
			generation.WithMultiTurn(cfg.Text.MultiTurn)),
		mediatypes.GenerationImage: generation.NewImageBackend(gemini, cfg.Image.AspectRatio),
		mediatypes.GenerationVideo: generation.NewVideoBackend(videoRunner),
	}

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:        cfg.Telemetry.Enabled,
		Dir:            cfg.Telemetry.Dir,
		ServiceVersion: version.GetBaseVersion(),
	})
	if err != nil {
		return nil, err
	}
	backends = tel.InstrumentAll(backends)

	registry := history.NewRegistry(backends, testutils.NewSource(opts.TestMode))

	logger.ServiceOperation("app", "build",
		"text_provider", cfg.Text.Provider,
		"gemini_configured", gemini.IsConfigured(),
		"video_credential", credential.Mask(credentials.Credential()))

	return &app{
		config:      cfg,
		registry:    registry,
		assets:      store,
		credentials: credentials,
		telemetry:   tel,
	}, nil
}

func newAssetStore(cfg *config.Config, preferDisk bool) (assets.Store, error) {
	dir := cfg.Assets.Dir
	if dir == "" && preferDisk {
		dir = filepath.Join(os.TempDir(), "mediachat-assets")
	}
	if dir == "" {
		return assets.NewMemoryStore("/assets/", cfg.Assets.MaxEntries), nil
	}
	return assets.NewDiskStore(dir)
}

// newCredentialManager starts from the configured video key, or the default
// key, so the first video request does not prompt. Renewals ask the terminal
// user first when one is present, then re-read the environment.
func newCredentialManager(cfg *config.Config, paths config.Paths, prompt credential.PasswordReader) *credential.Manager {
	initial := cfg.Gemini.VideoAPIKey
	if initial == "" {
		initial = cfg.Gemini.APIKey
	}

	var files []string
	for _, path := range []string{paths.LocalEnvPath, paths.ConfigEnvPath} {
		if path != "" {
			files = append(files, path)
		}
	}

	var chain credential.ChainSelector
	if prompt != nil {
		chain = append(chain, credential.NewPromptSelector(prompt, ""))
	}
	chain = append(chain, credential.NewEnvSelector(files, videoKeyVariables...))

	return credential.NewManager(initial, chain)
}

// Close releases telemetry exporters.
func (a *app) Close(ctx context.Context) error {
	return a.telemetry.Shutdown(ctx)
}
