// Package config loads mediachat settings from an optional YAML file, .env
// files and MEDIACHAT_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"mediachat/internal/logger"
)

// EnvPrefix prefixes every environment variable read by viper.
const EnvPrefix = "MEDIACHAT"

// Supported text providers.
var textProviders = map[string]bool{"gemini": true, "openai": true, "anthropic": true}

// GeminiConfig holds the Gemini credentials.
type GeminiConfig struct {
	APIKey      string `mapstructure:"api_key"`
	VideoAPIKey string `mapstructure:"video_api_key"`
	BaseURL     string `mapstructure:"base_url"`
}

// TextConfig selects the text completion provider.
type TextConfig struct {
	Provider          string `mapstructure:"provider"`
	Model             string `mapstructure:"model"`
	MultiTurn         bool   `mapstructure:"multi_turn"`
	SystemInstruction string `mapstructure:"system_instruction"`
}

// KeyConfig holds the credentials of an alternative text provider.
type KeyConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// ImageConfig configures image synthesis.
type ImageConfig struct {
	Model       string `mapstructure:"model"`
	AspectRatio string `mapstructure:"aspect_ratio"`
}

// VideoConfig configures video generation and polling.
type VideoConfig struct {
	Model               string        `mapstructure:"model"`
	Resolution          string        `mapstructure:"resolution"`
	AspectRatio         string        `mapstructure:"aspect_ratio"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MaxReauthorizations int           `mapstructure:"max_reauthorizations"`
	ReauthBackoff       time.Duration `mapstructure:"reauth_backoff"`
	MaxBackoff          time.Duration `mapstructure:"max_backoff"`
}

// AssetsConfig configures where fetched videos are kept.
type AssetsConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxEntries int    `mapstructure:"max_entries"`
}

// ServerConfig configures the HTTP rendering API.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// TelemetryConfig configures trace and metric export.
type TelemetryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// Config is the complete application configuration.
type Config struct {
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Text      TextConfig      `mapstructure:"text"`
	OpenAI    KeyConfig       `mapstructure:"openai"`
	Anthropic KeyConfig       `mapstructure:"anthropic"`
	Image     ImageConfig     `mapstructure:"image"`
	Video     VideoConfig     `mapstructure:"video"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// Paths reports which configuration sources were found.
type Paths struct {
	ConfigDir        string
	ConfigFile       string
	ConfigFileLoaded bool
	ConfigEnvPath    string
	ConfigEnvLoaded  bool
	LocalEnvPath     string
	LocalEnvLoaded   bool
}

// Options locate the configuration sources. Empty fields use defaults.
type Options struct {
	ConfigFile string
	ConfigDir  string
	WorkDir    string
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.video_api_key", "")
	v.SetDefault("gemini.base_url", "")

	v.SetDefault("text.provider", "gemini")
	v.SetDefault("text.model", "")
	v.SetDefault("text.multi_turn", false)
	v.SetDefault("text.system_instruction", "")

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.base_url", "")

	v.SetDefault("image.model", "gemini-2.5-flash-image")
	v.SetDefault("image.aspect_ratio", "1:1")

	v.SetDefault("video.model", "veo-3.1-fast-generate-preview")
	v.SetDefault("video.resolution", "720p")
	v.SetDefault("video.aspect_ratio", "16:9")
	v.SetDefault("video.poll_interval", 8*time.Second)
	v.SetDefault("video.max_reauthorizations", 3)
	v.SetDefault("video.reauth_backoff", 2*time.Second)
	v.SetDefault("video.max_backoff", 30*time.Second)

	v.SetDefault("assets.dir", "")
	v.SetDefault("assets.max_entries", 64)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dir", "")
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/mediachat or its platform equivalent.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "mediachat")
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "mediachat")
}

// Load reads configuration into v and decodes it.
// Priority (highest to lowest): flags bound to v > environment variables >
// local .env > config .env > config file > defaults.
func Load(v *viper.Viper, opts Options) (*Config, Paths, error) {
	paths := Paths{ConfigDir: opts.ConfigDir}
	if paths.ConfigDir == "" {
		paths.ConfigDir = DefaultConfigDir()
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	// godotenv never overrides variables that are already set, so the
	// local file is loaded first to take precedence over the config one.
	if workDir != "" {
		paths.LocalEnvPath = filepath.Join(workDir, ".env")
		loaded, err := loadEnvFile(paths.LocalEnvPath)
		if err != nil {
			return nil, paths, fmt.Errorf("failed to load local .env: %w", err)
		}
		paths.LocalEnvLoaded = loaded
	}
	if paths.ConfigDir != "" {
		paths.ConfigEnvPath = filepath.Join(paths.ConfigDir, ".env")
		loaded, err := loadEnvFile(paths.ConfigEnvPath)
		if err != nil {
			return nil, paths, fmt.Errorf("failed to load config .env: %w", err)
		}
		paths.ConfigEnvLoaded = loaded
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case opts.ConfigFile != "":
		paths.ConfigFile = opts.ConfigFile
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, paths, fmt.Errorf("failed to read config file: %w", err)
		}
		paths.ConfigFileLoaded = true
	case paths.ConfigDir != "":
		candidate := filepath.Join(paths.ConfigDir, "config.yaml")
		paths.ConfigFile = candidate
		if _, err := os.Stat(candidate); err == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return nil, paths, fmt.Errorf("failed to read config file: %w", err)
			}
			paths.ConfigFileLoaded = true
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, paths, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.applyFallbacks()

	logger.Debug("Configuration loaded",
		"config_file", paths.ConfigFile, "config_file_loaded", paths.ConfigFileLoaded,
		"local_env", paths.LocalEnvLoaded, "config_env", paths.ConfigEnvLoaded,
		"text_provider", cfg.Text.Provider)

	return &cfg, paths, nil
}

func loadEnvFile(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, err
	}
	return true, nil
}

// applyFallbacks fills credentials from their conventional variable names.
func (c *Config) applyFallbacks() {
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = firstEnv("GEMINI_API_KEY", "API_KEY")
	}
	if c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = firstEnv("OPENAI_API_KEY")
	}
	if c.Anthropic.APIKey == "" {
		c.Anthropic.APIKey = firstEnv("ANTHROPIC_API_KEY")
	}
	c.Text.Provider = strings.ToLower(strings.TrimSpace(c.Text.Provider))
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if !textProviders[c.Text.Provider] {
		errs = append(errs, fmt.Errorf("text.provider: unsupported provider %q", c.Text.Provider))
	}
	if c.Video.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("video.poll_interval must be positive"))
	}
	if c.Video.ReauthBackoff <= 0 {
		errs = append(errs, fmt.Errorf("video.reauth_backoff must be positive"))
	}
	if c.Video.MaxBackoff <= 0 {
		errs = append(errs, fmt.Errorf("video.max_backoff must be positive"))
	}
	if c.Video.MaxReauthorizations < 0 {
		errs = append(errs, fmt.Errorf("video.max_reauthorizations cannot be negative"))
	}
	if c.Assets.MaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("assets.max_entries must be positive"))
	}
	if strings.TrimSpace(c.Image.AspectRatio) == "" {
		errs = append(errs, fmt.Errorf("image.aspect_ratio cannot be empty"))
	}

	return errors.Join(errs...)
}
