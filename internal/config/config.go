// Package config loads ScrumPilot configuration from a JSON file or from
// SCRUMPILOT_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/scrumpilot-io/scrumpilot/internal/ingest"
)

// Config is the top-level ScrumPilot configuration.
type Config struct {
	Server     ServerConfig    `json:"server"`
	Tracker    TrackerConfig   `json:"tracker"`
	Oracle     OracleConfig    `json:"oracle"`
	Whisper    WhisperConfig   `json:"whisper"`
	Store      StoreConfig     `json:"store"`
	Sweeper    SweeperConfig   `json:"sweeper"`
	Connectors ConnectorConfig `json:"connectors"`
	Ingest     IngestConfig    `json:"ingest"`
}

// ServerConfig holds REST API server settings.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key,omitempty"`
}

// TrackerConfig holds issue tracker settings.
type TrackerConfig struct {
	BaseURL   string `json:"base_url,omitempty"` // defaults to https://gitlab.com
	Token     string `json:"token"`
	ProjectID string `json:"project_id"`
}

// OracleConfig holds language-model settings for transcript extraction.
type OracleConfig struct {
	Type    string `json:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// WhisperConfig holds audio transcription settings.
type WhisperConfig struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Path string `json:"path"`
}

// SweeperConfig holds retry sweeper settings.
type SweeperConfig struct {
	// Schedule is a cron expression or predefined schedule like @every 15m.
	// Empty disables the sweeper.
	Schedule string `json:"schedule,omitempty"`
}

// ConnectorConfig holds chat platform settings.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	BotToken string   `json:"bot_token"`
	AppToken string   `json:"app_token"`
	Channels []string `json:"channels,omitempty"`
}

// IngestConfig holds webhook ingestion settings.
type IngestConfig struct {
	Endpoints []ingest.EndpointConfig `json:"endpoints,omitempty"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from SCRUMPILOT_* environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getenv("SCRUMPILOT_HOST", "0.0.0.0"),
			Port: getenvInt("SCRUMPILOT_PORT", 8080),
			Key:  os.Getenv("SCRUMPILOT_API_KEY"),
		},
		Tracker: TrackerConfig{
			BaseURL:   os.Getenv("SCRUMPILOT_GITLAB_URL"),
			Token:     os.Getenv("SCRUMPILOT_GITLAB_TOKEN"),
			ProjectID: os.Getenv("SCRUMPILOT_GITLAB_PROJECT"),
		},
		Whisper: WhisperConfig{
			URL:    os.Getenv("SCRUMPILOT_WHISPER_URL"),
			APIKey: os.Getenv("SCRUMPILOT_WHISPER_API_KEY"),
			Model:  os.Getenv("SCRUMPILOT_WHISPER_MODEL"),
		},
		Store: StoreConfig{
			Path: getenv("SCRUMPILOT_DB_PATH", "scrumpilot.db"),
		},
		Sweeper: SweeperConfig{
			Schedule: os.Getenv("SCRUMPILOT_SWEEP_SCHEDULE"),
		},
	}

	if apiKey := os.Getenv("SCRUMPILOT_ANTHROPIC_API_KEY"); apiKey != "" {
		cfg.Oracle = OracleConfig{
			Type:   "anthropic",
			APIKey: apiKey,
			Model:  os.Getenv("SCRUMPILOT_MODEL"),
		}
	} else if apiKey := os.Getenv("SCRUMPILOT_OPENAI_API_KEY"); apiKey != "" {
		cfg.Oracle = OracleConfig{
			Type:    "openai",
			APIKey:  apiKey,
			BaseURL: os.Getenv("SCRUMPILOT_OPENAI_BASE_URL"),
			Model:   os.Getenv("SCRUMPILOT_MODEL"),
		}
	}

	if token := os.Getenv("SCRUMPILOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("SCRUMPILOT_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: SCRUMPILOT_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if botToken := os.Getenv("SCRUMPILOT_SLACK_BOT_TOKEN"); botToken != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: botToken,
			AppToken: os.Getenv("SCRUMPILOT_SLACK_APP_TOKEN"),
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Oracle.Type == "" {
		c.Oracle.Type = "openai"
	}
	if c.Store.Path == "" {
		c.Store.Path = "scrumpilot.db"
	}
}

// Validate checks for required fields and collects all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Oracle.APIKey == "" {
		errs = append(errs, "oracle.api_key is required")
	}
	if c.Oracle.Type != "openai" && c.Oracle.Type != "anthropic" {
		errs = append(errs, fmt.Sprintf("oracle.type %q is not supported", c.Oracle.Type))
	}

	// Tracker settings are optional (the daemon runs in extract-only mode
	// without them) but must be complete when present.
	if (c.Tracker.Token == "") != (c.Tracker.ProjectID == "") {
		errs = append(errs, "tracker.token and tracker.project_id must be set together")
	}

	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Connectors.Slack != nil {
		if c.Connectors.Slack.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if c.Connectors.Slack.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
	}

	for i, ep := range c.Ingest.Endpoints {
		if ep.Source == "" {
			errs = append(errs, fmt.Sprintf("ingest.endpoints[%d].source is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
