package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadRoot string `toml:"download_root"`
	LogDir       string `toml:"log_dir"`
	APIBind      string `toml:"api_bind"`
	APIToken     string `toml:"api_token"`
}

// Fetch contains configuration for the external media tool.
type Fetch struct {
	Binary                 string   `toml:"binary"`
	MaxConcurrentDownloads int      `toml:"max_concurrent_downloads"`
	AllowedSourceDomains   []string `toml:"allowed_source_domains"`
	ToolTimeout            int      `toml:"tool_timeout"`
}

// Notifications contains configuration for Telegram push notifications.
type Notifications struct {
	TelegramBotToken string  `toml:"telegram_bot_token"`
	WebhookSecret    string  `toml:"webhook_secret"`
	BaseExternalURL  string  `toml:"base_external_url"`
	RequestTimeout   int     `toml:"request_timeout"`
	MinPercentStep   float64 `toml:"min_percent_step"`
}

// Transcode contains configuration for the post-download ffmpeg pass.
type Transcode struct {
	Enabled    bool     `toml:"enabled"`
	Binary     string   `toml:"binary"`
	Workers    int      `toml:"workers"`
	Extensions []string `toml:"extensions"`
}

// Workflow contains configuration for worker timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for hoist.
//
// Configuration sections by subsystem:
//   - Paths: download root, log directory, and API bind address
//   - Fetch: external media tool invocation and concurrency bounds
//   - Notifications: Telegram bot settings and progress throttling
//   - Transcode: optional ffmpeg re-encode of downloaded media
//   - Workflow: worker polling intervals
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Fetch         Fetch         `toml:"fetch"`
	Notifications Notifications `toml:"notifications"`
	Transcode     Transcode     `toml:"transcode"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/hoist/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. Environment variables override
// file values for secrets (HOIST_TELEGRAM_BOT_TOKEN, HOIST_WEBHOOK_SECRET,
// HOIST_API_TOKEN).
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnvOverrides() {
	if value := strings.TrimSpace(os.Getenv("HOIST_TELEGRAM_BOT_TOKEN")); value != "" {
		c.Notifications.TelegramBotToken = value
	}
	if value := strings.TrimSpace(os.Getenv("HOIST_WEBHOOK_SECRET")); value != "" {
		c.Notifications.WebhookSecret = value
	}
	if value := strings.TrimSpace(os.Getenv("HOIST_API_TOKEN")); value != "" {
		c.Paths.APIToken = value
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories hoist writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadRoot, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FetchBinary returns the configured media tool binary name.
func (c *Config) FetchBinary() string {
	if binary := strings.TrimSpace(c.Fetch.Binary); binary != "" {
		return binary
	}
	return defaultFetchBinary
}

// FFmpegBinary returns the configured ffmpeg binary name.
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.Transcode.Binary); binary != "" {
		return binary
	}
	return defaultFFmpegBinary
}

// LogLevel implements logging.LogConfig.
func (c *Config) LogLevel() string { return c.Logging.Level }

// LogFormat implements logging.LogConfig.
func (c *Config) LogFormat() string { return c.Logging.Format }

// LogFilePath implements logging.LogConfig.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "hoist.log")
}

func expandPath(pathValue string) (string, error) {
	trimmed := strings.TrimSpace(pathValue)
	if trimmed == "" {
		return "", nil
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	absolute, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", trimmed, err)
	}
	return absolute, nil
}

// ExpandPath exposes tilde/absolute path expansion for callers outside this package.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
