/*
Package config loads kindwatch configuration with priority:
defaults -> TOML file -> environment. Credentials are read from the
environment only and are never written to config files or logs.
*/
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration.
type Config struct {
	Source   SourceConfig   `toml:"source"`
	Telegram TelegramConfig `toml:"telegram"`
	Email    EmailConfig    `toml:"email"`
	AI       AIConfig       `toml:"ai"`
	Output   OutputConfig   `toml:"output"`
	Logging  LoggingConfig  `toml:"logging"`
	Runtime  RuntimeConfig  `toml:"runtime"`
}

// SourceConfig contains KIND disclosure source settings.
type SourceConfig struct {
	BaseURL        string `toml:"base_url"`
	MarketType     string `toml:"market_type"`
	UserAgent      string `toml:"user_agent"`
	RequestDelayMS int    `toml:"request_delay_ms"`
	TimeoutSecs    int    `toml:"timeout_secs"`
	UseBrowser     bool   `toml:"use_browser"`
	BrowserWaitMS  int    `toml:"browser_wait_ms"`
	APIKey         string `toml:"-"`
}

// TelegramConfig contains alert delivery settings. The bot token and
// chat id come from TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID.
type TelegramConfig struct {
	Enabled       bool   `toml:"enabled"`
	MinIntervalMS int    `toml:"min_interval_ms"`
	MaxRetries    int    `toml:"max_retries"`
	BackoffMS     int    `toml:"backoff_ms"`
	TimeoutSecs   int    `toml:"timeout_secs"`
	BotToken      string `toml:"-"`
	ChatID        string `toml:"-"`
}

// EmailConfig contains optional end-of-run digest settings. The SMTP
// password comes from SMTP_PASSWORD.
type EmailConfig struct {
	Enabled    bool   `toml:"enabled"`
	SMTPServer string `toml:"smtp_server"`
	SMTPPort   int    `toml:"smtp_port"`
	SMTPUser   string `toml:"smtp_user"`
	FromEmail  string `toml:"from_email"`
	ToEmail    string `toml:"to_email"`
	SMTPPass   string `toml:"-"`
}

// AIConfig contains optional Gemini summary settings. The API key
// comes from GEMINI_API_KEY; summaries are skipped when it is unset.
type AIConfig struct {
	Model  string `toml:"model"`
	APIKey string `toml:"-"`
}

// OutputConfig contains persisted artifact locations.
type OutputConfig struct {
	LogDir     string `toml:"log_dir"`
	ResultsDir string `toml:"results_dir"`
	LedgerPath string `toml:"ledger_path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// RuntimeConfig contains run-wide settings.
type RuntimeConfig struct {
	Timezone       string `toml:"timezone"`
	RunTimeoutSecs int    `toml:"run_timeout_secs"`
}

// NewDefaultConfig returns the built-in defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:        "https://kind.krx.co.kr",
			MarketType:     "0",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestDelayMS: 1500,
			TimeoutSecs:    30,
			BrowserWaitMS:  3000,
		},
		Telegram: TelegramConfig{
			Enabled:       true,
			MinIntervalMS: 1000,
			MaxRetries:    3,
			BackoffMS:     2000,
			TimeoutSecs:   30,
		},
		Email: EmailConfig{
			SMTPServer: "smtp.gmail.com",
			SMTPPort:   587,
		},
		AI: AIConfig{
			Model: "gemini-2.0-flash",
		},
		Output: OutputConfig{
			LogDir:     "output/logs",
			ResultsDir: "output/results",
			LedgerPath: "output/ledger/alerted.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Runtime: RuntimeConfig{
			Timezone:       "Asia/Seoul",
			RunTimeoutSecs: 600,
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path loads defaults and env only.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies KINDWATCH_* overrides and credentials.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("KINDWATCH_SOURCE_BASE_URL"); v != "" {
		config.Source.BaseURL = v
	}
	if v := os.Getenv("KINDWATCH_SOURCE_MARKET_TYPE"); v != "" {
		config.Source.MarketType = v
	}
	if v := os.Getenv("KINDWATCH_SOURCE_USE_BROWSER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Source.UseBrowser = b
		}
	}
	if v := os.Getenv("KINDWATCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("KINDWATCH_LOG_DIR"); v != "" {
		config.Output.LogDir = v
	}
	if v := os.Getenv("KINDWATCH_RESULTS_DIR"); v != "" {
		config.Output.ResultsDir = v
	}
	if v := os.Getenv("KINDWATCH_LEDGER_PATH"); v != "" {
		config.Output.LedgerPath = v
	}
	if v := os.Getenv("KINDWATCH_TIMEZONE"); v != "" {
		config.Runtime.Timezone = v
	}

	config.Source.APIKey = os.Getenv("KIND_API_KEY")
	config.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	config.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")
	config.Email.SMTPPass = os.Getenv("SMTP_PASSWORD")
	config.AI.APIKey = os.Getenv("GEMINI_API_KEY")
}

// Validate reports malformed configuration. A validation failure is
// fatal to the run.
func (c *Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must not be empty")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram enabled but TELEGRAM_BOT_TOKEN is not set")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram enabled but TELEGRAM_CHAT_ID is not set")
		}
	}
	if c.Email.Enabled {
		if c.Email.SMTPUser == "" || c.Email.ToEmail == "" {
			return fmt.Errorf("email enabled but smtp_user or to_email is not set")
		}
	}
	if c.Runtime.Timezone == "" {
		return fmt.Errorf("runtime.timezone must not be empty")
	}
	return nil
}
