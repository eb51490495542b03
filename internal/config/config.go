package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/bandwatch/internal/models"
	"github.com/rewired-gh/bandwatch/internal/session"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Instruments []models.Instrument `mapstructure:"instruments"`
	Session     SessionConfig       `mapstructure:"session"`
	Monitor     MonitorConfig       `mapstructure:"monitor"`
	PriceSource PriceSourceConfig   `mapstructure:"price_source"`
	Telegram    TelegramConfig      `mapstructure:"telegram"`
	Storage     StorageConfig       `mapstructure:"storage"`
	Schedule    ScheduleConfig      `mapstructure:"schedule"`
	Logging     LoggingConfig       `mapstructure:"logging"`
}

// SessionConfig holds the exchange calendar, as wall-clock times in Timezone
type SessionConfig struct {
	Timezone string `mapstructure:"timezone"`
	Open     string `mapstructure:"open"`
	Close    string `mapstructure:"close"`
	HardStop string `mapstructure:"hard_stop"`
}

// MonitorConfig holds monitoring behavior configuration
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	K               float64       `mapstructure:"k"`
	BandShape       string        `mapstructure:"band_shape"`
	LookbackDays    int           `mapstructure:"lookback_days"`
	FailurePolicy   string        `mapstructure:"failure_policy"` // skip or drop
	AnnounceSummary bool          `mapstructure:"announce_summary"`
	FetchWorkers    int           `mapstructure:"fetch_workers"`
	PricePrecision  int32         `mapstructure:"price_precision"`
}

// PriceSourceConfig holds chart API configuration
type PriceSourceConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelayBase   time.Duration `mapstructure:"retry_delay_base"`
	UserAgent        string        `mapstructure:"user_agent"`
	IntradayInterval string        `mapstructure:"intraday_interval"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	ListenCommands bool          `mapstructure:"listen_commands"`
}

// StorageConfig holds the run journal configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// ScheduleConfig holds the weekday trigger for daemon mode
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file, an optional .env file and environment variables
func Load(path string) (*Config, error) {
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	// BANDWATCH_MONITOR_POLL_INTERVAL overrides monitor.poll_interval
	v.SetEnvPrefix("BANDWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Credential names used by earlier deployments
	_ = v.BindEnv("telegram.bot_token", "BANDWATCH_TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "BANDWATCH_TELEGRAM_CHAT_ID", "CHAT_ID")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv loads the first .env file that exists. Variables already set in the
// environment win.
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		err := godotenv.Load(p)
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Session defaults (KRX regular session)
	v.SetDefault("session.timezone", "Asia/Seoul")
	v.SetDefault("session.open", "09:00")
	v.SetDefault("session.close", "15:30")
	v.SetDefault("session.hard_stop", "16:00")

	// Monitor defaults
	v.SetDefault("monitor.poll_interval", "5m")
	v.SetDefault("monitor.k", 2.0)
	v.SetDefault("monitor.band_shape", "asymmetric")
	v.SetDefault("monitor.lookback_days", 1250)
	v.SetDefault("monitor.failure_policy", "skip")
	v.SetDefault("monitor.announce_summary", true)
	v.SetDefault("monitor.fetch_workers", 1)
	v.SetDefault("monitor.price_precision", 0)

	// Price source defaults
	v.SetDefault("price_source.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("price_source.timeout", "15s")
	v.SetDefault("price_source.max_retries", 3)
	v.SetDefault("price_source.retry_delay_base", "1s")
	v.SetDefault("price_source.user_agent", "Mozilla/5.0 (compatible; bandwatch/1.0)")
	v.SetDefault("price_source.intraday_interval", "1m")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.listen_commands", true)

	// Storage defaults
	v.SetDefault("storage.enabled", true)
	v.SetDefault("storage.db_path", "./data/bandwatch.db")

	// Schedule defaults
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 9 * * 1-5")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate instruments
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments must contain at least one instrument")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i := range c.Instruments {
		if err := c.Instruments[i].Validate(); err != nil {
			return fmt.Errorf("instruments[%d]: %w", i, err)
		}
		if seen[c.Instruments[i].Name] {
			return fmt.Errorf("instruments[%d]: duplicate name %q", i, c.Instruments[i].Name)
		}
		seen[c.Instruments[i].Name] = true
	}

	// Validate Session config
	if _, err := c.Gate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}

	// Validate Monitor config
	if c.Monitor.PollInterval < 10*time.Second {
		return fmt.Errorf("monitor.poll_interval must be at least 10 seconds")
	}
	if c.Monitor.K <= 0 {
		return fmt.Errorf("monitor.k must be positive")
	}
	if _, err := models.ParseShape(c.Monitor.BandShape); err != nil {
		return fmt.Errorf("monitor.band_shape must be one of: asymmetric, symmetric")
	}
	if c.Monitor.LookbackDays < 3 {
		return fmt.Errorf("monitor.lookback_days must be at least 3")
	}
	if c.Monitor.FailurePolicy != "skip" && c.Monitor.FailurePolicy != "drop" {
		return fmt.Errorf("monitor.failure_policy must be one of: skip, drop")
	}
	if c.Monitor.FetchWorkers < 1 || c.Monitor.FetchWorkers > 32 {
		return fmt.Errorf("monitor.fetch_workers must be between 1 and 32")
	}
	if c.Monitor.PricePrecision < 0 || c.Monitor.PricePrecision > 8 {
		return fmt.Errorf("monitor.price_precision must be between 0 and 8")
	}

	// Validate Price source config
	if c.PriceSource.BaseURL == "" {
		return fmt.Errorf("price_source.base_url is required")
	}
	if c.PriceSource.Timeout < time.Second {
		return fmt.Errorf("price_source.timeout must be at least 1 second")
	}
	if c.PriceSource.MaxRetries < 1 {
		return fmt.Errorf("price_source.max_retries must be at least 1")
	}
	if c.PriceSource.IntradayInterval == "" {
		return fmt.Errorf("price_source.intraday_interval is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if c.Telegram.MaxRetries < 1 {
			return fmt.Errorf("telegram.max_retries must be at least 1")
		}
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	// Validate Schedule config
	if c.Schedule.Enabled && len(strings.Fields(c.Schedule.Cron)) != 5 {
		return fmt.Errorf("schedule.cron must be a five-field cron expression")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// Gate builds the session gate from the session section
func (c *Config) Gate() (session.Gate, error) {
	return session.NewGate(c.Session.Timezone, c.Session.Open, c.Session.Close, c.Session.HardStop)
}
