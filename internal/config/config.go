package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"pricebot/internal/logging"
	"pricebot/internal/market"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Tokens    []string        `mapstructure:"tokens"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	TickTimeout     time.Duration `mapstructure:"tick_timeout"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// FetcherConfig selects and tunes the price source.
type FetcherConfig struct {
	Source         string          `mapstructure:"source"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
	CoinGecko      CoinGeckoConfig `mapstructure:"coingecko"`
	Chainlink      ChainlinkConfig `mapstructure:"chainlink"`
}

// CoinGeckoConfig covers the public REST API.
type CoinGeckoConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	UserAgent string `mapstructure:"user_agent"`
}

// ChainlinkConfig maps tokens to on-chain USD aggregator contracts.
type ChainlinkConfig struct {
	RPCURL string            `mapstructure:"rpc_url"`
	Feeds  map[string]string `mapstructure:"feeds"`
}

// StorageConfig locates the JSON history files.
type StorageConfig struct {
	DataDir    string `mapstructure:"data_dir"`
	MaxHistory int    `mapstructure:"max_history"`
	MaxAlerts  int    `mapstructure:"max_alerts"`
}

// DatabaseConfig encapsulates the optional PostgreSQL archive.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	ThresholdPct float64        `mapstructure:"threshold_pct"`
	WindowSize   int            `mapstructure:"window_size"`
	MaxRecent    int            `mapstructure:"max_recent"`
	Channels     []string       `mapstructure:"channels"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("PRICEBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv keeps the variable names used by earlier deployments working.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"scheduler.interval":          {"PRICEBOT_SCHEDULER_INTERVAL", "POLL_INTERVAL"},
		"alerting.threshold_pct":      {"PRICEBOT_ALERTING_THRESHOLD_PCT", "ALERT_THRESHOLD"},
		"fetcher.coingecko.api_key":   {"PRICEBOT_FETCHER_COINGECKO_API_KEY", "COINGECKO_API_KEY"},
		"fetcher.chainlink.rpc_url":   {"PRICEBOT_FETCHER_CHAINLINK_RPC_URL", "ETH_RPC_URL"},
		"alerting.telegram.bot_token": {"PRICEBOT_ALERTING_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"alerting.telegram.chat_id":   {"PRICEBOT_ALERTING_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pricebot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("tokens", market.DefaultTokens)

	v.SetDefault("scheduler.interval", "60s")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.run_on_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.tick_timeout", "30s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0))

	v.SetDefault("fetcher.source", "coingecko")
	v.SetDefault("fetcher.request_timeout", "10s")
	v.SetDefault("fetcher.coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("fetcher.chainlink.feeds", map[string]string{
		"bitcoin":  "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c",
		"ethereum": "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
		"solana":   "0x4ffC43a60e009B551865A93d232E33Fce9f01507",
	})

	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.max_history", 1000)
	v.SetDefault("storage.max_alerts", 500)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("alerting.threshold_pct", 5.0)
	v.SetDefault("alerting.window_size", 10)
	v.SetDefault("alerting.max_recent", 500)
	v.SetDefault("alerting.channels", []string{"log"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 1000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			millisecondsHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// millisecondsHookFunc reads bare numbers as milliseconds, so POLL_INTERVAL=60000 works.
func millisecondsHookFunc() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Millisecond, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Millisecond)), nil
		case reflect.String:
			raw := strings.TrimSpace(data.(string))
			if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return time.Duration(ms) * time.Millisecond, nil
			}
		}
		return data, nil
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("tokens must not be empty")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Fetcher.Source {
	case "coingecko", "chainlink":
	default:
		return fmt.Errorf("fetcher.source must be coingecko or chainlink, got %q", c.Fetcher.Source)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.MaxHistory <= 0 || c.Storage.MaxAlerts <= 0 {
		return fmt.Errorf("storage.max_history and storage.max_alerts must be greater than zero")
	}
	if c.Alerting.ThresholdPct < 0 {
		return fmt.Errorf("alerting.threshold_pct cannot be negative")
	}
	if c.Alerting.WindowSize < 2 {
		return fmt.Errorf("alerting.window_size must be at least 2")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
