package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"insider-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Chain        ChainConfig        `mapstructure:"chain"`
	Markets      MarketsConfig      `mapstructure:"markets"`
	Surveillance SurveillanceConfig `mapstructure:"surveillance"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates the optional PostgreSQL audit store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// ChainConfig covers on-chain data access.
type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ExchangeAddress string        `mapstructure:"exchange_address"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
}

// MarketsConfig captures Gamma API connectivity.
type MarketsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SurveillanceConfig governs the scan-and-alert pipeline.
type SurveillanceConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	StartupDelay        time.Duration `mapstructure:"startup_delay"`
	ChunkSize           uint64        `mapstructure:"chunk_size"`
	MinBetAmount        float64       `mapstructure:"min_bet_amount"`
	NewAccountDays      int           `mapstructure:"new_account_days"`
	EstablishedTxCount  uint64        `mapstructure:"established_tx_count"`
	LookbackBlocks      uint64        `mapstructure:"lookback_blocks"`
	SearchProbes        int           `mapstructure:"search_probes"`
	WalletCacheCapacity int           `mapstructure:"wallet_cache_capacity"`
	AlertCacheCapacity  int           `mapstructure:"alert_cache_capacity"`
	Pacing              time.Duration `mapstructure:"pacing"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Channels []string       `mapstructure:"channels"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Discord  DiscordConfig  `mapstructure:"discord"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// DiscordConfig 描述 Discord Webhook 告警参数。
type DiscordConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Username   string `mapstructure:"username"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSIDERWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "insiderwatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("chain.request_timeout", "10s")
	// Polymarket CTF Exchange on Polygon.
	v.SetDefault("chain.exchange_address", "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E")

	v.SetDefault("markets.base_url", "https://gamma-api.polymarket.com")
	v.SetDefault("markets.request_timeout", "10s")
	v.SetDefault("markets.user_agent", "insiderwatch/1.0")

	v.SetDefault("surveillance.interval", "30s")
	v.SetDefault("surveillance.startup_delay", "0s")
	v.SetDefault("surveillance.chunk_size", uint64(50))
	v.SetDefault("surveillance.min_bet_amount", 10000.0)
	v.SetDefault("surveillance.new_account_days", 7)
	v.SetDefault("surveillance.established_tx_count", uint64(10))
	v.SetDefault("surveillance.lookback_blocks", uint64(10000))
	v.SetDefault("surveillance.search_probes", 5)
	v.SetDefault("surveillance.wallet_cache_capacity", 10000)
	v.SetDefault("surveillance.alert_cache_capacity", 1000)
	v.SetDefault("surveillance.pacing", "2s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.channels", []string{"discord"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.discord.enabled", false)
	v.SetDefault("alerting.discord.username", "insiderwatch")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.advisory_lock_key", int64(0x696e7764))
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Surveillance.Interval <= 0 {
		return fmt.Errorf("surveillance.interval must be greater than zero")
	}
	if c.Surveillance.ChunkSize == 0 {
		return fmt.Errorf("surveillance.chunk_size must be greater than zero")
	}
	if c.Surveillance.MinBetAmount <= 0 {
		return fmt.Errorf("surveillance.min_bet_amount must be greater than zero")
	}
	if c.Surveillance.AlertCacheCapacity <= 0 {
		return fmt.Errorf("surveillance.alert_cache_capacity must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Alerting.Discord.Enabled && c.Alerting.Discord.WebhookURL == "" {
		return fmt.Errorf("alerting.discord.webhook_url 必须配置")
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
