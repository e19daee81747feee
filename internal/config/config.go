package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// VenueConfig represents venue endpoint configuration
type VenueConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	WSURL       string        `yaml:"ws_url" json:"ws_url"`
	CallTimeout time.Duration `yaml:"call_timeout" json:"call_timeout"`
}

// EngineConfig represents quoting engine configuration
type EngineConfig struct {
	ConfigPollInterval time.Duration `yaml:"config_poll_interval" json:"config_poll_interval"`
	TickInterval       time.Duration `yaml:"tick_interval" json:"tick_interval"`
	MaxBackoff         time.Duration `yaml:"max_backoff" json:"max_backoff"`
	FlattenSlippage    float64       `yaml:"flatten_slippage" json:"flatten_slippage"`
}

// ScannerConfig represents symbol scanner configuration
type ScannerConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval" json:"scan_interval"`
	TopN         int           `yaml:"top_n" json:"top_n"`
}

// TelemetryConfig represents position publisher configuration
type TelemetryConfig struct {
	PublishInterval time.Duration `yaml:"publish_interval" json:"publish_interval"`
	Channel         string        `yaml:"channel" json:"channel"`
	HistoryStream   string        `yaml:"history_stream" json:"history_stream"`
}

// OpsConfig represents the operational HTTP endpoint configuration
type OpsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Config is the full process configuration
type Config struct {
	Redis     RedisConfig     `yaml:"redis" json:"redis"`
	Venue     VenueConfig     `yaml:"venue" json:"venue"`
	Engine    EngineConfig    `yaml:"engine" json:"engine"`
	Scanner   ScannerConfig   `yaml:"scanner" json:"scanner"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Ops       OpsConfig       `yaml:"ops" json:"ops"`

	ConfigChannel string `yaml:"config_channel" json:"config_channel"`
}

// LoadConfig reads config.yaml (if present) and applies environment
// overrides on top of built-in defaults.
func LoadConfig() (*Config, error) {
	config := &Config{
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Venue: VenueConfig{
			BaseURL:     "https://api.hyperliquid.xyz",
			WSURL:       "wss://api.hyperliquid.xyz/ws",
			CallTimeout: 5 * time.Second,
		},
		Engine: EngineConfig{
			ConfigPollInterval: 1 * time.Second,
			TickInterval:       100 * time.Millisecond,
			MaxBackoff:         30 * time.Second,
			FlattenSlippage:    0.03,
		},
		Scanner: ScannerConfig{
			ScanInterval: 1 * time.Hour,
			TopN:         10,
		},
		Telemetry: TelemetryConfig{
			PublishInterval: 1 * time.Second,
			Channel:         "mm_position_updates",
			HistoryStream:   "position_history",
		},
		Ops: OpsConfig{
			Addr: ":8080",
		},
		ConfigChannel: "mm_config",
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/permabid")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		if viper.IsSet("redis.addr") {
			config.Redis.Addr = viper.GetString("redis.addr")
		}
		if viper.IsSet("redis.password") {
			config.Redis.Password = viper.GetString("redis.password")
		}
		if viper.IsSet("redis.db") {
			config.Redis.DB = viper.GetInt("redis.db")
		}
		if viper.IsSet("venue.base_url") {
			config.Venue.BaseURL = viper.GetString("venue.base_url")
		}
		if viper.IsSet("venue.ws_url") {
			config.Venue.WSURL = viper.GetString("venue.ws_url")
		}
		if viper.IsSet("venue.call_timeout") {
			config.Venue.CallTimeout = viper.GetDuration("venue.call_timeout")
		}
		if viper.IsSet("engine.config_poll_interval") {
			config.Engine.ConfigPollInterval = viper.GetDuration("engine.config_poll_interval")
		}
		if viper.IsSet("engine.tick_interval") {
			config.Engine.TickInterval = viper.GetDuration("engine.tick_interval")
		}
		if viper.IsSet("engine.max_backoff") {
			config.Engine.MaxBackoff = viper.GetDuration("engine.max_backoff")
		}
		if viper.IsSet("engine.flatten_slippage") {
			config.Engine.FlattenSlippage = viper.GetFloat64("engine.flatten_slippage")
		}
		if viper.IsSet("scanner.scan_interval") {
			config.Scanner.ScanInterval = viper.GetDuration("scanner.scan_interval")
		}
		if viper.IsSet("scanner.top_n") {
			config.Scanner.TopN = viper.GetInt("scanner.top_n")
		}
		if viper.IsSet("telemetry.publish_interval") {
			config.Telemetry.PublishInterval = viper.GetDuration("telemetry.publish_interval")
		}
		if viper.IsSet("telemetry.channel") {
			config.Telemetry.Channel = viper.GetString("telemetry.channel")
		}
		if viper.IsSet("telemetry.history_stream") {
			config.Telemetry.HistoryStream = viper.GetString("telemetry.history_stream")
		}
		if viper.IsSet("ops.addr") {
			config.Ops.Addr = viper.GetString("ops.addr")
		}
		if viper.IsSet("config_channel") {
			config.ConfigChannel = viper.GetString("config_channel")
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("REDIS_URL"); v != "" {
		config.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			config.Redis.DB = db
		}
	}
	if v := os.Getenv("VENUE_BASE_URL"); v != "" {
		config.Venue.BaseURL = v
	}
	if v := os.Getenv("VENUE_WS_URL"); v != "" {
		config.Venue.WSURL = v
	}
	if v := os.Getenv("OPS_ADDR"); v != "" {
		config.Ops.Addr = v
	}
}
