// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Bot         BotConfig         `mapstructure:"bot"`
	Matchmaking MatchmakingConfig `mapstructure:"matchmaking"`
	Games       GamesConfig       `mapstructure:"games"`
}

// ServerConfig holds the HTTP/WebSocket listener configuration.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	WebAppURL      string   `mapstructure:"web_app_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// RedisConfig holds the optional redis queue backend configuration.
// When Addr is empty the matchmaking queue runs in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BotConfig holds the optional Telegram entry bot configuration.
// When Token is empty the bot is not started.
type BotConfig struct {
	Token string `mapstructure:"token"`
}

// MatchmakingConfig holds matchmaking queue tuning.
//
// Bot accounts (automated test partners) are recognized by explicit id
// prefixes rather than inferred from identifiers elsewhere in the code.
type MatchmakingConfig struct {
	ScanInterval          time.Duration `mapstructure:"scan_interval"`
	FallbackWait          time.Duration `mapstructure:"fallback_wait"`
	MinSharedInterests    int           `mapstructure:"min_shared_interests"`
	BotMinSharedInterests int           `mapstructure:"bot_min_shared_interests"`
	BotIDPrefixes         []string      `mapstructure:"bot_id_prefixes"`
	QueueTTL              time.Duration `mapstructure:"queue_ttl"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	MaxStake int64 `mapstructure:"max_stake"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// IsBotID reports whether a user id belongs to an automated test account.
func (m *MatchmakingConfig) IsBotID(userID string) bool {
	for _, prefix := range m.BotIDPrefixes {
		if strings.HasPrefix(userID, prefix) {
			return true
		}
	}
	return false
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the given directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// e.g. SERVER_ADDR, DATABASE_HOST, REDIS_ADDR, BOT_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.addr", ":8080")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "anonchat")
	v.SetDefault("database.name", "anonchat")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Matchmaking defaults mirror the production cadence: a scan every
	// 2 seconds, unconditional pairing after everyone waited 5 seconds.
	v.SetDefault("matchmaking.scan_interval", "2s")
	v.SetDefault("matchmaking.fallback_wait", "5s")
	v.SetDefault("matchmaking.min_shared_interests", 2)
	v.SetDefault("matchmaking.bot_min_shared_interests", 1)
	v.SetDefault("matchmaking.bot_id_prefixes", []string{"test_bot_", "bot_"})
	v.SetDefault("matchmaking.queue_ttl", "5m")

	// Game defaults
	v.SetDefault("games.max_stake", 10000)
}
