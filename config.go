package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains every option the server and the bot client read.
type Config struct {
	Server struct {
		// Address the HTTP/WebSocket listener binds to.
		Addr string `mapstructure:"addr"`
		// Base URL encoded into lobby invite QR codes.
		PublicURL string `mapstructure:"public_url"`
		// Connection admission limits.
		MaxConnsPerIP int `mapstructure:"max_conns_per_ip"`
		MaxTotalConns int `mapstructure:"max_total_conns"`
		// Inbound messages per second allowed per connection, and the burst on top.
		MessagesPerSec float64 `mapstructure:"messages_per_sec"`
		MessageBurst   int     `mapstructure:"message_burst"`
	} `mapstructure:"server"`

	Game struct {
		// Simulation/broadcast rate in ticks per second.
		TickRate int `mapstructure:"tick_rate"`
		// Upper bound on concurrently existing lobbies.
		MaxLobbies int `mapstructure:"max_lobbies"`
		// How long a dropped player can reclaim their seat mid-match.
		ResumeWindow time.Duration `mapstructure:"resume_window"`
		// Hex-encoded HMAC key for resume tokens. Generated when blank.
		ResumeSecret string `mapstructure:"resume_secret"`
	} `mapstructure:"game"`

	Database struct {
		// SQLite file for match history. Blank disables persistence.
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Logging struct {
		// Minimum level written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Rolling log file. Blank writes to stdout.
		LogFilePath   string `mapstructure:"log_file_path"`
		MaxSizeMB     int    `mapstructure:"max_size_mb"`
		MaxBackups    int    `mapstructure:"max_backups"`
		MaxAgeDays    int    `mapstructure:"max_age_days"`
		IncludeCaller bool   `mapstructure:"include_caller"`
	} `mapstructure:"logging"`

	Client struct {
		// Server WebSocket URL the bot connects to.
		URL string `mapstructure:"url"`
		// Upper bound on the connect handshake.
		DialTimeout time.Duration `mapstructure:"dial_timeout"`
		// How often the latest intent is flushed to the server.
		IntentRate int `mapstructure:"intent_rate"`
	} `mapstructure:"client"`
}

const envVarPrefix = "COOPSHOOTER"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.max_conns_per_ip", 5)
	v.SetDefault("server.max_total_conns", 1000)
	v.SetDefault("server.messages_per_sec", 120.0)
	v.SetDefault("server.message_burst", 60)

	v.SetDefault("game.tick_rate", 60)
	v.SetDefault("game.max_lobbies", 100)
	v.SetDefault("game.resume_window", 30*time.Second)
	v.SetDefault("game.resume_secret", "")

	v.SetDefault("database.path", "coopshooter.db")

	v.SetDefault("logging.log_level", "info")
	v.SetDefault("logging.log_file_path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.include_caller", true)

	v.SetDefault("client.url", "ws://localhost:8080/ws")
	v.SetDefault("client.dial_timeout", 5*time.Second)
	v.SetDefault("client.intent_rate", 30)
}

// LoadConfig reads config.yaml from configPath (if present), then overlays
// environment variables. Nested keys map to env vars with dots replaced, e.g.
// game.tick_rate is set through COOPSHOOTER_GAME_TICK_RATE.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	v.SetEnvPrefix(envVarPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Game.TickRate <= 0 {
		return fmt.Errorf("game.tick_rate must be positive, got %d", c.Game.TickRate)
	}
	if c.Client.IntentRate <= 0 {
		return fmt.Errorf("client.intent_rate must be positive, got %d", c.Client.IntentRate)
	}
	if c.Server.MessagesPerSec <= 0 {
		return fmt.Errorf("server.messages_per_sec must be positive, got %v", c.Server.MessagesPerSec)
	}
	if c.Server.MessageBurst <= 0 {
		return fmt.Errorf("server.message_burst must be positive, got %d", c.Server.MessageBurst)
	}
	return nil
}

// TickInterval is the wall-clock time between two scheduler cycles.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Game.TickRate)
}

// InviteURL is the link a lobby's QR code points at.
func (c *Config) InviteURL(lobbyID string) string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/?lobby=" + lobbyID
}
