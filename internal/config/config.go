// Package config provides configuration management for vodarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort       = 8080
	defaultServerTimeout    = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultMaxOpenConns     = 25
	defaultMaxIdleConns     = 10
	defaultConnMaxIdleTime  = 30 * time.Minute
	defaultGQLTimeout       = 10 * time.Second
	defaultMaxResponseSize  = 100 * 1024 * 1024 // 100MB
	defaultPassInterval     = 4 * time.Second
	defaultQuietPeriod      = 20 * time.Second
	defaultStartupBuffer    = 120 * time.Second
	defaultManifestAttempts = 5
	defaultSegmentAttempts  = 5
	defaultDownloadTimeout  = 5 * time.Second
	defaultBufferCleanupAge = 24 * time.Hour
	defaultWatchSchedule    = "* * * * *"

	// defaultTwitchClientID is the public web player client ID. It grants
	// access to public playback access tokens only.
	defaultTwitchClientID = "kimne78kx3ncx6brgo4mv6wki5h1ko"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Twitch   TwitchConfig   `mapstructure:"twitch"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
}

// ServerConfig holds the optional status HTTP server configuration.
// The server is disabled by default; capture works without it.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir"`
	RecordingDir string `mapstructure:"recording_dir"`
	// TempDir overrides the staging location for in-progress broadcast
	// buffers. Empty means the operating system temp directory.
	TempDir string `mapstructure:"temp_dir"`
	// BufferCleanupAge is the minimum age before an orphaned broadcast
	// buffer directory is removed at startup. Supports values like "24h"
	// or "2d".
	BufferCleanupAge Duration `mapstructure:"buffer_cleanup_age"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // trace, debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TwitchConfig holds Twitch API access configuration.
type TwitchConfig struct {
	ClientID string `mapstructure:"client_id"`
	// OAuthToken is an optional user token. Supplying one lets capture
	// start on subscriber-only broadcasts and removes ad insertion for
	// subscribed channels.
	OAuthToken    string        `mapstructure:"oauth_token" masq:"secret"`
	GQLEndpoint   string        `mapstructure:"gql_endpoint"`
	UsherEndpoint string        `mapstructure:"usher_endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// MaxResponseSize caps API and manifest response bodies.
	// Supports human-readable values like "100MB" or raw byte counts.
	MaxResponseSize ByteSize `mapstructure:"max_response_size"`
}

// CaptureConfig holds capture session tuning.
type CaptureConfig struct {
	Quality       string        `mapstructure:"quality"`
	PassInterval  time.Duration `mapstructure:"pass_interval"`
	QuietPeriod   time.Duration `mapstructure:"quiet_period"`
	StartupBuffer time.Duration `mapstructure:"startup_buffer"`
	// ManifestAttempts bounds manifest fetches within one pass; exhausting
	// it is fatal for the session.
	ManifestAttempts int `mapstructure:"manifest_attempts"`
	// SegmentAttempts bounds whole-segment download attempts; exhausting it
	// abandons that segment and the session continues.
	SegmentAttempts int           `mapstructure:"segment_attempts"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
}

// WatcherConfig holds the channel watcher configuration.
type WatcherConfig struct {
	Channels []string `mapstructure:"channels"`
	Schedule string   `mapstructure:"schedule"` // 5-field cron expression
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with VODARR_ and use underscores for nesting.
// Example: VODARR_TWITCH_OAUTH_TOKEN=abc123.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vodarr")
		v.AddConfigPath("$HOME/.vodarr")
	}

	// Environment variable settings
	v.SetEnvPrefix("VODARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	// The TextUnmarshaller hook lets ByteSize and Duration fields accept
	// values like "100MB" and "2d".
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "vodarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.recording_dir", "recordings")
	v.SetDefault("storage.temp_dir", "")
	v.SetDefault("storage.buffer_cleanup_age", defaultBufferCleanupAge)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Twitch defaults
	v.SetDefault("twitch.client_id", defaultTwitchClientID)
	v.SetDefault("twitch.oauth_token", "")
	v.SetDefault("twitch.gql_endpoint", "https://gql.twitch.tv/gql")
	v.SetDefault("twitch.usher_endpoint", "https://usher.ttvnw.net")
	v.SetDefault("twitch.timeout", defaultGQLTimeout)
	v.SetDefault("twitch.max_response_size", defaultMaxResponseSize)

	// Capture defaults
	v.SetDefault("capture.quality", "best")
	v.SetDefault("capture.pass_interval", defaultPassInterval)
	v.SetDefault("capture.quiet_period", defaultQuietPeriod)
	v.SetDefault("capture.startup_buffer", defaultStartupBuffer)
	v.SetDefault("capture.manifest_attempts", defaultManifestAttempts)
	v.SetDefault("capture.segment_attempts", defaultSegmentAttempts)
	v.SetDefault("capture.download_timeout", defaultDownloadTimeout)

	// Watcher defaults
	v.SetDefault("watcher.channels", []string{})
	v.SetDefault("watcher.schedule", defaultWatchSchedule)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	const maxPort = 65535
	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > maxPort) {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	// Database validation
	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	validDBLogLevels := map[string]bool{"silent": true, "error": true, "warn": true, "info": true}
	if !validDBLogLevels[c.Database.LogLevel] {
		return fmt.Errorf("database.log_level must be one of: silent, error, warn, info")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}

	// Storage validation
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	// Logging validation
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Twitch validation
	if c.Twitch.ClientID == "" {
		return fmt.Errorf("twitch.client_id is required")
	}
	if c.Twitch.GQLEndpoint == "" {
		return fmt.Errorf("twitch.gql_endpoint is required")
	}

	// Capture validation
	if c.Capture.Quality == "" {
		return fmt.Errorf("capture.quality is required")
	}
	if c.Capture.PassInterval <= 0 {
		return fmt.Errorf("capture.pass_interval must be positive")
	}
	if c.Capture.QuietPeriod < c.Capture.PassInterval {
		return fmt.Errorf("capture.quiet_period must be at least capture.pass_interval")
	}
	if c.Capture.StartupBuffer < 0 {
		return fmt.Errorf("capture.startup_buffer cannot be negative")
	}
	if c.Capture.ManifestAttempts < 1 {
		return fmt.Errorf("capture.manifest_attempts must be at least 1")
	}
	if c.Capture.SegmentAttempts < 1 {
		return fmt.Errorf("capture.segment_attempts must be at least 1")
	}

	// Watcher validation
	if c.Watcher.Schedule == "" {
		return fmt.Errorf("watcher.schedule is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RecordingsPath returns the full path to the finished recordings directory.
func (c *StorageConfig) RecordingsPath() string {
	return fmt.Sprintf("%s/%s", c.BaseDir, c.RecordingDir)
}
