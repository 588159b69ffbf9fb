// Package config provides configuration management using Viper.
// It loads configuration from environment variables, .env files, and config files.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultServerPort         = 8080
	defaultServerHost         = "0.0.0.0"
	defaultReadTimeout        = 30 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultDatabasePath       = "./data/techshow.db"
	defaultLogLevel           = "info"
	defaultLogPretty          = false
	defaultSchedulerWorkers   = 8
	defaultSchedulerQueueSize = 256
	envPrefix                 = "TECHSHOW"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Stream    StreamConfig
	ChatRoom  ChatRoomConfig
	Scheduler SchedulerConfig
	Lifecycle LifecycleConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Path           string
	MigrationsPath string
}

// RedisConfig holds the optional Redis connection used for the
// per-stream publishing lock. When Addr is empty the in-process
// lock is used instead.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StreamConfig holds credentials for the live-stream provider
type StreamConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Hub        string
	PlayDomain string
	Timeout    time.Duration
}

// ChatRoomConfig holds credentials for the chat-room provider
type ChatRoomConfig struct {
	Endpoint  string
	AppKey    string
	AppSecret string
	Timeout   time.Duration
}

// SchedulerConfig holds background task runner configuration
type SchedulerConfig struct {
	Workers   int
	QueueSize int
}

// LifecycleConfig holds the channel lifecycle tuning knobs
type LifecycleConfig struct {
	MonitorInitialDelay  time.Duration // delay before the first liveness check after publish
	MonitorInterval      time.Duration // liveness polling interval (and delay after resume)
	ReconcileDelay       time.Duration // delay between finish/disable and reconciliation
	ChatCreateBackoff    time.Duration // fixed backoff for chat room creation retries
	ChatDestroyBackoff   time.Duration
	ChatDestroyAttempts  int // bounded retry budget for chat room destruction
	MessageRetryAttempts int // bounded retry budget for chat message publication
	MaxLiveChannels      int // maximum channels without a stoppedAt, 0 = unlimited
	MessageMinInterval   time.Duration // per-user message send throttle
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Pretty bool
}

// Load reads configuration from .env file, config files, environment variables, and defaults
func Load() (*Config, error) {
	// .env files are optional in production and CI where env vars are set directly
	_ = godotenv.Load() // nolint:errcheck // .env file is optional

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/techshow")

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.host", defaultServerHost)
	v.SetDefault("server.readtimeout", defaultReadTimeout)
	v.SetDefault("server.writetimeout", defaultWriteTimeout)

	v.SetDefault("database.path", defaultDatabasePath)
	v.SetDefault("database.migrationspath", "file://./migrations")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stream.endpoint", "https://pili.qiniuapi.com")
	v.SetDefault("stream.playdomain", "live.techshow.tv")
	v.SetDefault("stream.timeout", 10*time.Second)

	v.SetDefault("chatroom.endpoint", "https://api.rong.io")
	v.SetDefault("chatroom.timeout", 10*time.Second)

	v.SetDefault("scheduler.workers", defaultSchedulerWorkers)
	v.SetDefault("scheduler.queuesize", defaultSchedulerQueueSize)

	v.SetDefault("lifecycle.monitorinitialdelay", 30*time.Second)
	v.SetDefault("lifecycle.monitorinterval", 10*time.Second)
	v.SetDefault("lifecycle.reconciledelay", 15*time.Second)
	v.SetDefault("lifecycle.chatcreatebackoff", 5*time.Second)
	v.SetDefault("lifecycle.chatdestroybackoff", 5*time.Second)
	v.SetDefault("lifecycle.chatdestroyattempts", 5)
	v.SetDefault("lifecycle.messageretryattempts", 2)
	v.SetDefault("lifecycle.maxlivechannels", 0)
	v.SetDefault("lifecycle.messagemininterval", time.Second)

	v.SetDefault("logging.level", defaultLogLevel)
	v.SetDefault("logging.pretty", defaultLogPretty)
}

// Validate checks that configuration values are valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("invalid read timeout: %v (must be > 0)", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("invalid write timeout: %v (must be > 0)", c.Server.WriteTimeout)
	}

	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("invalid scheduler workers: %d (must be >= 1)", c.Scheduler.Workers)
	}
	if c.Scheduler.QueueSize < 1 {
		return fmt.Errorf("invalid scheduler queue size: %d (must be >= 1)", c.Scheduler.QueueSize)
	}

	if c.Lifecycle.MonitorInterval <= 0 {
		return fmt.Errorf("invalid monitor interval: %v (must be > 0)", c.Lifecycle.MonitorInterval)
	}
	if c.Lifecycle.ChatDestroyAttempts < 1 {
		return fmt.Errorf("invalid chat destroy attempts: %d (must be >= 1)", c.Lifecycle.ChatDestroyAttempts)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.Logging.Level, strings.Join(validLevels, ", "))
	}

	return nil
}

// contains checks if a string slice contains a specific value
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
