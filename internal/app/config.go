package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/lazynerd-007/lpv1-sub000/internal/database"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig controls access-token validation.
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// NotificationsConfig tunes the delivery pipeline and retention sweep.
type NotificationsConfig struct {
	RetentionDays        int    `mapstructure:"retention_days"`
	CleanupSchedule      string `mapstructure:"cleanup_schedule"`
	QueueWorkers         int    `mapstructure:"queue_workers"`
	QueueBuffer          int    `mapstructure:"queue_buffer"`
	BroadcastConcurrency int    `mapstructure:"broadcast_concurrency"`
	SessionBuffer        int    `mapstructure:"session_buffer"`
}

// MonitoringConfig toggles the metrics endpoint.
type MonitoringConfig struct {
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config is the full application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      database.Config     `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// LoadConfig reads configuration from an optional YAML file plus NOTIFIER_
// environment overrides. A missing file is not an error; defaults and the
// environment carry a full configuration on their own.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("NOTIFIER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Notifications.RetentionDays <= 0 {
		return fmt.Errorf("notifications.retention_days must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/notifier.db")

	v.SetDefault("auth.jwt_issuer", "notifier")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("notifications.retention_days", 30)
	v.SetDefault("notifications.cleanup_schedule", "0 3 * * *")
	v.SetDefault("notifications.queue_workers", 4)
	v.SetDefault("notifications.queue_buffer", 256)
	v.SetDefault("notifications.broadcast_concurrency", 16)
	v.SetDefault("notifications.session_buffer", 64)

	v.SetDefault("monitoring.enable_metrics", false)

	v.SetDefault("logging.level", "info")
}
