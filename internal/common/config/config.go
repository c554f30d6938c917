// Package config provides layered configuration loading for the discussion
// orchestrator service: environment variables, an optional config file, and
// defaults, following spf13/viper.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	NATS         NATSConfig         `mapstructure:"nats"`
	Events       EventsConfig       `mapstructure:"events"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Fanout       FanoutConfig       `mapstructure:"fanout"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // seconds
}

// DatabaseConfig holds Discussion Repository connection configuration.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // memory, sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS event bus configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// EventsConfig holds event bus channel/namespace configuration.
type EventsConfig struct {
	Namespace          string        `mapstructure:"namespace"`
	RequestTimeout     time.Duration `mapstructure:"-"`
	RequestTimeoutSecs int           `mapstructure:"requestTimeoutSeconds"`
}

// AuthConfig holds credential-validation configuration for both the HTTP
// surface and the websocket handshake.
type AuthConfig struct {
	JWTSecret     string `mapstructure:"jwtSecret"`
	TokenDuration int    `mapstructure:"tokenDuration"` // seconds
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// OrchestratorConfig holds Discussion Orchestrator defaults.
type OrchestratorConfig struct {
	DefaultTurnTimeoutSeconds int `mapstructure:"defaultTurnTimeoutSeconds"`
	MaxParticipants           int `mapstructure:"maxParticipants"`
}

// FanoutConfig holds Session Fan-Out Layer defaults.
type FanoutConfig struct {
	MaxConnectionsPerUser int `mapstructure:"maxConnectionsPerUser"`
	MessagesPerMinute     int `mapstructure:"messagesPerMinute"`
	MaxMessageSizeBytes   int `mapstructure:"maxMessageSizeBytes"`
	HeartbeatIntervalSecs int `mapstructure:"heartbeatIntervalSeconds"`
	HeartbeatTimeoutSecs  int `mapstructure:"heartbeatTimeoutSeconds"`
	SessionTTLMultiple    int `mapstructure:"sessionTTLMultiple"` // TTL = heartbeat window * this
}

func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

func (a *AuthConfig) TokenDurationTime() time.Duration {
	return time.Duration(a.TokenDuration) * time.Second
}

func (f *FanoutConfig) HeartbeatInterval() time.Duration {
	return time.Duration(f.HeartbeatIntervalSecs) * time.Second
}

func (f *FanoutConfig) HeartbeatTimeout() time.Duration {
	return time.Duration(f.HeartbeatTimeoutSecs) * time.Second
}

func (f *FanoutConfig) SessionTTL() time.Duration {
	return f.HeartbeatTimeout() * time.Duration(f.SessionTTLMultiple)
}

// detectDefaultLogFormat mirrors the logger package's own detection so that
// config defaults and the logger agree before the logger is constructed.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGORA_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "./agora.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "agora")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "agora")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use the in-memory event bus.
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agora-client")
	v.SetDefault("nats.maxReconnects", 10)

	v.SetDefault("events.namespace", "")
	v.SetDefault("events.requestTimeoutSeconds", 5)

	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenDuration", 3600)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("orchestrator.defaultTurnTimeoutSeconds", 300)
	v.SetDefault("orchestrator.maxParticipants", 50)

	v.SetDefault("fanout.maxConnectionsPerUser", 5)
	v.SetDefault("fanout.messagesPerMinute", 60)
	v.SetDefault("fanout.maxMessageSizeBytes", 32*1024)
	v.SetDefault("fanout.heartbeatIntervalSeconds", 30)
	v.SetDefault("fanout.heartbeatTimeoutSeconds", 60)
	v.SetDefault("fanout.sessionTTLMultiple", 3)
}

// Load reads configuration from environment variables (prefix AGORA_),
// an optional config.yaml in "." or /etc/agora/, and defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "AGORA_LOG_LEVEL")
	_ = v.BindEnv("events.namespace", "AGORA_EVENTS_NAMESPACE")
	_ = v.BindEnv("nats.url", "AGORA_NATS_URL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agora/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Events.RequestTimeout = time.Duration(cfg.Events.RequestTimeoutSecs) * time.Second

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch cfg.Database.Driver {
	case "memory", "sqlite":
		// no additional requirements
	case "postgres":
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: memory, sqlite, postgres")
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = generateDevSecret()
	}
	if cfg.Auth.TokenDuration <= 0 {
		errs = append(errs, "auth.tokenDuration must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if cfg.Orchestrator.DefaultTurnTimeoutSeconds < 10 || cfg.Orchestrator.DefaultTurnTimeoutSeconds > 3600 {
		errs = append(errs, "orchestrator.defaultTurnTimeoutSeconds must be between 10 and 3600")
	}
	if cfg.Fanout.MaxConnectionsPerUser <= 0 {
		errs = append(errs, "fanout.maxConnectionsPerUser must be positive")
	}
	if cfg.Fanout.MaxMessageSizeBytes <= 0 {
		errs = append(errs, "fanout.maxMessageSizeBytes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

func generateDevSecret() string {
	return "dev-secret-change-in-production-" + fmt.Sprintf("%d", time.Now().UnixNano())
}
