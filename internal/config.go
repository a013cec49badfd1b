package internal

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DatabaseURLEnv overrides storage.dsn when set.
	DatabaseURLEnv = "DATABASE_URL"
	// DefaultDatabaseURL is used when neither the config file nor the environment name a database.
	DefaultDatabaseURL = "postgres://localhost:5432/github_webhooks?sslmode=disable"
)

// Config represents the application configuration.
type Config struct {
	// Server holds HTTP server configuration.
	Server struct {
		Port           int      `yaml:"port"`
		ReadTimeoutMS  int64    `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64    `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64    `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64    `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64    `yaml:"max_body_bytes"`
		RateLimitRPS   int64    `yaml:"rate_limit_rps"`
		RateLimitBurst int64    `yaml:"rate_limit_burst"`
		MetricsEnabled bool     `yaml:"metrics_enabled"`
		MetricsPath    string   `yaml:"metrics_path"`
		CORSOrigins    []string `yaml:"cors_origins"`
		PublicBaseURL  string   `yaml:"public_base_url"`
	} `yaml:"server"`
	// Storage selects the events database.
	Storage StorageConfig `yaml:"storage"`
	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
	// Watermill holds configuration for event notification publishers.
	Watermill WatermillConfig `yaml:"watermill"`
	// Rules decide which stored events are published, and where.
	Rules []Rule `yaml:"rules"`
}

// StorageConfig selects the database holding event records.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WatermillConfig holds the configuration for Watermill, which handles messaging.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	River        RiverConfig        `yaml:"river"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// NATSConfig holds configuration for the NATS streaming pub/sub.
type NATSConfig struct {
	ClusterID      string `yaml:"cluster_id"`
	ClientID       string `yaml:"client_id"`
	ClientIDSuffix string `yaml:"client_id_suffix"`
	URL            string `yaml:"url"`
	Durable        string `yaml:"durable"`
}

// AMQPConfig holds configuration for the AMQP publisher.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	ConsumerGroup        string `yaml:"consumer_group"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverConfig holds configuration for the River job queue publisher. Each
// published event becomes one job in Queue.
type RiverConfig struct {
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

// PublishRetryConfig bounds how often a publisher driver is rebuilt at startup.
type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadConfig loads configuration from an optional YAML file and the environment.
// A .env file in the working directory is loaded first when present. An empty
// path skips the file entirely; a non-empty path must exist.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	cfg.Server.MetricsEnabled = true
	cfg.Storage.AutoMigrate = true

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if dsn := strings.TrimSpace(os.Getenv(DatabaseURLEnv)); dsn != "" {
		cfg.Storage.DSN = dsn
	}

	applyDefaults(&cfg)
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 25 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = DefaultDatabaseURL
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Watermill.Driver == "" && len(cfg.Watermill.Drivers) == 0 {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
	if cfg.Watermill.NATS.ClientIDSuffix == "" {
		cfg.Watermill.NATS.ClientIDSuffix = "-worker"
	}
	if cfg.Watermill.River.Queue == "" {
		cfg.Watermill.River.Queue = "github_events"
	}
}

var errInvalidRule = errors.New("invalid rule")

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make([]string, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("%w: rule %d is missing when or emit", errInvalidRule, i)
		}
		drivers := make([]string, 0, len(rule.Drivers))
		for _, driver := range rule.Drivers {
			if trimmed := strings.ToLower(strings.TrimSpace(driver)); trimmed != "" {
				drivers = append(drivers, trimmed)
			}
		}
		rule.Drivers = drivers
		out = append(out, rule)
	}
	return out, nil
}
