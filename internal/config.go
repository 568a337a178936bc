package internal

import (
	"fmt"
	"os"
	"strings"

	"gitevents/pkg/worker"

	"gopkg.in/yaml.v3"
)

// AppConfig represents the main application configuration.
type AppConfig struct {
	// Server holds server-specific configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
		DebugEvents    bool   `yaml:"debug_events"`
	} `yaml:"server"`
	// Webhook holds the routes served for GitHub deliveries and readers.
	Webhook WebhookConfig `yaml:"webhook"`
	// Storage holds the event store connection.
	Storage StorageConfig `yaml:"storage"`
	// Log holds logger configuration.
	Log LogConfig `yaml:"log"`
	// Notifications toggles publishing of stored records.
	Notifications struct {
		Enabled bool `yaml:"enabled"`
		// TimeoutMS bounds publishing inside a webhook request, retries included.
		TimeoutMS int `yaml:"timeout_ms"`
	} `yaml:"notifications"`
	// Watermill holds configuration for the notification publisher.
	Watermill WatermillConfig `yaml:"watermill"`
	// Listener holds configuration for the listen command.
	Listener ListenerConfig `yaml:"listener"`
}

// Config represents the application configuration including rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// WebhookConfig holds HTTP paths and the read window.
type WebhookConfig struct {
	Path        string `yaml:"path"`
	EventsPath  string `yaml:"events_path"`
	HealthPath  string `yaml:"health_path"`
	RecentLimit int    `yaml:"recent_limit"`
}

// StorageConfig holds the event store connection. DSN falls back to the
// DATABASE_URL environment variable.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	AutoMigrate *bool  `yaml:"auto_migrate"`
}

// ListenerConfig configures the notification listener.
type ListenerConfig struct {
	Topics      []string                `yaml:"topics"`
	Concurrency int                     `yaml:"concurrency"`
	Subscriber  worker.SubscriberConfig `yaml:"subscriber"`
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
	RiverQueue   RiverQueueConfig   `yaml:"riverqueue"`
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
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	InitializeSchema     bool   `yaml:"initialize_schema"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// RiverQueueConfig holds configuration for the RiverQueue publisher.
type RiverQueueConfig struct {
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// RulesConfig represents the rule-specific parts of the configuration.
type RulesConfig struct {
	Rules  []Rule `yaml:"rules"`
	Strict bool   `yaml:"rules_strict"`
}

// LoadConfig loads the full application configuration, including rules, from a YAML file.
// It expands environment variables, applies defaults, normalizes rules and
// validates the result.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	applyDefaults(&cfg.AppConfig)
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// PublisherDrivers returns the configured publisher drivers, lower-cased.
func (c WatermillConfig) PublisherDrivers() []string {
	drivers := c.Drivers
	if len(drivers) == 0 && c.Driver != "" {
		drivers = []string{c.Driver}
	}
	if len(drivers) == 0 {
		drivers = []string{"gochannel"}
	}
	out := make([]string, 0, len(drivers))
	for _, driver := range drivers {
		driver = strings.ToLower(strings.TrimSpace(driver))
		if driver != "" {
			out = append(out, driver)
		}
	}
	return out
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
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
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhook"
	}
	if cfg.Webhook.EventsPath == "" {
		cfg.Webhook.EventsPath = "/events"
	}
	if cfg.Webhook.HealthPath == "" {
		cfg.Webhook.HealthPath = "/health"
	}
	if cfg.Webhook.RecentLimit == 0 {
		cfg.Webhook.RecentLimit = 20
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = os.Getenv("DATABASE_URL")
	}
	if cfg.Storage.Table == "" {
		cfg.Storage.Table = "events"
	}
	if cfg.Storage.AutoMigrate == nil {
		enabled := true
		cfg.Storage.AutoMigrate = &enabled
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Watermill.Driver == "" {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.RiverQueue.Queue == "" {
		cfg.Watermill.RiverQueue.Queue = "default"
	}
	if cfg.Watermill.RiverQueue.Kind == "" {
		cfg.Watermill.RiverQueue.Kind = "gitevents.notification"
	}
	if cfg.Watermill.RiverQueue.MaxAttempts == 0 {
		cfg.Watermill.RiverQueue.MaxAttempts = 25
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
	if cfg.Notifications.TimeoutMS == 0 {
		cfg.Notifications.TimeoutMS = 2000
	}
	if cfg.Listener.Concurrency == 0 {
		cfg.Listener.Concurrency = 1
	}
	if cfg.Listener.Subscriber.Retry.Attempts == 0 {
		cfg.Listener.Subscriber.Retry.Attempts = 10
	}
	if cfg.Listener.Subscriber.Retry.DelayMS == 0 {
		cfg.Listener.Subscriber.Retry.DelayMS = 2000
	}
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		emit := make(EmitList, 0, len(rule.Emit))
		for _, topic := range rule.Emit {
			if trimmed := strings.TrimSpace(topic); trimmed != "" {
				emit = append(emit, trimmed)
			}
		}
		rule.Emit = emit
		if rule.When == "" || len(rule.Emit) == 0 {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.ToLower(strings.TrimSpace(driver))
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}

func validate(cfg Config) error {
	if strings.TrimSpace(cfg.Storage.DSN) == "" {
		return fmt.Errorf("storage dsn is required (set storage.dsn or DATABASE_URL)")
	}
	if cfg.Webhook.RecentLimit < 0 {
		return fmt.Errorf("webhook recent_limit must not be negative")
	}
	if !cfg.RulesStrict {
		return nil
	}
	configured := make(map[string]struct{})
	for _, driver := range cfg.Watermill.PublisherDrivers() {
		configured[driver] = struct{}{}
	}
	for i, rule := range cfg.Rules {
		for _, driver := range rule.Drivers {
			if _, ok := configured[driver]; !ok {
				return fmt.Errorf("rule %d targets driver %q which is not configured", i, driver)
			}
		}
	}
	return nil
}
