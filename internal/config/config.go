package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Queue       QueueConfig       `yaml:"queue"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Payment     PaymentConfig     `yaml:"payment"`
	Webhooks    WebhooksConfig    `yaml:"webhooks"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type QueueConfig struct {
	// SecondsPerPage is the per-page service time used for wait estimates.
	SecondsPerPage int `yaml:"seconds_per_page"`
	// ServiceDelay is how long a job stays in printing before auto-completion.
	ServiceDelay time.Duration `yaml:"service_delay"`
	// MaxSkips caps how often a batch may be pushed back in the queue.
	MaxSkips int `yaml:"max_skips"`
}

type PricingConfig struct {
	BWCentsPerPage    int `yaml:"bw_cents_per_page"`
	ColorCentsPerPage int `yaml:"color_cents_per_page"`
}

type PaymentConfig struct {
	GatewayURL    string        `yaml:"gateway_url"`
	APIKey        string        `yaml:"api_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	Timeout       time.Duration `yaml:"timeout"`
	SuccessURL    string        `yaml:"success_url"`
	CancelURL     string        `yaml:"cancel_url"`
}

type WebhooksConfig struct {
	Endpoints  []WebhookEndpoint `yaml:"endpoints"`
	RetryCount int               `yaml:"retry_count"`
	RetryDelay time.Duration     `yaml:"retry_delay"`
	Timeout    time.Duration     `yaml:"timeout"`
	QueueSize  int               `yaml:"queue_size"`
}

type WebhookEndpoint struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

type MaintenanceConfig struct {
	// SweepSchedule is a cron expression for the heal + purge sweep.
	SweepSchedule string `yaml:"sweep_schedule"`
	// RetainCollected is how long collected jobs are kept before purging.
	RetainCollected time.Duration `yaml:"retain_collected"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "./data/printq.db",
		},
		Queue: QueueConfig{
			SecondsPerPage: 3,
			ServiceDelay:   3 * time.Second,
			MaxSkips:       2,
		},
		Pricing: PricingConfig{
			BWCentsPerPage:    5,
			ColorCentsPerPage: 20,
		},
		Payment: PaymentConfig{
			Timeout:    10 * time.Second,
			SuccessURL: "http://localhost:5173/my-documents?payment=success",
			CancelURL:  "http://localhost:5173/upload?payment=cancelled",
		},
		Webhooks: WebhooksConfig{
			RetryCount: 3,
			RetryDelay: 5 * time.Second,
			Timeout:    10 * time.Second,
			QueueSize:  100,
		},
		Maintenance: MaintenanceConfig{
			SweepSchedule:   "@hourly",
			RetainCollected: 30 * 24 * time.Hour,
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PRINTQ_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTQ_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("PRINTQ_PAYMENT_GATEWAY_URL"); v != "" {
		cfg.Payment.GatewayURL = v
	}

	if v := os.Getenv("PRINTQ_PAYMENT_API_KEY"); v != "" {
		cfg.Payment.APIKey = v
	}

	if v := os.Getenv("PRINTQ_PAYMENT_WEBHOOK_SECRET"); v != "" {
		cfg.Payment.WebhookSecret = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Queue.SecondsPerPage < 1 {
		return fmt.Errorf("seconds per page must be at least 1")
	}

	if c.Queue.ServiceDelay <= 0 {
		return fmt.Errorf("service delay must be positive")
	}

	if c.Queue.MaxSkips < 0 {
		return fmt.Errorf("max skips must be non-negative")
	}

	if c.Pricing.BWCentsPerPage < 0 || c.Pricing.ColorCentsPerPage < 0 {
		return fmt.Errorf("page prices must be non-negative")
	}

	if c.Webhooks.RetryCount < 1 {
		return fmt.Errorf("webhook retry count must be at least 1")
	}

	if c.Webhooks.QueueSize < 1 {
		return fmt.Errorf("webhook queue size must be at least 1")
	}

	if c.Maintenance.SweepSchedule == "" {
		return fmt.Errorf("maintenance sweep schedule is required")
	}

	if c.Maintenance.RetainCollected < 0 {
		return fmt.Errorf("collected retention must be non-negative")
	}

	return nil
}
