package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string        `yaml:"driver"`
	Host         string        `yaml:"host"`
	Port         string        `yaml:"port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	Database     string        `yaml:"database"`
	SSLMode      string        `yaml:"ssl_mode"`
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
}

type KafkaConfig struct {
	Brokers              []string `yaml:"brokers"`
	GroupID              string   `yaml:"group_id"`
	MockMode             bool     `yaml:"mock_mode"`
	ConsumerEnabled      bool     `yaml:"consumer_enabled"`
	JobEventsTopic       string   `yaml:"job_events_topic"`
	PaymentEventsTopic   string   `yaml:"payment_events_topic"`
	PaymentCallbackTopic string   `yaml:"payment_callback_topic"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StripeConfig prices are in major currency units per printed page side.
type StripeConfig struct {
	SecretKey      string  `yaml:"secret_key"`
	WebhookSecret  string  `yaml:"webhook_secret"`
	Currency       string  `yaml:"currency"`
	MonoPagePrice  float64 `yaml:"mono_page_price"`
	ColorPagePrice float64 `yaml:"color_page_price"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
	// DeviceKeyHashes are bcrypt hashes of pre-registered printer keys.
	// Empty keeps printer endpoints open to any caller on the printer network.
	DeviceKeyHashes []string `yaml:"device_key_hashes"`
}

type SessionConfig struct {
	TTL                       time.Duration `yaml:"ttl"`
	SingleUse                 bool          `yaml:"single_use"`
	RequirePaymentBeforePrint bool          `yaml:"require_payment_before_print"`
	SweepInterval             time.Duration `yaml:"sweep_interval"`
	JobExpiryGrace            time.Duration `yaml:"job_expiry_grace"`
	SessionRetention          time.Duration `yaml:"session_retention"`
	ScanFailureLimit          int           `yaml:"scan_failure_limit"`
	ScanFailureWindow         time.Duration `yaml:"scan_failure_window"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            ":8085",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:       "mysql",
			Host:         "localhost",
			Port:         "3306",
			Username:     "root",
			Password:     "password",
			Database:     "print_gateway",
			SSLMode:      "disable",
			Path:         "./data/print-gateway.db",
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			MaxLifetime:  5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:              []string{"localhost:29092"},
			GroupID:              "print-gateway",
			MockMode:             true,
			JobEventsTopic:       "print-job-events",
			PaymentEventsTopic:   "print-payment-events",
			PaymentCallbackTopic: "print-payment-callbacks",
		},
		Stripe: StripeConfig{
			Currency:       "usd",
			MonoPagePrice:  0.10,
			ColorPagePrice: 0.50,
		},
		Session: SessionConfig{
			TTL:               10 * time.Minute,
			SweepInterval:     5 * time.Minute,
			JobExpiryGrace:    24 * time.Hour,
			SessionRetention:  7 * 24 * time.Hour,
			ScanFailureLimit:  20,
			ScanFailureWindow: 10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnvOrDefault("SERVER_PORT", c.Server.Port)
	if !strings.HasPrefix(c.Server.Port, ":") {
		c.Server.Port = ":" + c.Server.Port
	}
	c.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	c.Database.Driver = getEnvOrDefault("DB_DRIVER", c.Database.Driver)
	c.Database.Host = getEnvOrDefault("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvOrDefault("DB_PORT", c.Database.Port)
	c.Database.Username = getEnvOrDefault("DB_USER", c.Database.Username)
	c.Database.Password = getEnvOrDefault("DB_PASS", c.Database.Password)
	c.Database.Database = getEnvOrDefault("DB_NAME", c.Database.Database)
	c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", c.Database.SSLMode)
	c.Database.Path = getEnvOrDefault("DB_PATH", c.Database.Path)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.MaxLifetime = getEnvDuration("DB_MAX_LIFETIME", c.Database.MaxLifetime)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.GroupID = getEnvOrDefault("KAFKA_GROUP_ID", c.Kafka.GroupID)
	c.Kafka.MockMode = getEnvBool("KAFKA_MOCK_MODE", c.Kafka.MockMode)
	c.Kafka.ConsumerEnabled = getEnvBool("KAFKA_CONSUMER_ENABLED", c.Kafka.ConsumerEnabled)
	c.Kafka.JobEventsTopic = getEnvOrDefault("KAFKA_JOB_EVENTS_TOPIC", c.Kafka.JobEventsTopic)
	c.Kafka.PaymentEventsTopic = getEnvOrDefault("KAFKA_PAYMENT_EVENTS_TOPIC", c.Kafka.PaymentEventsTopic)
	c.Kafka.PaymentCallbackTopic = getEnvOrDefault("KAFKA_PAYMENT_CALLBACK_TOPIC", c.Kafka.PaymentCallbackTopic)

	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Stripe.SecretKey = getEnvOrDefault("STRIPE_SECRET_KEY", c.Stripe.SecretKey)
	c.Stripe.WebhookSecret = getEnvOrDefault("STRIPE_WEBHOOK_SECRET", c.Stripe.WebhookSecret)
	c.Stripe.Currency = getEnvOrDefault("STRIPE_CURRENCY", c.Stripe.Currency)
	c.Stripe.MonoPagePrice = getEnvFloat("PRICE_MONO_PAGE", c.Stripe.MonoPagePrice)
	c.Stripe.ColorPagePrice = getEnvFloat("PRICE_COLOR_PAGE", c.Stripe.ColorPagePrice)

	c.Auth.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnvOrDefault("AUTH_JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.DeviceKeyHashes = getEnvList("PRINTER_DEVICE_KEY_HASHES", c.Auth.DeviceKeyHashes)

	c.Session.TTL = getEnvDuration("QR_SESSION_TTL", c.Session.TTL)
	c.Session.SingleUse = getEnvBool("QR_SESSION_SINGLE_USE", c.Session.SingleUse)
	c.Session.RequirePaymentBeforePrint = getEnvBool("REQUIRE_PAYMENT_BEFORE_PRINT", c.Session.RequirePaymentBeforePrint)
	c.Session.SweepInterval = getEnvDuration("SWEEP_INTERVAL", c.Session.SweepInterval)
	c.Session.JobExpiryGrace = getEnvDuration("JOB_EXPIRY_GRACE", c.Session.JobExpiryGrace)
	c.Session.SessionRetention = getEnvDuration("QR_SESSION_RETENTION", c.Session.SessionRetention)
	c.Session.ScanFailureLimit = getEnvInt("SCAN_FAILURE_LIMIT", c.Session.ScanFailureLimit)
	c.Session.ScanFailureWindow = getEnvDuration("SCAN_FAILURE_WINDOW", c.Session.ScanFailureWindow)

	c.RateLimit.RequestsPerSecond = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.File = getEnvOrDefault("LOG_FILE", c.Logging.File)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			return fmt.Errorf("database host and name are required for driver %s", c.Database.Driver)
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for driver sqlite")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (valid: mysql, postgres, sqlite)", c.Database.Driver)
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("qr session ttl must be positive")
	}

	if c.Session.SweepInterval < 0 || c.Session.JobExpiryGrace < 0 || c.Session.SessionRetention < 0 {
		return fmt.Errorf("sweep settings must be non-negative")
	}

	if c.Session.ScanFailureLimit < 0 {
		return fmt.Errorf("scan failure limit must be non-negative")
	}

	if c.Stripe.MonoPagePrice < 0 || c.Stripe.ColorPagePrice < 0 {
		return fmt.Errorf("page prices must be non-negative")
	}

	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}

	if !c.Kafka.MockMode && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required outside mock mode")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
