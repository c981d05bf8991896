package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally against the fake gateway and in-memory store.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration
	LockWait      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN         string
	RunMigrations bool

	StripeAPIKey   string
	PaymentGateway string
	GatewayTimeout time.Duration

	Currency      string
	ProductLabel  string
	PublicBaseURL string

	LogLevel  string
	LogFormat string
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		LockTTL:         30 * time.Second,
		LockWait:        10 * time.Second,
		KafkaTopic:      "deposit-events",
		GatewayTimeout:  15 * time.Second,
		Currency:        "usd",
		ProductLabel:    "Security deposit",
		PublicBaseURL:   "http://localhost:8080",
		LogLevel:        "info",
		LogFormat:       "json",
	}
}

// writeMargin is the headroom over CallbackBudget for rendering the page.
const writeMargin = 5 * time.Second

// CallbackBudget is the longest a checkout callback can run: a session lookup,
// a wait for the task lock and an authorization lookup.
func (c ServerConfig) CallbackBudget() time.Duration {
	return 2*c.GatewayTimeout + c.LockWait
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setDurationFromEnv(&cfg.LockTTL, "LOCK_TTL", &errs)
	setDurationFromEnv(&cfg.LockWait, "LOCK_WAIT", &errs)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	cfg.StripeAPIKey = strings.TrimSpace(os.Getenv("STRIPE_API_KEY"))
	if v := os.Getenv("PAYMENT_GATEWAY"); v != "" {
		cfg.PaymentGateway = strings.ToLower(strings.TrimSpace(v))
	}
	setDurationFromEnv(&cfg.GatewayTimeout, "GATEWAY_TIMEOUT", &errs)

	if v := os.Getenv("DEPOSIT_CURRENCY"); v != "" {
		cfg.Currency = strings.ToLower(strings.TrimSpace(v))
	}
	setStringFromEnv(&cfg.ProductLabel, "DEPOSIT_PRODUCT_LABEL")
	setStringFromEnv(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if cfg.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be > 0"))
	}
	if cfg.LockWait < 0 {
		errs = append(errs, fmt.Errorf("LOCK_WAIT must be >= 0"))
	}
	switch {
	case cfg.WriteTimeout == 0:
		cfg.WriteTimeout = cfg.CallbackBudget() + writeMargin
	case cfg.WriteTimeout < cfg.CallbackBudget():
		errs = append(errs, fmt.Errorf("HTTP_WRITE_TIMEOUT %s is shorter than the checkout callback budget %s (2*GATEWAY_TIMEOUT + LOCK_WAIT)",
			cfg.WriteTimeout, cfg.CallbackBudget()))
	}
	if len(cfg.Currency) != 3 {
		errs = append(errs, fmt.Errorf("DEPOSIT_CURRENCY must be a 3-letter code, got %q", cfg.Currency))
	}
	if u, err := url.Parse(cfg.PublicBaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", cfg.PublicBaseURL))
	}
	switch cfg.PaymentGateway {
	case "", "stripe", "fake":
	default:
		errs = append(errs, fmt.Errorf("PAYMENT_GATEWAY must be stripe or fake, got %q", cfg.PaymentGateway))
	}
	if cfg.PaymentGateway == "stripe" && cfg.StripeAPIKey == "" {
		errs = append(errs, fmt.Errorf("STRIPE_API_KEY is required when PAYMENT_GATEWAY=stripe"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig drives the event projection process.
type ConsumerConfig struct {
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	MetricsAddr   string
	MaxRetries    int
	LogLevel      string
	LogFormat     string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		KafkaBrokers: []string{"localhost:9092"},
		KafkaTopic:   "deposit-events",
		KafkaGroup:   "deposit-projection",
		RedisAddr:    "localhost:6379",
		MetricsAddr:  ":9100",
		MaxRetries:   5,
		LogLevel:     "info",
		LogFormat:    "json",
	}
	var errs []error

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	setIntFromEnv(&cfg.MaxRetries, "REDIS_MAX_RETRIES", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	if len(cfg.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS must list at least one broker"))
	}
	if cfg.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_MAX_RETRIES must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
