package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendRemote = "remote"
	BackendDirect = "direct"
)

type Config struct {
	HTTPAddr       string
	AllowedOrigins []string

	Backend         string
	APIURL          string
	APIKey          string
	UpstreamTimeout time.Duration

	DownloadDir string

	DatabaseURL     string
	KafkaBrokers    []string
	KafkaTopic      string
	OutboxInterval  time.Duration
	OutboxBatchSize int

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the process environment. The
// result is validated for the audioqueue service.
func Load() (*Config, error) {
	cfg := read()
	if err := cfg.validate(true); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRelay is Load for the standalone outbox relay, which needs postgres and
// kafka but never talks to a media backend.
func LoadRelay() (*Config, error) {
	cfg := read()
	err := cfg.validate(false)
	if err == nil && (!cfg.OutboxEnabled() || !cfg.KafkaEnabled()) {
		err = errors.New("invalid config: the relay needs both DATABASE_URL and KAFKA_BROKERS")
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func read() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8081"),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),

		Backend:         strings.ToLower(getEnv("BACKEND", BackendRemote)),
		APIURL:          getEnv("API_URL", ""),
		APIKey:          getEnv("API_KEY", ""),
		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 5*time.Minute),

		DownloadDir: getEnv("DOWNLOAD_DIR", "downloads"),

		DatabaseURL:     getEnv("DATABASE_URL", ""),
		KafkaBrokers:    getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "audio-queue.task-status"),
		OutboxInterval:  getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatchSize: getEnvAsInt("OUTBOX_BATCH_SIZE", 100),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "console")),
	}
	return cfg
}

func (c *Config) validate(withBackend bool) error {
	var errs []error
	if withBackend {
		errs = append(errs, c.validateBackend()...)
	}

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR is empty"))
	}
	if c.DownloadDir == "" {
		errs = append(errs, errors.New("DOWNLOAD_DIR is empty"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.OutboxInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_INTERVAL must be positive"))
	}
	if c.OutboxBatchSize < 1 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be at least 1"))
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) validateBackend() []error {
	switch c.Backend {
	case BackendRemote:
		if c.APIURL == "" {
			return []error{errors.New("API_URL is required for the remote backend")}
		}
		if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
			return []error{fmt.Errorf("API_URL %q is not an absolute URL", c.APIURL)}
		}
		return nil
	case BackendDirect:
		return nil
	default:
		return []error{fmt.Errorf("BACKEND must be %q or %q, got %q", BackendRemote, BackendDirect, c.Backend)}
	}
}

// KafkaEnabled reports whether task events should reach kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) OutboxEnabled() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	str := getEnv(key, "")
	if val, err := strconv.Atoi(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	str := getEnv(key, "")
	if val, err := time.ParseDuration(str); err == nil {
		return val
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
