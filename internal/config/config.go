// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ebook-pix/internal/ebook"
)

// Ledger backends accepted by LEDGER_BACKEND.
const (
	LedgerMemory = "memory"
	LedgerRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	MPAccessToken   string
	MPBaseURL       string
	MPWebhookSecret string
	MPTimeout       time.Duration

	EmailSender   string
	EmailPassword string
	SMTPHost      string
	SMTPPort      int

	EbookPath     string
	EbookFileName string
	EbookTitle    string
	EbookPrice    decimal.Decimal
	PaymentMethod string

	LedgerBackend     string
	RedisURL          string
	LedgerRedisPrefix string
	LedgerRedisTTL    time.Duration
	WebhookReplayTTL  time.Duration

	CreatePaymentRate  string
	CORSAllowedOrigins []string
	HTTPBodyLimitBytes int64

	CircuitProviderMinRequests  int
	CircuitProviderFailureRatio float64
	CircuitProviderOpenFor      time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		MPAccessToken:      strings.TrimSpace(k.String("MP_ACCESS_TOKEN")),
		MPBaseURL:          valueOrDefault(k.String("MP_BASE_URL"), "https://api.mercadopago.com"),
		MPWebhookSecret:    strings.TrimSpace(k.String("MP_WEBHOOK_SECRET")),
		MPTimeout:          parseDuration(k.String("MP_TIMEOUT"), "15s"),
		EmailSender:        strings.TrimSpace(k.String("EMAIL_SENDER")),
		EmailPassword:      k.String("EMAIL_PASSWORD"),
		SMTPHost:           valueOrDefault(k.String("SMTP_HOST"), "smtp.gmail.com"),
		EbookPath:          valueOrDefault(k.String("EBOOK_PATH"), ebook.DefaultPath),
		EbookFileName:      valueOrDefault(k.String("EBOOK_FILENAME"), ebook.DefaultFileName),
		EbookTitle:         valueOrDefault(k.String("EBOOK_TITLE"), ebook.DefaultTitle),
		PaymentMethod:      valueOrDefault(k.String("PAYMENT_METHOD"), ebook.DefaultMethod),
		LedgerBackend:      strings.ToLower(valueOrDefault(k.String("LEDGER_BACKEND"), LedgerMemory)),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		LedgerRedisPrefix:  valueOrDefault(k.String("LEDGER_REDIS_PREFIX"), "ebook:"),
		LedgerRedisTTL:     parseDuration(k.String("LEDGER_REDIS_TTL"), "0s"),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "10m"),
		CreatePaymentRate:  valueOrDefault(k.String("CREATE_PAYMENT_RATE"), "10-M"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		CircuitProviderFailureRatio: parseFloat(k.String("CIRCUIT_PROVIDER_FAILURE_RATIO"), 0.5),
		CircuitProviderOpenFor:      parseDuration(k.String("CIRCUIT_PROVIDER_OPEN_FOR"), "30s"),
	}

	var err error
	if cfg.SMTPPort, err = parseInt(k.String("SMTP_PORT"), 587); err != nil {
		return nil, fmt.Errorf("SMTP_PORT: %w", err)
	}
	if cfg.CircuitProviderMinRequests, err = parseInt(k.String("CIRCUIT_PROVIDER_MIN_REQUESTS"), 5); err != nil {
		return nil, fmt.Errorf("CIRCUIT_PROVIDER_MIN_REQUESTS: %w", err)
	}
	limit, err := parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)
	if err != nil {
		return nil, fmt.Errorf("HTTP_BODY_LIMIT_BYTES: %w", err)
	}
	cfg.HTTPBodyLimitBytes = int64(limit)

	cfg.EbookPrice, err = decimal.NewFromString(valueOrDefault(k.String("EBOOK_PRICE"), ebook.DefaultPrice))
	if err != nil {
		return nil, fmt.Errorf("EBOOK_PRICE: %w", err)
	}
	if !cfg.EbookPrice.IsPositive() {
		return nil, errors.New("EBOOK_PRICE must be positive")
	}

	if cfg.MPAccessToken == "" {
		return nil, errors.New("MP_ACCESS_TOKEN is required")
	}
	switch cfg.LedgerBackend {
	case LedgerMemory:
	case LedgerRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required when LEDGER_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("LEDGER_BACKEND %q is not supported", cfg.LedgerBackend)
	}

	return cfg, nil
}

// Product assembles the product on sale from the e-book settings.
func (c *Config) Product() ebook.Product {
	return ebook.Product{
		Title:    c.EbookTitle,
		Price:    c.EbookPrice,
		Method:   c.PaymentMethod,
		FilePath: c.EbookPath,
		FileName: c.EbookFileName,
	}
}

// MailEnabled reports whether sender credentials are configured.
func (c *Config) MailEnabled() bool {
	return c.EmailSender != "" && c.EmailPassword != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return strconv.Atoi(value)
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
