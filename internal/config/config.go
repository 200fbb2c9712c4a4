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
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	CurrencyCode       string
	CORSAllowedOrigins []string

	StoreDriver   string
	MongoURI      string
	MongoDatabase string
	DatabaseURL   string
	RedisURL      string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	Pricing Pricing

	CartTTL               time.Duration
	ProductCacheTTL       time.Duration
	IdempotencyTTL        time.Duration
	CheckoutLockTTL       time.Duration
	PaymentTimeout        time.Duration
	DecrementStock        bool
	CouponRateLimitMax    int
	CouponRateLimitWindow time.Duration

	KafkaBrokers    []string
	KafkaOrderTopic string

	NotifyEmailEnabled bool
	NotifyEmailFrom    string
	SMTPHost           string
	SMTPPort           int
	SMTPUsername       string
	SMTPPassword       string
}

// Pricing carries the tariff used by the price calculator. Amounts are in
// the store currency.
type Pricing struct {
	TaxRate                  decimal.Decimal
	DomesticCountry          string
	FreeShippingThreshold    decimal.Decimal
	DomesticStandardFee      decimal.Decimal
	DomesticExpressFee       decimal.Decimal
	InternationalStandardFee decimal.Decimal
	InternationalExpressFee  decimal.Decimal
	ImportDutyCountry        string
	ImportDutyRate           decimal.Decimal
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
		CurrencyCode:       valueOrDefault(k.String("CURRENCY_CODE"), "INR"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		StoreDriver:   strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), "mongo")),
		MongoURI:      k.String("MONGO_URI"),
		MongoDatabase: valueOrDefault(k.String("MONGO_DATABASE"), "toko"),
		DatabaseURL:   k.String("DATABASE_URL"),
		RedisURL:      k.String("REDIS_URL"),

		JWTSecret:   k.String("JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(k.String("JWT_AUDIENCE")),

		Pricing: Pricing{
			TaxRate:                  parseDecimal(k.String("PRICING_TAX_RATE"), "0.18"),
			DomesticCountry:          valueOrDefault(k.String("PRICING_DOMESTIC_COUNTRY"), "India"),
			FreeShippingThreshold:    parseDecimal(k.String("PRICING_FREE_SHIPPING_THRESHOLD"), "1000"),
			DomesticStandardFee:      parseDecimal(k.String("PRICING_DOMESTIC_STANDARD_FEE"), "100"),
			DomesticExpressFee:       parseDecimal(k.String("PRICING_DOMESTIC_EXPRESS_FEE"), "250"),
			InternationalStandardFee: parseDecimal(k.String("PRICING_INTERNATIONAL_STANDARD_FEE"), "500"),
			InternationalExpressFee:  parseDecimal(k.String("PRICING_INTERNATIONAL_EXPRESS_FEE"), "1000"),
			ImportDutyCountry:        valueOrDefault(k.String("PRICING_IMPORT_DUTY_COUNTRY"), "United States"),
			ImportDutyRate:           parseDecimal(k.String("PRICING_IMPORT_DUTY_RATE"), "0.69"),
		},

		CartTTL:               parseDuration(k.String("CART_TTL"), "168h"),
		ProductCacheTTL:       parseDuration(k.String("PRODUCT_CACHE_TTL"), "1m"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutLockTTL:       parseDuration(k.String("CHECKOUT_LOCK_TTL"), "30s"),
		PaymentTimeout:        parseDuration(k.String("CHECKOUT_PAYMENT_TIMEOUT"), "15s"),
		DecrementStock:        parseBoolDefault(k.String("CHECKOUT_DECREMENT_STOCK"), true),
		CouponRateLimitMax:    parseInt(k.String("COUPON_RATE_LIMIT_MAX"), 20),
		CouponRateLimitWindow: parseDuration(k.String("COUPON_RATE_LIMIT_WINDOW"), "1m"),

		KafkaBrokers:    splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaOrderTopic: valueOrDefault(k.String("KAFKA_ORDER_TOPIC"), "orders"),

		NotifyEmailEnabled: parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
		NotifyEmailFrom:    valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@toko.local"),
		SMTPHost:           strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:           parseInt(k.String("SMTP_PORT"), 587),
		SMTPUsername:       k.String("SMTP_USERNAME"),
		SMTPPassword:       k.String("SMTP_PASSWORD"),
	}

	switch cfg.StoreDriver {
	case "mongo":
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGO_URI is required for the mongo store driver")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store driver")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("unsupported STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.Pricing.TaxRate.IsNegative() || cfg.Pricing.ImportDutyRate.IsNegative() {
		return nil, errors.New("pricing rates must not be negative")
	}

	return cfg, nil
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
		return strings.TrimSpace(value)
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

func parseDecimal(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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
