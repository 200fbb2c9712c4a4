package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STORE_DRIVER": "memory",
		"REDIS_URL":    "redis://localhost:6379/0",
		"JWT_SECRET":   "secret",
	}
}

func TestLoadAppliesPricingDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)

	require.Equal(t, "0.18", cfg.Pricing.TaxRate.String())
	require.Equal(t, "India", cfg.Pricing.DomesticCountry)
	require.Equal(t, "1000", cfg.Pricing.FreeShippingThreshold.String())
	require.Equal(t, "100", cfg.Pricing.DomesticStandardFee.String())
	require.Equal(t, "250", cfg.Pricing.DomesticExpressFee.String())
	require.Equal(t, "500", cfg.Pricing.InternationalStandardFee.String())
	require.Equal(t, "1000", cfg.Pricing.InternationalExpressFee.String())
	require.Equal(t, "United States", cfg.Pricing.ImportDutyCountry)
	require.Equal(t, "0.69", cfg.Pricing.ImportDutyRate.String())
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.True(t, cfg.DecrementStock)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE"] = "0.1"
	env["CHECKOUT_DECREMENT_STOCK"] = "false"
	env["KAFKA_BROKERS"] = "k1:9092, k2:9092 ,"
	env["CART_TTL"] = "not-a-duration"
	env["PORT"] = ":9000"

	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "0.1", cfg.Pricing.TaxRate.String())
	require.False(t, cfg.DecrementStock)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 168*time.Hour, cfg.CartTTL)
	require.Equal(t, ":9000", cfg.HTTPAddr())
}

func TestLoadRequiresDriverSettings(t *testing.T) {
	env := baseEnv()
	env["STORE_DRIVER"] = "postgres"
	env["DATABASE_URL"] = ""
	_, err := LoadForTests(env)
	require.Error(t, err)

	env["STORE_DRIVER"] = "cassandra"
	_, err = LoadForTests(env)
	require.ErrorContains(t, err, "unsupported STORE_DRIVER")
}

func TestLoadRejectsNegativeRates(t *testing.T) {
	env := baseEnv()
	env["PRICING_TAX_RATE"] = "-0.1"
	_, err := LoadForTests(env)
	require.Error(t, err)
}
