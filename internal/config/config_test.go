package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	c, err := FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, "minishop-checkout", c.ServiceName)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, ProviderSimulated, c.PaymentProvider)
	assert.Equal(t, "USD", c.Currency)
	assert.Equal(t, 24*time.Hour, c.IdempotencyTTL)
	assert.Equal(t, 30, c.CheckoutPerMin)
	assert.Equal(t, 25, c.DBMaxOpenConns)
	assert.Zero(t, c.PendingOrderTTL)
	assert.Empty(t, c.KafkaBrokers)
	assert.True(t, c.Dev())
}

func TestOverrides(t *testing.T) {
	c, err := FromEnv(env(map[string]string{
		"KAFKA_BROKERS":         "k1:9092, k2:9092,",
		"PENDING_ORDER_TTL":     "30m",
		"CURRENCY":              "eur",
		"PAYMENT_PROVIDER":      "STRIPE",
		"STRIPE_SECRET_KEY":     "sk_test_x",
		"STRIPE_WEBHOOK_SECRET": "whsec_x",
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 30*time.Minute, c.PendingOrderTTL)
	assert.Equal(t, "EUR", c.Currency)
	assert.Equal(t, ProviderStripe, c.PaymentProvider)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"stripe without keys", map[string]string{"PAYMENT_PROVIDER": "stripe"}, "STRIPE_SECRET_KEY"},
		{"unknown provider", map[string]string{"PAYMENT_PROVIDER": "paypal"}, "unknown PAYMENT_PROVIDER"},
		{"jwt outside dev", map[string]string{"ENV": "prod"}, "AUTH_JWT_SECRET"},
		{"bad duration", map[string]string{"IDEMPOTENCY_TTL": "soon"}, "IDEMPOTENCY_TTL"},
		{"bad int", map[string]string{"DB_MAX_OPEN_CONNS": "many"}, "DB_MAX_OPEN_CONNS"},
		{"non-positive rate", map[string]string{"CHECKOUT_RATE_PER_MINUTE": "0"}, "CHECKOUT_RATE_PER_MINUTE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR=:9191\n"), 0o600))
	t.Setenv("HTTP_ADDR", "")
	require.NoError(t, os.Unsetenv("HTTP_ADDR"))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9191", c.HTTPAddr)
}

func TestLoadWithoutEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
