// Package config reads the service settings from the environment, after an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderSimulated = "simulated"
	ProviderStripe    = "stripe"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	DatabaseURL     string
	DBMaxOpenConns  int
	RedisAddr       string
	IdempotencyTTL  time.Duration
	KafkaBrokers    []string
	KafkaTopic      string
	PaymentProvider string

	StripeSecretKey        string
	StripeWebhookSecret    string
	SimulatedWebhookSecret string

	AuthJWTSecret   string
	Currency        string
	CheckoutPerMin  int
	PendingOrderTTL time.Duration
	ShutdownTimeout time.Duration
}

func (c Config) Dev() bool { return c.Env == "dev" }

// Load reads .env when present (existing variables win) and validates the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	r := reader{getenv: getenv}
	c := Config{
		ServiceName: r.str("SERVICE_NAME", "minishop-checkout"),
		Env:         r.str("ENV", "dev"),
		HTTPAddr:    r.str("HTTP_ADDR", ":8080"),

		DatabaseURL:     r.str("DATABASE_URL", ""),
		DBMaxOpenConns:  r.number("DB_MAX_OPEN_CONNS", 25),
		RedisAddr:       r.str("REDIS_ADDR", ""),
		IdempotencyTTL:  r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		KafkaBrokers:    r.list("KAFKA_BROKERS"),
		KafkaTopic:      r.str("KAFKA_RECEIPT_TOPIC", "payment.receipts"),
		PaymentProvider: strings.ToLower(r.str("PAYMENT_PROVIDER", ProviderSimulated)),

		StripeSecretKey:        r.str("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:    r.str("STRIPE_WEBHOOK_SECRET", ""),
		SimulatedWebhookSecret: r.str("SIMULATED_WEBHOOK_SECRET", "whsec_simulated_dev"),

		AuthJWTSecret:   r.str("AUTH_JWT_SECRET", ""),
		Currency:        strings.ToUpper(r.str("CURRENCY", "usd")),
		CheckoutPerMin:  r.number("CHECKOUT_RATE_PER_MINUTE", 30),
		PendingOrderTTL: r.duration("PENDING_ORDER_TTL", 0),
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.PaymentProvider {
	case ProviderStripe:
		if c.StripeSecretKey == "" || c.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("config: stripe provider requires STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET"))
		}
	case ProviderSimulated:
		if c.SimulatedWebhookSecret == "" {
			errs = append(errs, errors.New("config: simulated provider requires SIMULATED_WEBHOOK_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown PAYMENT_PROVIDER %q", c.PaymentProvider))
	}
	if c.AuthJWTSecret == "" && !c.Dev() {
		errs = append(errs, errors.New("config: AUTH_JWT_SECRET is required outside dev"))
	}
	if c.CheckoutPerMin <= 0 {
		errs = append(errs, errors.New("config: CHECKOUT_RATE_PER_MINUTE must be positive"))
	}
	if c.PendingOrderTTL < 0 {
		errs = append(errs, errors.New("config: PENDING_ORDER_TTL must not be negative"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("config: KAFKA_RECEIPT_TOPIC is required with KAFKA_BROKERS"))
	}
	return errors.Join(errs...)
}

type reader struct {
	getenv func(string) string
	errs   []error
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) number(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return d
}

func (r *reader) list(key string) []string {
	var out []string
	for _, part := range strings.Split(r.getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
