package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Env              string
	LogLevel         string
	Port             uint16
	StoreID          string
	Currency         string
	MetricsNamespace string
	CORSOrigins      []string
	API              APIConfig
	Pricing          PricingConfig
	LocalCart        LocalCartConfig
	Stripe           StripeConfig
	NATS             NATSConfig
	Sentry           SentryConfig
}

// APIConfig points at the commerce backend that owns authenticated carts
// and orders.
type APIConfig struct {
	BaseURL        string
	Timeout        time.Duration
	CartPath       string
	OrdersPath     string
	BreakerEnabled bool
}

// PricingConfig holds the local pricing policy. The backend's tax, when a
// cart snapshot carries one, always wins over TaxRate.
type PricingConfig struct {
	TaxRate               decimal.Decimal
	FlatShippingFee       decimal.Decimal
	FreeShippingThreshold decimal.Decimal
}

// LocalCartConfig selects where the anonymous cart is persisted.
type LocalCartConfig struct {
	Backend   string // "file", "redis" or "memory"
	Path      string
	RedisAddr string
	DeviceID  string
}

type StripeConfig struct {
	SecretKey string
	APIURL    string // empty means the public Stripe API
}

type NATSConfig struct {
	URL           string // empty disables event forwarding
	SubjectPrefix string
}

// SentryConfig holds configuration for Sentry error tracking
type SentryConfig struct {
	DSN         string
	Enabled     bool
	Environment string
	Release     string
	SampleRate  float64
	Debug       bool
}

var defaults = map[string]any{
	"env":                     "dev",
	"log_level":               "info",
	"port":                    3000,
	"store_id":                "default",
	"currency":                "usd",
	"metrics_namespace":       "cartcore",
	"cors_origins":            "",
	"api_base_url":            "http://localhost:8080",
	"api_timeout":             "10s",
	"cart_path":               "/api/cart",
	"orders_path":             "/api/orders",
	"breaker_enabled":         true,
	"tax_rate":                "0.08",
	"flat_shipping_fee":       "5.00",
	"free_shipping_threshold": "50.00",
	"local_cart_backend":      "file",
	"local_cart_path":         "./data/cart.json",
	"redis_addr":              "localhost:6379",
	"device_id":               "default",
	"stripe_secret_key":       "",
	"stripe_api_url":          "",
	"nats_url":                "",
	"nats_subject_prefix":     "cartcore",
	"sentry_dsn":              "",
	"sentry_enabled":          false, // Disabled by default for development
	"sentry_environment":      "development",
	"sentry_release":          "",
	"sentry_sample_rate":      1.0,
	"sentry_debug":            false,
}

// NewConfig loads .env, an optional cartcore.yaml and the environment, in
// increasing order of precedence.
func NewConfig() (*Config, error) {
	// Try to load .env from current directory, then walk up to find it (max 2 levels)
	err := godotenv.Load()
	if err != nil {
		dir, _ := os.Getwd()
		found := false
		for i := 0; i < 2; i++ {
			dir = filepath.Join(dir, "..")
			if err := godotenv.Load(filepath.Join(dir, ".env")); err == nil {
				found = true
				break
			}
		}
		if !found {
			slog.Default().Warn("Warning: .env file not found, using environment variables and defaults")
		}
	}

	v := viper.New()
	v.SetConfigName("cartcore")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read cartcore.yaml: %w", err)
		}
	}
	return LoadConfig(v)
}

// LoadConfig builds a Config from v. Environment variables override file values.
func LoadConfig(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	cfg := &Config{
		Env:              v.GetString("env"),
		LogLevel:         v.GetString("log_level"),
		Port:             uint16(v.GetUint("port")),
		StoreID:          v.GetString("store_id"),
		Currency:         strings.ToLower(v.GetString("currency")),
		MetricsNamespace: v.GetString("metrics_namespace"),
		CORSOrigins:      splitList(v.GetString("cors_origins")),
		API: APIConfig{
			BaseURL:        v.GetString("api_base_url"),
			Timeout:        v.GetDuration("api_timeout"),
			CartPath:       v.GetString("cart_path"),
			OrdersPath:     v.GetString("orders_path"),
			BreakerEnabled: v.GetBool("breaker_enabled"),
		},
		LocalCart: LocalCartConfig{
			Backend:   v.GetString("local_cart_backend"),
			Path:      v.GetString("local_cart_path"),
			RedisAddr: v.GetString("redis_addr"),
			DeviceID:  v.GetString("device_id"),
		},
		Stripe: StripeConfig{
			SecretKey: v.GetString("stripe_secret_key"),
			APIURL:    v.GetString("stripe_api_url"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats_url"),
			SubjectPrefix: v.GetString("nats_subject_prefix"),
		},
		Sentry: SentryConfig{
			DSN:         v.GetString("sentry_dsn"),
			Enabled:     v.GetBool("sentry_enabled"),
			Environment: v.GetString("sentry_environment"),
			Release:     v.GetString("sentry_release"),
			SampleRate:  v.GetFloat64("sentry_sample_rate"),
			Debug:       v.GetBool("sentry_debug"),
		},
	}

	var err error
	if cfg.Pricing.TaxRate, err = decimalSetting(v, "tax_rate"); err != nil {
		return nil, err
	}
	if cfg.Pricing.FlatShippingFee, err = decimalSetting(v, "flat_shipping_fee"); err != nil {
		return nil, err
	}
	if cfg.Pricing.FreeShippingThreshold, err = decimalSetting(v, "free_shipping_threshold"); err != nil {
		return nil, err
	}

	// Validate env
	validEnv := cfg.Env == "dev" || cfg.Env == "prod"
	if !validEnv {
		slog.Default().Warn("Invalid environment. Using default: prod", slog.String("env", cfg.Env))
		cfg.Env = "prod"
	}

	// Validate log level
	validLevel := cfg.LogLevel == "info" || cfg.LogLevel == "debug" || cfg.LogLevel == "warn" || cfg.LogLevel == "error"
	if !validLevel {
		slog.Default().Warn("Invalid log level. Using default: info", slog.String("value", cfg.LogLevel))
		cfg.LogLevel = "info"
	}

	if cfg.StoreID == "" {
		return nil, fmt.Errorf("STORE_ID is required")
	}
	if cfg.Pricing.TaxRate.IsNegative() || cfg.Pricing.TaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("TAX_RATE must be between 0 and 1, got %s", cfg.Pricing.TaxRate)
	}
	if cfg.Pricing.FlatShippingFee.IsNegative() {
		return nil, fmt.Errorf("FLAT_SHIPPING_FEE cannot be negative")
	}
	if cfg.Pricing.FreeShippingThreshold.IsNegative() {
		return nil, fmt.Errorf("FREE_SHIPPING_THRESHOLD cannot be negative")
	}
	if cfg.API.Timeout <= 0 {
		return nil, fmt.Errorf("API_TIMEOUT must be positive")
	}

	switch cfg.LocalCart.Backend {
	case "file", "redis", "memory":
	default:
		return nil, fmt.Errorf("LOCAL_CART_BACKEND must be file, redis or memory, got %q", cfg.LocalCart.Backend)
	}

	// Stripe is required in production; dev falls back to the mock sheet.
	if cfg.Env == "prod" && cfg.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY must be set in production environment")
	}

	return cfg, nil
}

func decimalSetting(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.GetString(key))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", strings.ToUpper(key), err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
