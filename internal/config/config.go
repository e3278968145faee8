package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-dukaan/internal/money"
)

// Config holds application configuration loaded from the environment. All
// merchant keys, amount bounds and policy flags live here and are injected
// into constructors; nothing below reads ambient globals.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	Currency string

	GatewayKeyID      string
	GatewayKeySecret  string
	GatewayBaseURL    string
	GatewayWebBaseURL string
	PaymentSandbox    bool

	// PaymentNativeEnabled reports whether the native gateway integration
	// is available in this runtime. When false, native requests route to
	// the web gateway before any attempt is made.
	PaymentNativeEnabled bool
	// PaymentMockFallback gates the single fallback hop to the mock
	// backend on technical errors. Forced off in production deployments.
	PaymentMockFallback   bool
	PaymentMinAmount      decimal.Decimal
	PaymentMaxAmount      decimal.Decimal
	PaymentAttemptTimeout time.Duration
	PaymentMockDelay      time.Duration

	FeeServiceBaseURL     string
	FeeLookupTimeout      time.Duration
	FeeCacheTTL           time.Duration
	FeeCircuitMinRequests int
	FeeCircuitFailureRate float64
	FeeCircuitOpenFor     time.Duration

	PlatformFee           decimal.Decimal
	ShippingFee           decimal.Decimal
	FreeShippingThreshold decimal.Decimal

	CartTTL        time.Duration
	IdempotencyTTL time.Duration

	CheckoutRateMax    int
	CheckoutRateWindow time.Duration
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
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		Currency: valueOrDefault(k.String("CURRENCY_CODE"), "INR"),

		GatewayKeyID:      k.String("GATEWAY_KEY_ID"),
		GatewayKeySecret:  k.String("GATEWAY_KEY_SECRET"),
		GatewayBaseURL:    k.String("GATEWAY_BASE_URL"),
		GatewayWebBaseURL: k.String("GATEWAY_WEB_BASE_URL"),
		PaymentSandbox:    parseBool(k.String("PAYMENT_SANDBOX")),

		PaymentNativeEnabled:  parseBoolDefault(k.String("PAYMENT_NATIVE_ENABLED"), true),
		PaymentMockFallback:   parseBool(k.String("PAYMENT_MOCK_FALLBACK")),
		PaymentMinAmount:      parseAmount(k.String("PAYMENT_MIN_AMOUNT"), "1"),
		PaymentMaxAmount:      parseAmount(k.String("PAYMENT_MAX_AMOUNT"), "500000"),
		PaymentAttemptTimeout: parseDuration(k.String("PAYMENT_ATTEMPT_TIMEOUT"), "90s"),
		PaymentMockDelay:      parseDuration(k.String("PAYMENT_MOCK_DELAY"), "2s"),

		FeeServiceBaseURL:     k.String("FEE_SERVICE_BASE_URL"),
		FeeLookupTimeout:      parseDuration(k.String("FEE_LOOKUP_TIMEOUT"), "3s"),
		FeeCacheTTL:           parseDuration(k.String("FEE_CACHE_TTL"), "10m"),
		FeeCircuitMinRequests: int(k.Int64("FEE_CIRCUIT_MIN_REQUESTS")),
		FeeCircuitFailureRate: k.Float64("FEE_CIRCUIT_FAILURE_RATE"),
		FeeCircuitOpenFor:     parseDuration(k.String("FEE_CIRCUIT_OPEN_FOR"), "30s"),

		PlatformFee:           parseAmount(k.String("PRICING_PLATFORM_FEE"), "2"),
		ShippingFee:           parseAmount(k.String("PRICING_SHIPPING_FEE"), "20"),
		FreeShippingThreshold: parseAmount(k.String("PRICING_FREE_SHIPPING_THRESHOLD"), "500"),

		CartTTL:        parseDuration(k.String("CART_TTL"), "168h"),
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CheckoutRateMax:    intOrDefault(int(k.Int64("CHECKOUT_RATE_MAX")), 10),
		CheckoutRateWindow: parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),
	}

	if cfg.FeeCircuitMinRequests <= 0 {
		cfg.FeeCircuitMinRequests = 5
	}
	if cfg.FeeCircuitFailureRate <= 0 {
		cfg.FeeCircuitFailureRate = 0.5
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PaymentMinAmount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("PAYMENT_MIN_AMOUNT must be positive")
	}
	if cfg.PaymentMaxAmount.LessThan(cfg.PaymentMinAmount) {
		return nil, errors.New("PAYMENT_MAX_AMOUNT must not be below PAYMENT_MIN_AMOUNT")
	}
	if strings.EqualFold(cfg.AppEnv, "production") && cfg.PaymentMockFallback {
		return nil, errors.New("PAYMENT_MOCK_FALLBACK must be off in production")
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
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
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

func parseAmount(value, fallback string) decimal.Decimal {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := decimal.NewFromString(base)
	if err != nil {
		return money.MustParse(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return parseBool(value)
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
