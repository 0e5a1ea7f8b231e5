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

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	MigrateOnStart     bool
	CORSAllowedOrigins []string

	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	AccessCookieName string

	Pricing   PricingConfig
	Discounts DiscountConfig

	CheckoutStateTTL time.Duration
	SegmentCacheTTL  time.Duration
	CouponRateLimit  string
	IdempotencyTTL   time.Duration
}

// PricingConfig holds the static pricing inputs.
type PricingConfig struct {
	Currency              string
	ChannelID             int64
	ShippingDefaultRate   pricing.Money
	ShippingZoneRates     map[string]pricing.Money
	FreeShippingThreshold pricing.Money
	TaxDefaultRate        decimal.Decimal
	TaxZoneRates          map[string]decimal.Decimal
}

// DiscountConfig selects and tunes the discount engine.
type DiscountConfig struct {
	// EngineURL switches from the local rule engine to a remote one.
	EngineURL       string
	EngineTimeout   time.Duration
	EngineRetries   int
	RuleCacheTTL    time.Duration
	Strict          bool
	BreakerRequests int
	BreakerRatio    float64
	BreakerOpenFor  time.Duration
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
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		AccessCookieName:   valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "access_token"),
		CheckoutStateTTL:   parseDuration(k.String("CHECKOUT_STATE_TTL"), "24h"),
		SegmentCacheTTL:    parseDuration(k.String("SEGMENT_CACHE_TTL"), "5m"),
		CouponRateLimit:    valueOrDefault(k.String("COUPON_RATE_LIMIT"), "10-M"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		Discounts: DiscountConfig{
			EngineURL:       strings.TrimSpace(k.String("DISCOUNT_ENGINE_URL")),
			EngineTimeout:   parseDuration(k.String("DISCOUNT_ENGINE_TIMEOUT"), "800ms"),
			EngineRetries:   parseInt(k.String("DISCOUNT_ENGINE_RETRIES"), 1),
			RuleCacheTTL:    parseDuration(k.String("DISCOUNT_RULE_CACHE_TTL"), "30s"),
			Strict:          parseBool(k.String("PRICING_STRICT_DISCOUNTS")),
			BreakerRequests: parseInt(k.String("DISCOUNT_BREAKER_MIN_REQUESTS"), 10),
			BreakerRatio:    parseFloat(k.String("DISCOUNT_BREAKER_FAILURE_RATIO"), 0.5),
			BreakerOpenFor:  parseDuration(k.String("DISCOUNT_BREAKER_OPEN_FOR"), "30s"),
		},
	}

	pc, err := loadPricing(k)
	if err != nil {
		return nil, err
	}
	cfg.Pricing = pc

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return cfg, nil
}

func loadPricing(k *koanf.Koanf) (PricingConfig, error) {
	pc := PricingConfig{
		Currency:  strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "EUR")),
		ChannelID: int64(parseInt(k.String("PRICING_CHANNEL_ID"), 1)),
	}
	var err error
	if pc.ShippingDefaultRate, err = parseAmount("PRICING_SHIPPING_DEFAULT_RATE", k.String("PRICING_SHIPPING_DEFAULT_RATE"), "5.99"); err != nil {
		return pc, err
	}
	if pc.FreeShippingThreshold, err = parseAmount("PRICING_FREE_SHIPPING_THRESHOLD", k.String("PRICING_FREE_SHIPPING_THRESHOLD"), "0"); err != nil {
		return pc, err
	}
	if pc.ShippingZoneRates, err = parseZoneAmounts(k.String("PRICING_SHIPPING_ZONE_RATES")); err != nil {
		return pc, fmt.Errorf("PRICING_SHIPPING_ZONE_RATES: %w", err)
	}
	if pc.TaxDefaultRate, err = parseRate(valueOrDefault(k.String("PRICING_TAX_DEFAULT_RATE"), "0")); err != nil {
		return pc, fmt.Errorf("PRICING_TAX_DEFAULT_RATE: %w", err)
	}
	if pc.TaxZoneRates, err = parseZoneRates(k.String("PRICING_TAX_ZONE_RATES")); err != nil {
		return pc, fmt.Errorf("PRICING_TAX_ZONE_RATES: %w", err)
	}
	return pc, nil
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

func parseAmount(key, value, fallback string) (pricing.Money, error) {
	m, err := pricing.ParseAmount(valueOrDefault(value, fallback))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return m, nil
}

func parseRate(value string) (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative rate %s", value)
	}
	return rate, nil
}

// parseZonePairs splits "EU=5.99,US=12.50" into upper-cased zone keys.
func parseZonePairs(value string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range splitAndTrim(value) {
		zone, raw, ok := strings.Cut(part, "=")
		zone = strings.ToUpper(strings.TrimSpace(zone))
		if !ok || zone == "" {
			return nil, fmt.Errorf("malformed zone entry %q", part)
		}
		out[zone] = strings.TrimSpace(raw)
	}
	return out, nil
}

func parseZoneAmounts(value string) (map[string]pricing.Money, error) {
	pairs, err := parseZonePairs(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]pricing.Money, len(pairs))
	for zone, raw := range pairs {
		m, err := pricing.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", zone, err)
		}
		out[zone] = m
	}
	return out, nil
}

func parseZoneRates(value string) (map[string]decimal.Decimal, error) {
	pairs, err := parseZonePairs(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(pairs))
	for zone, raw := range pairs {
		rate, err := parseRate(raw)
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", zone, err)
		}
		out[zone] = rate
	}
	return out, nil
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

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
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
