package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr          = ":8080"
	defaultJWTSecret         = "change-me-jwt-secret"
	defaultWebhookSecret     = "change-me-webhook-secret"
	defaultReservationTTL    = "60m"
	defaultSweepInterval     = "5m"
	defaultGatewayTimeout    = "10s"
	defaultNotifyTimeout     = "5s"
	defaultWebhookDedupTTL   = "24h"
	defaultPaymentGateway    = "fake"
	defaultCurrency          = "usd"
	defaultLeadPriceCents    = "1500"
	defaultClaimPercentage   = "0.15"
	defaultMinimumLeadPrice  = "3000"
	defaultGeocoder          = "none"
	defaultNominatimURL      = "https://nominatim.openstreetmap.org/search"
	defaultGeocoderUserAgent = "plumberleads/1.0"
	defaultSweeperEnabled    = "true"
)

type Config struct {
	AppEnv   string
	HTTPAddr string

	DatabaseURL string
	JWTSecret   string

	ReservationTTL time.Duration
	SweepInterval  time.Duration
	SweeperEnabled bool

	PaymentGateway  string
	StripeSecretKey string
	WebhookSecret   string
	GatewayTimeout  time.Duration
	Currency        string
	LeadPriceCents  int64

	// job priced leads cost LeadClaimPercentage of the job, at least MinimumLeadPriceCents
	LeadClaimPercentage   float64
	MinimumLeadPriceCents int64

	Geocoder          string
	NominatimURL      string
	GeocoderUserAgent string

	RedisAddr       string
	WebhookDedupTTL time.Duration

	NotifyTimeout time.Duration

	CORSAllowedOrigins string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("level=warn msg=failed to read .env err=%v", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)

	cfg.HTTPAddr = strings.TrimSpace(getEnv("HTTP_ADDR", defaultHTTPAddr))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.WebhookSecret = strings.TrimSpace(getEnv("WEBHOOK_SECRET", defaultWebhookSecret))
	cfg.StripeSecretKey = strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY"))
	cfg.PaymentGateway = strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_GATEWAY", defaultPaymentGateway)))
	cfg.Currency = strings.ToLower(strings.TrimSpace(getEnv("CURRENCY", defaultCurrency)))
	cfg.Geocoder = strings.ToLower(strings.TrimSpace(getEnv("GEOCODER", defaultGeocoder)))
	cfg.NominatimURL = strings.TrimSpace(getEnv("NOMINATIM_URL", defaultNominatimURL))
	cfg.GeocoderUserAgent = strings.TrimSpace(getEnv("GEOCODER_USER_AGENT", defaultGeocoderUserAgent))
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.SweeperEnabled = parseBoolEnv("SWEEPER_ENABLED", defaultSweeperEnabled)
	cfg.CORSAllowedOrigins = os.Getenv("CORS_ALLOWED_ORIGINS")

	var err error
	if cfg.ReservationTTL, err = parseDurationEnv("RESERVATION_TTL", defaultReservationTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDurationEnv("SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = parseDurationEnv("GATEWAY_TIMEOUT", defaultGatewayTimeout); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = parseDurationEnv("NOTIFY_TIMEOUT", defaultNotifyTimeout); err != nil {
		return nil, err
	}
	if cfg.WebhookDedupTTL, err = parseDurationEnv("WEBHOOK_DEDUP_TTL", defaultWebhookDedupTTL); err != nil {
		return nil, err
	}
	if cfg.LeadPriceCents, err = parseIntEnv("DEFAULT_LEAD_PRICE_CENTS", defaultLeadPriceCents); err != nil {
		return nil, err
	}
	if cfg.LeadClaimPercentage, err = parseFloatEnv("LEAD_CLAIM_PERCENTAGE", defaultClaimPercentage); err != nil {
		return nil, err
	}
	if cfg.MinimumLeadPriceCents, err = parseIntEnv("MINIMUM_LEAD_PRICE_CENTS", defaultMinimumLeadPrice); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s gateway=%s geocoder=%s reservation_ttl=%s sweep_interval=%s", cfg.AppEnv, cfg.PaymentGateway, cfg.Geocoder, cfg.ReservationTTL, cfg.SweepInterval)
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ReservationTTL <= 0 {
		return fmt.Errorf("RESERVATION_TTL must be > 0")
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be > 0")
	}
	if cfg.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be > 0")
	}
	if cfg.NotifyTimeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be > 0")
	}
	if cfg.LeadPriceCents <= 0 {
		return fmt.Errorf("DEFAULT_LEAD_PRICE_CENTS must be > 0")
	}
	if cfg.LeadClaimPercentage <= 0 || cfg.LeadClaimPercentage > 1 {
		return fmt.Errorf("LEAD_CLAIM_PERCENTAGE must be in (0, 1]")
	}
	if cfg.MinimumLeadPriceCents <= 0 {
		return fmt.Errorf("MINIMUM_LEAD_PRICE_CENTS must be > 0")
	}
	if len(cfg.Currency) != 3 {
		return fmt.Errorf("CURRENCY must be an ISO 4217 code")
	}
	switch cfg.PaymentGateway {
	case "fake":
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_GATEWAY must be one of: fake, stripe")
	}
	switch cfg.Geocoder {
	case "none", "static", "nominatim":
	default:
		return fmt.Errorf("GEOCODER must be one of: none, static, nominatim")
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.WebhookSecret, defaultWebhookSecret) {
			return fmt.Errorf("in prod/release WEBHOOK_SECRET must be set and not default")
		}
		if cfg.PaymentGateway == "fake" {
			return fmt.Errorf("in prod/release PAYMENT_GATEWAY must not be fake")
		}
	}

	return nil
}

func (c *Config) IsProduction() bool { return isProdLike(c.AppEnv) }

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseIntEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseFloatEnv(name, fallback string) (float64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return f, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
