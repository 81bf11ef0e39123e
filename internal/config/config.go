package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
)

// DefaultWebhookUserAgent is the user agent Google actually sends on pass callbacks.
// The documented "Google-Valuables" identity never shows up in practice.
const DefaultWebhookUserAgent = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"

type Config struct {
	CRDBDSN        string
	MongoURI       string
	MongoDB        string
	RedisAddr      string
	RabbitURL      string
	RabbitExchange string
	RabbitQueue    string
	OTLPEndpoint   string
	HTTPAddr       string
	SiteURL        string
	Development    bool

	// Wallet settings. Empty values fall back to the global settings table.
	IssuerID        string
	CredentialsFile string
	MapsAPIKey      string

	WalletAPIBase      string
	WebhookUserAgent   string
	WebhookRootKeysURL string

	DebounceWindow    time.Duration
	WorkerConcurrency int
	OutboxInterval    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		CRDBDSN:        os.Getenv("CRDB_DSN"),
		MongoURI:       os.Getenv("MONGO_URI"),
		MongoDB:        getEnv("MONGO_DB", "pretix"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "pretix.events"),
		RabbitQueue:    getEnv("RABBIT_QUEUE", "googlepaypasses.q"),
		OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		SiteURL:        os.Getenv("SITE_URL"),
		Development:    getEnvAsBool("DEVELOPMENT", false),

		IssuerID:        os.Getenv("GOOGLEPAYPASSES_ISSUER_ID"),
		CredentialsFile: os.Getenv("GOOGLEPAYPASSES_CREDENTIALS_FILE"),
		MapsAPIKey:      os.Getenv("GOOGLEPAYPASSES_MAPS_API_KEY"),

		WalletAPIBase:      getEnv("WALLET_API_BASE", "https://walletobjects.googleapis.com/walletobjects/v1"),
		WebhookUserAgent:   getEnv("WEBHOOK_USER_AGENT", DefaultWebhookUserAgent),
		WebhookRootKeysURL: getEnv("WEBHOOK_ROOT_KEYS_URL", "https://pay.google.com/gp/m/issuer/keys"),

		DebounceWindow:    getEnvAsDuration("DEBOUNCE_WINDOW", 5*time.Second),
		WorkerConcurrency: getEnvAsInt("WORKER_CONCURRENCY", 4),
		OutboxInterval:    getEnvAsDuration("OUTBOX_INTERVAL", time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings every binary needs.
func (c *Config) Validate() error {
	if c.SiteURL == "" {
		return errors.New("SITE_URL is required")
	}
	if c.WorkerConcurrency < 1 {
		return errors.Newf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	return nil
}

// Credentials returns the service account JSON referenced by GOOGLEPAYPASSES_CREDENTIALS_FILE,
// or nil when no file is configured.
func (c *Config) Credentials() ([]byte, error) {
	if c.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials file %s", c.CredentialsFile)
	}
	return data, nil
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return defaultValue
	}
	return d
}
