// Package config reads Hireloop's runtime settings from the environment,
// optionally seeded from dotenv files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/hireloop/hireloop/internal/billing"
)

var (
	appEnvs    = []string{"development", "staging", "production"}
	keyEnvs    = []string{"live", "test"}
	logFormats = []string{"json", "text"}
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
	RedisURL    string `env:"REDIS_URL,required"`

	PaymentWebhookSecret string `env:"PAYMENT_WEBHOOK_SECRET,required"`
	InviteSigningKey     string `env:"INVITE_SIGNING_KEY,required"`

	// APIKeyEnv is the {env} segment of newly issued keys.
	APIKeyEnv string `env:"API_KEY_ENV" envDefault:"live"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	RateLimitAPIEnabled    bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitPublicEnabled bool `env:"RATE_LIMIT_PUBLIC_ENABLED" envDefault:"true"`
	RateLimitPublicRPS     int  `env:"RATE_LIMIT_PUBLIC_RPS" envDefault:"5"`
	RateLimitPublicBurst   int  `env:"RATE_LIMIT_PUBLIC_BURST" envDefault:"10"`

	TrialPeriod            time.Duration `env:"TRIAL_PERIOD" envDefault:"336h"`
	GracePeriod            time.Duration `env:"GRACE_PERIOD" envDefault:"168h"`
	PastDueRetention       time.Duration `env:"PAST_DUE_RETENTION" envDefault:"336h"`
	DefaultPlanCode        string        `env:"DEFAULT_PLAN_CODE" envDefault:"starter"`
	BillingSweepInterval   time.Duration `env:"BILLING_SWEEP_INTERVAL" envDefault:"1m"`
	PaymentSignatureWindow time.Duration `env:"PAYMENT_SIGNATURE_WINDOW" envDefault:"5m"`

	// Scoring is off when LLMAPIKey is empty.
	LLMAPIKey           string        `env:"LLM_API_KEY"`
	LLMModel            string        `env:"LLM_MODEL" envDefault:"gemini-2.5-flash"`
	ScoringPollInterval time.Duration `env:"SCORING_POLL_INTERVAL" envDefault:"5s"`
	ScoringBatchSize    int           `env:"SCORING_BATCH_SIZE" envDefault:"10"`
	ScoringRPS          float64       `env:"SCORING_RPS" envDefault:"1"`

	WebhookWorkerEnabled bool          `env:"WEBHOOK_WORKER_ENABLED" envDefault:"true"`
	WebhookAllowInsecure bool          `env:"WEBHOOK_ALLOW_INSECURE" envDefault:"false"`
	WebhookPollInterval  time.Duration `env:"WEBHOOK_POLL_INTERVAL" envDefault:"5s"`
	WebhookBatchSize     int           `env:"WEBHOOK_BATCH_SIZE" envDefault:"50"`
	WebhookConcurrency   int           `env:"WEBHOOK_CONCURRENCY" envDefault:"4"`

	AnalyticsWorkerEnabled bool `env:"ANALYTICS_WORKER_ENABLED" envDefault:"true"`
}

// IsDevelopment reports whether the process runs with development defaults
// (no HSTS, insecure local webhooks allowed by convention).
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) BillingPolicy() billing.Policy {
	return billing.Policy{
		TrialPeriod:      c.TrialPeriod,
		GracePeriod:      c.GracePeriod,
		PastDueRetention: c.PastDueRetention,
	}
}

// AllowedOrigins returns the configured CORS origins with blanks removed.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range c.CORSAllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func oneOf(name, got string, allowed []string) error {
	if slices.Contains(allowed, got) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), got)
}

func (c *Config) validate() error {
	var errs []error
	errs = append(errs,
		oneOf("APP_ENV", c.AppEnv, appEnvs),
		oneOf("API_KEY_ENV", c.APIKeyEnv, keyEnvs),
		oneOf("LOG_FORMAT", c.LogFormat, logFormats),
	)
	if len(c.InviteSigningKey) < 32 {
		errs = append(errs, errors.New("INVITE_SIGNING_KEY must be at least 32 characters"))
	}
	for name, d := range map[string]time.Duration{
		"TRIAL_PERIOD":       c.TrialPeriod,
		"GRACE_PERIOD":       c.GracePeriod,
		"PAST_DUE_RETENTION": c.PastDueRetention,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.WebhookConcurrency < 1 || c.WebhookBatchSize < 1 || c.ScoringBatchSize < 1 {
		errs = append(errs, errors.New("worker batch sizes and concurrency must be at least 1"))
	}
	return errors.Join(errs...)
}

// Load reads ./.env if present and then the environment.
func Load() (*Config, error) {
	return LoadFiles()
}

// LoadFiles seeds the environment from the given dotenv files (".env" by
// default). Variables already set win over file values and missing files
// are ignored.
func LoadFiles(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
