package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tribunal/pkg/errors"
)

type Config struct {
	App           AppConfig
	Council       CouncilConfig
	AI            AIConfig
	Results       ResultsConfig
	Calibration   CalibrationConfig
	Isolation     IsolationConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	Postgres      PostgresConfig
	Metrics       MetricsConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"tribunal"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// CouncilConfig holds the per-round review parameters. It is passed into the
// orchestrator as an immutable value at round start; nothing reads these from
// the environment mid-round.
type CouncilConfig struct {
	Size                int     `envconfig:"COUNCIL_SIZE" default:"3"`
	ApprovalThreshold   int     `envconfig:"APPROVAL_THRESHOLD" default:"2"`
	SycophancyThreshold float64 `envconfig:"SYCOPHANCY_THRESHOLD" default:"0.6"`
	RoundNumber         int     `envconfig:"ROUND_NUMBER" default:"1"`

	// ReviewTimeout bounds a single reviewer invocation. A reviewer that
	// exceeds it resolves to the canonical failure vote instead of stalling
	// the barrier.
	ReviewTimeout time.Duration `envconfig:"REVIEW_TIMEOUT" default:"3m"`

	// RequirementsMaxBytes bounds the leading slice of the requirements
	// document forwarded to reviewers.
	RequirementsMaxBytes int `envconfig:"REQUIREMENTS_MAX_BYTES" default:"16384"`
}

// Validate fails fast on invalid round parameters, before any reviewer is
// launched.
func (c CouncilConfig) Validate() error {
	if c.Size < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "council size must be >= 1, got %d", c.Size)
	}
	if c.ApprovalThreshold < 1 || c.ApprovalThreshold > c.Size {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"approval threshold must be in [1, %d], got %d", c.Size, c.ApprovalThreshold)
	}
	if c.SycophancyThreshold < 0 || c.SycophancyThreshold > 1 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"sycophancy threshold must be in [0, 1], got %g", c.SycophancyThreshold)
	}
	if c.RoundNumber < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "round number must be >= 0, got %d", c.RoundNumber)
	}
	if c.ReviewTimeout <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "review timeout must be positive, got %v", c.ReviewTimeout)
	}
	if c.RequirementsMaxBytes <= 0 {
		return errors.Wrapf(errors.ErrInvalidConfig,
			"requirements limit must be positive, got %d", c.RequirementsMaxBytes)
	}
	return nil
}

type AIConfig struct {
	BaseURL      string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	APIKey       string        `envconfig:"AI_API_KEY"`
	Model        string        `envconfig:"AI_MODEL" default:"gpt-4o"`
	MaxTokens    int           `envconfig:"AI_MAX_TOKENS" default:"4096"`
	Temperature  float64       `envconfig:"AI_TEMPERATURE" default:"0.2"`
	HTTPTimeout  time.Duration `envconfig:"AI_HTTP_TIMEOUT" default:"120s"`
	RatePerSec   float64       `envconfig:"AI_RATE_PER_SEC" default:"2"`
	RateBurst    int           `envconfig:"AI_RATE_BURST" default:"4"`
}

type ResultsConfig struct {
	Dir string `envconfig:"RESULTS_DIR" default:"results"`
}

type CalibrationConfig struct {
	Path string `envconfig:"CALIBRATION_PATH" default:"calibration/state.json"`
}

type IsolationConfig struct {
	// BaseDir is where per-reviewer evidence scopes are created. Empty means
	// the OS temp directory.
	BaseDir string `envconfig:"ISOLATION_DIR"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_DECISION_TOPIC" default:"review.decisions"`
}

// Enabled reports whether Kafka notification is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID"`
}

// Enabled reports whether Telegram notification is configured.
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	Database string `envconfig:"POSTGRES_DB"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
}

// Enabled reports whether the optional round archive is configured.
func (c PostgresConfig) Enabled() bool {
	return c.Host != ""
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type MetricsConfig struct {
	// Addr is the listen address for the Prometheus endpoint. Empty disables
	// the endpoint; metrics are still collected in-process.
	Addr string `envconfig:"METRICS_ADDR"`
}

// Enabled reports whether the Prometheus endpoint is configured.
func (c MetricsConfig) Enabled() bool {
	return c.Addr != ""
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
