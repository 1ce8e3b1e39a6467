// Package config defines environment-driven configuration for the worker.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// ProcessingMode selects the internal/llm.Gateway backend.
type ProcessingMode string

// Processing mode values.
const (
	ModeCloud  ProcessingMode = "cloud"
	ModeLocal  ProcessingMode = "local"
	ModeHybrid ProcessingMode = "hybrid"
)

// RateLimitStrategy selects how day/week/month windows are bounded.
type RateLimitStrategy string

// Rate limit strategy values.
const (
	StrategyRolling RateLimitStrategy = "rolling"
	StrategyFixed   RateLimitStrategy = "fixed"
)

// Config holds every option read once at startup (spec §6's configuration
// surface).
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// Control plane
	APIBaseURL              string        `env:"API_BASE_URL" envDefault:"http://localhost:8000"`
	PollingIntervalSeconds  time.Duration `env:"POLLING_INTERVAL_SECONDS" envDefault:"30s"`
	ConcurrencyLimit        int           `env:"CONCURRENCY_LIMIT" envDefault:"5"`
	RequestTimeout          time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ModelTimeout            time.Duration `env:"MODEL_TIMEOUT" envDefault:"60s"`
	ModelDownloadTimeout    time.Duration `env:"MODEL_DOWNLOAD_TIMEOUT" envDefault:"600s"`

	// Retry / circuit breaker (§4.1)
	MaxRetries              int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryBackoffFactor      float64       `env:"RETRY_BACKOFF_FACTOR" envDefault:"2.0"`
	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerRecovery  time.Duration `env:"CIRCUIT_BREAKER_RECOVERY" envDefault:"60s"`

	// Language-model gateway (§4.4)
	ProcessingMode  ProcessingMode `env:"PROCESSING_MODE" envDefault:"cloud"`
	OpenAIAPIKey    string         `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string         `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbeddingsModel string         `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`
	OllamaBaseURL   string         `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	SupportedLocalModels []string `env:"SUPPORTED_LOCAL_MODELS" envSeparator:","`

	// Cloud throttle (§4.4): an optional Redis-backed token bucket shared
	// across worker processes, distinct from the per-process admission
	// limiter in §4.2. Disabled when CloudThrottleRedisAddr is empty.
	CloudThrottleRedisAddr string `env:"CLOUD_THROTTLE_REDIS_ADDR"`
	CloudThrottlePerMinute int    `env:"CLOUD_THROTTLE_PER_MINUTE" envDefault:"0"`

	// Rate limiter (§4.2)
	RateLimitEnabled       bool              `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitStrategy      RateLimitStrategy `env:"RATE_LIMIT_STRATEGY" envDefault:"rolling"`
	RateLimitPerMinute     int64             `env:"RATE_LIMIT_PER_MINUTE" envDefault:"0"`
	RateLimitPerHour       int64             `env:"RATE_LIMIT_PER_HOUR" envDefault:"0"`
	RateLimitPerDay        int64             `env:"RATE_LIMIT_PER_DAY" envDefault:"0"`
	RateLimitPerWeek       int64             `env:"RATE_LIMIT_PER_WEEK" envDefault:"0"`
	RateLimitPerMonth      int64             `env:"RATE_LIMIT_PER_MONTH" envDefault:"0"`
	RateLimitStoragePath   string            `env:"RATE_LIMIT_STORAGE_PATH" envDefault:":memory:"`

	// OAuth2 (§4.6)
	OAuth2TokenURL     string `env:"OAUTH2_TOKEN_URL"`
	OAuth2ClientID     string `env:"OAUTH2_CLIENT_ID"`
	OAuth2ClientSecret string `env:"OAUTH2_CLIENT_SECRET"`
	OAuth2Scope        string `env:"OAUTH2_SCOPE"`

	// Knowledge graph (§4.3, §6)
	KGBaseURL    string        `env:"KG_BASE_URL" envDefault:"https://www.wikidata.org/w/api.php"`
	KGSparqlURL  string        `env:"KG_SPARQL_URL" envDefault:"https://query.wikidata.org/sparql"`
	KGUserAgent  string        `env:"KG_USER_AGENT" envDefault:"ai-task-worker/1.0"`
	KGPoliteness time.Duration `env:"KG_POLITENESS_INTERVAL" envDefault:"200ms"`

	// Observability
	MetricsPort     int    `env:"METRICS_PORT" envDefault:"8001"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ai-task-worker"`
}

// Load parses environment variables into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }

// Validate performs the startup validation whose failure is the only code
// path that exits the process with status 1 (§6 exit codes, §7 taxonomy).
func (c Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("CONCURRENCY_LIMIT must be positive")
	}
	switch c.ProcessingMode {
	case ModeCloud, ModeLocal, ModeHybrid:
	default:
		return fmt.Errorf("PROCESSING_MODE must be one of cloud|local|hybrid, got %q", c.ProcessingMode)
	}
	switch c.RateLimitStrategy {
	case StrategyRolling, StrategyFixed:
	default:
		return fmt.Errorf("RATE_LIMIT_STRATEGY must be one of rolling|fixed, got %q", c.RateLimitStrategy)
	}
	if c.OAuth2TokenURL != "" && (c.OAuth2ClientID == "" || c.OAuth2ClientSecret == "") {
		return fmt.Errorf("OAUTH2_CLIENT_ID and OAUTH2_CLIENT_SECRET are required when OAUTH2_TOKEN_URL is set")
	}
	return nil
}

// OpenAIKeyIsPlaceholder reports whether the configured key is absent or
// equals the documented development placeholder, per §4.4's mock-provider
// path.
func (c Config) OpenAIKeyIsPlaceholder() bool {
	return c.OpenAIAPIKey == "" || c.OpenAIAPIKey == "your_openai_api_key_here"
}
