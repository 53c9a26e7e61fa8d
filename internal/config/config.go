package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the generation server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AI       AIConfig
	Cache    CacheConfig
	Worker   WorkerConfig
	Stream   StreamConfig
	Routing  RoutingConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port               int    `env:"SERVER_PORT" envDefault:"8080"`
	Env                string `env:"APP_ENV" envDefault:"development"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"60"`
}

type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
}

type RedisConfig struct {
	URL string `env:"REDIS_URL"`
}

// AIConfig configures the invocation engine and the upstream providers.
type AIConfig struct {
	Models         []string      `env:"AI_MODELS" envSeparator:"," envDefault:"gpt-4o,gpt-4o-mini,gemini-2.0-flash"`
	MaxRetries     int           `env:"AI_MAX_RETRIES" envDefault:"2"`
	InitialDelay   time.Duration `env:"AI_RETRY_INITIAL_DELAY" envDefault:"1s"`
	AttemptTimeout time.Duration `env:"AI_ATTEMPT_TIMEOUT" envDefault:"20s"`
	OverallTimeout time.Duration `env:"AI_OVERALL_TIMEOUT" envDefault:"50s"`
	MaxTokens      int           `env:"AI_MAX_TOKENS" envDefault:"2048"`
	Temperature    float64       `env:"AI_TEMPERATURE" envDefault:"0.7"`
	MaxConcurrent  int           `env:"AI_MAX_CONCURRENT" envDefault:"8"`

	// Limits applied when falling back after an unavailable model.
	SimplifiedPromptChars int     `env:"AI_SIMPLIFIED_PROMPT_CHARS" envDefault:"4000"`
	SimplifiedMaxTokens   int     `env:"AI_SIMPLIFIED_MAX_TOKENS" envDefault:"1024"`
	SimplifiedTemperature float64 `env:"AI_SIMPLIFIED_TEMPERATURE" envDefault:"0.3"`

	// ModelProviders pins model names to providers, e.g. "llama3:openai".
	ModelProviders map[string]string `env:"AI_MODEL_PROVIDERS" envSeparator:"," envKeyValSeparator:":"`
	MockEnabled    bool              `env:"AI_MOCK_ENABLED" envDefault:"false"`

	OpenAI OpenAIConfig
	Gemini GeminiConfig
}

type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL"`
}

type GeminiConfig struct {
	APIKey  string `env:"GEMINI_API_KEY"`
	BaseURL string `env:"GEMINI_BASE_URL"`
}

// CacheConfig configures the similarity cache shared by both generation paths.
type CacheConfig struct {
	Backend        string        `env:"CACHE_BACKEND" envDefault:"memory"`
	Capacity       int           `env:"CACHE_CAPACITY" envDefault:"50"`
	TTL            time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	Threshold      float64       `env:"CACHE_SIMILARITY_THRESHOLD" envDefault:"0.85"`
	HitDelay       time.Duration `env:"CACHE_HIT_DELAY" envDefault:"800ms"`
	StreamHitDelay time.Duration `env:"CACHE_STREAM_HIT_DELAY" envDefault:"300ms"`
}

type WorkerConfig struct {
	Workers      int           `env:"WORKER_COUNT" envDefault:"4"`
	QueueSize    int           `env:"WORKER_QUEUE_SIZE" envDefault:"64"`
	StaleAfter   time.Duration `env:"JOB_STALE_AFTER" envDefault:"5m"`
	ReapInterval time.Duration `env:"JOB_REAP_INTERVAL" envDefault:"1m"`
}

type StreamConfig struct {
	FirstChunkTimeout  time.Duration `env:"STREAM_FIRST_CHUNK_TIMEOUT" envDefault:"10s"`
	StallTimeout       time.Duration `env:"STREAM_STALL_TIMEOUT" envDefault:"10s"`
	StallCheckInterval time.Duration `env:"STREAM_STALL_CHECK_INTERVAL" envDefault:"3s"`
	MinPartialLength   int           `env:"STREAM_MIN_PARTIAL_LENGTH" envDefault:"100"`
}

type RoutingConfig struct {
	RulesFile string `env:"ROUTING_RULES_FILE"`
}

// AuthConfig enables API key auth when at least one bcrypt hash is configured.
type AuthConfig struct {
	APIKeyHashes []string `env:"API_KEY_HASHES" envSeparator:";"`
}

var validCacheBackends = map[string]bool{
	"memory": true,
	"redis":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validLogLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}

	models := c.AI.Models[:0]
	for _, m := range c.AI.Models {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	c.AI.Models = models

	if c.AI.MaxRetries < 1 {
		return fmt.Errorf("AI_MAX_RETRIES must be at least 1, got %d", c.AI.MaxRetries)
	}
	if c.AI.AttemptTimeout <= 0 || c.AI.OverallTimeout <= 0 {
		return fmt.Errorf("AI_ATTEMPT_TIMEOUT and AI_OVERALL_TIMEOUT must be positive")
	}

	if !validCacheBackends[c.Cache.Backend] {
		return fmt.Errorf("CACHE_BACKEND must be one of memory, redis; got %q", c.Cache.Backend)
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Cache.Threshold <= 0 || c.Cache.Threshold > 1 {
		return fmt.Errorf("CACHE_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.Cache.Threshold)
	}

	if c.Worker.Workers < 1 || c.Worker.QueueSize < 1 {
		return fmt.Errorf("WORKER_COUNT and WORKER_QUEUE_SIZE must be at least 1")
	}

	if c.Stream.StallCheckInterval <= 0 {
		return fmt.Errorf("STREAM_STALL_CHECK_INTERVAL must be positive")
	}

	return nil
}
