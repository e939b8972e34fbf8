package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Debug    bool
	LogLevel string // debug, info, warn, error
	// LogToFile adds a JSON log under ~/.jack/logs
	LogToFile bool

	// Storage. DatabaseURL selects PostgreSQL; otherwise SQLitePath is used.
	DatabaseURL string
	SQLitePath  string

	// RabbitMQ carries checker jobs; empty disables asynchronous checking
	RabbitMQURL     string
	CheckerWorkers  int
	CheckerPrefetch int
	CheckerSandbox  bool
	// SandboxImage overrides the per-language image
	SandboxImage string

	// Evaluator. An empty URL selects the built-in evaluator.
	EvaluatorURL           string
	EvaluatorAPIKey        string
	EvaluatorTimeout       time.Duration
	EvaluatorMaxAttempts   int
	EvaluatorMaxConcurrent int

	// Authored exercise and course definitions
	ExercisesPath string

	// HTTP API
	Port                 int
	SessionIdleTimeout   time.Duration
	RequestsPerMinute    int
	EvaluationsPerMinute int
}

// Load reads configuration from environment variables, using the local
// config file for anything the environment leaves unset
func Load() (*Config, error) {
	local, err := LoadLocalConfig()
	if err != nil {
		return nil, err
	}
	cfg := FromEnv(local)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a config from environment variables over the given
// local defaults
func FromEnv(local *LocalConfig) *Config {
	if local == nil {
		local = DefaultLocalConfig()
	}
	return &Config{
		Debug:                  getEnvBool("DEBUG", false),
		LogLevel:               getEnv("LOG_LEVEL", local.Log.Level),
		LogToFile:              getEnvBool("LOG_TO_FILE", local.Log.ToFile),
		DatabaseURL:            getEnv("DATABASE_URL", local.Storage.DatabaseURL),
		SQLitePath:             getEnv("SQLITE_PATH", local.Storage.SQLitePath),
		RabbitMQURL:            getEnv("RABBITMQ_URL", local.Checker.RabbitMQURL),
		CheckerWorkers:         getEnvInt("CHECKER_WORKERS", local.Checker.Workers),
		CheckerPrefetch:        getEnvInt("CHECKER_PREFETCH", local.Checker.Prefetch),
		CheckerSandbox:         getEnvBool("CHECKER_SANDBOX", local.Checker.Sandbox),
		SandboxImage:           getEnv("SANDBOX_IMAGE", local.Checker.SandboxImage),
		EvaluatorURL:           getEnv("EVALUATOR_URL", local.Evaluator.URL),
		EvaluatorAPIKey:        getEnv("EVALUATOR_API_KEY", local.Evaluator.APIKey),
		EvaluatorTimeout:       time.Duration(getEnvFloat("EVALUATOR_TIMEOUT", float64(local.Evaluator.TimeoutSeconds)) * float64(time.Second)),
		EvaluatorMaxAttempts:   getEnvInt("EVALUATOR_MAX_ATTEMPTS", local.Evaluator.MaxAttempts),
		EvaluatorMaxConcurrent: getEnvInt("EVALUATOR_MAX_CONCURRENT", local.Evaluator.MaxConcurrent),
		ExercisesPath:          getEnv("EXERCISES_PATH", local.Content.ExercisesPath),
		Port:                   getEnvInt("PORT", local.Server.Port),
		SessionIdleTimeout:     time.Duration(getEnvInt("SESSION_IDLE_MINUTES", local.Server.SessionIdleMinutes)) * time.Minute,
		RequestsPerMinute:      getEnvInt("RATE_LIMIT_RPM", local.Server.RequestsPerMinute),
		EvaluationsPerMinute:   getEnvInt("RATE_LIMIT_EVAL_RPM", local.Server.EvaluationsPerMinute),
	}
}

// Validate reports the first setting that cannot be used
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		return fmt.Errorf("either DATABASE_URL or SQLITE_PATH must be set")
	}
	if c.DatabaseURL != "" && !hasScheme(c.DatabaseURL, "postgres", "postgresql") {
		return fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}
	if c.RabbitMQURL != "" && !hasScheme(c.RabbitMQURL, "amqp", "amqps") {
		return fmt.Errorf("RABBITMQ_URL must be an amqp:// URL")
	}
	if c.CheckerWorkers <= 0 {
		return fmt.Errorf("CHECKER_WORKERS must be positive, got %d", c.CheckerWorkers)
	}
	if c.EvaluatorTimeout <= 0 {
		return fmt.Errorf("EVALUATOR_TIMEOUT must be positive")
	}
	if c.EvaluatorMaxAttempts <= 0 {
		return fmt.Errorf("EVALUATOR_MAX_ATTEMPTS must be positive, got %d", c.EvaluatorMaxAttempts)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_MINUTES must be positive")
	}
	if c.ExercisesPath == "" {
		return fmt.Errorf("EXERCISES_PATH must be set")
	}
	return nil
}

// UsePostgres reports whether the PostgreSQL store is configured
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func hasScheme(raw string, schemes ...string) bool {
	for _, s := range schemes {
		if strings.HasPrefix(raw, s+"://") {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
