package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds the settings read from ~/.jack/config.yaml
type LocalConfig struct {
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Content   ContentConfig   `yaml:"content"`
	Checker   CheckerConfig   `yaml:"checker"`
	Evaluator EvaluatorConfig `yaml:"evaluator"`
	Server    ServerConfig    `yaml:"server"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	ToFile bool   `yaml:"to_file"`
}

// StorageConfig selects and locates the revision store
type StorageConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// ContentConfig locates authored definitions
type ContentConfig struct {
	ExercisesPath string `yaml:"exercises_path"`
}

// CheckerConfig holds asynchronous checker settings
type CheckerConfig struct {
	RabbitMQURL string `yaml:"rabbitmq_url,omitempty"`
	Workers     int    `yaml:"workers"`
	Prefetch    int    `yaml:"prefetch"`
	// Sandbox runs R and Python code submissions in Docker
	Sandbox      bool   `yaml:"sandbox"`
	SandboxImage string `yaml:"sandbox_image,omitempty"`
}

// EvaluatorConfig holds expression evaluator settings
type EvaluatorConfig struct {
	URL            string  `yaml:"url,omitempty"`
	TimeoutSeconds float64 `yaml:"timeout_seconds"`
	MaxAttempts    int     `yaml:"max_attempts"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	APIKey         string  `yaml:"-"` // Loaded from secrets.yaml
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port               int `yaml:"port"`
	SessionIdleMinutes int `yaml:"session_idle_minutes"`
	RequestsPerMinute  int `yaml:"requests_per_minute"`
	// Submissions, skips and checks
	EvaluationsPerMinute int `yaml:"evaluations_per_minute"`
}

// SecretsConfig holds credentials loaded from secrets.yaml
type SecretsConfig struct {
	Evaluator struct {
		APIKey string `yaml:"api_key"`
	} `yaml:"evaluator"`
}

// JackDir returns the path to ~/.jack
func JackDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".jack"), nil
}

// EnsureJackDir creates ~/.jack and subdirectories if they don't exist
func EnsureJackDir() (string, error) {
	dir, err := JackDir()
	if err != nil {
		return "", err
	}

	for _, subdir := range []string{"", "logs", "cache"} {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns the defaults for a single-user installation
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Log: LogConfig{
			Level:  "info",
			ToFile: true,
		},
		Storage: StorageConfig{
			SQLitePath: "jack.db",
		},
		Content: ContentConfig{
			ExercisesPath: "./content",
		},
		Checker: CheckerConfig{
			Workers:  3,
			Prefetch: 1,
		},
		Evaluator: EvaluatorConfig{
			TimeoutSeconds: 10,
			MaxAttempts:    3,
			MaxConcurrent:  20,
		},
		Server: ServerConfig{
			Port:                 8080,
			SessionIdleMinutes:   120,
			RequestsPerMinute:    120,
			EvaluationsPerMinute: 30,
		},
	}
}

// LoadLocalConfig loads configuration from ~/.jack/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := JackDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.yaml")

	cfg := DefaultLocalConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg.Storage.SQLitePath = filepath.Join(dir, cfg.Storage.SQLitePath)
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Relative database paths live next to the config file
	if cfg.Storage.SQLitePath != "" && !filepath.IsAbs(cfg.Storage.SQLitePath) {
		cfg.Storage.SQLitePath = filepath.Join(dir, cfg.Storage.SQLitePath)
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	return cfg, nil
}

// loadSecrets loads credentials from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	cfg.Evaluator.APIKey = secrets.Evaluator.APIKey
	return nil
}

// SaveLocalConfig saves configuration to ~/.jack/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureJackDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveEvaluatorKey saves the evaluator API key to ~/.jack/secrets.yaml
func SaveEvaluatorKey(apiKey string) error {
	dir, err := EnsureJackDir()
	if err != nil {
		return err
	}

	var secrets SecretsConfig
	secrets.Evaluator.APIKey = apiKey

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}
