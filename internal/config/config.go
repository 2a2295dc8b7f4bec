package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the seamark search service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Store    StoreConfig    `yaml:"store"`
	Vector   VectorConfig   `yaml:"vector"`
	AI       AIConfig       `yaml:"ai"`
	Search   SearchConfig   `yaml:"search"`
	Indexing IndexingConfig `yaml:"indexing"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for the admin endpoints.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig holds the read-only item store connection settings.
type StoreConfig struct {
	Path string `yaml:"path"` // sqlite database file of the navigation app
}

// VectorConfig holds similarity-backend settings.
type VectorConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	MaxResults       int      `yaml:"max_results"`
	Threshold        float64  `yaml:"similarity_threshold"`
}

// AIConfig holds settings for the OpenAI-compatible chat and embedding APIs.
type AIConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
}

// SearchConfig holds orchestrator tuning knobs.
type SearchConfig struct {
	KeywordLimit       int `yaml:"keyword_limit"`
	CandidateCap       int `yaml:"candidate_cap"`
	MaxRecommendations int `yaml:"max_recommendations"`
	CacheTTLSec        int `yaml:"cache_ttl_sec"`
	VectorCacheTTLSec  int `yaml:"vector_cache_ttl_sec"`
	CacheSize          int `yaml:"cache_size"`
	StreamBatchSize    int `yaml:"stream_batch_size"`
	StreamBatchDelayMs int `yaml:"stream_batch_delay_ms"`
}

// IndexingConfig holds background indexing settings.
type IndexingConfig struct {
	Workers     int `yaml:"workers"`
	QueueSize   int `yaml:"queue_size"`
	ItemDelayMs int `yaml:"item_delay_ms"` // pacing between batch items to avoid API rate limits
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Streaming responses drip results over several seconds.
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Vector.ReadinessTimeout <= 0 {
		c.Vector.ReadinessTimeout = 10
	}
	if c.Vector.MaxResults <= 0 {
		c.Vector.MaxResults = 50
	}
	if c.Vector.Threshold <= 0 {
		c.Vector.Threshold = 0.3
	}
	if c.AI.Temperature <= 0 {
		c.AI.Temperature = 0.7
	}
	if c.AI.MaxTokens <= 0 {
		c.AI.MaxTokens = 500
	}
	if c.Search.KeywordLimit <= 0 {
		c.Search.KeywordLimit = 200
	}
	if c.Search.CandidateCap <= 0 {
		c.Search.CandidateCap = 400
	}
	if c.Search.MaxRecommendations <= 0 {
		c.Search.MaxRecommendations = 20
	}
	if c.Search.CacheTTLSec <= 0 {
		c.Search.CacheTTLSec = 3600
	}
	if c.Search.VectorCacheTTLSec <= 0 {
		c.Search.VectorCacheTTLSec = 86400
	}
	if c.Search.CacheSize <= 0 {
		c.Search.CacheSize = 1000
	}
	if c.Search.StreamBatchSize <= 0 {
		c.Search.StreamBatchSize = 3
	}
	if c.Search.StreamBatchDelayMs <= 0 {
		c.Search.StreamBatchDelayMs = 350
	}
	if c.Indexing.Workers <= 0 {
		c.Indexing.Workers = 2
	}
	if c.Indexing.QueueSize <= 0 {
		c.Indexing.QueueSize = 256
	}
	if c.Indexing.ItemDelayMs <= 0 {
		c.Indexing.ItemDelayMs = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Vector.Enabled && len(c.Vector.Addrs) == 0 {
		return fmt.Errorf("vector.addrs is required when vector search is enabled")
	}
	if c.Vector.Threshold < 0 || c.Vector.Threshold > 1 {
		return fmt.Errorf("vector.similarity_threshold must be within [0, 1], got %g", c.Vector.Threshold)
	}
	return nil
}

// AIConfigured reports whether the chat API settings are complete. When false,
// AI-mode requests degrade to keyword search and report the feature disabled.
func (c *Config) AIConfigured() bool {
	return c.AI.Enabled && c.AI.BaseURL != "" && c.AI.APIKey != "" && c.AI.ChatModel != ""
}

// VectorConfigured reports whether the vector stage has everything it needs.
func (c *Config) VectorConfigured() bool {
	return c.Vector.Enabled && len(c.Vector.Addrs) > 0 &&
		c.AI.BaseURL != "" && c.AI.APIKey != "" && c.AI.EmbeddingModel != ""
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
