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

// Config holds the lessonsearch API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
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

// PostgresConfig holds catalog database settings.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int    `yaml:"max_conns"`
	ConnLifetimeMin int    `yaml:"conn_lifetime_min"`
}

// RedisConfig holds cache store settings.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	Provider   string `yaml:"provider"`
}

// LLMConfig holds the LLM parse/location provider settings.
type LLMConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// SearchConfig consolidates the pipeline tunables. Fusion weights and the
// lexical-shortcut/guardrail thresholds are deployment-specific knobs, not
// constants.
type SearchConfig struct {
	VectorWeight        float64 `yaml:"vector_weight"`
	TextWeight          float64 `yaml:"text_weight"`
	SingleSourcePenalty float64 `yaml:"single_source_penalty"`

	VectorTopK    int `yaml:"vector_top_k"`
	TextTopK      int `yaml:"text_top_k"`
	MaxCandidates int `yaml:"max_candidates"`

	TextSkipVectorScoreThreshold float64 `yaml:"text_skip_vector_score_threshold"`
	TextSkipVectorMinResults     int     `yaml:"text_skip_vector_min_results"`
	GuardrailMaxTokens           int     `yaml:"guardrail_max_tokens"`

	EmbeddingTimeoutMS int `yaml:"embedding_timeout_ms"`

	SearchBudgetMS    int `yaml:"search_budget_ms"`
	HighLoadBudgetMS  int `yaml:"high_load_budget_ms"`
	HighLoadThreshold int `yaml:"high_load_threshold"`

	MinVectorSearchMS int `yaml:"min_vector_search_ms"`
	MinEmbeddingMS    int `yaml:"min_embedding_ms"`
	MinLLMMS          int `yaml:"min_llm_ms"`

	UncachedConcurrency int `yaml:"uncached_concurrency"`

	FuzzySimilarityFloor float64 `yaml:"fuzzy_similarity_floor"`
	SoftDistanceKM       float64 `yaml:"soft_distance_km"`
}

// CacheConfig holds response/parsed-query cache settings.
type CacheConfig struct {
	ResponseTTLSec    int    `yaml:"response_ttl_sec"`
	ParsedQueryTTLSec int    `yaml:"parsed_query_ttl_sec"`
	KeyPrefix         string `yaml:"key_prefix"`
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Postgres.MaxConns <= 0 {
		c.Postgres.MaxConns = 10
	}
	if c.Postgres.ConnLifetimeMin <= 0 {
		c.Postgres.ConnLifetimeMin = 30
	}
	if c.LLM.TimeoutMS <= 0 {
		c.LLM.TimeoutMS = 2000
	}
	if c.Cache.ResponseTTLSec <= 0 {
		c.Cache.ResponseTTLSec = 300
	}
	if c.Cache.ParsedQueryTTLSec <= 0 {
		c.Cache.ParsedQueryTTLSec = 3600
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "lessonsearch:"
	}
	c.Search.applyDefaults()
}

func (s *SearchConfig) applyDefaults() {
	if s.VectorWeight == 0 && s.TextWeight == 0 {
		s.VectorWeight = 0.6
		s.TextWeight = 0.4
	}
	if s.SingleSourcePenalty <= 0 {
		s.SingleSourcePenalty = 0.8
	}
	if s.VectorTopK <= 0 {
		s.VectorTopK = 30
	}
	if s.TextTopK <= 0 {
		s.TextTopK = 30
	}
	if s.MaxCandidates <= 0 {
		s.MaxCandidates = 60
	}
	if s.TextSkipVectorScoreThreshold <= 0 {
		s.TextSkipVectorScoreThreshold = 0.55
	}
	if s.TextSkipVectorMinResults <= 0 {
		s.TextSkipVectorMinResults = 5
	}
	if s.GuardrailMaxTokens <= 0 {
		s.GuardrailMaxTokens = 2
	}
	if s.EmbeddingTimeoutMS <= 0 {
		s.EmbeddingTimeoutMS = 800
	}
	if s.SearchBudgetMS <= 0 {
		s.SearchBudgetMS = 2500
	}
	if s.HighLoadBudgetMS <= 0 {
		s.HighLoadBudgetMS = 1200
	}
	if s.HighLoadThreshold <= 0 {
		s.HighLoadThreshold = 20
	}
	if s.MinVectorSearchMS <= 0 {
		s.MinVectorSearchMS = 300
	}
	if s.MinEmbeddingMS <= 0 {
		s.MinEmbeddingMS = 200
	}
	if s.MinLLMMS <= 0 {
		s.MinLLMMS = 500
	}
	if s.UncachedConcurrency <= 0 {
		s.UncachedConcurrency = 50
	}
	if s.FuzzySimilarityFloor <= 0 {
		s.FuzzySimilarityFloor = 0.35
	}
	if s.SoftDistanceKM <= 0 {
		s.SoftDistanceKM = 8
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if len(c.Redis.Addrs) == 0 {
		return fmt.Errorf("redis.addrs is required")
	}
	sum := c.Search.VectorWeight + c.Search.TextWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("search.vector_weight + search.text_weight must sum to 1.0, got %.3f", sum)
	}
	if c.Search.SingleSourcePenalty <= 0 || c.Search.SingleSourcePenalty > 1 {
		return fmt.Errorf("search.single_source_penalty must be in (0, 1], got %.3f", c.Search.SingleSourcePenalty)
	}
	if c.Search.HighLoadBudgetMS > c.Search.SearchBudgetMS {
		return fmt.Errorf("search.high_load_budget_ms must not exceed search.search_budget_ms")
	}
	return nil
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
