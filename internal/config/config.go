package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/coderag/internal/domain/retrieval/mode"
)

// Config holds the coderag configuration.
type Config struct {
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
	Storage    StorageConfig    `yaml:"storage"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// WorkspaceConfig points at the indexed tree.
type WorkspaceConfig struct {
	Root    string `yaml:"root"`
	DataDir string `yaml:"data_dir"` // default: <root>/.coderag
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

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // openai, ollama
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Host                string `yaml:"host"` // ollama
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	BatchSize           int    `yaml:"batch_size"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	// RandomFallback substitutes random unit vectors while indexing when the provider fails.
	RandomFallback *bool `yaml:"random_fallback"`
}

// FallbackEnabled reports whether degraded index vectors are allowed.
func (e EmbeddingConfig) FallbackEnabled() bool {
	return e.RandomFallback == nil || *e.RandomFallback
}

// GenerationConfig holds chat provider settings. An empty provider disables generation.
type GenerationConfig struct {
	Provider     string `yaml:"provider"` // openai, ollama or empty
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	Host         string `yaml:"host"`
	Model        string `yaml:"model"`
	Mode         string `yaml:"mode"` // auto, generation, rag_only
	SystemPrompt string `yaml:"system_prompt"`
}

// CacheConfig holds embedding and response cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // file, redis, none
	Dir              string   `yaml:"dir"`    // file driver, default: <data_dir>/cache
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	Standalone       bool     `yaml:"standalone"` // skip cluster topology discovery
	KeyPrefix        string   `yaml:"key_prefix"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	MaxEntries       int      `yaml:"max_entries"`
	EmbeddingTTLHrs  int      `yaml:"embedding_ttl_hours"`
	ResponseTTLMin   int      `yaml:"response_ttl_minutes"`
	Persistent       bool     `yaml:"persistent"`
	SweepIntervalMin int      `yaml:"sweep_interval_minutes"`
}

// StorageConfig holds vector persistence settings.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // bolt, memory
	Path       string `yaml:"path"`   // default: <data_dir>/vectors.db
	TimeoutSec int    `yaml:"timeout_sec"`
}

// IndexConfig holds workspace walking and chunking settings.
type IndexConfig struct {
	IncludeExtensions []string `yaml:"include_extensions"`
	ExcludeDirs       []string `yaml:"exclude_dirs"`
	MaxFileSizeKB     int      `yaml:"max_file_size_kb"`
	BatchSize         int      `yaml:"batch_size"`
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	MinChunkSize      int      `yaml:"min_chunk_size"`
}

// RetrievalConfig holds search thresholds.
type RetrievalConfig struct {
	Similarity       string  `yaml:"similarity"` // absolute, signed
	MinScore         float64 `yaml:"min_score"`
	FallbackMinScore float64 `yaml:"fallback_min_score"`
	MinResults       int     `yaml:"min_results"`
	Limit            int     `yaml:"limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse expands env variables in data and decodes it.
func Parse(data []byte) (Config, error) {
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
	if c.Workspace.Root == "" {
		c.Workspace.Root = "."
	}
	if c.Workspace.DataDir == "" {
		c.Workspace.DataDir = filepath.Join(c.Workspace.Root, ".coderag")
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 10
	}
	if c.Generation.Mode == "" {
		c.Generation.Mode = string(mode.Auto)
	}

	if c.Cache.Driver == "" {
		c.Cache.Driver = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(c.Workspace.DataDir, "cache")
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = "coderag:"
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 100
	}
	if c.Cache.EmbeddingTTLHrs <= 0 {
		c.Cache.EmbeddingTTLHrs = 7 * 24
	}
	if c.Cache.ResponseTTLMin <= 0 {
		c.Cache.ResponseTTLMin = 24 * 60
	}
	if c.Cache.SweepIntervalMin <= 0 {
		c.Cache.SweepIntervalMin = 60
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "bolt"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.Workspace.DataDir, "vectors.db")
	}
	if c.Storage.TimeoutSec <= 0 {
		c.Storage.TimeoutSec = 1
	}

	if c.Index.MaxFileSizeKB <= 0 {
		c.Index.MaxFileSizeKB = 1024
	}
	if c.Index.BatchSize <= 0 {
		c.Index.BatchSize = 10
	}
	if c.Index.ChunkSize <= 0 {
		c.Index.ChunkSize = 1000
	}
	if c.Index.ChunkOverlap <= 0 {
		c.Index.ChunkOverlap = 200
	}
	if c.Index.MinChunkSize <= 0 {
		c.Index.MinChunkSize = 50
	}

	if c.Retrieval.Similarity == "" {
		c.Retrieval.Similarity = "absolute"
	}
	if c.Retrieval.MinScore <= 0 {
		c.Retrieval.MinScore = 0.25
	}
	if c.Retrieval.FallbackMinScore <= 0 {
		c.Retrieval.FallbackMinScore = 0.1
	}
	if c.Retrieval.MinResults <= 0 {
		c.Retrieval.MinResults = 2
	}
	if c.Retrieval.Limit <= 0 {
		c.Retrieval.Limit = 5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Embedding.Provider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"ollama\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}

	switch c.Generation.Provider {
	case "", "openai", "ollama":
	default:
		return fmt.Errorf("generation.provider must be empty, \"openai\" or \"ollama\", got %q", c.Generation.Provider)
	}
	if c.Generation.Provider != "" && c.Generation.Model == "" {
		return fmt.Errorf("generation.model is required when generation.provider is set")
	}
	if _, err := mode.Parse(c.Generation.Mode); err != nil {
		return fmt.Errorf("generation.mode: %w", err)
	}

	switch c.Cache.Driver {
	case "file", "none":
	case "redis":
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for the redis driver")
		}
	default:
		return fmt.Errorf("cache.driver must be \"file\", \"redis\" or \"none\", got %q", c.Cache.Driver)
	}

	switch c.Storage.Driver {
	case "bolt", "memory":
	default:
		return fmt.Errorf("storage.driver must be \"bolt\" or \"memory\", got %q", c.Storage.Driver)
	}

	if c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap (%d) must be smaller than index.chunk_size (%d)",
			c.Index.ChunkOverlap, c.Index.ChunkSize)
	}

	switch c.Retrieval.Similarity {
	case "absolute", "signed":
	default:
		return fmt.Errorf("retrieval.similarity must be \"absolute\" or \"signed\", got %q", c.Retrieval.Similarity)
	}
	if c.Retrieval.FallbackMinScore > c.Retrieval.MinScore {
		return fmt.Errorf("retrieval.fallback_min_score (%g) must not exceed retrieval.min_score (%g)",
			c.Retrieval.FallbackMinScore, c.Retrieval.MinScore)
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
