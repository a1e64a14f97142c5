package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neuroidss/ToolArtifact/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all ToolArtifact configuration.
type Config struct {
	Name string `yaml:"name"`

	// Workspace is the directory that holds .toolartifact/ (logs, store).
	Workspace string `yaml:"workspace"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	Logging logging.Config `yaml:"logging"`
}

// LLMConfig configures the code generation provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // openai, gemini, stub
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai" or "hash"
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`
	TaskType    string `yaml:"task_type"`

	// Dimensions is only used by the hash engine.
	Dimensions int `yaml:"dimensions"`

	// CacheSize bounds the LRU of computed embeddings; 0 disables caching.
	CacheSize int `yaml:"cache_size"`
}

// StoreConfig configures the vector store backing the tool registry.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // chromem, sqlite
	Path       string `yaml:"path"`    // empty = in-memory (chromem only)
	Collection string `yaml:"collection"`
	Driver     string `yaml:"driver"` // sqlite (modernc), sqlite3 (mattn)
	Compress   bool   `yaml:"compress"`
}

// SandboxConfig configures the interpreter used to run generated tools.
type SandboxConfig struct {
	Timeout         string   `yaml:"timeout"`
	AllowedPackages []string `yaml:"allowed_packages"`
	MaxSourceBytes  int      `yaml:"max_source_bytes"`
	MaxOutputBytes  int      `yaml:"max_output_bytes"`
}

// ResolverConfig configures contextual tool lookup.
type ResolverConfig struct {
	DefaultK int `yaml:"default_k"`
}

// TelemetryConfig configures traces and metrics export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // host:port, empty disables trace export
	MetricsAddr  string `yaml:"metrics_addr"`  // empty disables /metrics
}

// DefaultAllowedPackages are the standard library packages generated tools may import.
var DefaultAllowedPackages = []string{
	"bytes",
	"encoding/base64",
	"encoding/json",
	"fmt",
	"math",
	"path",
	"regexp",
	"sort",
	"strconv",
	"strings",
	"time",
	"unicode",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "toolartifact",
		Workspace: ".",

		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			BaseURL:  "https://api.openai.com/v1",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
			Dimensions:     256,
			CacheSize:      1024,
		},

		Store: StoreConfig{
			Backend:    "chromem",
			Path:       filepath.Join(".toolartifact", "store"),
			Collection: "tools",
			Driver:     "sqlite",
		},

		Sandbox: SandboxConfig{
			Timeout:         "5s",
			AllowedPackages: append([]string(nil), DefaultAllowedPackages...),
			MaxSourceBytes:  64 * 1024,
			MaxOutputBytes:  16 * 1024,
		},

		Resolver: ResolverConfig{
			DefaultK: 5,
		},

		Telemetry: TelemetryConfig{
			ServiceName: "toolartifact",
		},

		Logging: logging.Config{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "openai"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" || c.LLM.APIKey == "" {
			c.LLM.APIKey = key
			c.LLM.Provider = "gemini"
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if p := os.Getenv("TOOLARTIFACT_LLM_PROVIDER"); p != "" {
		c.LLM.Provider = p
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
	if p := os.Getenv("TOOLARTIFACT_EMBEDDING_PROVIDER"); p != "" {
		c.Embedding.Provider = p
	}
	if path := os.Getenv("TOOLARTIFACT_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	if backend := os.Getenv("TOOLARTIFACT_STORE_BACKEND"); backend != "" {
		c.Store.Backend = backend
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		c.Telemetry.OTLPEndpoint = ep
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetSandboxTimeout returns the per-invocation wall-clock limit.
func (c *Config) GetSandboxTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sandbox.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// StorePath resolves the store path against the workspace.
// An empty path stays empty (in-memory).
func (c *Config) StorePath() string {
	if c.Store.Path == "" || filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Workspace, c.Store.Path)
}

var (
	// ValidProviders lists all supported code generation providers.
	ValidProviders = []string{"openai", "gemini", "stub"}
	// ValidEmbeddingProviders lists all supported embedding engines.
	ValidEmbeddingProviders = []string{"ollama", "genai", "hash"}
	// ValidBackends lists all supported vector store backends.
	ValidBackends = []string{"chromem", "sqlite"}
	// ValidDrivers lists the database/sql drivers the sqlite backend accepts.
	ValidDrivers = []string{"sqlite", "sqlite3"}
)

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !oneOf(c.LLM.Provider, ValidProviders) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if c.LLM.Provider != "stub" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY or GEMINI_API_KEY)")
	}
	if !oneOf(c.Embedding.Provider, ValidEmbeddingProviders) {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("genai embedding requires genai_api_key or GEMINI_API_KEY")
	}
	if !oneOf(c.Store.Backend, ValidBackends) {
		return fmt.Errorf("invalid store backend: %s (valid: %v)", c.Store.Backend, ValidBackends)
	}
	if c.Store.Backend == "sqlite" {
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
		if !oneOf(c.Store.Driver, ValidDrivers) {
			return fmt.Errorf("invalid sqlite driver: %s (valid: %v)", c.Store.Driver, ValidDrivers)
		}
	}
	if c.Store.Collection == "" {
		return fmt.Errorf("store collection name required")
	}
	if c.Resolver.DefaultK < 0 {
		return fmt.Errorf("resolver default_k must be >= 0, got %d", c.Resolver.DefaultK)
	}
	return nil
}
