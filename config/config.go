package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Server       ServerConfig      `yaml:"server"`
	Database     DatabaseConfig    `yaml:"database"`
	VectorIndex  VectorIndexConfig `yaml:"vector_index"`
	Models       []ModelConfig     `yaml:"models"`
	DefaultModel string            `yaml:"default_model"`
	Search       SearchConfig      `yaml:"search"`
	Sync         SyncConfig        `yaml:"sync"`
	Reembed      ReembedConfig     `yaml:"reembed"`
	Storage      StorageConfig     `yaml:"storage"`
	Seed         SeedConfig        `yaml:"seed"`
	Logging      LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig selects the relational product store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite3", "postgres", "memory"
	DSN    string `yaml:"dsn"`
}

// VectorIndexConfig configures the vector index backend.
type VectorIndexConfig struct {
	Backend          string        `yaml:"backend"` // "pinecone", "bolt"
	APIKeyEnv        string        `yaml:"api_key_env"`
	ControllerURL    string        `yaml:"controller_url"`
	APIVersion       string        `yaml:"api_version"`
	Cloud            string        `yaml:"cloud"`
	Region           string        `yaml:"region"`
	Metric           string        `yaml:"metric"`
	Path             string        `yaml:"path"` // bolt file
	DefaultNamespace string        `yaml:"default_namespace"`
	Timeout          time.Duration `yaml:"timeout"`
}

// ModelConfig describes one embedding model profile and the index it feeds.
type ModelConfig struct {
	Name      string `yaml:"name"`
	Provider  string `yaml:"provider"` // "openai", "voyage", "gemini", "mock"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url,omitempty"`
	Dimension int    `yaml:"dimension"`
	Index     string `yaml:"index"`
	Namespace string `yaml:"namespace,omitempty"`
	Sync      bool   `yaml:"sync"` // keep this index in step with product writes
}

// SearchConfig holds hybrid search configuration.
type SearchConfig struct {
	Mode                string        `yaml:"mode"` // "hybrid", "semantic"
	TopK                int           `yaml:"top_k"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	PageSize            int           `yaml:"page_size"`
	ExactMatchScore     float64       `yaml:"exact_match_score"`
	EmbeddingTimeout    time.Duration `yaml:"embedding_timeout"`
	IndexTimeout        time.Duration `yaml:"index_timeout"`
	CacheSize           int           `yaml:"cache_size"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// RetryConfig holds backoff settings for provider calls on write paths.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// SyncConfig holds write-side sync configuration.
type SyncConfig struct {
	Retry RetryConfig `yaml:"retry"`
}

// ReembedConfig holds bulk re-embedding configuration.
type ReembedConfig struct {
	Mode        string        `yaml:"mode"` // "sequential", "parallel"
	BatchSize   int           `yaml:"batch_size"`
	Delay       time.Duration `yaml:"delay"`
	ProgressDir string        `yaml:"progress_dir"`
	Retry       RetryConfig   `yaml:"retry"`
}

// StorageConfig describes where product images are publicly served from.
type StorageConfig struct {
	PublicBaseURL string `yaml:"public_base_url"`
	Bucket        string `yaml:"bucket"`
	Folder        string `yaml:"folder"`
	Placeholder   string `yaml:"placeholder"`
}

// SeedConfig holds dataset discovery patterns for the seed command.
type SeedConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(".storefront", "store.db"),
		},
		VectorIndex: VectorIndexConfig{
			Backend:          "pinecone",
			APIKeyEnv:        "PINECONE_API_KEY",
			ControllerURL:    "https://api.pinecone.io",
			APIVersion:       "2024-07",
			Cloud:            "aws",
			Region:           "us-east-1",
			Metric:           "cosine",
			Path:             filepath.Join(".storefront", "vectors.db"),
			DefaultNamespace: "products-1",
			Timeout:          30 * time.Second,
		},
		Models: []ModelConfig{
			{
				Name:      "voyage",
				Provider:  "voyage",
				Model:     "voyage-3-large",
				APIKeyEnv: "VOYAGEAI_API_KEY",
				Dimension: 1024,
				Index:     "ecommerce-voyage-3-large",
				Sync:      true,
			},
			{
				Name:      "openai",
				Provider:  "openai",
				Model:     "text-embedding-3-large",
				APIKeyEnv: "OPENAI_API_KEY",
				Dimension: 3072,
				Index:     "ecommerce-3-large",
				Sync:      true,
			},
			{
				Name:      "gemini",
				Provider:  "gemini",
				Model:     "gemini-embedding-exp-03-07",
				APIKeyEnv: "GEMINI_API_KEY",
				Dimension: 3072,
				Index:     "ecommerce-gemini-3072",
			},
		},
		DefaultModel: "voyage",
		Search: SearchConfig{
			Mode:                "hybrid",
			TopK:                15,
			SimilarityThreshold: 0.3,
			PageSize:            12,
			ExactMatchScore:     0.5,
			EmbeddingTimeout:    10 * time.Second,
			IndexTimeout:        10 * time.Second,
			CacheSize:           256,
			CacheTTL:            5 * time.Minute,
		},
		Sync: SyncConfig{
			Retry: RetryConfig{MaxRetries: 5, InitialDelay: time.Second},
		},
		Reembed: ReembedConfig{
			Mode:        "sequential",
			BatchSize:   3,
			Delay:       2 * time.Second,
			ProgressDir: ".storefront",
			Retry:       RetryConfig{MaxRetries: 5, InitialDelay: time.Second},
		},
		Storage: StorageConfig{
			Bucket:      "ecommerce",
			Folder:      "products",
			Placeholder: "/images/placeholder-product.jpg",
		},
		Seed: SeedConfig{
			Includes: []string{"dataset/**/*.csv"},
			Excludes: []string{"**/.git/**"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for storefront.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "storefront.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".storefront", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, cfg.Validate()
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values that would otherwise fail deep inside a request.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	switch c.VectorIndex.Backend {
	case "pinecone", "bolt":
	default:
		return fmt.Errorf("unsupported vector index backend: %s", c.VectorIndex.Backend)
	}

	switch c.Search.Mode {
	case "hybrid", "semantic":
	default:
		return fmt.Errorf("unsupported search mode: %s", c.Search.Mode)
	}

	switch c.Reembed.Mode {
	case "sequential", "parallel":
	default:
		return fmt.Errorf("unsupported reembed mode: %s", c.Reembed.Mode)
	}

	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.PageSize <= 0 {
		return fmt.Errorf("search.page_size must be positive, got %d", c.Search.PageSize)
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model profile is required")
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model profile without a name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate model profile: %s", m.Name)
		}
		seen[m.Name] = true
		if m.Index == "" {
			return fmt.Errorf("model %s: index is required", m.Name)
		}
	}
	if !seen[c.DefaultModel] {
		return fmt.Errorf("default_model %q is not a configured model", c.DefaultModel)
	}

	return nil
}

// Model returns the named model profile.
func (c *Config) Model(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"STOREFRONT_SERVER_ADDR":     func(v string) { cfg.Server.Addr = v },
		"STOREFRONT_DATABASE_DRIVER": func(v string) { cfg.Database.Driver = v },
		"STOREFRONT_DATABASE_DSN":    func(v string) { cfg.Database.DSN = v },
		"STOREFRONT_VECTOR_BACKEND":  func(v string) { cfg.VectorIndex.Backend = v },
		"STOREFRONT_SEARCH_MODE":     func(v string) { cfg.Search.Mode = v },
		"STOREFRONT_LOG_LEVEL":       func(v string) { cfg.Logging.Level = strings.ToLower(v) },
	}
	for env, apply := range overrides {
		if v := os.Getenv(env); v != "" {
			apply(v)
		}
	}
}

// DataDir returns the path to the local state directory.
func DataDir(dir string) string {
	return filepath.Join(dir, ".storefront")
}

// EnsureDataDir ensures the .storefront directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}
