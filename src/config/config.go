// Package config loads service settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

type Config struct {
	Port     int    `yaml:"port"`
	APIKey   string `yaml:"api_key"`
	LogLevel string `yaml:"log_level"`

	// Backends
	CacheBackend   string `yaml:"cache_backend"`
	HistoryBackend string `yaml:"history_backend"`
	VectorBackend  string `yaml:"vector_backend"`
	TraitBackend   string `yaml:"trait_backend"`

	RedisURL         string `yaml:"redis_url"`
	SQLitePath       string `yaml:"sqlite_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	ChromemDir       string `yaml:"chromem_dir"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	VectorCollection string `yaml:"vector_collection"`
	MongoURI         string `yaml:"mongo_uri"`
	MongoDatabase    string `yaml:"mongo_database"`
	Neo4jURI         string `yaml:"neo4j_uri"`
	Neo4jUser        string `yaml:"neo4j_user"`
	Neo4jPassword    string `yaml:"neo4j_password"`
	Neo4jDatabase    string `yaml:"neo4j_database"`

	// Providers
	EmbedProvider string `yaml:"embed_provider"`
	EmbedModel    string `yaml:"embed_model"`
	EmbedDim      int    `yaml:"embed_dim"`
	EmbedAPIKey   string `yaml:"embed_api_key"`
	LLMProvider   string `yaml:"llm_provider"`
	LLMModel      string `yaml:"llm_model"`
	LLMAPIKey     string `yaml:"llm_api_key"`
	AnalyzerModel string `yaml:"analyzer_model"`
	OllamaHost    string `yaml:"ollama_host"`

	// Memory tuning
	RecentLimit       int           `yaml:"recent_limit"`
	TopK              int           `yaml:"top_k"`
	ResponseTTL       time.Duration `yaml:"response_ttl"`
	ResponseCacheSize int           `yaml:"response_cache_size"`
	EmbeddingTTL      time.Duration `yaml:"embedding_ttl"`
	AnalysisCooldown  time.Duration `yaml:"analysis_cooldown"`
	SeedDelimiter     string        `yaml:"seed_delimiter"`

	// Turn handling
	RateLimitEvents     int           `yaml:"rate_limit_events"`
	RateLimitWindow     time.Duration `yaml:"rate_limit_window"`
	Workers             int           `yaml:"workers"`
	BackgroundTimeout   time.Duration `yaml:"background_timeout"`
	RecordCacheHits     bool          `yaml:"record_cache_hits"`
	PrecomputeEmbedding bool          `yaml:"precompute_embedding"`

	Agents []model.AgentProfile `yaml:"agents"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Port:                8080,
		LogLevel:            "info",
		CacheBackend:        "memory",
		HistoryBackend:      "memory",
		VectorBackend:       "chromem",
		TraitBackend:        "memory",
		SQLitePath:          "data/companion.db",
		QdrantURL:           "http://localhost:6333",
		VectorCollection:    "companion_memory",
		MongoDatabase:       "companion",
		EmbedProvider:       "dummy",
		LLMProvider:         "dummy",
		RecentLimit:         30,
		TopK:                5,
		ResponseTTL:         24 * time.Hour,
		ResponseCacheSize:   10_000,
		EmbeddingTTL:        time.Hour,
		AnalysisCooldown:    5 * time.Minute,
		SeedDelimiter:       "\n",
		RateLimitEvents:     10,
		RateLimitWindow:     10 * time.Second,
		Workers:             8,
		BackgroundTimeout:   2 * time.Minute,
		RecordCacheHits:     true,
		PrecomputeEmbedding: true,
	}
}

type embedDefault struct {
	model string
	dim   int
}

// Model and vector width used when a provider is selected without them.
var (
	embedDefaults = map[string]embedDefault{
		"openai":    {"text-embedding-3-small", 1536},
		"gemini":    {"text-embedding-004", 768},
		"ollama":    {"nomic-embed-text", 768},
		"fastembed": {"fast-bge-small-en-v1.5", 384},
		"dummy":     {"", 1536},
	}
	llmDefaults = map[string]string{
		"openai":    "gpt-4o-mini",
		"anthropic": "claude-3-5-sonnet-latest",
		"gemini":    "gemini-2.0-flash",
		"ollama":    "llama3.1",
	}
)

// ResolveProviderDefaults fills EmbedModel, EmbedDim and LLMModel from the
// selected providers. Values already set are kept.
func (c *Config) ResolveProviderDefaults() {
	if d, ok := embedDefaults[c.EmbedProvider]; ok {
		if c.EmbedModel == "" {
			c.EmbedModel = d.model
		}
		if c.EmbedDim == 0 {
			c.EmbedDim = d.dim
		}
	}
	if c.LLMModel == "" {
		c.LLMModel = llmDefaults[c.LLMProvider]
	}
}

// Load reads COMPANION_CONFIG (if set), then the environment, then validates.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("COMPANION_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.ResolveProviderDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envInt("PORT", c.Port)
	c.APIKey = envStr("COMPANION_API_KEY", c.APIKey)
	c.LogLevel = envStr("LOG_LEVEL", c.LogLevel)

	c.CacheBackend = strings.ToLower(envStr("CACHE_BACKEND", c.CacheBackend))
	c.HistoryBackend = strings.ToLower(envStr("HISTORY_BACKEND", c.HistoryBackend))
	c.VectorBackend = strings.ToLower(envStr("VECTOR_BACKEND", c.VectorBackend))
	c.TraitBackend = strings.ToLower(envStr("TRAIT_BACKEND", c.TraitBackend))

	c.RedisURL = envStr("REDIS_URL", c.RedisURL)
	c.SQLitePath = envStr("SQLITE_PATH", c.SQLitePath)
	c.PostgresDSN = envStr("DATABASE_URL", c.PostgresDSN)
	c.ChromemDir = envStr("CHROMEM_DIR", c.ChromemDir)
	c.QdrantURL = envStr("QDRANT_URL", c.QdrantURL)
	c.QdrantAPIKey = envStr("QDRANT_API_KEY", c.QdrantAPIKey)
	c.VectorCollection = envStr("VECTOR_COLLECTION", c.VectorCollection)
	c.MongoURI = envStr("MONGO_URI", c.MongoURI)
	c.MongoDatabase = envStr("MONGO_DATABASE", c.MongoDatabase)
	c.Neo4jURI = envStr("NEO4J_URI", c.Neo4jURI)
	c.Neo4jUser = envStr("NEO4J_USER", c.Neo4jUser)
	c.Neo4jPassword = envStr("NEO4J_PASSWORD", c.Neo4jPassword)
	c.Neo4jDatabase = envStr("NEO4J_DATABASE", c.Neo4jDatabase)

	c.EmbedProvider = strings.ToLower(envStr("EMBED_PROVIDER", c.EmbedProvider))
	c.EmbedModel = envStr("EMBED_MODEL", c.EmbedModel)
	c.EmbedDim = envInt("EMBED_DIM", c.EmbedDim)
	c.EmbedAPIKey = envStr("EMBED_API_KEY", c.EmbedAPIKey)
	c.LLMProvider = strings.ToLower(envStr("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = envStr("LLM_MODEL", c.LLMModel)
	c.LLMAPIKey = envStr("LLM_API_KEY", c.LLMAPIKey)
	c.AnalyzerModel = envStr("ANALYZER_MODEL", c.AnalyzerModel)
	c.OllamaHost = envStr("OLLAMA_HOST", c.OllamaHost)

	c.RecentLimit = envInt("RECENT_LIMIT", c.RecentLimit)
	c.TopK = envInt("TOP_K", c.TopK)
	c.ResponseTTL = envDuration("RESPONSE_TTL", c.ResponseTTL)
	c.ResponseCacheSize = envInt("RESPONSE_CACHE_SIZE", c.ResponseCacheSize)
	c.EmbeddingTTL = envDuration("EMBEDDING_TTL", c.EmbeddingTTL)
	c.AnalysisCooldown = envDuration("ANALYSIS_COOLDOWN", c.AnalysisCooldown)
	c.SeedDelimiter = envStr("SEED_DELIMITER", c.SeedDelimiter)

	c.RateLimitEvents = envInt("RATE_LIMIT_EVENTS", c.RateLimitEvents)
	c.RateLimitWindow = envDuration("RATE_LIMIT_WINDOW", c.RateLimitWindow)
	c.Workers = envInt("WORKERS", c.Workers)
	c.BackgroundTimeout = envDuration("BACKGROUND_TIMEOUT", c.BackgroundTimeout)
	c.RecordCacheHits = envBool("RECORD_CACHE_HITS", c.RecordCacheHits)
	c.PrecomputeEmbedding = envBool("PRECOMPUTE_EMBEDDING", c.PrecomputeEmbedding)
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	checks := []struct {
		name, value string
		allowed     []string
	}{
		{"CACHE_BACKEND", c.CacheBackend, []string{"memory", "redis"}},
		{"HISTORY_BACKEND", c.HistoryBackend, []string{"memory", "sqlite", "postgres"}},
		{"VECTOR_BACKEND", c.VectorBackend, []string{"chromem", "qdrant", "pgvector"}},
		{"TRAIT_BACKEND", c.TraitBackend, []string{"memory", "sqlite", "postgres", "mongo", "neo4j"}},
		{"EMBED_PROVIDER", c.EmbedProvider, []string{"openai", "gemini", "ollama", "fastembed", "dummy"}},
		{"LLM_PROVIDER", c.LLMProvider, []string{"openai", "anthropic", "gemini", "ollama", "dummy"}},
	}
	for _, chk := range checks {
		if !slices.Contains(chk.allowed, chk.value) {
			return fmt.Errorf("%s must be one of %s, got %q", chk.name, strings.Join(chk.allowed, "|"), chk.value)
		}
	}
	if c.CacheBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
	}
	if c.uses("postgres") && c.PostgresDSN == "" {
		return fmt.Errorf("DATABASE_URL is required for postgres backends")
	}
	if c.uses("sqlite") && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH must not be empty")
	}
	if c.TraitBackend == "mongo" && c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required when TRAIT_BACKEND=mongo")
	}
	if c.TraitBackend == "neo4j" && c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required when TRAIT_BACKEND=neo4j")
	}
	if c.EmbedDim < 1 {
		return fmt.Errorf("EMBED_DIM must be positive, got %d", c.EmbedDim)
	}
	if c.RecentLimit < 1 || c.TopK < 1 {
		return fmt.Errorf("RECENT_LIMIT and TOP_K must be positive")
	}
	if c.ResponseCacheSize < 1 {
		return fmt.Errorf("RESPONSE_CACHE_SIZE must be positive, got %d", c.ResponseCacheSize)
	}
	if c.ResponseTTL <= 0 || c.EmbeddingTTL <= 0 || c.AnalysisCooldown <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.SeedDelimiter == "" {
		return fmt.Errorf("SEED_DELIMITER must not be empty")
	}
	for i, a := range c.Agents {
		if strings.TrimSpace(a.ID) == "" || strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agents[%d] needs an id and a name", i)
		}
	}
	return nil
}

// uses reports whether any backend needs the given database.
func (c *Config) uses(db string) bool {
	switch db {
	case "postgres":
		return c.HistoryBackend == "postgres" || c.TraitBackend == "postgres" || c.VectorBackend == "pgvector"
	default:
		return c.HistoryBackend == db || c.TraitBackend == db
	}
}

// UsesPostgres reports whether a pgx pool is needed.
func (c *Config) UsesPostgres() bool { return c.uses("postgres") }

// UsesSQLite reports whether a SQLite database is needed.
func (c *Config) UsesSQLite() bool { return c.uses("sqlite") }

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
