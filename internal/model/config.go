package model

import (
	"os"
	"strings"
)

// Config is the complete claimcheck configuration
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Ingest       IngestConfig       `yaml:"ingest" mapstructure:"ingest"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	History      HistoryConfig      `yaml:"history" mapstructure:"history"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
}

// LLMConfig selects and tunes the reasoning service
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // groq, openai, anthropic, ollama, gemini
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	HTTPProxy   string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy     string  `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RetrievalConfig configures the vector index
type RetrievalConfig struct {
	DBPath            string `yaml:"db_path" mapstructure:"db_path"`
	Collection        string `yaml:"collection" mapstructure:"collection"`
	EmbeddingProvider string `yaml:"embedding_provider" mapstructure:"embedding_provider"` // ollama, openai
	EmbeddingModel    string `yaml:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url,omitempty" mapstructure:"embedding_base_url"`
	EmbeddingAPIKey   string `yaml:"embedding_api_key,omitempty" mapstructure:"embedding_api_key"`
	TopK              int    `yaml:"top_k" mapstructure:"top_k"`
	Timeout           int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	Compress          bool   `yaml:"compress" mapstructure:"compress"`
}

// IngestConfig configures policy document loading and chunking
type IngestConfig struct {
	DocumentPath string `yaml:"document_path" mapstructure:"document_path"`
	ChunksPath   string `yaml:"chunks_path,omitempty" mapstructure:"chunks_path"`
	ChunkSize    int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	Enabled    bool `yaml:"enabled" mapstructure:"enabled"`
	TTL        int  `yaml:"ttl" mapstructure:"ttl"` // seconds
	MaxEntries int  `yaml:"max_entries" mapstructure:"max_entries"`
}

// HistoryConfig configures the query history store
type HistoryConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Path       string `yaml:"path" mapstructure:"path"`
	MaxEntries int    `yaml:"max_entries" mapstructure:"max_entries"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	Addr              string   `yaml:"addr" mapstructure:"addr"`
	CORSOrigins       []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestsPerSecond float64  `yaml:"requests_per_second" mapstructure:"requests_per_second"` // per client IP, 0 disables
	BurstSize         int      `yaml:"burst_size" mapstructure:"burst_size"`
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json, console
}

// RateLimitingConfig throttles reasoning-service calls per provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	dataDir := home + "/.claimcheck"

	return Config{
		LLM: LLMConfig{
			Provider:    "groq",
			Model:       "llama-3.1-8b-instant",
			Timeout:     60,
			MaxTokens:   1000,
			Temperature: 0.1,
		},
		Retrieval: RetrievalConfig{
			DBPath:            dataDir + "/vectordb",
			Collection:        "policy_documents",
			EmbeddingProvider: "ollama",
			EmbeddingModel:    "nomic-embed-text",
			TopK:              3,
			Timeout:           30,
		},
		Ingest: IngestConfig{
			DocumentPath: "data/raw/sample_policy.txt",
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        300,
			MaxEntries: 500,
		},
		History: HistoryConfig{
			Enabled:    true,
			Path:       dataDir + "/history.db",
			MaxEntries: 5000,
		},
		Server: ServerConfig{
			Addr:              ":8000",
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerSecond: 10,
			BurstSize:         20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2.0,
			BurstSize:         4,
		},
	}
}

// DefaultModels maps each provider to the model used when none is configured
var DefaultModels = map[string]string{
	"groq":      "llama-3.1-8b-instant",
	"openai":    "gpt-3.5-turbo",
	"anthropic": "claude-3-5-haiku-20241022",
	"ollama":    "llama3.1",
	"gemini":    "gemini-2.0-flash",
}

// ApplyEnv fills the provider API key and Ollama base URL from the
// conventional environment variables when the config leaves them empty.
func (c *Config) ApplyEnv() {
	if c.LLM.APIKey == "" {
		switch strings.ToLower(c.LLM.Provider) {
		case "openai":
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		case "groq":
			c.LLM.APIKey = os.Getenv("GROQ_API_KEY")
		case "anthropic", "claude":
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "gemini":
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if c.LLM.BaseURL == "" && strings.EqualFold(c.LLM.Provider, "ollama") {
		c.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if c.Retrieval.EmbeddingAPIKey == "" && strings.EqualFold(c.Retrieval.EmbeddingProvider, "openai") {
		c.Retrieval.EmbeddingAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Retrieval.EmbeddingBaseURL == "" && strings.EqualFold(c.Retrieval.EmbeddingProvider, "ollama") {
		c.Retrieval.EmbeddingBaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
}
