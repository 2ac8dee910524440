package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bioexplorer/internal/models"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"

	BackendChromem  = "chromem"
	BackendPostgres = "postgres"

	defaultTemperature = 0.2
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	EmbedLLM LLMConfig      `yaml:"embed_llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Log      LogConfig      `yaml:"log"`
}

// LLMConfig describes one model endpoint. The generation model and the
// embedding model each get their own block.
type LLMConfig struct {
	Provider       string  `yaml:"provider"`
	BaseURL        string  `yaml:"base_url"`
	Key            string  `yaml:"key"`
	Model          string  `yaml:"model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TopP           float64 `yaml:"top_p"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	BatchSize      int     `yaml:"batch_size"`
}

type RAGConfig struct {
	Backend          string `yaml:"backend"`
	VectorDir        string `yaml:"vector_dir"`
	Collection       string `yaml:"collection"`
	EncryptionKey    string `yaml:"encryption_key"`
	Compress         bool   `yaml:"compress"`
	ChunkSize        int    `yaml:"chunk_size"`
	ChunkOverlap     int    `yaml:"chunk_overlap"`
	CorpusDir        string `yaml:"corpus_dir"`
	PublicationIndex string `yaml:"publication_index"`
	Concurrency      int    `yaml:"concurrency"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	Table     string `yaml:"table"`
	Dimension int    `yaml:"dimension"`
	Debug     bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr                   string   `yaml:"addr"`
	AllowOrigins           []string `yaml:"allow_origins"`
	QueryTimeoutSeconds    int      `yaml:"query_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// FetchConfig controls downloading publication texts from the index links.
type FetchConfig struct {
	RateLimit      float64 `yaml:"rate_limit"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	UserAgent      string  `yaml:"user_agent"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Timeout returns the request timeout for the endpoint.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ServerConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoadConfig reads the YAML file at path, then applies .env and environment
// overrides and fills defaults. A missing file is not an error: the defaults
// plus the environment are used instead.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	// zero is a valid temperature and overlap, so those defaults are set
	// before the file is read rather than filled in afterwards
	cfg := Config{
		LLM: LLMConfig{Temperature: defaultTemperature},
		RAG: RAGConfig{ChunkOverlap: models.DefaultChunkOverlap},
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	mergeWithEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderOpenAI
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.studio.nebius.com/v1/"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "nvidia/Llama-3_1-Nemotron-Ultra-253B-v1"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 10000
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.9
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}

	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOllama
	}
	if cfg.EmbedLLM.BaseURL == "" && cfg.EmbedLLM.Provider == ProviderOllama {
		cfg.EmbedLLM.BaseURL = "http://localhost:11434"
	}
	if cfg.EmbedLLM.Model == "" {
		cfg.EmbedLLM.Model = "all-minilm"
	}
	if cfg.EmbedLLM.TimeoutSeconds == 0 {
		cfg.EmbedLLM.TimeoutSeconds = 30
	}
	if cfg.EmbedLLM.BatchSize == 0 {
		cfg.EmbedLLM.BatchSize = 64
	}

	if cfg.RAG.Backend == "" {
		cfg.RAG.Backend = BackendChromem
	}
	if cfg.RAG.VectorDir == "" {
		cfg.RAG.VectorDir = "./vector_store"
	}
	if cfg.RAG.Collection == "" {
		cfg.RAG.Collection = "publications"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = models.DefaultChunkSize
	}
	if cfg.RAG.CorpusDir == "" {
		cfg.RAG.CorpusDir = "./data/fetched_texts"
	}
	if cfg.RAG.PublicationIndex == "" {
		cfg.RAG.PublicationIndex = "./data/SB_publication_PMC.csv"
	}
	if cfg.RAG.Concurrency == 0 {
		cfg.RAG.Concurrency = 4
	}

	if cfg.Fetch.RateLimit == 0 {
		cfg.Fetch.RateLimit = 1
	}
	if cfg.Fetch.TimeoutSeconds == 0 {
		cfg.Fetch.TimeoutSeconds = 15
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0 Safari/537.36"
	}

	if cfg.Database.Table == "" {
		cfg.Database.Table = "publication_chunks"
	}
	if cfg.Database.Dimension == 0 {
		cfg.Database.Dimension = 384
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":2121"
	}
	if len(cfg.Server.AllowOrigins) == 0 {
		cfg.Server.AllowOrigins = []string{"*"}
	}
	if cfg.Server.QueryTimeoutSeconds == 0 {
		cfg.Server.QueryTimeoutSeconds = 180
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 10
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func mergeWithEnv(cfg *Config) {
	if key := os.Getenv("NEBIUS_API_KEY"); key != "" {
		cfg.LLM.Key = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.Key = key
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.LLM.Model = model
	}
	if key := os.Getenv("EMBED_API_KEY"); key != "" {
		cfg.EmbedLLM.Key = key
	}
	if baseURL := os.Getenv("EMBED_BASE_URL"); baseURL != "" {
		cfg.EmbedLLM.BaseURL = baseURL
	}
	if model := os.Getenv("EMBED_MODEL"); model != "" {
		cfg.EmbedLLM.Model = model
	}
	if dir := os.Getenv("VECTOR_DIR"); dir != "" {
		cfg.RAG.VectorDir = dir
	}
	if key := os.Getenv("VECTOR_ENCRYPTION_KEY"); key != "" {
		cfg.RAG.EncryptionKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
}
