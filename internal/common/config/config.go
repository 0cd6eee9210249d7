// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Backends     BackendsConfig     `mapstructure:"backends"`
	Retrieval    RetrievalConfig    `mapstructure:"retrieval"`
	Generation   GenerationConfig   `mapstructure:"generation"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Intelligence IntelligenceConfig `mapstructure:"intelligence"`
	Usage        UsageConfig        `mapstructure:"usage"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	DocumentIndex string   `mapstructure:"document_index"`
	KnowledgeIndex string  `mapstructure:"knowledge_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Model Backend Config ---

// BackendsConfig holds one entry per generation provider plus the
// default used when a request names no backend (or an unknown one).
type BackendsConfig struct {
	Default   string        `mapstructure:"default"`
	OpenAI    BackendConfig `mapstructure:"openai"`
	Anthropic BackendConfig `mapstructure:"anthropic"`
	Gemini    BackendConfig `mapstructure:"gemini"`
	DeepSeek  BackendConfig `mapstructure:"deepseek"`
	Qwen      BackendConfig `mapstructure:"qwen"`
}

type BackendConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// --- Retrieval / Generation Config ---

type RetrievalConfig struct {
	EmbeddingModel   string  `mapstructure:"embedding_model"`
	HybridLimit      int     `mapstructure:"hybrid_limit"`
	KnowledgeLimit   int     `mapstructure:"knowledge_limit"`
	VectorWeight     float64 `mapstructure:"vector_weight"`
	TextWeight       float64 `mapstructure:"text_weight"`
	FallbackDocLimit int     `mapstructure:"fallback_doc_limit"` // chars per document
	MetadataCacheSize int    `mapstructure:"metadata_cache_size"`
}

type GenerationConfig struct {
	MaxRetries     int `mapstructure:"max_retries"`
	BackoffBaseMS  int `mapstructure:"backoff_base_ms"`
	MaxConcurrency int `mapstructure:"max_concurrency"` // comparison-mode bound
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type CacheConfig struct {
	Enabled             bool `mapstructure:"enabled"`
	EmbeddingTTLSeconds int  `mapstructure:"embedding_ttl_seconds"`
	ContextTTLSeconds   int  `mapstructure:"context_ttl_seconds"`
}

// IntelligenceConfig points at the external document-intelligence
// service. Disabled (or empty base URL) skips that retrieval source.
type IntelligenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type UsageConfig struct {
	SNSTopicARN string `mapstructure:"sns_topic_arn"`
	AWSRegion   string `mapstructure:"aws_region"`
	SNSEndpoint string `mapstructure:"sns_endpoint"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
