// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like OPENAI_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment overlay (config.development / config.production)
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env in a handful of locations so the loader works
// from the repo root, cmd/orchestrator, and test directories alike.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string config values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideFromEnv fills API keys that are still empty after expansion.
func overrideFromEnv(cfg *Config) {
	if cfg.Backends.OpenAI.APIKey == "" {
		cfg.Backends.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Backends.Anthropic.APIKey == "" {
		cfg.Backends.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.Backends.Gemini.APIKey == "" {
		cfg.Backends.Gemini.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.Backends.DeepSeek.APIKey == "" {
		cfg.Backends.DeepSeek.APIKey = os.Getenv("DEEPSEEK_API_KEY")
	}
	if cfg.Backends.Qwen.APIKey == "" {
		// Alibaba Cloud API key
		cfg.Backends.Qwen.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "bidforge-orchestrator"
	}
	if cfg.App.ListenAddr == "" {
		cfg.App.ListenAddr = ":8085"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.DocumentIndex == "" {
		cfg.Database.Elasticsearch.DocumentIndex = "project-documents"
	}
	if cfg.Database.Elasticsearch.KnowledgeIndex == "" {
		cfg.Database.Elasticsearch.KnowledgeIndex = "company-knowledge"
	}

	if cfg.Backends.Default == "" {
		cfg.Backends.Default = "openai"
	}
	if cfg.Backends.OpenAI.Model == "" {
		cfg.Backends.OpenAI.Model = "gpt-4o"
	}
	if cfg.Backends.Anthropic.Model == "" {
		cfg.Backends.Anthropic.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.Backends.Gemini.Model == "" {
		cfg.Backends.Gemini.Model = "gemini-2.0-flash-exp"
	}
	if cfg.Backends.DeepSeek.Model == "" {
		cfg.Backends.DeepSeek.Model = "deepseek-chat"
	}
	if cfg.Backends.DeepSeek.BaseURL == "" {
		cfg.Backends.DeepSeek.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Backends.Qwen.Model == "" {
		cfg.Backends.Qwen.Model = "qwen-vl-max"
	}
	if cfg.Backends.Qwen.BaseURL == "" {
		cfg.Backends.Qwen.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	}

	if cfg.Retrieval.EmbeddingModel == "" {
		cfg.Retrieval.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Retrieval.HybridLimit == 0 {
		cfg.Retrieval.HybridLimit = 20
	}
	if cfg.Retrieval.KnowledgeLimit == 0 {
		cfg.Retrieval.KnowledgeLimit = 10
	}
	if cfg.Retrieval.VectorWeight == 0 {
		cfg.Retrieval.VectorWeight = 0.7
	}
	if cfg.Retrieval.TextWeight == 0 {
		cfg.Retrieval.TextWeight = 0.3
	}
	if cfg.Retrieval.FallbackDocLimit == 0 {
		cfg.Retrieval.FallbackDocLimit = 5000
	}
	if cfg.Retrieval.MetadataCacheSize == 0 {
		cfg.Retrieval.MetadataCacheSize = 1024
	}

	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}
	if cfg.Generation.BackoffBaseMS == 0 {
		cfg.Generation.BackoffBaseMS = 1000
	}
	if cfg.Generation.MaxConcurrency == 0 {
		cfg.Generation.MaxConcurrency = 3
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 120
	}

	if cfg.Cache.EmbeddingTTLSeconds == 0 {
		cfg.Cache.EmbeddingTTLSeconds = 3600
	}
	if cfg.Cache.ContextTTLSeconds == 0 {
		cfg.Cache.ContextTTLSeconds = 1800
	}

	if cfg.Intelligence.TimeoutSeconds == 0 {
		cfg.Intelligence.TimeoutSeconds = 10
	}

	if cfg.Usage.AWSRegion == "" {
		cfg.Usage.AWSRegion = "us-east-1"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Retrieval.VectorWeight+cfg.Retrieval.TextWeight <= 0 {
		return fmt.Errorf("retrieval weights must sum to a positive value")
	}
	switch cfg.Backends.Default {
	case "openai", "anthropic", "gemini", "deepseek", "qwen":
	default:
		return fmt.Errorf("unknown default backend %q", cfg.Backends.Default)
	}
	if cfg.Generation.MaxRetries < 1 {
		return fmt.Errorf("generation.max_retries must be at least 1")
	}
	return nil
}
