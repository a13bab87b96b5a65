// Package config loads runtime configuration from the environment with an
// optional YAML overlay file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Provider names accepted for LLM and embedding backends.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

// Config holds all configuration values.
type Config struct {
	// HTTP server
	ListenAddr string `yaml:"listen_addr"`

	// LLM completion
	LLMProvider string `yaml:"llm_provider"`
	LLMModel    string `yaml:"llm_model"`

	// Embedding
	EmbedProvider  string `yaml:"embed_provider"`
	EmbedModel     string `yaml:"embed_model"`
	EmbedDimension int    `yaml:"embed_dimension"`
	EmbedCacheSize int    `yaml:"embed_cache_size"`

	// Provider credentials / endpoints
	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	BedrockRegion   string `yaml:"bedrock_region"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`

	// Context ranking. Empirically chosen defaults; tunable, not invariants.
	Scoring Scoring `yaml:"scoring"`
}

// Scoring holds the relevance-ranking constants.
type Scoring struct {
	ImportanceWeight  float64 `yaml:"importance_weight"`
	CloseWeight       float64 `yaml:"close_weight"`
	MediumWeight      float64 `yaml:"medium_weight"`
	FarWeight         float64 `yaml:"far_weight"`
	RecencyCap        float64 `yaml:"recency_cap"`
	RecencyDecayHour  float64 `yaml:"recency_decay_hour"`
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	CloseThreshold    float64 `yaml:"close_threshold"`
}

// DefaultScoring returns the default ranking constants.
func DefaultScoring() Scoring {
	return Scoring{
		ImportanceWeight:  0.4,
		CloseWeight:       0.6,
		MediumWeight:      0.4,
		FarWeight:         0.2,
		RecencyCap:        0.2,
		RecencyDecayHour:  0.01,
		SemanticThreshold: 0.5,
		CloseThreshold:    0.8,
	}
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		ListenAddr: getEnv("LOOM_LISTEN_ADDR", ":8484"),

		LLMProvider: getEnv("LOOM_LLM_PROVIDER", ProviderOllama),
		LLMModel:    getEnv("LOOM_LLM_MODEL", "llama3.2"),

		EmbedProvider:  getEnv("LOOM_EMBED_PROVIDER", ProviderOllama),
		EmbedModel:     getEnv("LOOM_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("LOOM_EMBED_DIMENSION", 384),
		EmbedCacheSize: getEnvInt("LOOM_EMBED_CACHE_SIZE", 1024),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		BedrockRegion:   getEnv("AWS_REGION", "us-east-1"),

		LogFile:  getEnv("LOOM_LOG_FILE", "/tmp/loom.log"),
		LogLevel: parseLogLevel(getEnv("LOOM_LOG_LEVEL", "INFO")),

		Scoring: DefaultScoring(),
	}
}

// LoadFile overlays values from a YAML file onto cfg. Fields absent from
// the file keep their existing values.
func LoadFile(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
