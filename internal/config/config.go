// Package config provides configuration loading for faxd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete faxd configuration.
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Agent         AgentConfig
	Embeddings    EmbeddingsConfig
	Corrections   CorrectionsConfig
	Chromem       ChromemConfig
	Qdrant        QdrantConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// AgentConfig holds chat completion configuration.
type AgentConfig struct {
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	APIKey     Secret        `koanf:"api_key"`
	MaxTokens  int           `koanf:"max_tokens"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// CorrectionsConfig holds correction recall configuration.
type CorrectionsConfig struct {
	Backend       string  `koanf:"backend"` // chromem or qdrant
	TopK          int     `koanf:"top_k"`
	MinSimilarity float64 `koanf:"min_similarity"`
}

// ChromemConfig holds the embedded vector store configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	Collection string `koanf:"collection"`
}

// QdrantConfig holds the qdrant backend configuration.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	VectorSize int    `koanf:"vector_size"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format)
	}
	if !c.Agent.APIKey.IsSet() {
		return errors.New("agent api_key is required (set AGENT_API_KEY)")
	}
	switch c.Corrections.Backend {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("corrections backend must be chromem or qdrant, got %q", c.Corrections.Backend)
	}
	if c.Corrections.MinSimilarity < 0 || c.Corrections.MinSimilarity > 1 {
		return fmt.Errorf("corrections min_similarity must be in [0, 1], got %v", c.Corrections.MinSimilarity)
	}
	if c.Corrections.Backend == "qdrant" && c.Qdrant.Host == "" {
		return errors.New("qdrant host is required when backend is qdrant")
	}
	return nil
}
