// SPDX-License-Identifier: Apache-2.0

// Package config loads the gateway configuration from defaults, an optional
// YAML file, and BASTION_-prefixed environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Memory    MemoryConfig    `koanf:"memory"`
	Skills    SkillsConfig    `koanf:"skills"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
}

type MemoryConfig struct {
	Provider        string `koanf:"provider"` // sqlite, vector, inmemory
	SQLitePath      string `koanf:"sqlite_path"`
	QdrantAddr      string `koanf:"qdrant_addr"`
	Collection      string `koanf:"collection"`
	EmbedderBaseURL string `koanf:"embedder_base_url"`
	EmbedderModel   string `koanf:"embedder_model"`
	CastWorkers     int    `koanf:"cast_workers"`
	CastQueueDepth  int    `koanf:"cast_queue_depth"`
}

type SkillsConfig struct {
	Dir string `koanf:"dir"`
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load reads configuration with increasing precedence: compiled defaults,
// the YAML file at path (if any), then BASTION_ environment variables
// (BASTION_LLM_BASE_URL -> llm.base_url).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("server.name", "bastion")
	k.Set("server.version", "0.1.0")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("memory.provider", "sqlite")
	k.Set("memory.sqlite_path", "bastion.db")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.collection", "bastion_memories")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("memory.cast_workers", 1)
	k.Set("memory.cast_queue_depth", 16)

	k.Set("skills.dir", "skills")

	k.Set("telemetry.enabled", false)
	k.Set("telemetry.exporter", "stdout")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Only the first underscore separates section from key, so multi-word
	// keys like memory.sqlite_path stay addressable.
	if err := k.Load(env.Provider("BASTION_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "BASTION_")), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
