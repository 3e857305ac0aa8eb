// Package config holds runtime configuration, loaded from TOML with
// defaults for every field so a missing file is not an error.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all engine configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Governance GovernanceConfig `toml:"governance"`
	Ontology   OntologyConfig   `toml:"ontology"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type EmbeddingConfig struct {
	Provider    string `toml:"provider"` // "openai", "ollama", "tfidf", "auto"
	OllamaURL   string `toml:"ollama_url"`
	OllamaModel string `toml:"ollama_model"` // e.g. "nomic-embed-text"
	OpenAIModel string `toml:"openai_model"` // e.g. "text-embedding-3-small"
	Dimensions  int    `toml:"dimensions"`
}

type GovernanceConfig struct {
	TrustedActors  []string `toml:"trusted_actors"`
	HalfLifeDays   float64  `toml:"half_life_days"`
	MinTrust       float64  `toml:"min_trust"`
	TopK           int      `toml:"top_k"`
	CandidateLimit int      `toml:"candidate_limit"`
}

type OntologyConfig struct {
	Dir string `toml:"dir"` // extra YAML schemas merged over the built-ins
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37901,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Embedding: EmbeddingConfig{
			Provider:    "auto",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "nomic-embed-text",
			OpenAIModel: "text-embedding-3-small",
		},
		Governance: GovernanceConfig{
			HalfLifeDays:   30,
			MinTrust:       0.1,
			TopK:           5,
			CandidateLimit: 200,
		},
	}
}

// Load reads TOML configuration from path, layered over defaults. A missing
// file returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
