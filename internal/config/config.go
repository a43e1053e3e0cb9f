// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ArtifactsConfig holds corpus artifact fetch and cache settings.
type ArtifactsConfig struct {
	BaseURL      string `yaml:"base_url"`
	CacheDir     string `yaml:"cache_dir"`
	BuildHash    string `yaml:"build_hash"`
	FetchTimeout int    `yaml:"fetch_timeout_seconds"`
}

// EmbeddingConfig holds embedding backend settings.
type EmbeddingConfig struct {
	ModelName  string `yaml:"model_name"`
	Dimensions int    `yaml:"dimensions"`
	Workers    int    `yaml:"workers"`
}

// RetrievalConfig holds fusion and result budget settings.
type RetrievalConfig struct {
	RRFK           int     `yaml:"rrf_k"`
	SemanticWeight float64 `yaml:"semantic_weight"`
	LexicalWeight  float64 `yaml:"lexical_weight"`
	TokenBudget    int     `yaml:"token_budget"`
	MinChunks      int     `yaml:"min_chunks"`
	TopK           int     `yaml:"top_k"`
	LexicalLimit   int     `yaml:"lexical_limit"`
}

// ChunkingConfig holds build-time chunking settings.
type ChunkingConfig struct {
	TargetTokens  int `yaml:"target_tokens"`
	MaxTokens     int `yaml:"max_tokens"`
	MinTokens     int `yaml:"min_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// WatchConfig holds artifact directory watch settings (dev mode re-initialization).
type WatchConfig struct {
	Directory string `yaml:"directory"`
	Enabled   bool   `yaml:"enabled"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Artifacts.CacheDir = expandPath(cfg.Artifacts.CacheDir, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
