package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
artifacts:
  base_url: "https://example.com/artifacts"
  build_hash: "abc123"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Artifacts.BaseURL != "https://example.com/artifacts" {
		t.Errorf("unexpected base_url: %q", cfg.Artifacts.BaseURL)
	}
	if cfg.Artifacts.BuildHash != "abc123" {
		t.Errorf("unexpected build_hash: %q", cfg.Artifacts.BuildHash)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_appliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("debug: true\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Retrieval.RRFK != 60 {
		t.Errorf("rrf_k default = %d, want 60", cfg.Retrieval.RRFK)
	}
	if cfg.Retrieval.SemanticWeight != 0.6 || cfg.Retrieval.LexicalWeight != 0.4 {
		t.Errorf("weight defaults = %f/%f", cfg.Retrieval.SemanticWeight, cfg.Retrieval.LexicalWeight)
	}
	if cfg.Retrieval.TokenBudget != 2000 || cfg.Retrieval.MinChunks != 3 {
		t.Errorf("budget defaults = %d/%d", cfg.Retrieval.TokenBudget, cfg.Retrieval.MinChunks)
	}
	if cfg.Chunking.TargetTokens != 256 || cfg.Chunking.MaxTokens != 512 {
		t.Errorf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Chunking.MinTokens != 64 || cfg.Chunking.OverlapTokens != 32 {
		t.Errorf("chunking defaults = %+v", cfg.Chunking)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("dimensions default = %d", cfg.Embedding.Dimensions)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
artifacts:
  cache_dir: "./cache"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "./cache")
	if cfg.Artifacts.CacheDir != want {
		t.Errorf("cache_dir = %q, want %q", cfg.Artifacts.CacheDir, want)
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Watch.Enabled = true
	cfg.Watch.Directory = filepath.Join(dir, "artifacts")

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.Watch.Enabled || loaded.Watch.Directory != cfg.Watch.Directory {
		t.Errorf("watch config did not round-trip: %+v", loaded.Watch)
	}
	if loaded.Retrieval != cfg.Retrieval {
		t.Errorf("retrieval config did not round-trip: %+v vs %+v", loaded.Retrieval, cfg.Retrieval)
	}
}
