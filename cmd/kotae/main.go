// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/artifact"
	"github.com/hyperjump/kotae/internal/builder"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/orchestrator"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists it
// is used. Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve":
		runServe()
	case "build":
		runBuild()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kotae <command> [flags]

Commands:
  serve    Initialize the retrieval pipeline and serve the HTTP API
  build    Build corpus artifacts from a content items file
  query    Query a running server
  status   Show initialization status of a running server
  version  Print version
`)
}

// newEmbedder constructs the embedding collaborator for cfg. The deterministic
// backend needs no model files; an inference backend plugs in behind the same
// interface.
func newEmbedder(cfg *config.EmbeddingConfig) embedding.Embedder {
	return embedding.NewMockEmbedder(cfg.Dimensions)
}

func fusionOptions(cfg *config.RetrievalConfig) fusion.Options {
	return fusion.Options{
		K:              cfg.RRFK,
		SemanticWeight: cfg.SemanticWeight,
		LexicalWeight:  cfg.LexicalWeight,
		TokenBudget:    cfg.TokenBudget,
		MinChunks:      cfg.MinChunks,
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	cache, err := artifact.OpenCache(cfg.Artifacts.CacheDir, logger)
	if err != nil {
		logger.Fatal("Failed to open artifact cache", zap.Error(err))
	}
	defer cache.Close()

	client := &http.Client{Timeout: time.Duration(cfg.Artifacts.FetchTimeout) * time.Second}
	loader := artifact.NewLoader(
		cache,
		artifact.NewFetcher(cfg.Artifacts.BaseURL, client),
		cfg.Artifacts.BuildHash,
		artifact.WithLogger(logger),
	)

	embedder := newEmbedder(&cfg.Embedding)
	defer embedder.Close()

	orch := orchestrator.New(loader, embedder,
		orchestrator.WithFusionOptions(fusionOptions(&cfg.Retrieval)),
		orchestrator.WithTopK(cfg.Retrieval.TopK),
		orchestrator.WithLogger(logger),
		orchestrator.WithProgress(func(s orchestrator.Status) {
			logger.Debug("initialization progress",
				zap.String("phase", string(s.Phase)),
				zap.Int("percent", s.Percent),
			)
		}),
	)
	srv := server.NewServer(orch, &cfg.Server, logger)

	if err := srv.Initialize(context.Background()); err != nil {
		logger.Fatal("Initialization failed", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Watch.Enabled && cfg.Watch.Directory != "" {
		watchOpts := []watcher.WatcherOption{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.NewWatcher(cfg.Watch.Directory, func() {
			logger.Info("artifacts changed, re-initializing")
			if err := srv.Initialize(context.Background()); err != nil {
				logger.Warn("re-initialization failed", zap.Error(err))
			}
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	contentPath := fs.String("content", "", "JSON file with content items (required)")
	outDir := fs.String("out", "artifacts", "output directory for the three artifacts")
	_ = fs.Parse(os.Args[2:])

	if *contentPath == "" {
		fmt.Println("build requires -content <items.json>")
		os.Exit(1)
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	data, err := os.ReadFile(*contentPath)
	if err != nil {
		fmt.Printf("Failed to read content file: %v\n", err)
		os.Exit(1)
	}
	var items []models.ContentItem
	if err := json.Unmarshal(data, &items); err != nil {
		fmt.Printf("Failed to parse content file: %v\n", err)
		os.Exit(1)
	}

	embedder := newEmbedder(&cfg.Embedding)
	defer embedder.Close()
	b := builder.NewBuilder(embedder,
		builder.WithModelName(cfg.Embedding.ModelName),
		builder.WithWorkers(cfg.Embedding.Workers),
		builder.WithChunkerOptions(chunker.Options{
			TargetTokens:  cfg.Chunking.TargetTokens,
			MaxTokens:     cfg.Chunking.MaxTokens,
			MinTokens:     cfg.Chunking.MinTokens,
			OverlapTokens: cfg.Chunking.OverlapTokens,
		}),
		builder.WithLogger(logger),
	)
	result, err := b.Build(context.Background(), items)
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		fmt.Printf("Failed to create output directory: %v\n", err)
		os.Exit(1)
	}
	manifestRaw, err := json.MarshalIndent(result.Manifest, "", "  ")
	if err != nil {
		fmt.Printf("Failed to encode manifest: %v\n", err)
		os.Exit(1)
	}
	outputs := map[string][]byte{
		artifact.EmbeddingsFile: result.Embeddings,
		artifact.TextBlobFile:   result.TextBlob,
		artifact.ManifestFile:   manifestRaw,
	}
	for name, content := range outputs {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, content, 0644); err != nil {
			fmt.Printf("Failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Built %d chunks from %d documents\n", len(result.Manifest.Chunks), len(items))
	fmt.Printf("Build hash: %s\n", result.Manifest.BuildHash)
	fmt.Printf("Artifacts written to %s\n", *outDir)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae query [flags] <query>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryStr == "" {
		fmt.Println("Usage: kotae query [flags] <query>")
		os.Exit(1)
	}

	body, err := json.Marshal(server.QueryRequest{Query: queryStr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	resp, err := http.Post(*serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errBody map[string]string
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		fmt.Fprintf(os.Stderr, "Query failed: %s (%s)\n", resp.Status, errBody["error"])
		os.Exit(1)
	}
	var out server.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFormat == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}
	if out.Count == 0 {
		fmt.Println("No relevant content.")
		return
	}
	for i, res := range out.Results {
		fmt.Printf("%d. %s", i+1, res.Title)
		if res.Section != "" {
			fmt.Printf(" > %s", res.Section)
		}
		fmt.Printf("  (score %.4f, %d tokens)\n", res.Score, res.Tokens)
		fmt.Printf("   %s\n", res.URL)
		fmt.Printf("   %s\n", utils.Truncate(strings.ReplaceAll(res.Text, "\n", " "), 160))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Fprintf(os.Stderr, "Status request failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}
