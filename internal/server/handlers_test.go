package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/artifact"
	"github.com/hyperjump/kotae/internal/builder"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/orchestrator"
	"go.uber.org/zap"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

// newTestServer wires a full stack: built artifacts served over loopback, a
// badger cache in a temp dir, and an orchestrator around a mock embedder.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	embedder := embedding.NewMockEmbedder(16)
	items := []models.ContentItem{
		{
			ID:    "doc-1",
			Type:  models.ContentTypeArticle,
			Title: "Concurrency Patterns",
			Body:  "Goroutines and channels structure concurrent pipelines. " + words(120),
			Metadata: models.ContentMetadata{
				URL: "/posts/concurrency",
			},
		},
	}
	result, err := builder.NewBuilder(embedder).Build(context.Background(), items)
	if err != nil {
		t.Fatalf("build corpus: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/"+artifact.EmbeddingsFile, func(w http.ResponseWriter, r *http.Request) {
		w.Write(result.Embeddings)
	})
	mux.HandleFunc("/"+artifact.TextBlobFile, func(w http.ResponseWriter, r *http.Request) {
		w.Write(result.TextBlob)
	})
	mux.HandleFunc("/"+artifact.ManifestFile, func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(result.Manifest)
		w.Write(data)
	})
	origin := httptest.NewServer(mux)
	t.Cleanup(origin.Close)

	cache, err := artifact.OpenCache(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	loader := artifact.NewLoader(cache, artifact.NewFetcher(origin.URL, origin.Client()),
		result.Manifest.BuildHash,
		artifact.WithBackoff(artifact.BackoffPolicy{
			BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxAttempts: 2,
		}))
	orch := orchestrator.New(loader, embedder)
	return NewServer(orch, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop())
}

func postQuery(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	return w
}

func TestHandleQueryBeforeInit(t *testing.T) {
	srv := newTestServer(t)
	w := postQuery(t, srv, `{"query":"goroutines"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", w.Code)
	}
}

func TestHandleQueryAfterInit(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer srv.Stop(context.Background())

	w := postQuery(t, srv, `{"query":"goroutines channels concurrent"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Count == 0 || len(out.Results) != out.Count {
		t.Errorf("unexpected response: count=%d results=%d", out.Count, len(out.Results))
	}
	if out.Results[0].Text == "" || out.Results[0].Title == "" {
		t.Errorf("result not materialized: %+v", out.Results[0])
	}
}

func TestHandleQueryInvalidBody(t *testing.T) {
	srv := newTestServer(t)
	w := postQuery(t, srv, `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleQueryEmptyQuery(t *testing.T) {
	srv := newTestServer(t)
	if err := srv.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer srv.Stop(context.Background())

	w := postQuery(t, srv, `{"query":""}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out QueryResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 0 {
		t.Errorf("expected empty results for empty query, got %d", len(out.Results))
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var before map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&before); err != nil {
		t.Fatal(err)
	}
	if before["phase"] != "idle" {
		t.Errorf("phase before init = %v", before["phase"])
	}
	if _, ok := before["corpus"]; ok {
		t.Error("corpus info should be absent before init")
	}

	if err := srv.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer srv.Stop(context.Background())

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	var after map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&after); err != nil {
		t.Fatal(err)
	}
	if after["phase"] != "complete" || after["percent"] != float64(100) {
		t.Errorf("status after init = %v", after)
	}
	corpus, ok := after["corpus"].(map[string]interface{})
	if !ok {
		t.Fatal("corpus info missing after init")
	}
	if corpus["chunks"] == float64(0) || corpus["build_hash"] == "" {
		t.Errorf("corpus info incomplete: %v", corpus)
	}
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}
