package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/codec"
	"github.com/hyperjump/kotae/internal/models"
)

// testCorpus is a tiny consistent three-artifact set.
type testCorpus struct {
	embeddings []byte
	textBlob   []byte
	manifest   []byte
	record     *models.ArtifactManifest
}

func makeTestCorpus(t *testing.T, buildHash string) *testCorpus {
	t.Helper()
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}
	embeddings, err := codec.EncodeVectors(vectors)
	if err != nil {
		t.Fatal(err)
	}
	texts := []string{"first chunk text", "second chunk text"}
	manifest := &models.ArtifactManifest{
		Version:   models.ManifestVersion,
		BuildTime: time.Now().UTC(),
		BuildHash: buildHash,
		Model:     models.ModelInfo{Name: "minilm", Dimensions: 4, Normalization: "l2"},
		Storage:   models.StorageInfo{Precision: "float16", AccumulationPrecision: "float64"},
		Chunks: []models.ManifestChunk{
			{ID: "doc#intro-0", ParentID: "doc", Tokens: 4, EmbeddingOffset: 0},
			{ID: "doc#intro-1", ParentID: "doc", Tokens: 5, EmbeddingOffset: 8},
		},
		Stats: models.CorpusStats{TotalChunks: 2, TotalTokens: 9, AvgTokensPerChunk: 4.5},
	}
	manifestRaw, err := json.Marshal(manifest)
	if err != nil {
		t.Fatal(err)
	}
	return &testCorpus{
		embeddings: embeddings,
		textBlob:   EncodeTextBlob(texts),
		manifest:   manifestRaw,
		record:     manifest,
	}
}

// serveCorpus starts an artifact server and returns it plus a request counter.
func serveCorpus(t *testing.T, corpus *testCorpus) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/" + EmbeddingsFile:
			w.Write(corpus.embeddings)
		case "/" + TextBlobFile:
			w.Write(corpus.textBlob)
		case "/" + ManifestFile:
			w.Write(corpus.manifest)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := OpenCache(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func fastBackoff() BackoffPolicy {
	return BackoffPolicy{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond, MaxAttempts: 2}
}

func TestLoader_FreshFetchAndPersist(t *testing.T) {
	corpus := makeTestCorpus(t, "hash-1")
	srv, hits := serveCorpus(t, corpus)
	cache := openTestCache(t)

	loader := NewLoader(cache, NewFetcher(srv.URL, nil), "hash-1", WithBackoff(fastBackoff()))
	record, fromCache, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fromCache {
		t.Error("first load should not come from cache")
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 artifact fetches, got %d", hits.Load())
	}
	if record.BuildHash != "hash-1" || len(record.Chunks) != 2 {
		t.Errorf("record = hash %q, %d chunks", record.BuildHash, len(record.Chunks))
	}
	if record.Chunks[0] != "first chunk text" {
		t.Errorf("chunk text = %q", record.Chunks[0])
	}

	// Second load reuses the persisted snapshot: zero network.
	before := hits.Load()
	record2, fromCache2, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if !fromCache2 {
		t.Error("second load should come from cache")
	}
	if hits.Load() != before {
		t.Error("cache hit should require zero network requests")
	}
	if record2.Manifest.BuildHash != "hash-1" {
		t.Errorf("cached manifest hash = %q", record2.Manifest.BuildHash)
	}
}

func TestLoader_HashMismatchInvalidatesCache(t *testing.T) {
	// Persist a snapshot with hash "A", set the deployed hash to "B": load must
	// fetch fresh artifacts and return manifest hash "B", never a partial reuse.
	cache := openTestCache(t)
	stale := makeTestCorpus(t, "A")
	staleRecord := &models.CacheRecord{
		BuildHash:  "A",
		Timestamp:  time.Now().UTC(),
		Embeddings: stale.embeddings,
		Manifest:   stale.record,
		Chunks:     []string{"first chunk text", "second chunk text"},
	}
	if err := cache.Save(staleRecord); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	fresh := makeTestCorpus(t, "B")
	srv, hits := serveCorpus(t, fresh)

	loader := NewLoader(cache, NewFetcher(srv.URL, nil), "B", WithBackoff(fastBackoff()))
	record, fromCache, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fromCache {
		t.Error("stale cache must not be reused")
	}
	if hits.Load() == 0 {
		t.Error("expected a network fetch after hash mismatch")
	}
	if record.Manifest.BuildHash != "B" {
		t.Errorf("manifest hash = %q, want B", record.Manifest.BuildHash)
	}
}

func TestLoader_OfflineShortCircuits(t *testing.T) {
	corpus := makeTestCorpus(t, "h")
	srv, hits := serveCorpus(t, corpus)
	loader := NewLoader(nil, NewFetcher(srv.URL, nil), "h",
		WithConnectivity(offline{}), WithBackoff(fastBackoff()))

	_, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected offline error")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.KindOffline {
		t.Errorf("kind = %v, want offline", err)
	}
	if hits.Load() != 0 {
		t.Error("offline load must not attempt the network")
	}
}

type offline struct{}

func (offline) Online() bool { return false }

func TestLoader_FetchFailureRetriesThenFails(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	loader := NewLoader(nil, NewFetcher(srv.URL, nil), "h", WithBackoff(fastBackoff()))
	_, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected fetch failure")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.KindFetchFailed {
		t.Errorf("kind = %v, want artifacts-fetch-failed", err)
	}
	if hits.Load() < 2 {
		t.Errorf("expected at least two fetch attempts, got %d requests", hits.Load())
	}
}

func TestLoader_MalformedBlobFailsLoud(t *testing.T) {
	corpus := makeTestCorpus(t, "h")
	corpus.embeddings = corpus.embeddings[:len(corpus.embeddings)-2]
	srv, _ := serveCorpus(t, corpus)

	loader := NewLoader(nil, NewFetcher(srv.URL, nil), "h", WithBackoff(fastBackoff()))
	_, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected malformed-artifact error")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.KindMalformedArtifact {
		t.Errorf("kind = %v, want malformed-artifact", err)
	}
}

func TestLoader_ManifestHashMismatchIsMalformed(t *testing.T) {
	corpus := makeTestCorpus(t, "deployed-elsewhere")
	srv, _ := serveCorpus(t, corpus)

	loader := NewLoader(nil, NewFetcher(srv.URL, nil), "expected", WithBackoff(fastBackoff()))
	_, _, err := loader.Load(context.Background())
	if err == nil {
		t.Fatal("expected error for fetched hash disagreeing with deployed hash")
	}
	if kind, _ := models.KindOf(err); kind != models.KindMalformedArtifact {
		t.Errorf("kind = %v, want malformed-artifact", err)
	}
}

func TestLoader_TruncatedTextBlob(t *testing.T) {
	corpus := makeTestCorpus(t, "h")
	corpus.textBlob = corpus.textBlob[:len(corpus.textBlob)-1]
	srv, _ := serveCorpus(t, corpus)

	loader := NewLoader(nil, NewFetcher(srv.URL, nil), "h", WithBackoff(fastBackoff()))
	_, _, err := loader.Load(context.Background())
	if kind, _ := models.KindOf(err); kind != models.KindMalformedArtifact {
		t.Errorf("kind = %v, want malformed-artifact", err)
	}
}

// quotaStore rejects every save for space; loads always miss.
type quotaStore struct{}

func (quotaStore) Load() (*models.CacheRecord, error) { return nil, nil }

func (quotaStore) Save(*models.CacheRecord) error {
	return models.NewError(models.KindQuotaExceeded, "persist snapshot", syscall.ENOSPC)
}

func TestLoader_QuotaExceededStillReturnsRecord(t *testing.T) {
	// A fetched corpus that cannot be persisted for space is still handed to the
	// caller, paired with the quota error so the condition can be surfaced.
	corpus := makeTestCorpus(t, "h")
	srv, _ := serveCorpus(t, corpus)

	loader := NewLoader(quotaStore{}, NewFetcher(srv.URL, nil), "h", WithBackoff(fastBackoff()))
	record, err := loader.FetchFresh(context.Background())
	if err == nil {
		t.Fatal("expected quota error")
	}
	if kind, ok := models.KindOf(err); !ok || kind != models.KindQuotaExceeded {
		t.Errorf("kind = %v, want quota-exceeded", err)
	}
	if record == nil {
		t.Fatal("fetched record must survive a quota failure")
	}
	if record.BuildHash != "h" || len(record.Chunks) != 2 {
		t.Errorf("record = hash %q, %d chunks", record.BuildHash, len(record.Chunks))
	}
}

func TestLoader_OtherPersistFailuresSwallowed(t *testing.T) {
	// Any non-quota persist failure is logged and swallowed: the session runs on
	// the in-memory corpus with no error surfaced.
	corpus := makeTestCorpus(t, "h")
	srv, _ := serveCorpus(t, corpus)
	cache := openTestCache(t)
	cache.Close() // every subsequent write fails

	loader := NewLoader(cache, NewFetcher(srv.URL, nil), "h", WithBackoff(fastBackoff()))
	record, err := loader.FetchFresh(context.Background())
	if err != nil {
		t.Fatalf("FetchFresh: %v", err)
	}
	if record == nil || record.BuildHash != "h" {
		t.Fatalf("record = %+v, want fetched snapshot", record)
	}
}

func TestCache_SaveLoadClear(t *testing.T) {
	cache := openTestCache(t)
	corpus := makeTestCorpus(t, "rt")
	record := &models.CacheRecord{
		BuildHash:  "rt",
		Timestamp:  time.Now().UTC(),
		Embeddings: corpus.embeddings,
		Manifest:   corpus.record,
		Chunks:     []string{"a", "b"},
	}
	if err := cache.Save(record); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := cache.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.BuildHash != "rt" || len(got.Embeddings) != len(corpus.embeddings) {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Manifest == nil || len(got.Manifest.Chunks) != 2 {
		t.Error("manifest lost in round trip")
	}

	if err := cache.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = cache.Load()
	if err != nil {
		t.Fatalf("Load after Clear: %v", err)
	}
	if got != nil {
		t.Error("expected empty slot after Clear")
	}
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, fastBackoff(), nil, func() error {
			calls++
			if calls < 2 {
				return models.NewError(models.KindFetchFailed, "op", errors.New("transient"))
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("non-recoverable short-circuits", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, fastBackoff(), nil, func() error {
			calls++
			return models.NewError(models.KindMalformedArtifact, "op", errors.New("bad bytes"))
		})
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("calls = %d, want 1 (no retry)", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		policy := BackoffPolicy{BaseDelay: time.Millisecond, Multiplier: 2, MaxAttempts: 3}
		err := RetryWithBackoff(ctx, policy, nil, func() error {
			calls++
			return models.NewError(models.KindFetchFailed, "op", errors.New("down"))
		})
		if err == nil {
			t.Fatal("expected error after exhausting attempts")
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryWithBackoff(cctx, fastBackoff(), nil, func() error {
			return models.NewError(models.KindFetchFailed, "op", errors.New("down"))
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}
