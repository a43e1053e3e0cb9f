package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/codec"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// SnapshotStore persists corpus snapshots. *Cache is the production
// implementation.
type SnapshotStore interface {
	Load() (*models.CacheRecord, error)
	Save(record *models.CacheRecord) error
}

// Loader resolves a valid corpus snapshot: from the local cache when its build
// hash matches the hash embedded in the deployed build, otherwise by fetching,
// parsing, and best-effort persisting a fresh one.
type Loader struct {
	cache     SnapshotStore
	fetcher   *Fetcher
	conn      Connectivity
	buildHash string // embedded expected hash of the deployed corpus
	backoff   BackoffPolicy
	logger    *zap.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConnectivity sets the connectivity probe (AlwaysOnline by default).
func WithConnectivity(c Connectivity) LoaderOption {
	return func(l *Loader) { l.conn = c }
}

// WithBackoff sets the fetch retry policy.
func WithBackoff(p BackoffPolicy) LoaderOption {
	return func(l *Loader) { l.backoff = p }
}

// WithLogger sets a logger.
func WithLogger(lg *zap.Logger) LoaderOption {
	return func(l *Loader) { l.logger = lg }
}

// NewLoader creates a loader. buildHash is the content hash the deployed build
// embeds; cache validity is decided against it with zero network round trips.
func NewLoader(cache SnapshotStore, fetcher *Fetcher, buildHash string, opts ...LoaderOption) *Loader {
	l := &Loader{
		cache:     cache,
		fetcher:   fetcher,
		conn:      AlwaysOnline{},
		buildHash: buildHash,
		backoff:   DefaultBackoff(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load returns a validated snapshot. fromCache reports whether the persisted
// snapshot was reused. A hash mismatch or unreadable slot is a full cache miss;
// partial reuse is never attempted. When the freshly fetched snapshot cannot be
// persisted for space, the snapshot is still returned together with a
// quota-exceeded error so the caller can surface the condition.
func (l *Loader) Load(ctx context.Context) (record *models.CacheRecord, fromCache bool, err error) {
	if cached := l.LoadCached(); cached != nil {
		return cached, true, nil
	}
	record, err = l.FetchFresh(ctx)
	return record, false, err
}

// LoadCached returns the persisted snapshot when its build hash matches the
// deployed hash and it passes validation, without touching the network.
// Returns nil on any miss; partial reuse is never attempted.
func (l *Loader) LoadCached() *models.CacheRecord {
	if l.cache == nil {
		return nil
	}
	cached, loadErr := l.cache.Load()
	if loadErr != nil || cached == nil {
		return nil
	}
	if cached.BuildHash != l.buildHash {
		if l.logger != nil {
			l.logger.Info("cached snapshot is stale, refetching",
				zap.String("cached_hash", cached.BuildHash),
				zap.String("expected_hash", l.buildHash),
			)
		}
		return nil
	}
	if validateErr := l.validateRecord(cached); validateErr != nil {
		if l.logger != nil {
			l.logger.Warn("cached snapshot failed validation, refetching", zap.Error(validateErr))
		}
		return nil
	}
	if l.logger != nil {
		l.logger.Info("using cached corpus snapshot",
			zap.String("build_hash", cached.BuildHash),
			zap.Int("chunks", len(cached.Chunks)),
		)
	}
	return cached
}

// FetchFresh fetches, parses, and best-effort persists a snapshot, bypassing
// the cache lookup.
func (l *Loader) FetchFresh(ctx context.Context) (*models.CacheRecord, error) {
	if !l.conn.Online() {
		return nil, models.NewError(models.KindOffline, "load corpus", nil)
	}

	var arts *Artifacts
	fetchErr := RetryWithBackoff(ctx, l.backoff, l.logger, func() error {
		var opErr error
		arts, opErr = l.fetcher.FetchAll(ctx)
		return opErr
	})
	if fetchErr != nil {
		return nil, fetchErr
	}

	record, err := l.parse(arts)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if saveErr := l.cache.Save(record); saveErr != nil {
			if kind, ok := models.KindOf(saveErr); ok && kind == models.KindQuotaExceeded {
				// The fetched corpus stays usable in-memory for this session.
				return record, saveErr
			}
			if l.logger != nil {
				l.logger.Warn("failed to persist snapshot, continuing in-memory", zap.Error(saveErr))
			}
		}
	}
	return record, nil
}

// parse cross-validates the three artifacts and assembles a snapshot.
func (l *Loader) parse(arts *Artifacts) (*models.CacheRecord, error) {
	var manifest models.ArtifactManifest
	if err := json.Unmarshal(arts.ManifestRaw, &manifest); err != nil {
		return nil, models.NewError(models.KindMalformedArtifact, "parse manifest", err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, models.NewError(models.KindMalformedArtifact, "validate manifest", err)
	}
	if l.buildHash != "" && manifest.BuildHash != l.buildHash {
		return nil, models.NewError(models.KindMalformedArtifact, "validate manifest",
			fmt.Errorf("fetched manifest hash %q does not match deployed hash %q",
				manifest.BuildHash, l.buildHash))
	}

	wantBytes := len(manifest.Chunks) * codec.Stride(manifest.Model.Dimensions)
	if len(arts.Embeddings) != wantBytes {
		return nil, models.NewError(models.KindMalformedArtifact, "validate vector blob",
			fmt.Errorf("vector blob is %d bytes, manifest expects %d", len(arts.Embeddings), wantBytes))
	}

	texts, err := DecodeTextBlob(arts.TextBlob, len(manifest.Chunks), l.logger)
	if err != nil {
		return nil, models.NewError(models.KindMalformedArtifact, "parse text blob", err)
	}

	return &models.CacheRecord{
		BuildHash:  manifest.BuildHash,
		Timestamp:  time.Now().UTC(),
		Embeddings: arts.Embeddings,
		Manifest:   &manifest,
		Chunks:     texts,
	}, nil
}

// validateRecord sanity-checks a cached snapshot before reuse.
func (l *Loader) validateRecord(rec *models.CacheRecord) error {
	if rec.Manifest == nil {
		return fmt.Errorf("cached snapshot has no manifest")
	}
	if err := rec.Manifest.Validate(); err != nil {
		return err
	}
	if len(rec.Chunks) != len(rec.Manifest.Chunks) {
		return fmt.Errorf("cached snapshot has %d texts for %d manifest chunks",
			len(rec.Chunks), len(rec.Manifest.Chunks))
	}
	wantBytes := len(rec.Manifest.Chunks) * codec.Stride(rec.Manifest.Model.Dimensions)
	if len(rec.Embeddings) != wantBytes {
		return fmt.Errorf("cached vector blob is %d bytes, manifest expects %d",
			len(rec.Embeddings), wantBytes)
	}
	return nil
}
