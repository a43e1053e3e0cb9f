package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Single-slot keys: there is only ever one live snapshot.
const (
	keyCurrentMeta       = "current/meta"
	keyCurrentEmbeddings = "current/embeddings"
)

// cacheMeta is the JSON-encoded part of a snapshot (everything but the raw blob).
type cacheMeta struct {
	BuildHash string                   `json:"buildHash"`
	Timestamp string                   `json:"timestamp"`
	Manifest  *models.ArtifactManifest `json:"manifest"`
	Chunks    []string                 `json:"chunks"`
}

// Cache persists the corpus snapshot in a local Badger store.
type Cache struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenCache opens (or creates) the cache store at dir.
func OpenCache(dir string, logger *zap.Logger) (*Cache, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return &Cache{db: db, logger: logger}, nil
}

// Load returns the persisted snapshot, or nil when the slot is empty. A stored
// record that cannot be decoded is treated as absent (and logged): the loader
// falls back to a fresh fetch, never a partial reuse.
func (c *Cache) Load() (*models.CacheRecord, error) {
	var meta cacheMeta
	var embeddings []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyCurrentMeta))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			return err
		}
		item, err = txn.Get([]byte(keyCurrentEmbeddings))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			embeddings = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		if c.logger != nil {
			c.logger.Warn("cached snapshot unreadable, treating as cache miss", zap.Error(err))
		}
		return nil, nil
	}
	record := &models.CacheRecord{
		BuildHash:  meta.BuildHash,
		Embeddings: embeddings,
		Manifest:   meta.Manifest,
		Chunks:     meta.Chunks,
	}
	if ts, parseErr := parseTimestamp(meta.Timestamp); parseErr == nil {
		record.Timestamp = ts
	}
	return record, nil
}

// Save overwrites the single "current" slot with record. A write rejected for
// space is returned as a distinct quota-exceeded condition; any other failure is
// returned as-is for the caller to swallow (the in-memory corpus stays usable).
func (c *Cache) Save(record *models.CacheRecord) error {
	meta := cacheMeta{
		BuildHash: record.BuildHash,
		Timestamp: record.Timestamp.UTC().Format(timestampLayout),
		Manifest:  record.Manifest,
		Chunks:    record.Chunks,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot meta: %w", err)
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyCurrentMeta), metaBytes); err != nil {
			return err
		}
		return txn.Set([]byte(keyCurrentEmbeddings), record.Embeddings)
	})
	if err != nil {
		if isQuotaError(err) {
			return models.NewError(models.KindQuotaExceeded, "persist snapshot", err)
		}
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return nil
}

// Clear drops the current slot (full reset).
func (c *Cache) Clear() error {
	return c.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(keyCurrentMeta)); err != nil {
			return err
		}
		return txn.Delete([]byte(keyCurrentEmbeddings))
	})
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.db.Close()
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(timestampLayout, s)
}

// isQuotaError reports whether err indicates the storage layer ran out of space.
func isQuotaError(err error) bool {
	if errors.Is(err, syscall.ENOSPC) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no space")
}
