package artifact

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"golang.org/x/sync/errgroup"
)

// Artifact file names under the deploy base URL.
const (
	EmbeddingsFile = "embeddings.bin"
	TextBlobFile   = "chunks.bin"
	ManifestFile   = "manifest.json"
)

// Connectivity reports whether the network is known to be reachable. Checked
// before any fetch so an offline session fails immediately instead of timing out.
type Connectivity interface {
	Online() bool
}

// AlwaysOnline is the default Connectivity for environments without a reliable
// reachability signal.
type AlwaysOnline struct{}

// Online always reports true.
func (AlwaysOnline) Online() bool { return true }

// Artifacts is the raw result of one complete fetch.
type Artifacts struct {
	Embeddings  []byte
	TextBlob    []byte
	ManifestRaw []byte
}

// Fetcher retrieves the three corpus artifacts over HTTP.
type Fetcher struct {
	baseURL string
	client  *http.Client
}

// NewFetcher creates a fetcher for artifacts under baseURL. client may be nil,
// in which case a 30-second-timeout client is used.
func NewFetcher(baseURL string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{baseURL: baseURL, client: client}
}

// FetchAll retrieves the vector blob, text blob, and manifest concurrently.
// If any one fetch fails the whole operation fails: blob offsets are
// manifest-relative, so a partial corpus is never usable.
func (f *Fetcher) FetchAll(ctx context.Context) (*Artifacts, error) {
	var arts Artifacts
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := f.fetchOne(gctx, EmbeddingsFile)
		arts.Embeddings = data
		return err
	})
	g.Go(func() error {
		data, err := f.fetchOne(gctx, TextBlobFile)
		arts.TextBlob = data
		return err
	})
	g.Go(func() error {
		data, err := f.fetchOne(gctx, ManifestFile)
		arts.ManifestRaw = data
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, models.NewError(models.KindFetchFailed, "fetch artifacts", err)
	}
	return &arts, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, name string) ([]byte, error) {
	u, err := url.JoinPath(f.baseURL, name)
	if err != nil {
		return nil, fmt.Errorf("bad artifact URL for %s: %w", name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", name, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", name, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", name, err)
	}
	return data, nil
}
