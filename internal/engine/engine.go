// Package engine runs similarity scoring in an isolated goroutine that owns the
// deserialized corpus vectors, so scoring a query never blocks the caller.
package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/codec"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// DefaultTopK bounds the number of results per search.
const DefaultTopK = 50

// Default caller-side timeouts. Init covers full-corpus deserialization.
const (
	DefaultInitTimeout   = 30 * time.Second
	DefaultSearchTimeout = 10 * time.Second
)

// request is the tagged union carried on the engine's single request channel.
// The unit processes requests in arrival order; there is no busy state.
type request interface{ isRequest() }

// initRequest transfers ownership of a vector blob and manifest to the engine.
type initRequest struct {
	id       string
	blob     []byte
	manifest *models.ArtifactManifest
	reply    chan response
}

// searchRequest asks for a top-K similarity ranking of query against the corpus.
type searchRequest struct {
	id    string
	query []float32
	reply chan response
}

func (initRequest) isRequest()   {}
func (searchRequest) isRequest() {}

// response is tagged with the id of the request it answers.
type response struct {
	id      string
	results []models.SemanticResult
	err     error
}

// Engine is the isolated execution unit. All exported methods are safe for
// concurrent use; the internal loop serializes actual work.
type Engine struct {
	requests  chan request
	done      chan struct{}
	closeOnce sync.Once

	topK          int
	initTimeout   time.Duration
	searchTimeout time.Duration
	logger        *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopK bounds results per search (DefaultTopK when unset).
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithTimeouts overrides the caller-side init and search timeouts.
func WithTimeouts(init, search time.Duration) Option {
	return func(e *Engine) {
		if init > 0 {
			e.initTimeout = init
		}
		if search > 0 {
			e.searchTimeout = search
		}
	}
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Spawn creates an engine and starts its processing loop.
func Spawn(opts ...Option) *Engine {
	e := &Engine{
		requests:      make(chan request, 16),
		done:          make(chan struct{}),
		topK:          DefaultTopK,
		initTimeout:   DefaultInitTimeout,
		searchTimeout: DefaultSearchTimeout,
	}
	for _, o := range opts {
		o(e)
	}
	go e.loop()
	return e
}

// Init hands the engine a vector blob and manifest. The engine takes ownership
// of blob; a caller that wants to re-initialize later (soft reset) must pass a
// copy and retain its own. The whole blob is deserialized exactly once, then the
// engine signals readiness. Blocks until ready, error, or the init timeout.
func (e *Engine) Init(blob []byte, manifest *models.ArtifactManifest) error {
	req := initRequest{
		id:       uuid.New().String(),
		blob:     blob,
		manifest: manifest,
		reply:    make(chan response, 1),
	}
	_, err := e.await(req.id, req, req.reply, e.initTimeout)
	return err
}

// Search scores query against every resident vector and returns the top-K
// descending. The request is tagged with a unique correlation id and the
// response is matched against it. Blocks until results, error, or timeout; a
// late response after timeout is dropped, not delivered.
func (e *Engine) Search(query []float32) ([]models.SemanticResult, error) {
	req := searchRequest{
		id:    uuid.New().String(),
		query: query,
		reply: make(chan response, 1),
	}
	resp, err := e.await(req.id, req, req.reply, e.searchTimeout)
	if err != nil {
		return nil, err
	}
	return resp.results, nil
}

// await submits req and waits for the response carrying the same correlation
// id. The timeout spans submission and wait, so a full request buffer cannot
// block the caller indefinitely. The reply channel is buffered so a late answer
// after timeout is dropped by the loop without blocking it.
func (e *Engine) await(id string, req request, reply chan response, timeout time.Duration) (response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.requests <- req:
	case <-timer.C:
		return response{}, models.NewError(models.KindWorkerTimeout, "engine submit",
			fmt.Errorf("request not accepted within %s", timeout))
	case <-e.done:
		return response{}, models.NewError(models.KindWorkerError, "engine submit", fmt.Errorf("engine is stopped"))
	}

	select {
	case resp := <-reply:
		if resp.id != id {
			return response{}, models.NewError(models.KindWorkerError, "engine await",
				fmt.Errorf("correlation mismatch: got %s, want %s", resp.id, id))
		}
		if resp.err != nil {
			return response{}, resp.err
		}
		return resp, nil
	case <-timer.C:
		return response{}, models.NewError(models.KindWorkerTimeout, "engine await",
			fmt.Errorf("no response within %s", timeout))
	case <-e.done:
		return response{}, models.NewError(models.KindWorkerError, "engine await", fmt.Errorf("engine stopped"))
	}
}

// Close stops the processing loop. In-flight work completes; its response is
// dropped if nobody is waiting. Safe to call more than once, concurrently.
func (e *Engine) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

// corpus is the engine-owned state: full-precision vectors in manifest order.
type corpus struct {
	vectors  [][]float32
	manifest *models.ArtifactManifest
	dims     int
}

// loop is the single-threaded message processor. Requests are answered in
// arrival order and never reordered.
func (e *Engine) loop() {
	var c *corpus
	for {
		select {
		case <-e.done:
			return
		case req := <-e.requests:
			switch r := req.(type) {
			case initRequest:
				next, err := e.handleInit(r)
				if err == nil {
					c = next
				}
				r.reply <- response{id: r.id, err: err}
			case searchRequest:
				results, err := e.handleSearch(c, r)
				r.reply <- response{id: r.id, results: results, err: err}
			default:
				// Closed union; nothing else can arrive.
			}
		}
	}
}

func (e *Engine) handleInit(r initRequest) (*corpus, error) {
	if r.manifest == nil {
		return nil, models.NewError(models.KindWorkerError, "engine init", fmt.Errorf("nil manifest"))
	}
	dims := r.manifest.Model.Dimensions
	vectors, err := codec.DecodeVectors(r.blob, dims)
	if err != nil {
		return nil, models.NewError(models.KindMalformedArtifact, "engine init", err)
	}
	if len(vectors) != len(r.manifest.Chunks) {
		return nil, models.NewError(models.KindMalformedArtifact, "engine init",
			fmt.Errorf("blob holds %d vectors, manifest lists %d chunks", len(vectors), len(r.manifest.Chunks)))
	}
	if e.logger != nil {
		e.logger.Info("engine corpus initialized",
			zap.Int("vectors", len(vectors)),
			zap.Int("dimensions", dims),
		)
	}
	return &corpus{vectors: vectors, manifest: r.manifest, dims: dims}, nil
}

func (e *Engine) handleSearch(c *corpus, r searchRequest) ([]models.SemanticResult, error) {
	if c == nil {
		return nil, models.NewError(models.KindWorkerError, "engine search",
			fmt.Errorf("search before init"))
	}
	if len(r.query) != c.dims {
		return nil, models.NewError(models.KindWorkerError, "engine search",
			fmt.Errorf("query dimension %d does not match corpus dimension %d", len(r.query), c.dims))
	}

	type scored struct {
		index int
		score float64
	}
	scores := make([]scored, len(c.vectors))
	for i, vec := range c.vectors {
		scores[i] = scored{index: i, score: codec.Dot(r.query, vec)}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	k := e.topK
	if k > len(scores) {
		k = len(scores)
	}
	results := make([]models.SemanticResult, k)
	for i := 0; i < k; i++ {
		record := &c.manifest.Chunks[scores[i].index]
		results[i] = models.SemanticResult{
			ChunkID: record.ID,
			Score:   scores[i].score,
			Chunk:   record,
		}
	}
	return results, nil
}
