// Package orchestrator drives initialization: resolve a corpus snapshot, warm
// the embedding model, build the lexical index, and spawn the search engine,
// reporting monotonic progress through fixed phase allocations.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/artifact"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/engine"
	"github.com/hyperjump/kotae/internal/fusion"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieve"
)

// Phase names one step of the linear initialization sequence.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseCheckingCache      Phase = "checking-cache"
	PhaseLoadingModel       Phase = "loading-model"
	PhaseFetchingArtifacts  Phase = "fetching-artifacts"
	PhaseInitializingSearch Phase = "initializing-search"
	PhaseSpawningWorker     Phase = "spawning-worker"
	PhaseComplete           Phase = "complete"
	PhaseError              Phase = "error"
)

// Progress allocation per phase. The model warm band is scaled by the
// collaborator's own progress; the lexical build band by batch completion.
const (
	percentCacheChecked  = 10
	percentModelWarm     = 40
	percentArtifactsHeld = 70
	percentIndexBuilt    = 90
	percentWorkerReady   = 99
)

// Status is a snapshot of initialization state, safe to expose over the API.
type Status struct {
	Phase   Phase  `json:"phase"`
	Percent int    `json:"percent"`
	Error   string `json:"error,omitempty"`
}

// ProgressFunc observes status transitions. Called synchronously; keep it cheap.
type ProgressFunc func(Status)

// Ready bundles everything a query needs after successful initialization.
type Ready struct {
	Retriever *retrieve.Retriever
	Engine    *engine.Engine
	Lexical   *keyword.BleveIndex
	Record    *models.CacheRecord
	FromCache bool
}

// Close releases the engine and the lexical index.
func (r *Ready) Close() {
	if r.Engine != nil {
		r.Engine.Close()
	}
	if r.Lexical != nil {
		r.Lexical.Close()
	}
}

// Orchestrator holds the collaborators one initialization run needs. It is an
// explicit context object: construct one per engine instance and pass it where
// needed. Run may be called again after a recoverable failure; the sequence
// restarts from the top with no partial resume. Callers serialize Run attempts.
type Orchestrator struct {
	loader     *artifact.Loader
	embedder   embedding.Embedder
	fusionOpts fusion.Options
	topK       int
	batchSize  int
	onProgress ProgressFunc
	logger     *zap.Logger

	mu     sync.Mutex
	status Status
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFusionOptions sets the fusion parameters handed to the retriever.
func WithFusionOptions(opts fusion.Options) Option {
	return func(o *Orchestrator) { o.fusionOpts = opts }
}

// WithTopK bounds semantic results per query.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithBatchSize sets the lexical build batch size.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) { o.batchSize = n }
}

// WithProgress registers a progress observer.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.onProgress = fn }
}

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an orchestrator around a snapshot loader and an embedder.
func New(loader *artifact.Loader, embedder embedding.Embedder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader:     loader,
		embedder:   embedder,
		fusionOpts: fusion.DefaultOptions(),
		topK:       engine.DefaultTopK,
		logger:     zap.NewNop(),
		status:     Status{Phase: PhaseIdle},
	}
	for _, op := range opts {
		op(o)
	}
	return o
}

// Status returns the current initialization state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// report advances the visible status. Percent never moves backwards within a
// run; phases only advance along the fixed sequence.
func (o *Orchestrator) report(phase Phase, percent int) {
	o.mu.Lock()
	if percent < o.status.Percent && phase != PhaseCheckingCache {
		percent = o.status.Percent
	}
	o.status = Status{Phase: phase, Percent: percent}
	snapshot := o.status
	fn := o.onProgress
	o.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// fail records a terminal error status and returns the typed error.
func (o *Orchestrator) fail(err error) error {
	kindName := "worker-error"
	if kind, ok := models.KindOf(err); ok {
		kindName = kind.String()
	}
	o.mu.Lock()
	o.status.Phase = PhaseError
	o.status.Error = kindName
	snapshot := o.status
	fn := o.onProgress
	o.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
	o.logger.Error("initialization failed", zap.String("kind", kindName), zap.Error(err))
	return err
}

// Run executes the initialization sequence and returns a ready query pipeline.
// On failure everything partially constructed is released; the orchestrator can
// be Run again when the error kind is recoverable.
func (o *Orchestrator) Run(ctx context.Context) (*Ready, error) {
	o.report(PhaseCheckingCache, 0)
	record := o.loader.LoadCached()
	fromCache := record != nil
	o.report(PhaseCheckingCache, percentCacheChecked)

	o.report(PhaseLoadingModel, percentCacheChecked)
	err := o.embedder.Warm(ctx, func(fraction float64) {
		band := float64(percentModelWarm - percentCacheChecked)
		o.report(PhaseLoadingModel, percentCacheChecked+int(band*fraction))
	})
	if err != nil {
		if _, ok := models.KindOf(err); !ok {
			err = models.NewError(models.KindFetchFailed, "warm model", err)
		}
		return nil, o.fail(err)
	}
	o.report(PhaseLoadingModel, percentModelWarm)

	o.report(PhaseFetchingArtifacts, percentModelWarm)
	if record == nil {
		record, err = o.loader.FetchFresh(ctx)
		if err != nil {
			if record == nil {
				return nil, o.fail(err)
			}
			// Quota errors leave the fetched snapshot usable for this session.
			o.logger.Warn("snapshot not persisted, continuing in-memory", zap.Error(err))
		}
	}
	o.report(PhaseFetchingArtifacts, percentArtifactsHeld)

	o.report(PhaseInitializingSearch, percentArtifactsHeld)
	lexical, err := keyword.NewBleveIndex(keyword.WithLogger(o.logger))
	if err != nil {
		return nil, o.fail(models.NewError(models.KindWorkerError, "create lexical index", err))
	}
	err = lexical.Build(ctx, record.Manifest, record.Chunks, o.batchSize, func(done, total int) {
		band := percentIndexBuilt - percentArtifactsHeld
		o.report(PhaseInitializingSearch, percentArtifactsHeld+band*done/total)
	})
	if err != nil {
		lexical.Close()
		return nil, o.fail(models.NewError(models.KindWorkerError, "build lexical index", err))
	}
	o.report(PhaseInitializingSearch, percentIndexBuilt)

	o.report(PhaseSpawningWorker, percentIndexBuilt)
	eng := engine.Spawn(engine.WithTopK(o.topK), engine.WithLogger(o.logger))
	blob := make([]byte, len(record.Embeddings))
	copy(blob, record.Embeddings)
	if err := eng.Init(blob, record.Manifest); err != nil {
		eng.Close()
		lexical.Close()
		return nil, o.fail(err)
	}
	o.report(PhaseSpawningWorker, percentWorkerReady)

	retriever, err := retrieve.NewRetriever(
		o.embedder, eng, lexical, record.Manifest, record.Chunks,
		retrieve.WithFusionOptions(o.fusionOpts),
		retrieve.WithLogger(o.logger),
	)
	if err != nil {
		eng.Close()
		lexical.Close()
		return nil, o.fail(models.NewError(models.KindWorkerError, "wire retriever",
			fmt.Errorf("assemble query pipeline: %w", err)))
	}

	o.report(PhaseComplete, 100)
	o.logger.Info("initialization complete",
		zap.Bool("from_cache", fromCache),
		zap.Int("chunks", len(record.Chunks)),
		zap.String("build_hash", record.BuildHash),
	)
	return &Ready{
		Retriever: retriever,
		Engine:    eng,
		Lexical:   lexical,
		Record:    record,
		FromCache: fromCache,
	}, nil
}
