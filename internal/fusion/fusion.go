// Package fusion combines semantic and lexical rankings with reciprocal-rank
// scoring and trims the fused ranking to a token budget.
package fusion

import (
	"sort"

	"github.com/hyperjump/kotae/internal/models"
)

// Options controls reciprocal-rank fusion and budget selection.
type Options struct {
	// K is the RRF smoothing constant; each item at 0-indexed rank r contributes
	// weight/(K+r+1).
	K int
	// SemanticWeight scales the semantic ranking's contributions.
	SemanticWeight float64
	// LexicalWeight scales the lexical ranking's contributions.
	LexicalWeight float64
	// TokenBudget caps the total estimated tokens of the selected prefix.
	TokenBudget int
	// MinChunks is always satisfied by budget selection, even when it overshoots.
	MinChunks int
}

// DefaultOptions returns the standard fusion parameters.
func DefaultOptions() Options {
	return Options{
		K:              60,
		SemanticWeight: 0.6,
		LexicalWeight:  0.4,
		TokenBudget:    2000,
		MinChunks:      3,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.K <= 0 {
		o.K = def.K
	}
	if o.SemanticWeight == 0 && o.LexicalWeight == 0 {
		o.SemanticWeight = def.SemanticWeight
		o.LexicalWeight = def.LexicalWeight
	}
	if o.TokenBudget <= 0 {
		o.TokenBudget = def.TokenBudget
	}
	if o.MinChunks <= 0 {
		o.MinChunks = def.MinChunks
	}
}

// Fuse merges a semantic ranking and a lexical ranking over the same chunk-id space
// into one descending ranking. Union semantics: a chunk present in only one ranking
// keeps that ranking's contribution; a chunk in both gets the sum. Either ranking may
// be empty and fusion proceeds on the other alone; when both are empty a
// no-relevant-content error is returned. Lexical ids unknown to the manifest are
// skipped (a stale index can briefly disagree with the current corpus).
func Fuse(semantic []models.SemanticResult, lexical []models.LexicalResult, manifest *models.ArtifactManifest, opts Options) ([]models.FusedResult, error) {
	opts.applyDefaults()
	if len(semantic) == 0 && len(lexical) == 0 {
		return nil, models.NewError(models.KindNoRelevantContent, "fuse rankings", nil)
	}

	type entry struct {
		result  models.FusedResult
		semRank int // original semantic rank, -1 when semantic-only absence
	}
	byID := make(map[string]*entry, len(semantic)+len(lexical))
	order := make([]string, 0, len(semantic)+len(lexical))

	for rank, sr := range semantic {
		e := &entry{
			result: models.FusedResult{
				ChunkID: sr.ChunkID,
				Score:   opts.SemanticWeight / float64(opts.K+rank+1),
				Chunk:   sr.Chunk,
			},
			semRank: rank,
		}
		byID[sr.ChunkID] = e
		order = append(order, sr.ChunkID)
	}
	for rank, lr := range lexical {
		contribution := opts.LexicalWeight / float64(opts.K+rank+1)
		if e, ok := byID[lr.ID]; ok {
			e.result.Score += contribution
			continue
		}
		record := manifest.ChunkByID(lr.ID)
		if record == nil {
			continue
		}
		byID[lr.ID] = &entry{
			result: models.FusedResult{
				ChunkID: lr.ID,
				Score:   contribution,
				Chunk:   record,
			},
			semRank: -1,
		}
		order = append(order, lr.ID)
	}

	entries := make([]*entry, 0, len(order))
	for _, id := range order {
		entries = append(entries, byID[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].result.Score != entries[j].result.Score {
			return entries[i].result.Score > entries[j].result.Score
		}
		// Equal combined scores: prefer the better original semantic rank when
		// both are present; otherwise keep insertion order (stable).
		if entries[i].semRank >= 0 && entries[j].semRank >= 0 {
			return entries[i].semRank < entries[j].semRank
		}
		return false
	})

	fused := make([]models.FusedResult, len(entries))
	for i, e := range entries {
		fused[i] = e.result
	}
	return fused, nil
}

// SelectWithinBudget walks the fused ranking in order, accumulating each chunk's
// known token count, and stops once the budget would be exceeded. The first
// minChunks results are always included even when they overshoot the budget, so
// the generation step never receives fewer than the minimum context chunks.
func SelectWithinBudget(results []models.FusedResult, budget, minChunks int) []models.FusedResult {
	if minChunks < 0 {
		minChunks = 0
	}
	selected := make([]models.FusedResult, 0, len(results))
	total := 0
	for _, r := range results {
		tokens := 0
		if r.Chunk != nil {
			tokens = r.Chunk.Tokens
		}
		if len(selected) >= minChunks && total+tokens > budget {
			break
		}
		selected = append(selected, r)
		total += tokens
	}
	return selected
}
