// Package chunker splits normalized document prose into overlapping,
// heading-aware chunks sized for embedding and generation context.
package chunker

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// Options controls chunk sizing. All values are estimated tokens.
type Options struct {
	// TargetTokens is the preferred chunk size; accumulation closes a chunk once
	// adding the next paragraph would push it past the target.
	TargetTokens int
	// MaxTokens flags oversized single paragraphs. Paragraphs are never split, so
	// one larger than the target becomes its own over-target chunk.
	MaxTokens int
	// MinTokens is the floor; smaller chunks are dropped rather than embedded.
	MinTokens int
	// OverlapTokens is the trailing slice of the previous chunk seeded into the next.
	OverlapTokens int
}

// DefaultOptions returns the standard sizing used by the corpus builder.
func DefaultOptions() Options {
	return Options{
		TargetTokens:  256,
		MaxTokens:     512,
		MinTokens:     64,
		OverlapTokens: 32,
	}
}

// Chunker splits documents into chunks according to Options.
type Chunker struct {
	opts   Options
	logger *zap.Logger
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithLogger sets a logger for debug output (dropped chunks, oversize paragraphs).
func WithLogger(l *zap.Logger) Option {
	return func(c *Chunker) { c.logger = l }
}

// NewChunker creates a chunker. Zero fields in opts fall back to DefaultOptions.
func NewChunker(opts Options, copts ...Option) *Chunker {
	def := DefaultOptions()
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = def.TargetTokens
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.MinTokens <= 0 {
		opts.MinTokens = def.MinTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = def.OverlapTokens
	}
	c := &Chunker{opts: opts}
	for _, o := range copts {
		o(c)
	}
	return c
}

// EstimateTokens estimates the token count of text as ceil(len/4). It is a cheap,
// deterministic heuristic, not a real tokenizer; every token budget in the system
// uses this same estimate so ratios stay comparable.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// section is one heading-delimited region of a document.
type section struct {
	heading    string // empty for content preceding the first heading
	paragraphs []string
}

// Chunk splits a document into an ordered chunk sequence. startIndex is the running
// global chunk index for the corpus; each produced chunk is stamped with
// startIndex + position for stable tie-breaking. A document whose every chunk falls
// below the minimum floor yields zero chunks; that is not an error.
func (c *Chunker) Chunk(item *models.ContentItem, startIndex int) []*models.Chunk {
	sections := splitSections(item.Body)
	if len(sections) == 0 {
		return nil
	}

	var chunks []*models.Chunk
	var prevText string // text of the previously closed chunk, for overlap seeding
	for _, sec := range sections {
		secChunks := c.chunkSection(item, sec, &prevText)
		chunks = append(chunks, secChunks...)
	}

	// Floor filter runs after every section has attempted at least one chunk.
	kept := chunks[:0]
	for _, ch := range chunks {
		if ch.Tokens < c.opts.MinTokens {
			if c.logger != nil {
				c.logger.Debug("dropping chunk below token floor",
					zap.String("chunk_id", ch.ID),
					zap.Int("tokens", ch.Tokens),
					zap.Int("floor", c.opts.MinTokens),
				)
			}
			continue
		}
		kept = append(kept, ch)
	}
	for i, ch := range kept {
		ch.Metadata.Index = startIndex + i
	}
	return kept
}

// chunkSection accumulates a section's paragraphs into chunks, seeding each chunk
// after the first with a trailing overlap slice of the previous chunk.
func (c *Chunker) chunkSection(item *models.ContentItem, sec section, prevText *string) []*models.Chunk {
	var chunks []*models.Chunk
	ordinal := 0
	label := sectionLabel(sec.heading)

	var parts []string
	current := 0

	close := func() {
		if len(parts) == 0 {
			return
		}
		text := strings.Join(parts, "\n\n")
		chunks = append(chunks, c.newChunk(item, sec.heading, label, ordinal, text))
		ordinal++
		*prevText = text
		parts = parts[:0]
		current = 0
	}

	for _, para := range sec.paragraphs {
		paraTokens := EstimateTokens(para)
		if len(parts) > 0 && current+paraTokens > c.opts.TargetTokens {
			close()
		}
		if len(parts) == 0 {
			if seed := overlapTail(*prevText, c.opts.OverlapTokens); seed != "" {
				parts = append(parts, seed)
				current = EstimateTokens(seed)
			}
		}
		if paraTokens > c.opts.MaxTokens && c.logger != nil {
			c.logger.Debug("paragraph exceeds max tokens, keeping whole",
				zap.String("document_id", item.ID),
				zap.Int("tokens", paraTokens),
			)
		}
		parts = append(parts, para)
		current += paraTokens
	}
	close()
	return chunks
}

func (c *Chunker) newChunk(item *models.ContentItem, heading, label string, ordinal int, text string) *models.Chunk {
	return &models.Chunk{
		ID:         fmt.Sprintf("%s#%s-%d", item.ID, label, ordinal),
		DocumentID: item.ID,
		Text:       text,
		Tokens:     EstimateTokens(text),
		Metadata: models.ChunkMetadata{
			DocType: item.Type,
			Title:   item.Title,
			Section: heading,
			Tags:    item.Metadata.Tags,
			URL:     item.Metadata.URL,
		},
	}
}

// overlapTail returns a trailing slice of text holding at most overlapTokens
// estimated tokens, cut on a whitespace word boundary. The result is always a
// verbatim suffix of text.
func overlapTail(text string, overlapTokens int) string {
	if text == "" || overlapTokens <= 0 {
		return ""
	}
	budget := overlapTokens * 4 // invert the chars/4 estimate
	if len(text) <= budget {
		return text
	}
	cut := text[len(text)-budget:]
	// Advance to the next word boundary so the slice never starts mid-word.
	if idx := strings.IndexAny(cut, " \t\n"); idx >= 0 {
		cut = strings.TrimLeft(cut[idx:], " \t\n")
	}
	return cut
}

// splitSections splits a document at heading boundaries. Two heading levels are
// recognized ("# " and "## "); content preceding the first heading becomes a
// section with no heading label.
func splitSections(body string) []section {
	lines := strings.Split(body, "\n")
	var sections []section
	cur := section{}
	var buf []string

	flushParagraphs := func() {
		joined := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if joined == "" {
			return
		}
		for _, para := range strings.Split(joined, "\n\n") {
			para = strings.TrimSpace(para)
			if para != "" {
				cur.paragraphs = append(cur.paragraphs, para)
			}
		}
	}

	for _, line := range lines {
		if heading, ok := headingText(line); ok {
			flushParagraphs()
			if len(cur.paragraphs) > 0 || cur.heading != "" {
				sections = append(sections, cur)
			}
			cur = section{heading: heading}
			continue
		}
		buf = append(buf, line)
	}
	flushParagraphs()
	if len(cur.paragraphs) > 0 || cur.heading != "" {
		sections = append(sections, cur)
	}

	// Drop heading-only sections with no prose.
	kept := sections[:0]
	for _, s := range sections {
		if len(s.paragraphs) > 0 {
			kept = append(kept, s)
		}
	}
	return kept
}

// headingText recognizes level-1 and level-2 markdown headings.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "## ") {
		return strings.TrimSpace(trimmed[3:]), true
	}
	if strings.HasPrefix(trimmed, "# ") {
		return strings.TrimSpace(trimmed[2:]), true
	}
	return "", false
}

// sectionLabel converts a heading into the id component; the implicit first
// section is labeled "intro".
func sectionLabel(heading string) string {
	if heading == "" {
		return "intro"
	}
	label := strings.ToLower(heading)
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, label)
	label = strings.Trim(label, "-")
	if label == "" {
		return "section"
	}
	return label
}
