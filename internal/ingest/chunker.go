package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"go.uber.org/zap"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50

	// shortChunkLength triggers a warning, not a validation failure.
	shortChunkLength = 50
)

// ErrInvalidChunks is returned when a chunk set fails validation.
var ErrInvalidChunks = errors.New("invalid chunks")

// DefaultSeparators are tried in order when splitting policy text.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunk is a contiguous piece of a policy document with its position.
type Chunk struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Section   string `json:"section"`
	Index     int    `json:"chunk_index"`
	CharStart int    `json:"char_start"`
	CharEnd   int    `json:"char_end"`
}

// Splitter splits text into overlapping pieces.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// Chunker splits documents into section-tagged chunks.
type Chunker struct {
	splitter Splitter
	logger   *zap.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithSplitter replaces the recursive character splitter.
func WithSplitter(s Splitter) ChunkerOption {
	return func(c *Chunker) { c.splitter = s }
}

// WithChunkerLogger sets the logger.
func WithChunkerLogger(l *zap.Logger) ChunkerOption {
	return func(c *Chunker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChunker creates a chunker backed by a recursive character splitter.
// Non-positive sizes fall back to the defaults.
func NewChunker(chunkSize, chunkOverlap int, opts ...ChunkerOption) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}

	c := &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
		),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits text and tags each piece with its offsets and section.
func (c *Chunker) Chunk(text string) ([]Chunk, error) {
	pieces, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	sections := ExtractSections(text)
	chunks := make([]Chunk, 0, len(pieces))
	searchFrom, prevEnd := 0, 0

	for _, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}

		// Overlapping pieces start before the previous end, so search from
		// just past the previous start.
		start := indexFrom(text, piece, searchFrom)
		if start < 0 {
			start = prevEnd
		}
		end := start + len(piece)

		idx := len(chunks)
		chunks = append(chunks, Chunk{
			ID:        fmt.Sprintf("chunk_%d", idx),
			Text:      piece,
			Section:   sectionAt(sections, start),
			Index:     idx,
			CharStart: start,
			CharEnd:   end,
		})

		searchFrom = start + 1
		prevEnd = end
	}

	c.logger.Debug("document chunked",
		zap.Int("chunks", len(chunks)),
		zap.Int("sections", len(sections)),
	)
	return chunks, nil
}

func indexFrom(text, sub string, from int) int {
	if from > len(text) {
		return -1
	}
	i := strings.Index(text[from:], sub)
	if i < 0 {
		return -1
	}
	return from + i
}

// ValidateChunks checks that chunks are non-empty, carry ids and sections,
// have increasing offsets and sequential indices.
func ValidateChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks", ErrInvalidChunks)
	}
	for i, ch := range chunks {
		switch {
		case ch.ID == "":
			return fmt.Errorf("%w: chunk %d has no id", ErrInvalidChunks, i)
		case ch.Section == "":
			return fmt.Errorf("%w: chunk %d has no section", ErrInvalidChunks, i)
		case strings.TrimSpace(ch.Text) == "":
			return fmt.Errorf("%w: chunk %d has empty text", ErrInvalidChunks, i)
		case ch.CharEnd <= ch.CharStart:
			return fmt.Errorf("%w: chunk %d has invalid character positions", ErrInvalidChunks, i)
		case ch.Index != i:
			return fmt.Errorf("%w: chunk indices not sequential at position %d", ErrInvalidChunks, i)
		}
	}
	return nil
}

// ShortChunks returns the indices of chunks below the warning length.
func ShortChunks(chunks []Chunk) []int {
	var short []int
	for _, ch := range chunks {
		if len(ch.Text) < shortChunkLength {
			short = append(short, ch.Index)
		}
	}
	return short
}

// Stats summarises a chunk set.
type Stats struct {
	TotalChunks     int      `json:"total_chunks"`
	AvgChunkLength  float64  `json:"avg_chunk_length"`
	MinChunkLength  int      `json:"min_chunk_length"`
	MaxChunkLength  int      `json:"max_chunk_length"`
	UniqueSections  int      `json:"unique_sections"`
	SectionsCovered []string `json:"sections_covered"`
}

// Statistics computes length and section coverage figures.
// Sections are listed in first-seen order.
func Statistics(chunks []Chunk) Stats {
	if len(chunks) == 0 {
		return Stats{SectionsCovered: []string{}}
	}

	stats := Stats{
		TotalChunks:     len(chunks),
		MinChunkLength:  len(chunks[0].Text),
		SectionsCovered: []string{},
	}
	seen := make(map[string]bool)
	total := 0
	for _, ch := range chunks {
		n := len(ch.Text)
		total += n
		if n < stats.MinChunkLength {
			stats.MinChunkLength = n
		}
		if n > stats.MaxChunkLength {
			stats.MaxChunkLength = n
		}
		if !seen[ch.Section] {
			seen[ch.Section] = true
			stats.SectionsCovered = append(stats.SectionsCovered, ch.Section)
		}
	}
	stats.AvgChunkLength = float64(total) / float64(len(chunks))
	stats.UniqueSections = len(stats.SectionsCovered)
	return stats
}
