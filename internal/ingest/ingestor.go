package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Store receives chunks for indexing.
type Store interface {
	Reset(ctx context.Context) error
	AddChunks(ctx context.Context, chunks []Chunk) error
	Count() int
}

// SetupResult summarises one ingestion run.
type SetupResult struct {
	DocumentPath     string  `json:"document_path"`
	DocumentChars    int     `json:"document_chars"`
	TotalChunks      int     `json:"total_chunks"`
	DocumentsStored  int     `json:"total_documents_stored"`
	ChunksPath       string  `json:"chunks_path,omitempty"`
	SetupTimeSeconds float64 `json:"setup_time_seconds"`
	Statistics       Stats   `json:"statistics"`
}

// Ingestor loads a policy document, chunks it and indexes the chunks.
type Ingestor struct {
	chunker    *Chunker
	store      Store
	chunksPath string
	logger     *zap.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunksPath saves the chunk set as JSON before indexing.
func WithChunksPath(path string) Option {
	return func(i *Ingestor) { i.chunksPath = path }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// NewIngestor creates an ingestor writing to store.
func NewIngestor(chunker *Chunker, store Store, opts ...Option) *Ingestor {
	if chunker == nil {
		chunker = NewChunker(DefaultChunkSize, DefaultChunkOverlap)
	}
	i := &Ingestor{
		chunker: chunker,
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Setup runs load, chunk, validate, save and index for the document at path.
// With reset the collection is emptied first; otherwise chunks with the same
// ids are overwritten.
func (i *Ingestor) Setup(ctx context.Context, path string, reset bool) (*SetupResult, error) {
	start := time.Now()

	text, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	i.logger.Info("document loaded", zap.String("path", path), zap.Int("chars", len(text)))

	chunks, err := i.chunker.Chunk(text)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if err := ValidateChunks(chunks); err != nil {
		return nil, err
	}
	if short := ShortChunks(chunks); len(short) > 0 {
		i.logger.Warn("short chunks", zap.Ints("indices", short))
	}
	stats := Statistics(chunks)

	if i.chunksPath != "" {
		if err := SaveChunks(i.chunksPath, chunks); err != nil {
			return nil, err
		}
	}

	if reset {
		if err := i.store.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset collection: %w", err)
		}
	}
	if err := i.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("add chunks: %w", err)
	}

	result := &SetupResult{
		DocumentPath:     path,
		DocumentChars:    len(text),
		TotalChunks:      len(chunks),
		DocumentsStored:  i.store.Count(),
		ChunksPath:       i.chunksPath,
		SetupTimeSeconds: time.Since(start).Seconds(),
		Statistics:       stats,
	}
	i.logger.Info("setup complete",
		zap.Int("chunks", result.TotalChunks),
		zap.Int("stored", result.DocumentsStored),
		zap.Float64("seconds", result.SetupTimeSeconds),
	)
	return result, nil
}

// SaveChunks writes chunks as indented JSON, creating parent directories.
func SaveChunks(path string, chunks []Chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create chunks dir: %w", err)
	}
	data, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	return nil
}
